package answer

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Echo!", "echo"},
		{"  the   ", "the"},
		{"This Is Your First Test", "this is your first test"},
		{"LOYALTY\u2014IS the...ONLY\tcurrency\n", "loyalty is the only currency"},
		{"r2-d2", "r2 d2"},
		{"Ünïcode", "n code"},
		{"!!!", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, s := range []string{"Echo!", " a  B  c ", "x--y"} {
		once := Normalize(s)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", s, once, twice)
		}
	}
}

func TestIsMatch(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		accepted []string
		want     bool
	}{
		{"punctuation", "Echo!", []string{"echo"}, true},
		{"whitespace", "  the   ", []string{"the"}, true},
		{"case", "this is your first test", []string{"This Is Your First Test"}, true},
		{"any alternative", "hole", []string{"pit", "Hole."}, true},
		{"mismatch", "wrong", []string{"echo"}, false},
		{"partial", "ech", []string{"echo"}, false},
		{"empty raw", "   ", []string{"echo"}, false},
		{"punctuation only", "?!", []string{"!?"}, false},
		{"no accepted", "echo", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMatch(tt.raw, tt.accepted); got != tt.want {
				t.Fatalf("IsMatch(%q, %v) = %v, want %v", tt.raw, tt.accepted, got, tt.want)
			}
		})
	}
}
