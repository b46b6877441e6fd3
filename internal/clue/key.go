// Package clue defines clue identities and the static, ordered clue catalog.
package clue

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies one clue by month and index within the month.
type Key struct {
	Month int
	Index int
}

// String returns the persisted clue key, e.g. "M1C3".
func (k Key) String() string {
	return "M" + strconv.Itoa(k.Month) + "C" + strconv.Itoa(k.Index)
}

// Valid reports whether both coordinates are positive.
func (k Key) Valid() bool {
	return k.Month > 0 && k.Index > 0
}

// Previous returns the key for the preceding clue in the same month.
// The second return value is false for index 1, which has no predecessor.
func (k Key) Previous() (Key, bool) {
	if k.Index <= 1 {
		return Key{}, false
	}
	return Key{Month: k.Month, Index: k.Index - 1}, true
}

// Less orders keys by (month, index).
func (k Key) Less(other Key) bool {
	if k.Month != other.Month {
		return k.Month < other.Month
	}
	return k.Index < other.Index
}

// ParseKey parses the "M{month}C{index}" form produced by Key.String.
func ParseKey(raw string) (Key, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 4 || (s[0] != 'M' && s[0] != 'm') {
		return Key{}, fmt.Errorf("clue: invalid key %q", raw)
	}

	sep := strings.IndexAny(s, "Cc")
	if sep < 2 || sep == len(s)-1 {
		return Key{}, fmt.Errorf("clue: invalid key %q", raw)
	}

	month, err := strconv.Atoi(s[1:sep])
	if err != nil {
		return Key{}, fmt.Errorf("clue: invalid month in key %q", raw)
	}
	index, err := strconv.Atoi(s[sep+1:])
	if err != nil {
		return Key{}, fmt.Errorf("clue: invalid index in key %q", raw)
	}

	k := Key{Month: month, Index: index}
	if !k.Valid() {
		return Key{}, fmt.Errorf("clue: key %q must have positive month and index", raw)
	}
	return k, nil
}
