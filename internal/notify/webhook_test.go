package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTriggerEmail(t *testing.T) {
	var (
		got    ResetEmail
		secret string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get(SecretHeader)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, "s3cret", nil)
	if err != nil {
		t.Fatalf("NewWebhook failed: %v", err)
	}

	payload := ResetEmail{Email: "real@example.com", ResetLink: "https://x/reset", AgentID: "AGENT007"}
	if err := wh.TriggerEmail(context.Background(), payload); err != nil {
		t.Fatalf("TriggerEmail failed: %v", err)
	}
	if got != payload {
		t.Fatalf("expected payload %+v, got %+v", payload, got)
	}
	if secret != "s3cret" {
		t.Fatalf("expected secret header, got %q", secret)
	}
}

func TestTriggerEmailNon2xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, "", nil)
	if err != nil {
		t.Fatalf("NewWebhook failed: %v", err)
	}

	err = wh.TriggerEmail(context.Background(), ResetEmail{Email: "a@b"})
	if !errors.Is(err, ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retries, got %d calls", calls)
	}
}

func TestNewWebhookValidation(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://x/y"} {
		if _, err := NewWebhook(raw, "", nil); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}
