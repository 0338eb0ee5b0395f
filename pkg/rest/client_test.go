package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGatewayBot(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"url": "wss://gateway.example.com",
			"shards": 9,
			"session_start_limit": {"total": 1000, "remaining": 999, "reset_after": 14400000, "max_concurrency": 16}
		}`))
	}))
	defer srv.Close()

	c := NewClient("secret", WithAPIURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	gb, err := c.GatewayBot(context.Background())
	if err != nil {
		t.Fatalf("GatewayBot() error = %v", err)
	}

	if gotAuth != "Bot secret" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bot secret")
	}
	if gotPath != "/gateway/bot" {
		t.Errorf("path = %q", gotPath)
	}
	if gb.URL != "wss://gateway.example.com" || gb.Shards != 9 {
		t.Errorf("unexpected gateway info: %+v", gb)
	}
	if gb.SessionStartLimit.MaxConcurrency != 16 || gb.SessionStartLimit.Remaining != 999 {
		t.Errorf("unexpected session start limit: %+v", gb.SessionStartLimit)
	}
	if gb.SessionStartLimit.ResetIn() != 4*time.Hour {
		t.Errorf("ResetIn() = %v, want 4h", gb.SessionStartLimit.ResetIn())
	}
}

func TestGatewayBot_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		unauthorized bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message": "401: Unauthorized"}`, true},
		{"server error", http.StatusBadGateway, `bad gateway`, false},
		{"bad json", http.StatusOK, `{`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("t", WithAPIURL(srv.URL)).GatewayBot(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := err == ErrUnauthorized; got != tt.unauthorized {
				t.Errorf("err = %v, unauthorized = %v, want %v", err, got, tt.unauthorized)
			}
		})
	}
}

func TestBotToken(t *testing.T) {
	tests := map[string]string{
		"abc":        "Bot abc",
		"Bot abc":    "Bot abc",
		" abc ":      "Bot abc",
		"Bearer xyz": "Bearer xyz",
	}
	for in, want := range tests {
		if got := BotToken(in); got != want {
			t.Errorf("BotToken(%q) = %q, want %q", in, got, want)
		}
	}
}
