package signaling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Ringing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet || r.URL.Path != "/v1/calls/ringing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"calls":[{"call_id":"c1","caller_id":"alice","caller_name":"Alice","medium":"VIDEO","channel_ref":"c1","created_at":"2026-03-01T12:00:00Z"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", time.Second)
	envs, err := c.Ringing(context.Background())
	if err != nil {
		t.Fatalf("Ringing: %v", err)
	}
	if len(envs) != 1 || envs[0].CallID != "c1" || envs[0].Type != EventIncoming || envs[0].CallerName != "Alice" {
		t.Fatalf("unexpected envelopes: %+v", envs)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"call_terminal"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	err := c.ReportMissed(context.Background(), "c1")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusConflict || se.Code != "call_terminal" {
		t.Fatalf("expected StatusError 409, got %v", err)
	}
}
