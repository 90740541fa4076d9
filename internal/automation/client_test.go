package automation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, Config{GestureTimeout: time.Second}, "dev1")
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error: %v", err)
	}
}

func TestProbe_NonTwoxxReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("agent down"))
	}))
	defer srv.Close()

	c := New(srv.URL, Config{GestureTimeout: time.Second}, "dev1")
	err := c.Probe(context.Background())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, Config{GestureTimeout: time.Second}, "dev1")
	for i := 0; i < 3; i++ {
		_ = c.Probe(context.Background())
	}
	if !c.BreakerOpen() {
		t.Error("expected breaker to be open after 3 consecutive failures")
	}
}

func TestAppState_DecodesValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":4}`))
	}))
	defer srv.Close()

	c := New(srv.URL, Config{GestureTimeout: time.Second}, "dev1")
	state, err := c.AppState(context.Background(), "com.example.app")
	if err != nil {
		t.Fatalf("AppState() error: %v", err)
	}
	if state != AppForeground {
		t.Errorf("AppState() = %v, want %v", state, AppForeground)
	}
}
