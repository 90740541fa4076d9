package creation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCaptchaClient_Solve_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing/incorrect Authorization header")
		}
		json.NewEncoder(w).Encode(map[string]string{"answer": "4F7K"})
	}))
	defer srv.Close()

	c := NewCaptchaClient(srv.URL, "test-key")
	answer, err := c.Solve(context.Background(), []byte("fake-png-bytes"))
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if answer != "4F7K" {
		t.Errorf("Solve() = %q, want %q", answer, "4F7K")
	}
}

func TestCaptchaClient_Solve_EmptyAnswerFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"answer": ""})
	}))
	defer srv.Close()

	c := NewCaptchaClient(srv.URL, "test-key")
	if _, err := c.Solve(context.Background(), []byte("x")); err == nil {
		t.Error("Solve() error = nil, want error for empty answer")
	}
}
