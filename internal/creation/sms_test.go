package creation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ehmo/sovi/internal/domain"
)

func TestSMSClient_AwaitCode_ReturnsOnceArrived(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls < 3 {
			json.NewEncoder(w).Encode(map[string]string{"code": ""})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"code": "135790"})
	}))
	defer srv.Close()

	c := NewSMSClient(srv.URL, "test-key")
	code, err := c.AwaitCode(context.Background(), "order-1", time.Second, 2*time.Millisecond)
	if err != nil {
		t.Fatalf("AwaitCode() error = %v", err)
	}
	if code != "135790" {
		t.Errorf("AwaitCode() = %q, want %q", code, "135790")
	}
}

func TestSMSClient_AwaitCode_TimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"code": ""})
	}))
	defer srv.Close()

	c := NewSMSClient(srv.URL, "test-key")
	_, err := c.AwaitCode(context.Background(), "order-1", 10*time.Millisecond, 3*time.Millisecond)
	if err != domain.ErrSMSVerificationTimeout {
		t.Fatalf("AwaitCode() error = %v, want ErrSMSVerificationTimeout", err)
	}
}
