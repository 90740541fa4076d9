package warming

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ehmo/sovi/internal/automation"
	"github.com/ehmo/sovi/internal/domain"
)

func newTestClient(t *testing.T) *automation.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":""}`))
	}))
	t.Cleanup(srv.Close)
	return automation.New(srv.URL, automation.Config{GestureTimeout: 2 * time.Second}, "dev-test")
}

func TestEngine_UnknownPlatformStub(t *testing.T) {
	e := NewEngine()
	client := newTestClient(t)
	stop := make(chan struct{})

	_, err := e.Run(context.Background(), "youtube", domain.PhasePassive, client, stop, time.Second)
	if err != ErrPlatformNotActive {
		t.Fatalf("Run() error = %v, want ErrPlatformNotActive", err)
	}
}

func TestEngine_StopSignalPreemptsRun(t *testing.T) {
	e := NewEngine()
	client := newTestClient(t)
	stop := make(chan struct{})
	close(stop)

	report, err := e.Run(context.Background(), domain.PlatformTikTok, domain.PhasePassive, client, stop, time.Minute)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.VideosWatched != 0 {
		t.Errorf("VideosWatched = %d, want 0 when stop is already closed", report.VideosWatched)
	}
}

func TestEngine_PassivePhaseNeverEngages(t *testing.T) {
	e := NewEngine()
	client := newTestClient(t)
	stop := make(chan struct{})

	report, err := e.Run(context.Background(), domain.PlatformInstagram, domain.PhasePassive, client, stop, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Likes != 0 || report.Follows != 0 {
		t.Errorf("passive phase produced interactions: likes=%d follows=%d", report.Likes, report.Follows)
	}
}

func TestControls_CapsAreWithinContract(t *testing.T) {
	c := newControls()
	for i := 0; i < 100; i++ {
		if like := c.likeCap(); like < 5 || like > 10 {
			t.Fatalf("likeCap() = %d, want in [5,10]", like)
		}
		if f := c.followCap(false); f < 3 || f > 7 {
			t.Fatalf("followCap(tiktok) = %d, want in [3,7]", f)
		}
		if f := c.followCap(true); f < 3 || f > 5 {
			t.Fatalf("followCap(instagram) = %d, want in [3,5]", f)
		}
	}
}
