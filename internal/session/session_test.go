package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ehmo/sovi/internal/automation"
	"github.com/ehmo/sovi/internal/domain"
	"github.com/ehmo/sovi/internal/eventlog"
	"github.com/ehmo/sovi/internal/security"
	"github.com/ehmo/sovi/internal/store"
	"github.com/ehmo/sovi/internal/warming"
)

type fakeStore struct {
	completeCalls   int
	exceptionCalls  int
	insertedCount   int
	lastNewState    domain.AccountState
}

func (f *fakeStore) CompleteWarmingSession(ctx context.Context, accountID string, newState domain.AccountState) error {
	f.completeCalls++
	f.lastNewState = newState
	return nil
}

func (f *fakeStore) ApplyExceptionState(ctx context.Context, accountID string, newState domain.AccountState) error {
	f.exceptionCalls++
	f.lastNewState = newState
	return nil
}

func (f *fakeStore) InsertWarmingSession(ctx context.Context, ws domain.WarmingSession) (domain.WarmingSession, error) {
	f.insertedCount++
	return ws, nil
}

type fakeEventStore struct{}

func (fakeEventStore) InsertEvent(ctx context.Context, e domain.SystemEvent) (domain.SystemEvent, error) {
	return e, nil
}
func (fakeEventStore) ListEvents(ctx context.Context, f store.EventFilter) ([]domain.SystemEvent, error) {
	return nil, nil
}
func (fakeEventStore) ResolveEvent(ctx context.Context, id int64, resolvedBy string) error {
	return nil
}

func newTestCodec(t *testing.T) *security.Codec {
	t.Helper()
	codec, err := security.NewCodec(make([]byte, 32))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return codec
}

// newDeviceServer builds an automation agent stub that answers every
// WebDriver call with a generic success envelope.
func newDeviceServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request) bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler != nil && handler(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/session":
			json.NewEncoder(w).Encode(map[string]any{"sessionId": "sess-1"})
		case "/session/sess-1/element":
			json.NewEncoder(w).Encode(map[string]any{"value": map[string]string{"ELEMENT": "el-1"}})
		default:
			w.Write([]byte(`{"value":""}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAccount(t *testing.T, codec *security.Codec) domain.Account {
	t.Helper()
	emailEnc, err := codec.EncryptString("warm1@example.com")
	if err != nil {
		t.Fatalf("encrypt email: %v", err)
	}
	passEnc, err := codec.EncryptString("correct horse battery staple")
	if err != nil {
		t.Fatalf("encrypt password: %v", err)
	}
	return domain.Account{
		ID:              "acct-1",
		Platform:        domain.PlatformTikTok,
		Username:        "warm_user_1",
		EmailEnc:        []byte(emailEnc),
		PasswordEnc:     []byte(passEnc),
		CurrentState:    domain.StateCreated,
		WarmingDayCount: 0,
	}
}

func TestRun_InstallFailureAbortsWithoutStoreWrites(t *testing.T) {
	srv := newDeviceServer(t, func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path == "/session/sess-1/appium/device/remove_app" {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`boom`))
			return true
		}
		return false
	})
	client := automation.New(srv.URL, automation.Config{GestureTimeout: 2 * time.Second}, "dev-1")
	codec := newTestCodec(t)
	store := &fakeStore{}
	events := eventlog.New(fakeEventStore{}, nil, zap.NewNop())
	runner := New(store, events, codec, warming.NewEngine(), InstallSources{domain.PlatformTikTok: "s3://apps/tiktok.ipa"}, DefaultBudgets(), zap.NewNop())

	outcome, err := runner.Run(context.Background(), domain.Device{ID: "dev-1"}, newAccount(t, codec), client)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Completed {
		t.Error("Completed = true, want false after install failure")
	}
	if store.completeCalls != 0 || store.exceptionCalls != 0 || store.insertedCount != 0 {
		t.Errorf("store was written to after an install failure: %+v", store)
	}
}

func TestRun_SuccessfulSessionAdvancesWarmingDay(t *testing.T) {
	srv := newDeviceServer(t, nil)
	client := automation.New(srv.URL, automation.Config{GestureTimeout: 2 * time.Second}, "dev-1")
	codec := newTestCodec(t)
	store := &fakeStore{}
	events := eventlog.New(fakeEventStore{}, nil, zap.NewNop())
	budgets := DefaultBudgets()
	budgets.Warming = 30 * time.Millisecond
	runner := New(store, events, codec, warming.NewEngine(), InstallSources{domain.PlatformTikTok: "s3://apps/tiktok.ipa"}, budgets, zap.NewNop())

	outcome, err := runner.Run(context.Background(), domain.Device{ID: "dev-1"}, newAccount(t, codec), client)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !outcome.Completed {
		t.Fatal("Completed = false, want true")
	}
	if store.completeCalls != 1 {
		t.Errorf("CompleteWarmingSession called %d times, want 1", store.completeCalls)
	}
	if store.lastNewState != domain.StateWarmingP1 {
		t.Errorf("new state = %q, want %q", store.lastNewState, domain.StateWarmingP1)
	}
	if store.insertedCount != 1 {
		t.Errorf("InsertWarmingSession called %d times, want 1", store.insertedCount)
	}
}

func TestClassifyOutcome_DefaultsToNoException(t *testing.T) {
	if got := ClassifyOutcome(warming.Report{VideosWatched: 5}); got != "" {
		t.Errorf("ClassifyOutcome() = %q, want empty", got)
	}
}
