package creation

import (
	"context"
	"testing"

	"github.com/ehmo/sovi/internal/domain"
	"github.com/ehmo/sovi/internal/store"
)

type fakeCreationStore struct {
	taken map[string]bool
}

func (f *fakeCreationStore) LeastPopulatedNiche(ctx context.Context, platforms []domain.Platform) (store.NicheAccountCount, error) {
	return store.NicheAccountCount{
		Niche:    domain.Niche{ID: "niche-1", Slug: "personal_finance", Status: domain.NicheActive},
		Platform: domain.PlatformTikTok,
	}, nil
}

func (f *fakeCreationStore) UsernameTaken(ctx context.Context, platform domain.Platform, username string) (bool, error) {
	return f.taken[username], nil
}

func (f *fakeCreationStore) InsertAccount(ctx context.Context, a domain.Account) (domain.Account, error) {
	a.ID = "acct-new"
	a.CurrentState = domain.StateCreated
	return a, nil
}

func TestSynthesizeUsername_UsesNichePrefixAndRerolls(t *testing.T) {
	fs := &fakeCreationStore{taken: map[string]bool{}}
	r := &Runner{store: fs}

	username, err := r.synthesizeUsername(context.Background(), domain.PlatformTikTok, "personal_finance")
	if err != nil {
		t.Fatalf("synthesizeUsername() error = %v", err)
	}

	matchedPrefix := false
	for _, p := range usernamePrefixes["personal_finance"] {
		if len(username) > len(p) && username[:len(p)] == p {
			matchedPrefix = true
			break
		}
	}
	if !matchedPrefix {
		t.Errorf("synthesizeUsername() = %q, want one of the personal_finance prefixes", username)
	}

	fs.taken[username] = true
	second, err := r.synthesizeUsername(context.Background(), domain.PlatformTikTok, "personal_finance")
	if err != nil {
		t.Fatalf("synthesizeUsername() second call error = %v", err)
	}
	if second == username {
		t.Error("synthesizeUsername() returned a taken username twice in a row; reroll did not happen")
	}
}

func TestSynthesizeUsername_UnknownNicheFallsBackToSlug(t *testing.T) {
	fs := &fakeCreationStore{taken: map[string]bool{}}
	r := &Runner{store: fs}

	username, err := r.synthesizeUsername(context.Background(), domain.PlatformInstagram, "underwater_basket_weaving")
	if err != nil {
		t.Fatalf("synthesizeUsername() error = %v", err)
	}
	prefix := "underwater_basket_weaving"
	if len(username) <= len(prefix) || username[:len(prefix)] != prefix {
		t.Errorf("synthesizeUsername() = %q, want prefix %q", username, prefix)
	}
}
