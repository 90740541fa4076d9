package domain

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return tm
}

func TestPhaseForDay(t *testing.T) {
	tests := []struct {
		day  int
		want AccountState
	}{
		{0, StateCreated},
		{1, StateWarmingP1},
		{3, StateWarmingP1},
		{4, StateWarmingP2},
		{7, StateWarmingP2},
		{8, StateWarmingP3},
		{14, StateWarmingP3},
		{15, StateActive},
		{100, StateActive},
	}
	for _, tt := range tests {
		if got := PhaseForDay(tt.day); got != tt.want {
			t.Errorf("PhaseForDay(%d) = %q, want %q", tt.day, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AccountState
		want     bool
	}{
		{StateCreated, StateWarmingP1, true},
		{StateWarmingP1, StateWarmingP2, true},
		{StateWarmingP2, StateWarmingP3, true},
		{StateWarmingP3, StateActive, true},
		{StateActive, StateResting, true},
		{StateActive, StateCooldown, true},
		{StateResting, StateActive, true},
		{StateCooldown, StateActive, true},
		// illegal: skipping a phase
		{StateCreated, StateWarmingP2, false},
		{StateWarmingP1, StateActive, false},
		// exception states reachable from any warming/active state
		{StateWarmingP1, StateFlagged, true},
		{StateActive, StateBanned, true},
		{StateCreated, StateFlagged, false},
		// exception states are not a source of further transitions here
		{StateBanned, StateActive, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestClaimPriority(t *testing.T) {
	order := []AccountState{StateCreated, StateWarmingP1, StateWarmingP2, StateWarmingP3, StateActive}
	prev := -1
	for _, s := range order {
		rank, ok := ClaimPriority(s)
		if !ok {
			t.Fatalf("ClaimPriority(%q) not warmable", s)
		}
		if rank <= prev {
			t.Errorf("ClaimPriority(%q) = %d, want > %d", s, rank, prev)
		}
		prev = rank
	}
	if _, ok := ClaimPriority(StateBanned); ok {
		t.Error("ClaimPriority(banned) should not be warmable")
	}
}

func TestAccountEligibleForWarming(t *testing.T) {
	now := mustTime(t, "2026-07-31T00:00:00Z")
	startOfDay := mustTime(t, "2026-07-31T00:00:00Z")

	a := Account{CurrentState: StateWarmingP1}
	if !a.EligibleForWarming(startOfDay) {
		t.Error("account with zero LastWarmedAt should be eligible")
	}

	a.LastWarmedAt = startOfDay.AddDate(0, 0, -1)
	if !a.EligibleForWarming(startOfDay) {
		t.Error("account warmed yesterday should be eligible today")
	}

	a.LastWarmedAt = now
	if a.EligibleForWarming(startOfDay) {
		t.Error("account already warmed today should not be eligible")
	}

	a.CurrentState = StateBanned
	a.LastWarmedAt = startOfDay.AddDate(0, 0, -1)
	if a.EligibleForWarming(startOfDay) {
		t.Error("banned account should never be eligible")
	}
}
