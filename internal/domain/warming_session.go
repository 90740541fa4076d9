package domain

import "time"

// WarmingPhase is the 1-4 ramp stage (see GLOSSARY).
type WarmingPhase int

const (
	PhasePassive   WarmingPhase = 1
	PhaseLight     WarmingPhase = 2
	PhaseModerate  WarmingPhase = 3
	PhaseActive    WarmingPhase = 4
)

// WarmingSession is an append-only record of one completed or failed
// warming cycle. Written by the session runner; never mutated.
type WarmingSession struct {
	ID            string
	AccountID     string
	DeviceID      string
	Platform      Platform
	Phase         WarmingPhase
	DayInPhase    int
	VideosWatched int
	Likes         int
	Follows       int
	StartedAt     time.Time
	CompletedAt   time.Time
}
