package domain

import (
	"fmt"
	"strings"
)

// Phase is a step of the host's connection pipeline.
// Values are ordered: a user always passes PreLogin, then Login, then Join.
type Phase uint8

const (
	PhasePreLogin Phase = iota
	PhaseLogin
	PhaseJoin
)

var phaseNames = [...]string{
	PhasePreLogin: "AsyncPreLogin",
	PhaseLogin:    "Login",
	PhaseJoin:     "Join",
}

// String returns the configuration name of the phase.
func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", p)
}

// ParsePhase converts a configuration name into a Phase (case-insensitive).
func ParsePhase(s string) (Phase, error) {
	s = strings.TrimSpace(s)
	for i, name := range phaseNames {
		if strings.EqualFold(name, s) {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported Phase: %q", s)
}

// Phases lists every phase in pipeline order.
func Phases() []Phase {
	return []Phase{PhasePreLogin, PhaseLogin, PhaseJoin}
}

// Priority orders handlers within a phase, lowest runs first.
// PriorityMonitor runs last and must only observe.
type Priority uint8

const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityMonitor
)

var priorityNames = [...]string{
	PriorityLowest:  "LOWEST",
	PriorityLow:     "LOW",
	PriorityNormal:  "NORMAL",
	PriorityHigh:    "HIGH",
	PriorityHighest: "HIGHEST",
	PriorityMonitor: "MONITOR",
}

// String returns the configuration name of the priority.
func (p Priority) String() string {
	if int(p) < len(priorityNames) {
		return priorityNames[p]
	}
	return fmt.Sprintf("Priority(%d)", p)
}

// ParsePriority converts a configuration name into a Priority (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	s = strings.TrimSpace(s)
	for i, name := range priorityNames {
		if strings.EqualFold(name, s) {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported Priority: %q", s)
}

// Priorities lists every priority in dispatch order.
func Priorities() []Priority {
	return []Priority{PriorityLowest, PriorityLow, PriorityNormal, PriorityHigh, PriorityHighest, PriorityMonitor}
}

// Stage is one (phase, priority) slot of the connection pipeline.
type Stage struct {
	Phase    Phase
	Priority Priority
}

// String renders the stage as "Phase/PRIORITY".
func (s Stage) String() string {
	return s.Phase.String() + "/" + s.Priority.String()
}

// Before reports whether s is dispatched before o.
func (s Stage) Before(o Stage) bool {
	if s.Phase != o.Phase {
		return s.Phase < o.Phase
	}
	return s.Priority < o.Priority
}

// IsMonitor reports whether the stage is the observe-only slot of its phase.
func (s Stage) IsMonitor() bool { return s.Priority == PriorityMonitor }

// PipelineStages returns every stage in dispatch order: all priorities of
// PreLogin, then of Login, then of Join.
func PipelineStages() []Stage {
	stages := make([]Stage, 0, len(phaseNames)*len(priorityNames))
	for _, ph := range Phases() {
		for _, pr := range Priorities() {
			stages = append(stages, Stage{Phase: ph, Priority: pr})
		}
	}
	return stages
}
