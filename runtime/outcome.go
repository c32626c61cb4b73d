package runtime

import (
	"time"
)

// State is a session lifecycle state.
type State int

// Session states. Completed, Aborted and Failed are terminal.
const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Exit codes for a finished stream.
const (
	ExitCodeCompleted = 0
	ExitCodeFailed    = 1
	ExitCodeAborted   = 130
)

// Outcome summarizes a finished stream session.
type Outcome struct {
	SessionID     string        `json:"session_id" yaml:"session_id"`
	KnowledgeBase string        `json:"knowledge_base,omitempty" yaml:"knowledge_base,omitempty"`
	State         State         `json:"-" yaml:"-"`
	Status        string        `json:"status" yaml:"status"`
	Error         string        `json:"error,omitempty" yaml:"error,omitempty"`
	Answer        string        `json:"answer" yaml:"answer"`
	Messages      int           `json:"messages" yaml:"messages"`
	Images        int           `json:"images" yaml:"images"`
	Events        int           `json:"events" yaml:"events"`
	Lines         int           `json:"lines" yaml:"lines"`
	Duration      time.Duration `json:"duration_ns" yaml:"duration"`
}

// ExitCode maps the outcome to a process exit code.
func (o *Outcome) ExitCode() int {
	switch o.State {
	case StateCompleted:
		return ExitCodeCompleted
	case StateAborted:
		return ExitCodeAborted
	default:
		return ExitCodeFailed
	}
}
