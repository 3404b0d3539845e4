package lifecycle

import (
	"errors"

	"github.com/lehigh-university-libraries/framepicker/internal/models"
)

// State is the client-side lifecycle state of the current submission
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// IsTerminal reports whether polling has stopped for good in this state
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError
}

var (
	// ErrSubmitInProgress is returned when a submission is attempted while another is uploading
	ErrSubmitInProgress = errors.New("a submission is already in progress")
	// ErrNotPolling is returned by Wait when no polling session exists
	ErrNotPolling = errors.New("no task is being polled")
	// ErrSuperseded is returned when a submission was replaced before it finished
	ErrSuperseded = errors.New("submission superseded")
)

// validTransitions lists the allowed moves of the state machine.
// Leaving a terminal state is only possible through a new submission.
var validTransitions = map[State][]State{
	StateIdle:       {StateSubmitting},
	StateSubmitting: {StateIdle, StatePolling},
	StatePolling:    {StatePolling, StateCompleted, StateError, StateSubmitting},
	StateCompleted:  {StateSubmitting},
	StateError:      {StateSubmitting},
}

func canTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Token identifies one polling session. Results produced for a token that is
// no longer active must be discarded.
type Token struct {
	seq    uint64
	taskID string
}

// TaskID returns the task observed by the session
func (t Token) TaskID() string {
	return t.taskID
}

// IsZero reports whether the token refers to no session
func (t Token) IsZero() bool {
	return t.seq == 0
}

// Transition is delivered to subscribers for every state change,
// including polling→polling progress updates
type Transition struct {
	From   State
	To     State
	Token  Token
	Handle *models.TaskHandle
	Err    error
}
