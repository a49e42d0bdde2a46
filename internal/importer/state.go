package importer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/reelmatch/reelmatch/internal/models"
)

// Transition is one edge of the import-file state machine.
type Transition struct {
	Name string
	From []models.ImportFileStatus
	To   models.ImportFileStatus
}

// The import-file lifecycle. A fresh file enters via "upload" (also the
// re-entry edge from FAILED); only UPLOADED admits "process"; "failed" is
// admissible while uploaded or processing.
var importTransitions = []Transition{
	{Name: "upload", From: []models.ImportFileStatus{"", models.ImportFailed}, To: models.ImportUploaded},
	{Name: "process", From: []models.ImportFileStatus{models.ImportUploaded}, To: models.ImportProcessing},
	{Name: "done", From: []models.ImportFileStatus{models.ImportProcessing}, To: models.ImportDone},
	{Name: "failed", From: []models.ImportFileStatus{models.ImportUploaded, models.ImportProcessing}, To: models.ImportFailed},
}

// InvalidTransitionError reports a state-machine guard violation; the file's
// status is left untouched.
type InvalidTransitionError struct {
	Name string
	From models.ImportFileStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("transition %q not admissible from status %q", e.Name, e.From)
}

func (e *InvalidTransitionError) Kind() string { return "INVALID_STATUS_TRANSITION" }

// Hook observes a transition. Before-hooks may veto by returning an error;
// after-hooks run once the new status is set and their errors are only
// logged.
type Hook func(ctx context.Context, file *models.ImportFile, t Transition) error

// StateMachine applies the declarative transition table with ordered
// before/after hooks. It mutates the file in memory only; persisting the new
// status (and the log row every transition appends) is the caller's job.
type StateMachine struct {
	transitions []Transition
	before      []Hook
	after       []Hook
	log         *zap.SugaredLogger
}

func NewStateMachine(log *zap.SugaredLogger) *StateMachine {
	return &StateMachine{transitions: importTransitions, log: log}
}

// Before registers a veto hook. Hooks run in registration order.
func (m *StateMachine) Before(h Hook) { m.before = append(m.before, h) }

// After registers a post-transition hook. Hooks run in registration order;
// failures are logged, never rolled back.
func (m *StateMachine) After(h Hook) { m.after = append(m.after, h) }

// Apply performs the named transition on file. On success file.Status holds
// the new state and the applied Transition is returned so callers can log
// it.
func (m *StateMachine) Apply(ctx context.Context, file *models.ImportFile, name string) (Transition, error) {
	var transition *Transition
	for i := range m.transitions {
		if m.transitions[i].Name == name {
			transition = &m.transitions[i]
			break
		}
	}
	if transition == nil {
		return Transition{}, &InvalidTransitionError{Name: name, From: file.Status}
	}

	admissible := false
	for _, from := range transition.From {
		if file.Status == from {
			admissible = true
			break
		}
	}
	if !admissible {
		return Transition{}, &InvalidTransitionError{Name: name, From: file.Status}
	}

	for _, h := range m.before {
		if err := h(ctx, file, *transition); err != nil {
			return Transition{}, fmt.Errorf("transition %q vetoed: %w", name, err)
		}
	}

	file.Status = transition.To

	for _, h := range m.after {
		if err := h(ctx, file, *transition); err != nil {
			m.log.Warnw("after-hook failed", "file", file.ID, "transition", name, "error", err)
		}
	}
	return *transition, nil
}
