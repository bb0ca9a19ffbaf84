package domain

import "errors"

var (
	// ErrFetchFailure is returned when the question set could not be loaded.
	ErrFetchFailure = errors.New("question fetch failed")
	// ErrNoQuestions indicates a category has no questions yet.
	ErrNoQuestions = errors.New("no questions found for category")
	// ErrUnknownCategory is returned for categories outside the catalog.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrPersistence wraps session store failures that do not stop an exam.
	ErrPersistence = errors.New("session persistence failed")
	// ErrStaleSession is returned when an upsert is older than the stored snapshot.
	ErrStaleSession = errors.New("stale session snapshot")
	// ErrSessionNotFound is returned when no in-progress snapshot exists.
	ErrSessionNotFound = errors.New("exam session not found")

	// ErrInvalidState rejects a command that is not valid in the current phase.
	ErrInvalidState = errors.New("command not allowed in current state")
	// ErrNoPendingChoice rejects a commit before an option is selected.
	ErrNoPendingChoice = errors.New("no option selected")
	// ErrInvalidOption rejects option labels other than A-D.
	ErrInvalidOption = errors.New("invalid option")
	// ErrIndexOutOfRange rejects jumps outside the question set.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrControllerClosed is returned once a controller has been disposed.
	ErrControllerClosed = errors.New("exam controller closed")
)

// FinalizationError reports the finalization steps that failed. The exam is
// finished regardless.
type FinalizationError struct {
	Streak error
	Result error
	Delete error
}

func (e *FinalizationError) Error() string {
	if !e.Failed() {
		return "finalize exam: ok"
	}
	return "finalize exam: " + errors.Join(e.Unwrap()...).Error()
}

// Unwrap exposes the step errors for errors.Is / errors.As.
func (e *FinalizationError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.Streak, e.Result, e.Delete} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Failed reports whether any step failed.
func (e *FinalizationError) Failed() bool {
	return e.Streak != nil || e.Result != nil || e.Delete != nil
}
