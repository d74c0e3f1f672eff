package processor

import (
	"errors"
	"fmt"
)

// Kind classifies why an entity could not be processed.
type Kind string

const (
	// KindLoginRejected means the portal sent us back to the login surface,
	// usually because the CAPTCHA was misread. Retried.
	KindLoginRejected Kind = "login_rejected"
	// KindCaptchaUnreadable means the solver returned no usable text. Retried.
	KindCaptchaUnreadable Kind = "captcha_unreadable"
	// KindLoginFormMissing means the login form never appeared.
	KindLoginFormMissing Kind = "login_form_missing"
	// KindNavigation means a page could not be reached.
	KindNavigation Kind = "navigation"
	// KindSolver means the CAPTCHA solver itself failed.
	KindSolver Kind = "solver"
	// KindExtraction means the listing could not be read.
	KindExtraction Kind = "extraction"
	// KindPersist means records could not be stored.
	KindPersist Kind = "persist"
)

// Retryable reports whether another login attempt can help.
func (k Kind) Retryable() bool {
	return k == KindLoginRejected || k == KindCaptchaUnreadable
}

// EntityError is a terminal per-entity failure. The scan continues past it.
type EntityError struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// IsEntityError reports whether err is a per-entity failure.
func IsEntityError(err error) bool {
	var ee *EntityError
	return errors.As(err, &ee)
}

// attemptError is the outcome of one failed login attempt.
type attemptError struct {
	kind Kind
	err  error
}

func (e *attemptError) Error() string {
	return string(e.kind) + ": " + e.err.Error()
}

func (e *attemptError) Unwrap() error {
	return e.err
}

func fail(kind Kind, err error) error {
	return &attemptError{kind: kind, err: err}
}

func failf(kind Kind, format string, args ...any) error {
	return &attemptError{kind: kind, err: fmt.Errorf(format, args...)}
}
