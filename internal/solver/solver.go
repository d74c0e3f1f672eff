// Package solver reads image CAPTCHAs.
package solver

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// Solver turns a CAPTCHA image into its text.
type Solver interface {
	// Name returns the solver's name (e.g., "gemini", "2captcha").
	Name() string

	// Solve returns the best-guess text for a PNG image. An empty answer with
	// a nil error means the image was read but nothing usable came back.
	Solve(ctx context.Context, image []byte) (string, error)
}

// Errors
var (
	ErrNoSolverAvailable = &SolverError{Message: "no CAPTCHA solver configured"}
	ErrSolverTimeout     = &SolverError{Message: "solver timeout"}
	ErrEmptyImage        = &SolverError{Message: "empty CAPTCHA image"}
)

// SolverError represents a solver error.
type SolverError struct {
	Solver  string
	Message string
	Cause   error
}

func (e *SolverError) Error() string {
	msg := e.Message
	if e.Solver != "" {
		msg = e.Solver + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *SolverError) Unwrap() error {
	return e.Cause
}

// Normalize strips all whitespace from a solver answer.
func Normalize(answer string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, answer)
}

// Chain is a solver that tries multiple solvers in order.
type Chain struct {
	solvers []Solver
}

// NewChain creates a new solver chain. Nil solvers are skipped.
func NewChain(solvers ...Solver) *Chain {
	c := &Chain{}
	for _, s := range solvers {
		if s != nil {
			c.solvers = append(c.solvers, s)
		}
	}
	return c
}

// Name returns "chain".
func (c *Chain) Name() string {
	return "chain"
}

// Len returns the number of solvers in the chain.
func (c *Chain) Len() int {
	return len(c.solvers)
}

// Solve tries each solver in order until one returns a non-empty answer.
func (c *Chain) Solve(ctx context.Context, image []byte) (string, error) {
	if len(c.solvers) == 0 {
		return "", ErrNoSolverAvailable
	}

	var lastErr error
	for _, s := range c.solvers {
		answer, err := s.Solve(ctx, image)
		if err == nil && answer != "" {
			return answer, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err != nil {
			lastErr = err
		}
	}

	// Every solver answered but none produced text; that is a misread, not a
	// transport failure.
	if lastErr == nil {
		return "", nil
	}
	var se *SolverError
	if !errors.As(lastErr, &se) {
		lastErr = &SolverError{Solver: c.Name(), Message: "all solvers failed", Cause: lastErr}
	}
	return "", lastErr
}
