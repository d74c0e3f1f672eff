// Package pagedriver defines the page capability interface the scanner drives.
//
// Callers address page elements by Capability rather than by selector. How a
// capability is located on a concrete page is the implementation's business.
package pagedriver

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no locator strategy matched a capability.
	ErrNotFound = errors.New("element not found")
	// ErrBrowserClosed is returned when the underlying browser is gone. It is
	// not recoverable within a scan.
	ErrBrowserClosed = errors.New("browser closed")
)

// Capability names a role an element plays on the portal.
type Capability string

const (
	LoginEntry   Capability = "login-entry"
	LoginForm    Capability = "login-form"
	Username     Capability = "username"
	Password     Capability = "password"
	CaptchaImage Capability = "captcha-image"
	CaptchaInput Capability = "captcha-input"
	Submit       Capability = "submit"
	ErrorBanner  Capability = "error-banner"
	ListingLink  Capability = "listing-link"
	ResultRows   Capability = "result-rows"
	NextPage     Capability = "next-page"
	DocumentLink Capability = "document-link"
	Logout       Capability = "logout"
)

// WaitPolicy controls how long Goto waits after navigating.
type WaitPolicy int

const (
	WaitNone WaitPolicy = iota
	WaitLoad
	WaitIdle
)

func (w WaitPolicy) String() string {
	switch w {
	case WaitLoad:
		return "load"
	case WaitIdle:
		return "idle"
	default:
		return "none"
	}
}

// Row is one extracted table row.
type Row struct {
	Cells       []string
	DocumentRef string
}

// Document is a downloaded attachment.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Driver owns a browser for the duration of a scan.
type Driver interface {
	OpenPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one browser tab. A Page is used by a single goroutine.
type Page interface {
	Goto(ctx context.Context, url string, wait WaitPolicy) error
	URL() string
	Fill(ctx context.Context, c Capability, value string) error
	Click(ctx context.Context, c Capability) error
	// WaitFor polls until c is present or timeout elapses. It reports false,
	// not an error, on timeout.
	WaitFor(ctx context.Context, c Capability, timeout time.Duration) (bool, error)
	Present(ctx context.Context, c Capability) bool
	Text(ctx context.Context, c Capability) (string, error)
	Screenshot(ctx context.Context, c Capability) ([]byte, error)
	Extract(ctx context.Context, c Capability) ([]Row, error)
	Download(ctx context.Context, ref string) (*Document, error)
	GoBack(ctx context.Context) error
	Close() error
}
