package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
	"github.com/narworks/muhasebe-asistani-sub000/internal/storage"
)

const (
	testLoginURL   = "https://portal.test/login"
	testHomeURL    = "https://portal.test/home"
	testListingURL = "https://portal.test/notifications"
)

// fakePortal scripts the portal's behaviour across page sessions.
type fakePortal struct {
	mu sync.Mutex

	formVisible    bool
	entryReveals   bool
	rejectAttempts int
	bannerText     string
	pages          [][]pagedriver.Row
	downloadErr    map[string]error
	openErr        error

	submits   int
	opened    int
	closed    int
	logouts   int
	downloads []string
}

func newFakePortal() *fakePortal {
	return &fakePortal{formVisible: true, bannerText: "Güvenlik kodu hatalı"}
}

func (f *fakePortal) OpenPage(ctx context.Context) (pagedriver.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakePage{portal: f}, nil
}

func (f *fakePortal) Close() error { return nil }

type fakePage struct {
	portal    *fakePortal
	url       string
	formShown bool
	loggedIn  bool
	banner    string
	idx       int
}

func (p *fakePage) Goto(ctx context.Context, url string, wait pagedriver.WaitPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.url = url
	if url == testLoginURL {
		p.formShown = p.portal.formVisible
		p.loggedIn = false
	}
	return nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Fill(ctx context.Context, c pagedriver.Capability, value string) error {
	if !p.Present(ctx, c) {
		return fmt.Errorf("%w: %s", pagedriver.ErrNotFound, c)
	}
	return nil
}

func (p *fakePage) Click(ctx context.Context, c pagedriver.Capability) error {
	if !p.Present(ctx, c) {
		return fmt.Errorf("%w: %s", pagedriver.ErrNotFound, c)
	}
	f := p.portal
	f.mu.Lock()
	defer f.mu.Unlock()

	switch c {
	case pagedriver.LoginEntry:
		p.formShown = true
	case pagedriver.Submit:
		f.submits++
		if f.submits <= f.rejectAttempts {
			p.banner = f.bannerText
		} else {
			p.loggedIn = true
			p.url = testHomeURL
		}
	case pagedriver.ListingLink:
		p.url = testListingURL
	case pagedriver.NextPage:
		p.idx++
	case pagedriver.Logout:
		f.logouts++
		p.loggedIn = false
	}
	return nil
}

func (p *fakePage) WaitFor(ctx context.Context, c pagedriver.Capability, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.Present(ctx, c), nil
}

func (p *fakePage) Present(ctx context.Context, c pagedriver.Capability) bool {
	switch c {
	case pagedriver.LoginForm, pagedriver.Username, pagedriver.Password,
		pagedriver.CaptchaImage, pagedriver.Submit:
		return p.formShown && !p.loggedIn
	case pagedriver.CaptchaInput:
		return p.formShown && !p.loggedIn && p.banner == ""
	case pagedriver.LoginEntry:
		return !p.formShown && p.portal.entryReveals
	case pagedriver.ErrorBanner:
		return p.banner != ""
	case pagedriver.ListingLink, pagedriver.Logout:
		return p.loggedIn
	case pagedriver.ResultRows:
		return p.loggedIn && p.idx < len(p.portal.pages) && len(p.portal.pages[p.idx]) > 0
	case pagedriver.NextPage:
		return p.loggedIn && p.idx+1 < len(p.portal.pages)
	}
	return false
}

func (p *fakePage) Text(ctx context.Context, c pagedriver.Capability) (string, error) {
	if c == pagedriver.ErrorBanner {
		return p.banner, nil
	}
	return "", pagedriver.ErrNotFound
}

func (p *fakePage) Screenshot(ctx context.Context, c pagedriver.Capability) ([]byte, error) {
	if !p.Present(ctx, c) {
		return nil, pagedriver.ErrNotFound
	}
	return []byte("png"), nil
}

func (p *fakePage) Extract(ctx context.Context, c pagedriver.Capability) ([]pagedriver.Row, error) {
	if p.idx >= len(p.portal.pages) {
		return nil, nil
	}
	return p.portal.pages[p.idx], nil
}

func (p *fakePage) Download(ctx context.Context, ref string) (*pagedriver.Document, error) {
	f := p.portal
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.downloadErr[ref]; err != nil {
		return nil, err
	}
	f.downloads = append(f.downloads, ref)
	return &pagedriver.Document{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte(ref)}, nil
}

func (p *fakePage) GoBack(ctx context.Context) error { return nil }

func (p *fakePage) Close() error {
	p.portal.mu.Lock()
	p.portal.closed++
	p.portal.mu.Unlock()
	return nil
}

// fakeSolver returns answers in order, repeating the last one.
type fakeSolver struct {
	answers []string
	err     error
	calls   int
}

func (s *fakeSolver) Name() string { return "fake" }

func (s *fakeSolver) Solve(ctx context.Context, img []byte) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.answers) == 0 {
		return "ABC123", nil
	}
	i := min(s.calls-1, len(s.answers)-1)
	return s.answers[i], nil
}

// fakeStore deduplicates on the record natural key like the real store.
type fakeStore struct {
	keys  map[string]bool
	calls int
	err   error
}

func (s *fakeStore) PersistRecords(ctx context.Context, entityID string, records []models.Record) (int, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	if s.keys == nil {
		s.keys = make(map[string]bool)
	}
	n := 0
	for _, r := range records {
		if !s.keys[r.Key()] {
			s.keys[r.Key()] = true
			n++
		}
	}
	return n, nil
}

type fakeDocStore struct {
	saved int
}

func (s *fakeDocStore) Save(ctx context.Context, entityID string, doc *pagedriver.Document) (*storage.Stored, error) {
	s.saved++
	return &storage.Stored{Path: entityID + "/" + doc.Name, Size: len(doc.Data), Pages: 1}, nil
}

func row(date, sender, subject, status, ref string) pagedriver.Row {
	return pagedriver.Row{Cells: []string{date, sender, subject, status}, DocumentRef: ref}
}

var errBoom = errors.New("boom")
