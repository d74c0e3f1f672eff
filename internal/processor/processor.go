// Package processor logs one entity into the portal, reads its notification
// listing and stores what it finds.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/narworks/muhasebe-asistani-sub000/internal/config"
	"github.com/narworks/muhasebe-asistani-sub000/internal/logging"
	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
	"github.com/narworks/muhasebe-asistani-sub000/internal/solver"
	"github.com/narworks/muhasebe-asistani-sub000/internal/storage"
)

// Config controls login retries, waits and pagination.
type Config struct {
	LoginURL          string
	MaxCaptchaRetries int
	InitialBackoff    time.Duration
	FormTimeout       time.Duration
	FormRetryWait     time.Duration
	RowsTimeout       time.Duration
	MaxPages          int
}

// ConfigFromConfig builds a processor Config from the service configuration.
func ConfigFromConfig(cfg *config.Config) Config {
	return Config{
		LoginURL:          cfg.LoginURL,
		MaxCaptchaRetries: cfg.MaxCaptchaRetries,
		InitialBackoff:    5 * time.Second,
		FormTimeout:       cfg.FormTimeout,
		FormRetryWait:     cfg.FormRetryWait,
		RowsTimeout:       cfg.RowsTimeout,
		MaxPages:          cfg.MaxPages,
	}
}

// RecordStore persists extracted records idempotently.
type RecordStore interface {
	PersistRecords(ctx context.Context, entityID string, records []models.Record) (int, error)
}

// Result is the outcome of a successful Process call.
type Result struct {
	Records             []models.Record
	Inserted            int
	DocumentsDownloaded int
	Attempts            int
	NoResults           bool
}

// Processor runs the per-entity login and extraction flow.
type Processor struct {
	cfg    Config
	solver solver.Solver
	store  RecordStore
	docs   storage.DocumentStore
	logger *slog.Logger

	wait func(ctx context.Context, d time.Duration) error
	now  func() time.Time
}

// New creates a Processor. docs may be nil, in which case document links are
// recorded but not downloaded.
func New(cfg Config, s solver.Solver, store RecordStore, docs storage.DocumentStore, logger *slog.Logger) *Processor {
	if cfg.MaxCaptchaRetries < 1 {
		cfg.MaxCaptchaRetries = 1
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 5 * time.Second
	}
	return &Processor{
		cfg:    cfg,
		solver: s,
		store:  store,
		docs:   docs,
		logger: logger.With("component", "processor"),
		wait:   sleepCtx,
		now:    time.Now,
	}
}

// Process logs entity in with cred and extracts its records. Retryable login
// failures are retried with exponential backoff; any other failure ends the
// entity immediately. It returns *EntityError for per-entity failures, an
// error wrapping pagedriver.ErrBrowserClosed when the browser is gone, and
// ctx.Err() when cancelled.
func (p *Processor) Process(ctx context.Context, drv pagedriver.Driver, entity *models.Entity, cred *models.Credential) (*Result, error) {
	logger := logging.FromContext(ctx, p.logger).With("entity", entity.DisplayName())

	bo := p.newBackOff()
	var last *attemptError

	for attempt := 1; attempt <= p.cfg.MaxCaptchaRetries; attempt++ {
		res, err := p.attempt(ctx, drv, entity, cred, logger)
		if err == nil {
			res.Attempts = attempt
			return p.persist(ctx, entity, res, logger)
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, pagedriver.ErrBrowserClosed) {
			return nil, err
		}

		var ae *attemptError
		if !errors.As(err, &ae) {
			return nil, &EntityError{Kind: KindExtraction, Attempts: attempt, Err: err}
		}
		if !ae.kind.Retryable() {
			logger.Error("entity failed", "kind", ae.kind, "attempt", attempt, "error", ae.err)
			return nil, &EntityError{Kind: ae.kind, Attempts: attempt, Err: ae.err}
		}

		last = ae
		if attempt == p.cfg.MaxCaptchaRetries {
			break
		}

		delay := bo.NextBackOff()
		logger.Warn("login attempt rejected, retrying",
			"attempt", attempt,
			"max_attempts", p.cfg.MaxCaptchaRetries,
			"backoff", delay,
			"error", ae.err,
		)
		if err := p.wait(ctx, delay); err != nil {
			return nil, err
		}
	}

	logger.Error("login retries exhausted", "attempts", p.cfg.MaxCaptchaRetries, "error", last.err)
	return nil, &EntityError{Kind: last.kind, Attempts: p.cfg.MaxCaptchaRetries, Err: last.err}
}

// newBackOff yields InitialBackoff * 2^(n-1) for the n-th wait.
func (p *Processor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 10 * time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p *Processor) persist(ctx context.Context, entity *models.Entity, res *Result, logger *slog.Logger) (*Result, error) {
	inserted, err := p.store.PersistRecords(ctx, entity.ID, res.Records)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &EntityError{Kind: KindPersist, Attempts: res.Attempts, Err: err}
	}
	res.Inserted = inserted

	logger.Info("entity processed",
		"records", len(res.Records),
		"inserted", inserted,
		"documents", res.DocumentsDownloaded,
		"attempts", res.Attempts,
		"no_results", res.NoResults,
	)
	return res, nil
}

// attempt runs one login on a fresh page. The page is always logged out of
// and closed before returning.
func (p *Processor) attempt(ctx context.Context, drv pagedriver.Driver, entity *models.Entity, cred *models.Credential, logger *slog.Logger) (*Result, error) {
	page, err := drv.OpenPage(ctx)
	if err != nil {
		return nil, err
	}
	defer p.cleanup(ctx, page, logger)

	if err := p.ensureLoginForm(ctx, page, logger); err != nil {
		return nil, err
	}
	if err := p.login(ctx, page, cred); err != nil {
		return nil, err
	}

	listingURL, err := p.openListing(ctx, page)
	if err != nil {
		return nil, err
	}

	records, err := p.extract(ctx, page, entity, logger)
	if err != nil {
		return nil, err
	}

	res := &Result{Records: records}
	if len(records) == 0 {
		res.Records = []models.Record{models.NoResultsRecord(entity.ID, p.now())}
		res.NoResults = true
		return res, nil
	}

	downloaded, err := p.downloadDocuments(ctx, page, entity, res.Records, listingURL, logger)
	if err != nil {
		return nil, err
	}
	res.DocumentsDownloaded = downloaded
	return res, nil
}

func (p *Processor) ensureLoginForm(ctx context.Context, page pagedriver.Page, logger *slog.Logger) error {
	if err := page.Goto(ctx, p.cfg.LoginURL, pagedriver.WaitIdle); err != nil {
		return driverErr(KindNavigation, err)
	}

	ok, err := page.WaitFor(ctx, pagedriver.LoginForm, p.cfg.FormTimeout)
	if err != nil {
		return driverErr(KindLoginFormMissing, err)
	}
	if ok {
		return nil
	}

	if page.Present(ctx, pagedriver.LoginEntry) {
		logger.Debug("login form hidden, following login entry")
		if err := page.Click(ctx, pagedriver.LoginEntry); err != nil {
			if ctx.Err() != nil || errors.Is(err, pagedriver.ErrBrowserClosed) {
				return err
			}
			logger.Warn("login entry click failed", "error", err)
		}
	}

	ok, err = page.WaitFor(ctx, pagedriver.LoginForm, p.cfg.FormRetryWait)
	if err != nil {
		return driverErr(KindLoginFormMissing, err)
	}
	if !ok {
		return failf(KindLoginFormMissing, "login form not found at %s", p.cfg.LoginURL)
	}
	return nil
}

func (p *Processor) login(ctx context.Context, page pagedriver.Page, cred *models.Credential) error {
	if err := page.Fill(ctx, pagedriver.Username, cred.UserCode); err != nil {
		return driverErr(KindLoginFormMissing, err)
	}
	if err := page.Fill(ctx, pagedriver.Password, cred.Password); err != nil {
		return driverErr(KindLoginFormMissing, err)
	}

	img, err := page.Screenshot(ctx, pagedriver.CaptchaImage)
	if err != nil {
		return driverErr(KindLoginFormMissing, err)
	}

	answer, err := p.solver.Solve(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fail(KindSolver, err)
	}
	answer = solver.Normalize(answer)
	if answer == "" {
		return failf(KindCaptchaUnreadable, "solver returned no text")
	}

	if err := page.Fill(ctx, pagedriver.CaptchaInput, answer); err != nil {
		return driverErr(KindLoginFormMissing, err)
	}
	if err := page.Click(ctx, pagedriver.Submit); err != nil {
		return driverErr(KindLoginFormMissing, err)
	}

	if page.Present(ctx, pagedriver.ErrorBanner) {
		if msg, err := page.Text(ctx, pagedriver.ErrorBanner); err == nil && msg != "" {
			return failf(KindLoginRejected, "portal: %s", msg)
		}
	}
	if p.onLoginSurface(ctx, page) {
		return failf(KindLoginRejected, "still on login page after submit")
	}
	return nil
}

// onLoginSurface reports whether the page is still the login form: either the
// location is the login URL with the form still shown, or the CAPTCHA input
// is still on screen.
func (p *Processor) onLoginSurface(ctx context.Context, page pagedriver.Page) bool {
	if page.Present(ctx, pagedriver.CaptchaInput) {
		return true
	}
	return sameLocation(page.URL(), p.cfg.LoginURL) && page.Present(ctx, pagedriver.LoginForm)
}

// openListing follows the listing link when there is one and returns the URL
// to come back to.
func (p *Processor) openListing(ctx context.Context, page pagedriver.Page) (string, error) {
	if page.Present(ctx, pagedriver.ListingLink) {
		if err := page.Click(ctx, pagedriver.ListingLink); err != nil {
			return "", driverErr(KindNavigation, err)
		}
	}
	return page.URL(), nil
}

func (p *Processor) extract(ctx context.Context, page pagedriver.Page, entity *models.Entity, logger *slog.Logger) ([]models.Record, error) {
	ok, err := page.WaitFor(ctx, pagedriver.ResultRows, p.cfg.RowsTimeout)
	if err != nil {
		return nil, driverErr(KindExtraction, err)
	}
	if !ok {
		logger.Info("no result rows found")
		return nil, nil
	}

	scannedAt := p.now()
	seen := make(map[string]bool)
	var records []models.Record

	for pageNo := 1; ; pageNo++ {
		rows, err := page.Extract(ctx, pagedriver.ResultRows)
		if err != nil {
			return nil, driverErr(KindExtraction, err)
		}

		added := 0
		for _, row := range rows {
			rec, ok := recordFromRow(entity.ID, row, scannedAt)
			if !ok {
				continue
			}
			if key := rec.Key(); !seen[key] {
				seen[key] = true
				records = append(records, rec)
				added++
			}
		}
		logger.Debug("listing page read", "page", pageNo, "rows", len(rows), "new", added)

		if added == 0 {
			break
		}
		if pageNo >= p.cfg.MaxPages {
			logger.Warn("page ceiling reached", "max_pages", p.cfg.MaxPages)
			break
		}
		if !page.Present(ctx, pagedriver.NextPage) {
			break
		}
		if err := page.Click(ctx, pagedriver.NextPage); err != nil {
			if ctx.Err() != nil || errors.Is(err, pagedriver.ErrBrowserClosed) {
				return nil, err
			}
			logger.Debug("next page failed", "error", err)
			break
		}
		ok, err := page.WaitFor(ctx, pagedriver.ResultRows, p.cfg.RowsTimeout)
		if err != nil {
			return nil, driverErr(KindExtraction, err)
		}
		if !ok {
			break
		}
	}
	return records, nil
}

// recordFromRow maps the date, sender, subject, status and optional document
// number columns. Rows with fewer than four cells are not records.
func recordFromRow(entityID string, row pagedriver.Row, scannedAt time.Time) (models.Record, bool) {
	if len(row.Cells) < 4 {
		return models.Record{}, false
	}
	cell := func(i int) string {
		if i < len(row.Cells) {
			return strings.TrimSpace(row.Cells[i])
		}
		return ""
	}
	rec := models.Record{
		EntityID:    entityID,
		Date:        cell(0),
		Sender:      cell(1),
		Subject:     cell(2),
		Status:      cell(3),
		DocumentNo:  cell(4),
		DocumentURL: strings.TrimSpace(row.DocumentRef),
		ScannedAt:   scannedAt,
	}
	if rec.Date == "" && rec.Sender == "" && rec.Subject == "" {
		return models.Record{}, false
	}
	return rec, true
}

// downloadDocuments fetches every referenced document. A failed download is
// logged and skipped.
func (p *Processor) downloadDocuments(ctx context.Context, page pagedriver.Page, entity *models.Entity, records []models.Record, listingURL string, logger *slog.Logger) (int, error) {
	downloaded := 0
	for i := range records {
		rec := &records[i]
		if !rec.HasDocument() {
			continue
		}

		doc, err := page.Download(ctx, rec.DocumentURL)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, pagedriver.ErrBrowserClosed) {
				return downloaded, err
			}
			logger.Warn("document download failed", "subject", rec.Subject, "url", rec.DocumentURL, "error", err)
		} else {
			downloaded++
			if p.docs != nil {
				stored, err := p.docs.Save(ctx, entity.ID, doc)
				if err != nil {
					logger.Warn("failed to store document", "subject", rec.Subject, "error", err)
				} else {
					rec.DocumentPath = stored.Path
					rec.DocumentPages = stored.Pages
				}
			}
		}

		if err := p.returnToListing(ctx, page, listingURL); err != nil {
			return downloaded, err
		}
	}
	return downloaded, nil
}

// returnToListing goes back to the listing if a download navigated away,
// re-opening listingURL directly when history does not lead there.
func (p *Processor) returnToListing(ctx context.Context, page pagedriver.Page, listingURL string) error {
	if listingURL == "" || sameLocation(page.URL(), listingURL) {
		return nil
	}
	err := page.GoBack(ctx)
	if err == nil && sameLocation(page.URL(), listingURL) {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, pagedriver.ErrBrowserClosed) {
		return err
	}
	if err := page.Goto(ctx, listingURL, pagedriver.WaitLoad); err != nil {
		return driverErr(KindNavigation, err)
	}
	return nil
}

// cleanup logs out best-effort and closes the page. It runs even when ctx is
// already cancelled.
func (p *Processor) cleanup(ctx context.Context, page pagedriver.Page, logger *slog.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if page.Present(cctx, pagedriver.Logout) {
		if err := page.Click(cctx, pagedriver.Logout); err != nil {
			logger.Debug("logout failed", "error", err)
		}
	}
	if err := page.Close(); err != nil {
		logger.Debug("page close failed", "error", err)
	}
}

// driverErr passes cancellation and browser loss through untouched and
// classifies anything else as kind.
func driverErr(kind Kind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, pagedriver.ErrBrowserClosed) {
		return err
	}
	return fail(kind, err)
}

func sameLocation(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return strings.EqualFold(ua.Host, ub.Host) &&
		strings.TrimRight(ua.Path, "/") == strings.TrimRight(ub.Path, "/")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
