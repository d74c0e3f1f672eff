package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
)

const pollInterval = 250 * time.Millisecond

// Page is a rod page addressed by capability. It implements pagedriver.Page.
type Page struct {
	page       *rod.Page
	strategies Strategies
	navTimeout time.Duration
	logger     *slog.Logger
}

// Goto navigates to url and waits according to wait.
func (p *Page) Goto(ctx context.Context, url string, wait pagedriver.WaitPolicy) error {
	pg := p.page.Context(ctx).Timeout(p.navTimeout)
	if err := pg.Navigate(url); err != nil {
		return classify(fmt.Errorf("navigate %s: %w", url, err))
	}
	return classify(p.wait(pg, wait))
}

func (p *Page) wait(pg *rod.Page, wait pagedriver.WaitPolicy) error {
	switch wait {
	case pagedriver.WaitLoad:
		return pg.WaitLoad()
	case pagedriver.WaitIdle:
		if err := pg.WaitLoad(); err != nil {
			return err
		}
		return pg.WaitIdle(p.navTimeout)
	}
	return nil
}

// URL returns the current location, or "" when it cannot be read.
func (p *Page) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Fill replaces the value of the field located by c.
func (p *Page) Fill(ctx context.Context, c pagedriver.Capability, value string) error {
	el, err := p.locate(ctx, c, false)
	if err != nil {
		return err
	}
	el = el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		p.logger.Debug("select text failed", "capability", c, "error", err)
	}
	return classify(el.Input(value))
}

// Click clicks the first visible element located by c and waits for the DOM
// to settle.
func (p *Page) Click(ctx context.Context, c pagedriver.Capability) error {
	el, err := p.locate(ctx, c, true)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify(fmt.Errorf("click %s: %w", c, err))
	}

	if err := p.page.Context(ctx).Timeout(p.navTimeout).WaitDOMStable(time.Second, 0); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug("page did not settle after click", "capability", c, "error", err)
	}
	return nil
}

// WaitFor polls for c until it appears or timeout elapses.
func (p *Page) WaitFor(ctx context.Context, c pagedriver.Capability, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		_, err := p.locate(ctx, c, false)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, pagedriver.ErrNotFound) {
			return false, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		timer := time.NewTimer(min(pollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// Present reports whether c can be located right now.
func (p *Page) Present(ctx context.Context, c pagedriver.Capability) bool {
	_, err := p.locate(ctx, c, false)
	return err == nil
}

// Text returns the trimmed text of the element located by c.
func (p *Page) Text(ctx context.Context, c pagedriver.Capability) (string, error) {
	el, err := p.locate(ctx, c, false)
	if err != nil {
		return "", err
	}
	text, err := el.Context(ctx).Text()
	if err != nil {
		return "", classify(err)
	}
	return strings.TrimSpace(text), nil
}

// Screenshot captures the element located by c as PNG.
func (p *Page) Screenshot(ctx context.Context, c pagedriver.Capability) ([]byte, error) {
	el, err := p.locate(ctx, c, false)
	if err != nil {
		return nil, err
	}
	img, err := el.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, classify(fmt.Errorf("screenshot %s: %w", c, err))
	}
	return img, nil
}

const extractRowsJS = `(rowSelector, docSelectors) => {
	return Array.from(document.querySelectorAll(rowSelector)).map(row => {
		const cells = Array.from(row.querySelectorAll('td, [role=cell], [role=gridcell]'))
			.map(td => (td.innerText || td.textContent || '').trim());
		let ref = '';
		for (const sel of docSelectors) {
			const a = row.querySelector(sel);
			if (a) {
				ref = a.href || a.getAttribute('data-href') || '';
				if (ref) break;
			}
		}
		return { cells: cells, ref: ref };
	});
}`

type extractedRow struct {
	Cells []string `json:"cells"`
	Ref   string   `json:"ref"`
}

// Extract returns the rows matched by the first CSS locator of c that yields
// any, with document references resolved through the DocumentLink strategy.
func (p *Page) Extract(ctx context.Context, c pagedriver.Capability) ([]pagedriver.Row, error) {
	locs, err := p.strategies.Lookup(c)
	if err != nil {
		return nil, err
	}

	var docSelectors []string
	if docLocs, err := p.strategies.Lookup(pagedriver.DocumentLink); err == nil {
		for _, l := range docLocs {
			if l.Kind == ByCSS {
				docSelectors = append(docSelectors, l.Selector)
			}
		}
	}

	pg := p.page.Context(ctx)
	for _, loc := range locs {
		if loc.Kind != ByCSS {
			continue
		}
		res, err := pg.Eval(extractRowsJS, loc.Selector, docSelectors)
		if err != nil {
			return nil, classify(fmt.Errorf("extract %s: %w", c, err))
		}

		var raw []extractedRow
		if err := res.Value.Unmarshal(&raw); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
		if len(raw) == 0 {
			continue
		}

		rows := make([]pagedriver.Row, 0, len(raw))
		for _, r := range raw {
			rows = append(rows, pagedriver.Row{Cells: r.Cells, DocumentRef: r.Ref})
		}
		p.logger.Debug("rows extracted", "locator", loc.String(), "count", len(rows))
		return rows, nil
	}
	return nil, nil
}

const downloadJS = `async (url) => {
	const resp = await fetch(url, { credentials: 'include' });
	if (!resp.ok) {
		throw new Error('HTTP ' + resp.status);
	}
	const buf = new Uint8Array(await resp.arrayBuffer());
	let bin = '';
	const chunk = 0x8000;
	for (let i = 0; i < buf.length; i += chunk) {
		bin += String.fromCharCode.apply(null, buf.subarray(i, i + chunk));
	}
	return {
		type: resp.headers.get('content-type') || '',
		disposition: resp.headers.get('content-disposition') || '',
		data: btoa(bin)
	};
}`

type downloadResult struct {
	Type        string `json:"type"`
	Disposition string `json:"disposition"`
	Data        string `json:"data"`
}

// Download fetches ref inside the page so the portal session cookies apply.
func (p *Page) Download(ctx context.Context, ref string) (*pagedriver.Document, error) {
	res, err := p.page.Context(ctx).Timeout(p.navTimeout).Eval(downloadJS, ref)
	if err != nil {
		return nil, classify(fmt.Errorf("download %s: %w", ref, err))
	}

	var dl downloadResult
	if err := res.Value.Unmarshal(&dl); err != nil {
		return nil, fmt.Errorf("decode download: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(dl.Data)
	if err != nil {
		return nil, fmt.Errorf("decode download body: %w", err)
	}

	return &pagedriver.Document{
		Name:        documentName(ref, dl.Disposition),
		ContentType: dl.Type,
		Data:        data,
	}, nil
}

// GoBack navigates back in history and waits for the page to load.
func (p *Page) GoBack(ctx context.Context) error {
	pg := p.page.Context(ctx).Timeout(p.navTimeout)
	if err := pg.NavigateBack(); err != nil {
		return classify(err)
	}
	return classify(pg.WaitLoad())
}

// Close closes the tab.
func (p *Page) Close() error {
	return classify(p.page.Close())
}

// locate tries the locators of c in order and returns the first match. With
// visibleOnly, matches that are not rendered are skipped.
func (p *Page) locate(ctx context.Context, c pagedriver.Capability, visibleOnly bool) (*rod.Element, error) {
	locs, err := p.strategies.Lookup(c)
	if err != nil {
		return nil, err
	}

	pg := p.page.Context(ctx)
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		el, err := find(pg, loc)
		if err != nil {
			return nil, classify(err)
		}
		if el == nil {
			continue
		}
		if visibleOnly {
			if visible, err := el.Visible(); err != nil || !visible {
				continue
			}
		}
		return el, nil
	}
	return nil, fmt.Errorf("%w: %s", pagedriver.ErrNotFound, c)
}

// find resolves one locator without waiting. A nil element and nil error mean
// no match.
func find(pg *rod.Page, loc Locator) (*rod.Element, error) {
	var (
		ok  bool
		el  *rod.Element
		err error
	)
	switch loc.Kind {
	case ByText:
		ok, el, err = pg.HasR(loc.Selector, loc.Pattern)
	case ByXPath:
		ok, el, err = pg.HasX(loc.Selector)
	case ByScript:
		el, err = pg.Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(loc.Selector))
		var notFound *rod.ElementNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		ok = err == nil
	default:
		ok, el, err = pg.Has(loc.Selector)
	}
	if err != nil || !ok {
		return nil, err
	}
	return el, nil
}

func documentName(ref, disposition string) string {
	if i := strings.Index(strings.ToLower(disposition), "filename="); i >= 0 {
		name := strings.Trim(disposition[i+len("filename="):], `"; `)
		if name != "" {
			return path.Base(name)
		}
	}
	base := ref
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	name := path.Base(base)
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}
