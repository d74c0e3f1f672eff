package browser

import (
	"fmt"

	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
)

// LocatorKind selects how a Locator is resolved against the DOM.
type LocatorKind int

const (
	ByCSS LocatorKind = iota
	// ByText matches elements of Selector whose text matches Pattern, a JS regex
	// optionally written as /pattern/flags.
	ByText
	ByXPath
	// ByScript evaluates Selector as a function returning an element or null.
	ByScript
)

// Locator is one way of finding an element.
type Locator struct {
	Kind     LocatorKind
	Selector string
	Pattern  string
}

func (l Locator) String() string {
	switch l.Kind {
	case ByText:
		return fmt.Sprintf("text(%s ~ /%s/)", l.Selector, l.Pattern)
	case ByXPath:
		return "xpath(" + l.Selector + ")"
	case ByScript:
		return "script"
	default:
		return "css(" + l.Selector + ")"
	}
}

// CSS returns a CSS selector locator.
func CSS(selector string) Locator { return Locator{Kind: ByCSS, Selector: selector} }

// Text returns a locator matching selector elements whose text matches pattern.
func Text(selector, pattern string) Locator {
	return Locator{Kind: ByText, Selector: selector, Pattern: pattern}
}

// XPath returns an XPath locator.
func XPath(expr string) Locator { return Locator{Kind: ByXPath, Selector: expr} }

// Script returns a locator backed by a JS function.
func Script(fn string) Locator { return Locator{Kind: ByScript, Selector: fn} }

// Strategies maps each capability to its locators, tried in order. The first
// match wins.
type Strategies map[pagedriver.Capability][]Locator

// Lookup returns the ordered locators for c.
func (s Strategies) Lookup(c pagedriver.Capability) ([]Locator, error) {
	locs, ok := s[c]
	if !ok || len(locs) == 0 {
		return nil, fmt.Errorf("%w: no strategy for %s", pagedriver.ErrNotFound, c)
	}
	return locs, nil
}

// With returns a copy of s with c's locators replaced.
func (s Strategies) With(c pagedriver.Capability, locs ...Locator) Strategies {
	out := make(Strategies, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[c] = locs
	return out
}

// nextNumberScript finds the pagination control numbered one past the active page.
const nextNumberScript = `() => {
	const active = document.querySelector(
		'.pagination .active, .pagination [aria-current="page"], li.active > a, span.current, a.current');
	if (!active) return null;
	const current = parseInt((active.textContent || '').trim(), 10);
	if (isNaN(current)) return null;
	const want = String(current + 1);
	const links = document.querySelectorAll('.pagination a, .pagination button, nav a, ul.pager a');
	for (const el of links) {
		if ((el.textContent || '').trim() === want) return el;
	}
	return null;
}`

// DefaultStrategies returns the locators for the e-notification portal.
func DefaultStrategies() Strategies {
	return Strategies{
		pagedriver.LoginEntry: {
			Text("a, button", "Giriş Yap"),
			Text("a, button", "^\\s*Login\\s*$"),
		},
		pagedriver.LoginForm: {
			CSS("#kullaniciKodu"),
			CSS("form input[type=password]"),
		},
		pagedriver.Username: {
			CSS("#kullaniciKodu"),
			CSS("input[name=kullaniciKodu]"),
			CSS("input[name=username]"),
		},
		pagedriver.Password: {
			CSS("#sifre"),
			CSS("input[name=sifre]"),
			CSS("input[type=password]"),
		},
		pagedriver.CaptchaImage: {
			CSS("#imgCaptcha"),
			CSS("img[src*=captcha i]"),
			CSS("img[id*=captcha i]"),
		},
		pagedriver.CaptchaInput: {
			CSS("#dk"),
			CSS("input[name=dk]"),
			CSS("input[name*=captcha i]"),
		},
		pagedriver.Submit: {
			CSS("#giris"),
			CSS("button[type=submit]"),
			CSS("input[type=submit]"),
			Text("button", "Giriş"),
		},
		pagedriver.ErrorBanner: {
			CSS("#msgError"),
			CSS(".alert-danger"),
			CSS(".error-message"),
		},
		pagedriver.ListingLink: {
			Text("a", "E-Tebligat"),
			Text("a", "Tebligat"),
		},
		pagedriver.ResultRows: {
			CSS("table tbody tr"),
			CSS("[role=grid] [role=row]"),
			CSS(".list-group .list-group-item"),
		},
		pagedriver.NextPage: {
			CSS("a[rel=next]"),
			CSS("[aria-label=Next]:not([disabled])"),
			Text("a, button", "^\\s*(Sonraki|İleri|Next)\\s*$"),
			Script(nextNumberScript),
			Text("a, button", "^\\s*(»|›|>)\\s*$"),
		},
		pagedriver.DocumentLink: {
			CSS("a[href$='.pdf']"),
			CSS("a[href*=download]"),
			CSS("a[href*=indir]"),
			CSS("a[download]"),
		},
		pagedriver.Logout: {
			Text("a, button", "Çıkış"),
			Text("a, button", "/logout|sign out/i"),
			CSS("#logout"),
			CSS("a[href*=logout]"),
		},
	}
}
