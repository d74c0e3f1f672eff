package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/narworks/muhasebe-asistani-sub000/internal/pagedriver"
)

func TestDefaultStrategies_CoverEveryCapability(t *testing.T) {
	s := DefaultStrategies()
	for _, c := range []pagedriver.Capability{
		pagedriver.LoginEntry, pagedriver.LoginForm, pagedriver.Username,
		pagedriver.Password, pagedriver.CaptchaImage, pagedriver.CaptchaInput,
		pagedriver.Submit, pagedriver.ErrorBanner, pagedriver.ListingLink,
		pagedriver.ResultRows, pagedriver.NextPage, pagedriver.DocumentLink,
		pagedriver.Logout,
	} {
		locs, err := s.Lookup(c)
		if err != nil {
			t.Errorf("Lookup(%s) error = %v", c, err)
			continue
		}
		if len(locs) == 0 {
			t.Errorf("Lookup(%s) returned no locators", c)
		}
	}
}

func TestDefaultStrategies_PortalSelectorsFirst(t *testing.T) {
	s := DefaultStrategies()
	tests := []struct {
		capability pagedriver.Capability
		want       string
	}{
		{pagedriver.Username, "#kullaniciKodu"},
		{pagedriver.Password, "#sifre"},
		{pagedriver.CaptchaImage, "#imgCaptcha"},
		{pagedriver.CaptchaInput, "#dk"},
		{pagedriver.Submit, "#giris"},
		{pagedriver.ErrorBanner, "#msgError"},
		{pagedriver.ResultRows, "table tbody tr"},
	}
	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			locs, _ := s.Lookup(tt.capability)
			if locs[0].Kind != ByCSS || locs[0].Selector != tt.want {
				t.Errorf("first locator = %s, want css(%s)", locs[0], tt.want)
			}
		})
	}
}

func TestStrategies_Lookup_Unknown(t *testing.T) {
	_, err := Strategies{}.Lookup(pagedriver.NextPage)
	if !errors.Is(err, pagedriver.ErrNotFound) {
		t.Errorf("Lookup() error = %v, want ErrNotFound", err)
	}
}

func TestStrategies_With(t *testing.T) {
	base := DefaultStrategies()
	custom := base.With(pagedriver.ResultRows, CSS("#results tr"))

	locs, _ := custom.Lookup(pagedriver.ResultRows)
	if len(locs) != 1 || locs[0].Selector != "#results tr" {
		t.Errorf("With() locators = %v", locs)
	}
	orig, _ := base.Lookup(pagedriver.ResultRows)
	if orig[0].Selector != "table tbody tr" {
		t.Error("With() mutated the original strategies")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		closed bool
	}{
		{"nil", nil, false},
		{"closed connection", errors.New("write tcp: use of closed network connection"), true},
		{"websocket close", fmt.Errorf("read: %w", errors.New("websocket: close 1006")), true},
		{"element error", errors.New("cannot find element"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, pagedriver.ErrBrowserClosed) != tt.closed {
				t.Errorf("classify(%v) = %v, closed want %v", tt.err, got, tt.closed)
			}
		})
	}
}

func TestDocumentName(t *testing.T) {
	tests := []struct {
		ref, disposition, want string
	}{
		{"https://portal.example/docs/123.pdf?x=1", "", "123.pdf"},
		{"https://portal.example/download", `attachment; filename="tebligat-9.pdf"`, "tebligat-9.pdf"},
		{"https://portal.example/", "", "portal.example"},
		{"", "", "document"},
	}
	for _, tt := range tests {
		if got := documentName(tt.ref, tt.disposition); got != tt.want {
			t.Errorf("documentName(%q, %q) = %q, want %q", tt.ref, tt.disposition, got, tt.want)
		}
	}
}
