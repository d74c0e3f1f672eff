package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// stealthScript patches the fingerprints go-rod/stealth leaves alone.
const stealthScript = `
(function() {
    'use strict';

    Object.defineProperty(navigator, 'webdriver', {
        get: () => undefined,
        configurable: true
    });
    try {
        delete Object.getPrototypeOf(navigator).webdriver;
    } catch (e) {}

    Object.defineProperty(navigator, 'languages', {
        get: () => ['tr-TR', 'tr', 'en-US', 'en'],
        configurable: true
    });

    if (!window.chrome) {
        window.chrome = { runtime: {}, loadTimes: function() {}, csi: function() {} };
    }

    const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
    if (originalQuery) {
        window.navigator.permissions.query = (parameters) => (
            parameters.name === 'notifications'
                ? Promise.resolve({ state: Notification.permission })
                : originalQuery(parameters)
        );
    }
})();
`

// newStealthPage opens a page with stealth evasions, the configured user agent
// and a desktop viewport.
func newStealthPage(b *rod.Browser, userAgent string) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, err
	}

	if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
		_ = page.Close()
		return nil, err
	}

	if userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      userAgent,
			AcceptLanguage: "tr-TR,tr;q=0.9,en;q=0.8",
		}); err != nil {
			_ = page.Close()
			return nil, err
		}
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1280,
		Height:            800,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = page.Close()
		return nil, err
	}

	return page, nil
}
