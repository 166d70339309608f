// Package header renders the page header: logo, tagline and today's date.
package header

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goodsign/monday"
)

// Logo asset served under /static.
const (
	LogoPath   = "/static/logo.svg"
	LogoAlt    = "Podcastr"
	LogoWidth  = 163
	LogoHeight = 40
)

// Config holds header configuration.
type Config struct {
	Locale     string // monday locale, e.g. "pt_BR"
	DateLayout string // Go time layout
	Tagline    string
}

// View is the render model of the header.
type View struct {
	LogoPath   string `json:"logo_path"`
	LogoAlt    string `json:"logo_alt"`
	LogoWidth  int    `json:"logo_width"`
	LogoHeight int    `json:"logo_height"`
	Tagline    string `json:"tagline"`
	Date       string `json:"date"`
}

// Header renders views with a fixed locale and layout.
type Header struct {
	locale monday.Locale
	layout string
	tag    string
}

// New creates a header. Empty fields fall back to pt_BR, "Mon, 2 January"
// and the default tagline.
func New(cfg Config) (*Header, error) {
	if cfg.Locale == "" {
		cfg.Locale = string(monday.LocalePtBR)
	}
	if cfg.DateLayout == "" {
		cfg.DateLayout = "Mon, 2 January"
	}
	if cfg.Tagline == "" {
		cfg.Tagline = "O melhor para você ouvir, sempre"
	}

	locale := monday.Locale(cfg.Locale)
	if !supported(locale) {
		return nil, errors.Newf("unsupported header locale: %s", cfg.Locale)
	}

	return &Header{
		locale: locale,
		layout: cfg.DateLayout,
		tag:    cfg.Tagline,
	}, nil
}

func supported(locale monday.Locale) bool {
	for _, l := range monday.ListLocales() {
		if l == locale {
			return true
		}
	}
	return false
}

// Render returns the header view for now.
func (h *Header) Render(now time.Time) View {
	return View{
		LogoPath:   LogoPath,
		LogoAlt:    LogoAlt,
		LogoWidth:  LogoWidth,
		LogoHeight: LogoHeight,
		Tagline:    h.tag,
		Date:       monday.Format(now, h.layout, h.locale),
	}
}
