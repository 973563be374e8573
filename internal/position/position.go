// Package position picks the screen point to click before typing.
//
// PointFor always yields a point. It prefers the interior of a located
// element, then the content area of the target window, then a fixed spot on
// the primary display.
package position

import (
	"fmt"

	"scrivener/internal/axtree"
)

// Tier identifies which fallback produced a point.
type Tier int

const (
	TierElement Tier = iota
	TierWindow
	TierScreen
)

func (t Tier) String() string {
	switch t {
	case TierElement:
		return "element"
	case TierWindow:
		return "window"
	default:
		return "screen"
	}
}

// Config holds the ratios and margins used by each tier.
type Config struct {
	ElementX float64
	ElementY float64

	// WindowTopMargin and WindowBottomMargin are removed from the window
	// frame (toolbars, tab strips, status bars) before applying the ratios.
	WindowTopMargin    float64
	WindowBottomMargin float64
	WindowX            float64
	WindowY            float64

	ScreenX float64
	ScreenY float64

	// FallbackScreen is used when the display adapter cannot report the
	// primary display.
	FallbackScreen axtree.Rect
}

// DefaultConfig returns the stock ratios.
func DefaultConfig() Config {
	return Config{
		ElementX:           0.20,
		ElementY:           0.10,
		WindowTopMargin:    200,
		WindowBottomMargin: 30,
		WindowX:            0.20,
		WindowY:            0.10,
		ScreenX:            0.40,
		ScreenY:            0.30,
		FallbackScreen:     axtree.Rect{Width: 1440, Height: 900},
	}
}

// Validate reports ratios outside [0,1] and negative margins.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"element_x": c.ElementX, "element_y": c.ElementY,
		"window_x": c.WindowX, "window_y": c.WindowY,
		"screen_x": c.ScreenX, "screen_y": c.ScreenY,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("position: %s must be within [0,1], got %v", name, v)
		}
	}
	if c.WindowTopMargin < 0 || c.WindowBottomMargin < 0 {
		return fmt.Errorf("position: window margins must not be negative")
	}
	return nil
}

// Positioner computes click points. It is stateless and safe for
// concurrent use.
type Positioner struct {
	cfg Config
}

// New returns a Positioner using cfg.
func New(cfg Config) *Positioner {
	return &Positioner{cfg: cfg}
}

// PointFor returns where to click. element, window and screen may each be
// nil. Degenerate rectangles fall through to the next tier.
func (p *Positioner) PointFor(element *axtree.Node, window, screen *axtree.Rect) (axtree.Point, Tier) {
	if element != nil && element.HasGeometry() {
		return element.Frame.At(p.cfg.ElementX, p.cfg.ElementY), TierElement
	}

	if window != nil {
		content := axtree.Rect{
			X:      window.X,
			Y:      window.Y + p.cfg.WindowTopMargin,
			Width:  window.Width,
			Height: window.Height - p.cfg.WindowTopMargin - p.cfg.WindowBottomMargin,
		}
		if !content.Empty() {
			return content.At(p.cfg.WindowX, p.cfg.WindowY), TierWindow
		}
	}

	display := p.cfg.FallbackScreen
	if screen != nil && !screen.Empty() {
		display = *screen
	}
	return display.At(p.cfg.ScreenX, p.cfg.ScreenY), TierScreen
}
