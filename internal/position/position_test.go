package position

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"scrivener/internal/axtree"
)

func TestPointForTiers(t *testing.T) {
	p := New(DefaultConfig())
	screen := &axtree.Rect{Width: 2000, Height: 1000}
	window := &axtree.Rect{X: 100, Y: 100, Width: 1000, Height: 730}

	tests := []struct {
		name    string
		element *axtree.Node
		window  *axtree.Rect
		screen  *axtree.Rect
		want    axtree.Point
		tier    Tier
	}{
		{
			name:    "element interior",
			element: &axtree.Node{Frame: &axtree.Rect{X: 10, Y: 20, Width: 500, Height: 300}},
			window:  window,
			screen:  screen,
			want:    axtree.Point{X: 110, Y: 50},
			tier:    TierElement,
		},
		{
			name:    "element without geometry uses window",
			element: &axtree.Node{Role: axtree.RoleTextArea},
			window:  window,
			screen:  screen,
			// content rect: y 300, height 500
			want: axtree.Point{X: 300, Y: 350},
			tier: TierWindow,
		},
		{
			name:   "window too short falls through to screen",
			window: &axtree.Rect{X: 0, Y: 0, Width: 800, Height: 200},
			screen: screen,
			want:   axtree.Point{X: 800, Y: 300},
			tier:   TierScreen,
		},
		{
			name:   "nothing known uses fallback display",
			want:   axtree.Point{X: 576, Y: 270},
			tier:   TierScreen,
		},
		{
			name:   "empty screen uses fallback display",
			screen: &axtree.Rect{},
			want:   axtree.Point{X: 576, Y: 270},
			tier:   TierScreen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tier := p.PointFor(tt.element, tt.window, tt.screen)
			assert.InDelta(t, tt.want.X, got.X, 0.001)
			assert.InDelta(t, tt.want.Y, got.Y, 0.001)
			assert.Equal(t, tt.tier, tier)
		})
	}
}

func TestPointForAlwaysInsideSomething(t *testing.T) {
	p := New(DefaultConfig())
	screen := &axtree.Rect{X: -1440, Y: 0, Width: 1440, Height: 900}
	got, tier := p.PointFor(nil, nil, screen)
	assert.Equal(t, TierScreen, tier)
	assert.True(t, screen.Contains(got))
}

func TestPointForSkipsNonFiniteGeometry(t *testing.T) {
	p := New(DefaultConfig())
	element := &axtree.Node{Role: axtree.RoleTextArea, Frame: &axtree.Rect{Width: math.NaN(), Height: 40}}
	window := &axtree.Rect{X: 0, Y: 0, Width: 1000, Height: math.Inf(1)}
	screen := &axtree.Rect{Width: 2000, Height: 1000}

	got, tier := p.PointFor(element, window, screen)
	assert.Equal(t, TierScreen, tier)
	assert.Equal(t, axtree.Point{X: 800, Y: 300}, got)

	got, tier = p.PointFor(nil, nil, &axtree.Rect{Width: math.NaN(), Height: 900})
	assert.Equal(t, TierScreen, tier)
	assert.False(t, math.IsNaN(got.X) || math.IsNaN(got.Y))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ScreenX = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.WindowTopMargin = -1
	assert.Error(t, cfg.Validate())
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "element", TierElement.String())
	assert.Equal(t, "window", TierWindow.String())
	assert.Equal(t, "screen", TierScreen.String())
}
