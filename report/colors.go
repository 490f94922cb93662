// Package report renders plans as GeoJSON, raster and vector images, and
// convergence charts.
package report

import (
	"fmt"
	"image/color"
	"strings"
)

var (
	freeColor      = color.NRGBA{255, 255, 255, 255}
	occupiedColor  = color.NRGBA{64, 64, 64, 255}
	cellColor      = color.NRGBA{190, 190, 190, 255}
	uncoveredColor = color.NRGBA{255, 140, 0, 255}
	labelColor     = color.NRGBA{0, 0, 0, 255}
)

// DefaultPoseColor is used when a vacuum has no configured color.
var DefaultPoseColor = color.NRGBA{220, 0, 0, 255}

// ParseHexColor parses "#RRGGBB" or "RRGGBB".
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("color %q: want 6 hex digits", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{r, g, b, 255}, nil
}

// ColorOrDefault parses s and falls back to DefaultPoseColor.
func ColorOrDefault(s string) color.NRGBA {
	c, err := ParseHexColor(s)
	if err != nil {
		return DefaultPoseColor
	}
	return c
}

func withAlpha(c color.NRGBA, a uint8) color.NRGBA {
	c.A = a
	return c
}

// toRGBA premultiplies alpha, as canvas paints expect.
func toRGBA(c color.NRGBA) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}
