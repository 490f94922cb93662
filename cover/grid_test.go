package cover

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOccupancyGrid(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		resolution float64
		wantErr    bool
	}{
		{"valid", 4, 3, 0.05, false},
		{"zero width", 0, 3, 0.05, true},
		{"negative height", 4, -1, 0.05, true},
		{"zero resolution", 4, 3, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewOccupancyGrid(tt.w, tt.h, tt.resolution, Point{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, g.FreeCount(), "new grids start occupied")
		})
	}
}

func TestOccupancyGrid_IsFree(t *testing.T) {
	g := gridFromRows(t, 1, "#.", "..")
	assert.False(t, g.IsFree(0, 0))
	assert.True(t, g.IsFree(1, 0))
	assert.False(t, g.IsFree(-1, 0), "out of bounds is occupied")
	assert.False(t, g.IsFree(2, 1), "out of bounds is occupied")

	g.SetFree(5, 5, true) // ignored
	assert.Equal(t, 3, g.FreeCount())
}

func TestOccupancyGrid_FreeBounds(t *testing.T) {
	g := gridFromRows(t, 1,
		"#####",
		"##..#",
		"#..##",
		"#####",
	)
	b, ok := g.FreeBounds()
	require.True(t, ok)
	assert.Equal(t, Bounds{Min: Pixel{X: 1, Y: 1}, Max: Pixel{X: 3, Y: 2}}, b)

	empty := gridFromRows(t, 1, "##")
	_, ok = empty.FreeBounds()
	assert.False(t, ok)
}

func TestOccupancyGrid_WorldRoundTrip(t *testing.T) {
	g, err := NewOccupancyGrid(10, 10, 0.05, Point{X: 1, Y: -2})
	require.NoError(t, err)

	w := g.PixelToWorld(Point{X: 4, Y: 6})
	assert.True(t, almostEqual(w.X, 1.2), "x: %v", w.X)
	assert.True(t, almostEqual(w.Y, -1.7), "y: %v", w.Y)

	p := g.WorldToPixel(w)
	assert.True(t, almostEqual(p.X, 4))
	assert.True(t, almostEqual(p.Y, 6))
}

func TestBounds_Intersect(t *testing.T) {
	a := Bounds{Min: Pixel{X: 0, Y: 0}, Max: Pixel{X: 5, Y: 5}}
	b := Bounds{Min: Pixel{X: 3, Y: -2}, Max: Pixel{X: 9, Y: 4}}
	assert.Equal(t, Bounds{Min: Pixel{X: 3, Y: 0}, Max: Pixel{X: 5, Y: 4}}, a.Intersect(b))

	c := Bounds{Min: Pixel{X: 7, Y: 7}, Max: Pixel{X: 8, Y: 8}}
	assert.True(t, a.Intersect(c).Empty())
}

func TestOccupancyFromImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	img.SetGray(0, 0, color.Gray{Y: 255})
	img.SetGray(1, 0, color.Gray{Y: 254})
	img.SetGray(2, 1, color.Gray{Y: 255})

	g, err := OccupancyFromImage(img, 0.05, Point{})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.True(t, g.IsFree(0, 0))
	assert.False(t, g.IsFree(1, 0), "only pure white is free")
	assert.True(t, g.IsFree(2, 1))
	assert.Equal(t, 2, g.FreeCount())
}

func TestPoint_Rotate(t *testing.T) {
	p := Point{X: 1, Y: 0}.Rotate(1.5707963267948966)
	assert.True(t, almostEqual(p.X, 0))
	assert.True(t, almostEqual(p.Y, 1))
}
