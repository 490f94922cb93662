package report

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.NRGBA
		wantErr bool
	}{
		{"#FF0000", color.NRGBA{255, 0, 0, 255}, false},
		{"00ff7f", color.NRGBA{0, 255, 127, 255}, false},
		{"#123", color.NRGBA{}, true},
		{"#GG0000", color.NRGBA{}, true},
		{"", color.NRGBA{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColorOrDefault(t *testing.T) {
	assert.Equal(t, color.NRGBA{0, 0, 255, 255}, ColorOrDefault("#0000FF"))
	assert.Equal(t, DefaultPoseColor, ColorOrDefault("blue"))
}

func TestToRGBA_Premultiplies(t *testing.T) {
	got := toRGBA(color.NRGBA{200, 100, 0, 128})
	assert.Equal(t, uint8(128), got.A)
	assert.InDelta(t, 100, int(got.R), 1)
	assert.InDelta(t, 50, int(got.G), 1)
}
