package report

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasterRenderer_Render(t *testing.T) {
	poseColor := color.NRGBA{0, 0, 255, 255}
	r := NewRasterRenderer(poseColor)
	img, err := r.Render(testPlan(t))
	require.NoError(t, err)

	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())

	rgba := func(c color.Color) color.RGBA { return color.RGBAModel.Convert(c).(color.RGBA) }
	assert.Equal(t, rgba(occupiedColor), img.RGBAAt(0, 0), "wall border")
	assert.Equal(t, rgba(freeColor), img.RGBAAt(29, 17), "free space")
	assert.Equal(t, rgba(uncoveredColor), img.RGBAAt(33, 5), "uncovered cell")
	assert.Equal(t, rgba(poseColor), img.RGBAAt(10, 14), "pose marker")
	assert.Equal(t, rgba(poseColor), img.RGBAAt(30, 14), "heading line")
}

func TestRasterRenderer_NoGrid(t *testing.T) {
	plan := testPlan(t)
	plan.Grid = nil
	_, err := NewRasterRenderer(DefaultPoseColor).Render(plan)
	assert.Error(t, err)
}

func TestDrawLine(t *testing.T) {
	r := NewRasterRenderer(DefaultPoseColor)
	r.Labels = false
	r.Scale = 1
	img, err := r.Render(testPlan(t))
	require.NoError(t, err)

	drawLine(img, 0, 5, 9, 5, labelColor)
	for x := 0; x <= 9; x++ {
		assert.Equal(t, uint8(255), img.RGBAAt(x, 5).A)
		assert.Equal(t, uint8(0), img.RGBAAt(x, 5).R)
	}
}
