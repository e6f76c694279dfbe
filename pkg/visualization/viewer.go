// Package visualization renders QA slice sheets of pipeline volumes:
// grayscale PNG sequences of the mean grey-matter map, the skeleton masks
// and per-subject lesion masks, for quick visual review of a run.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gbss/internal/models"
)

// Viewer extracts and saves 2D slices of a volume along any axis.
// Intensities are window-scaled to the volume's own range so masks and
// probability maps render usefully without per-volume tuning.
type Viewer struct {
	vol *models.Volume

	// lo and hi are the display window bounds
	lo, hi float64
}

// NewViewer creates a viewer over the given volume. Degenerate values
// (NaN/Inf from unguarded fills) render as black.
func NewViewer(vol *models.Volume) *Viewer {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, val := range vol.Data {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			continue
		}
		if val < lo {
			lo = val
		}
		if val > hi {
			hi = val
		}
	}
	if lo > hi {
		lo, hi = 0, 1
	}
	return &Viewer{vol: vol, lo: lo, hi: hi}
}

func (v *Viewer) gray(val float64) color.Gray16 {
	if math.IsNaN(val) || math.IsInf(val, 0) || v.hi <= v.lo {
		return color.Gray16{}
	}
	scaled := (val - v.lo) / (v.hi - v.lo)
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, scaled*65535)))}
}

// ExtractSlice extracts a 2D slice of the volume along the specified axis.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	grid := v.vol.Grid
	var img *image.Gray16

	switch axis {
	case "x", "X":
		if position >= grid.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, grid.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, grid.Depth, grid.Height))
		for y := 0; y < grid.Height; y++ {
			for z := 0; z < grid.Depth; z++ {
				img.SetGray16(z, y, v.gray(v.vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		if position >= grid.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, grid.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, grid.Width, grid.Depth))
		for z := 0; z < grid.Depth; z++ {
			for x := 0; x < grid.Width; x++ {
				img.SetGray16(x, z, v.gray(v.vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		if position >= grid.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, grid.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, grid.Width, grid.Height))
		for y := 0; y < grid.Height; y++ {
			for x := 0; x < grid.Width; x++ {
				img.SetGray16(x, y, v.gray(v.vol.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a PNG image.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every slice along the specified
// axis into outputDir, one PNG per position.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.Grid.Width
	case "y", "Y":
		maxPos = v.vol.Grid.Height
	case "z", "Z":
		maxPos = v.vol.Grid.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
