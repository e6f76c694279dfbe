package skeleton

// Ridge extraction: the skeletonization primitive. A voxel belongs to the
// skeleton of a scalar map when it is a local maximum along the direction
// in which the map falls off fastest, i.e. perpendicular to the sheet-like
// core of the structure. The output is a ridge field carrying the map's
// own value on skeleton voxels and zero elsewhere.

import "gbss/internal/models"

// searchDirections are the 13 unique voxel directions of a 3x3x3
// neighborhood (axes, face diagonals, cube diagonals); each direction and
// its negation define one search line.
var searchDirections = [13][3]int{
	{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
	{1, 1, 0}, {1, -1, 0}, {1, 0, 1}, {1, 0, -1}, {0, 1, 1}, {0, 1, -1},
	{1, 1, 1}, {1, 1, -1}, {1, -1, 1}, {1, -1, -1},
}

// principalDirection returns the direction of most negative second
// derivative of v at (x, y, z): the perpendicular to the local ridge
// sheet. Out-of-grid neighbors are treated as zero, so boundary voxels
// see a steep falloff toward the outside.
func principalDirection(v *models.Volume, x, y, z int) [3]int {
	center := v.At(x, y, z)
	best := searchDirections[0]
	bestCurv := curvatureAlong(v, x, y, z, searchDirections[0], center)
	for _, dir := range searchDirections[1:] {
		c := curvatureAlong(v, x, y, z, dir, center)
		if c < bestCurv {
			bestCurv = c
			best = dir
		}
	}
	return best
}

func curvatureAlong(v *models.Volume, x, y, z int, dir [3]int, center float64) float64 {
	return sampleOrZero(v, x+dir[0], y+dir[1], z+dir[2]) +
		sampleOrZero(v, x-dir[0], y-dir[1], z-dir[2]) -
		2*center
}

func sampleOrZero(v *models.Volume, x, y, z int) float64 {
	if !v.In(x, y, z) {
		return 0
	}
	return v.At(x, y, z)
}

// Skeletonize extracts the ridge field of a scalar map. lowCutoff excludes
// background voxels from consideration; the grey-matter mask cutoff is the
// natural choice.
func Skeletonize(v *models.Volume, lowCutoff float64, name string) *models.Volume {
	out := models.NewVolume(v.Grid, name)
	w, h, d := v.Grid.Width, v.Grid.Height, v.Grid.Depth

	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				center := v.At(x, y, z)
				if center < lowCutoff {
					continue
				}
				dir := principalDirection(v, x, y, z)
				fwd := sampleOrZero(v, x+dir[0], y+dir[1], z+dir[2])
				bwd := sampleOrZero(v, x-dir[0], y-dir[1], z-dir[2])
				if center >= fwd && center >= bwd {
					out.Set(x, y, z, center)
				}
			}
		}
	}
	return out
}
