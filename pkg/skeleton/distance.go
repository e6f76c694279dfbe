package skeleton

import (
	"math"

	"gbss/internal/models"
)

// DistanceTransform computes the Euclidean distance field of a seed
// volume. Voxels with seed value >= -1 are targets (the thresholded
// skeleton and everything outside the grey-matter mask, given the
// (-GMMask - 1) + skelThreshMask seed convention) and receive distance 0;
// interior grey-matter voxels receive the distance, in voxels, to the
// nearest target.
//
// The transform is the exact separable squared-distance algorithm of
// Felzenszwalb & Huttenlocher, one lower-envelope pass per axis.
func DistanceTransform(seed *models.Volume, name string) *models.Volume {
	w, h, d := seed.Grid.Width, seed.Grid.Height, seed.Grid.Depth
	out := models.NewVolume(seed.Grid, name)

	// Initialize squared distances: 0 at targets, a finite upper bound
	// elsewhere. A finite bound keeps the parabola intersections well
	// defined even for planes that contain no target at all.
	far := float64(w*w + h*h + d*d + 1)
	for i, s := range seed.Data {
		if s >= -1 {
			out.Data[i] = 0
		} else {
			out.Data[i] = far
		}
	}

	n := w
	if h > n {
		n = h
	}
	if d > n {
		n = d
	}
	f := make([]float64, n)
	dt := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	// x pass
	for zz := 0; zz < d; zz++ {
		for y := 0; y < h; y++ {
			base := zz*w*h + y*w
			for x := 0; x < w; x++ {
				f[x] = out.Data[base+x]
			}
			edt1d(f[:w], dt[:w], v[:w], z[:w+1])
			for x := 0; x < w; x++ {
				out.Data[base+x] = dt[x]
			}
		}
	}

	// y pass
	for zz := 0; zz < d; zz++ {
		for x := 0; x < w; x++ {
			base := zz * w * h
			for y := 0; y < h; y++ {
				f[y] = out.Data[base+y*w+x]
			}
			edt1d(f[:h], dt[:h], v[:h], z[:h+1])
			for y := 0; y < h; y++ {
				out.Data[base+y*w+x] = dt[y]
			}
		}
	}

	// z pass
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for zz := 0; zz < d; zz++ {
				f[zz] = out.Data[zz*w*h+y*w+x]
			}
			edt1d(f[:d], dt[:d], v[:d], z[:d+1])
			for zz := 0; zz < d; zz++ {
				out.Data[zz*w*h+y*w+x] = dt[zz]
			}
		}
	}

	for i, sq := range out.Data {
		out.Data[i] = math.Sqrt(sq)
	}
	return out
}

// edt1d computes the 1D squared-distance transform of sampled function f
// into dt, using v and z as scratch for the lower envelope of parabolas.
func edt1d(f, dt []float64, v []int, z []float64) {
	n := len(f)
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)

	for q := 1; q < n; q++ {
		s := intersect(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}

	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		dt[q] = dq*dq + f[v[k]]
	}
}

// intersect returns the abscissa where the parabolas rooted at q and p
// cross.
func intersect(f []float64, q, p int) float64 {
	fq := float64(q)
	fp := float64(p)
	return ((f[q] + fq*fq) - (f[p] + fp*fp)) / (2*fq - 2*fp)
}
