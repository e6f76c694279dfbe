package volmath

import (
	"math"

	"gbss/internal/models"
)

// gaussianKernel1D returns a normalized 1D Gaussian kernel with standard
// deviation sigma in voxel units. The kernel radius is ceil(4*sigma),
// matching the scipy truncation convention, so the discrete kernel carries
// essentially all of the Gaussian mass.
func gaussianKernel1D(sigma float64) []float64 {
	radius := int(math.Ceil(4 * sigma))
	length := 2*radius + 1

	k := make([]float64, length)
	sfactor := -0.5 / (sigma * sigma)
	sum := 0.0
	for i := 0; i < length; i++ {
		x := float64(i - radius)
		k[i] = math.Exp(sfactor * x * x)
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// SmoothGaussian applies an isotropic Gaussian low-pass filter with the
// given sigma (in voxels) as three separable 1D convolutions.
//
// The convolution is zero-padded: mass leaks out at the grid boundary
// rather than being renormalized. Normalized-convolution filling relies on
// this, since the same leakage affects data and support mask identically
// and cancels in the ratio.
func SmoothGaussian(v *models.Volume, sigma float64, name string) *models.Volume {
	if sigma <= 0 {
		return v.Clone(name)
	}

	k := gaussianKernel1D(sigma)
	radius := len(k) / 2
	w, h, d := v.Grid.Width, v.Grid.Height, v.Grid.Depth

	cur := v.Data
	next := make([]float64, len(cur))

	// x pass
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			base := z*w*h + y*w
			for x := 0; x < w; x++ {
				acc := 0.0
				for t := -radius; t <= radius; t++ {
					xx := x + t
					if xx < 0 || xx >= w {
						continue
					}
					acc += cur[base+xx] * k[t+radius]
				}
				next[base+x] = acc
			}
		}
	}
	cur, next = next, make([]float64, len(cur))

	// y pass
	for z := 0; z < d; z++ {
		for x := 0; x < w; x++ {
			base := z * w * h
			for y := 0; y < h; y++ {
				acc := 0.0
				for t := -radius; t <= radius; t++ {
					yy := y + t
					if yy < 0 || yy >= h {
						continue
					}
					acc += cur[base+yy*w+x] * k[t+radius]
				}
				next[base+y*w+x] = acc
			}
		}
	}
	cur, next = next, make([]float64, len(cur))

	// z pass
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for z := 0; z < d; z++ {
				acc := 0.0
				for t := -radius; t <= radius; t++ {
					zz := z + t
					if zz < 0 || zz >= d {
						continue
					}
					acc += cur[zz*w*h+y*w+x] * k[t+radius]
				}
				next[z*w*h+y*w+x] = acc
			}
		}
	}

	out := models.NewVolume(v.Grid, name)
	out.Data = next
	return out
}
