// Package volmath provides the elementwise volumetric algebra used by the
// GBSS pipeline: thresholding, binarization, arithmetic between volumes,
// subject-axis means, and Gaussian smoothing.
//
// All operations return freshly allocated volumes; inputs are never
// mutated. Operations on two volumes require identical grids.
package volmath

import (
	"fmt"
	"math"

	"gbss/internal/models"
)

// checkGrids panics if the two volumes are not on the same grid. Within a
// run every volume is validated against the cohort grid at aggregation
// time, so a mismatch here is a programming error rather than bad input.
func checkGrids(op string, a, b *models.Volume) {
	if !a.Grid.Equal(b.Grid) {
		panic(fmt.Sprintf("volmath.%s: grid mismatch %s vs %s", op, a.Grid, b.Grid))
	}
}

// apply maps f over every voxel of v into a new volume.
func apply(v *models.Volume, name string, f func(float64) float64) *models.Volume {
	out := models.NewVolume(v.Grid, name)
	for i, val := range v.Data {
		out.Data[i] = f(val)
	}
	return out
}

// combine maps f over voxel pairs of a and b into a new volume.
func combine(op string, a, b *models.Volume, name string, f func(x, y float64) float64) *models.Volume {
	checkGrids(op, a, b)
	out := models.NewVolume(a.Grid, name)
	for i := range a.Data {
		out.Data[i] = f(a.Data[i], b.Data[i])
	}
	return out
}

// Threshold zeroes voxels strictly below cutoff and keeps the rest.
func Threshold(v *models.Volume, cutoff float64, name string) *models.Volume {
	return apply(v, name, func(x float64) float64 {
		if x < cutoff {
			return 0
		}
		return x
	})
}

// Binarize maps every nonzero voxel to 1 and everything else to 0.
// NaN is treated as nonzero so degenerate values are never silently
// promoted into a mask; callers mask degenerate regions out explicitly.
func Binarize(v *models.Volume, name string) *models.Volume {
	return apply(v, name, func(x float64) float64 {
		if x != 0 {
			return 1
		}
		return 0
	})
}

// BinarizeAbove returns a {0,1} mask of voxels with value >= cutoff.
func BinarizeAbove(v *models.Volume, cutoff float64, name string) *models.Volume {
	return apply(v, name, func(x float64) float64 {
		if x >= cutoff {
			return 1
		}
		return 0
	})
}

// BinarizeAtOrBelow returns a {0,1} mask of voxels with value <= cutoff,
// the complement of the strictly-above set. Zero-valued voxels are
// included, which is what lesion marking requires.
func BinarizeAtOrBelow(v *models.Volume, cutoff float64, name string) *models.Volume {
	return apply(v, name, func(x float64) float64 {
		if x > cutoff {
			return 0
		}
		return 1
	})
}

// Add returns a + b voxelwise.
func Add(a, b *models.Volume, name string) *models.Volume {
	return combine("Add", a, b, name, func(x, y float64) float64 { return x + y })
}

// Sub returns a - b voxelwise.
func Sub(a, b *models.Volume, name string) *models.Volume {
	return combine("Sub", a, b, name, func(x, y float64) float64 { return x - y })
}

// Mul returns a * b voxelwise.
func Mul(a, b *models.Volume, name string) *models.Volume {
	return combine("Mul", a, b, name, func(x, y float64) float64 { return x * y })
}

// Div returns a / b voxelwise. The division is unguarded: zero
// denominators produce Inf or NaN, which the filling stage masks out
// downstream. Use CountDegenerate to report the affected voxels.
func Div(a, b *models.Volume, name string) *models.Volume {
	return combine("Div", a, b, name, func(x, y float64) float64 { return x / y })
}

// Scale returns v * s voxelwise.
func Scale(v *models.Volume, s float64, name string) *models.Volume {
	return apply(v, name, func(x float64) float64 { return x * s })
}

// AddScalar returns v + s voxelwise.
func AddScalar(v *models.Volume, s float64, name string) *models.Volume {
	return apply(v, name, func(x float64) float64 { return x + s })
}

// ClampMin replaces voxels below lo with lo.
func ClampMin(v *models.Volume, lo float64, name string) *models.Volume {
	return apply(v, name, func(x float64) float64 {
		if x < lo {
			return lo
		}
		return x
	})
}

// Complement returns 1 - v voxelwise, the mask complement for binary input.
func Complement(v *models.Volume, name string) *models.Volume {
	return apply(v, name, func(x float64) float64 { return 1 - x })
}

// MeanOverSubjects returns the voxelwise mean of a cohort stack along the
// subject axis.
func MeanOverSubjects(stack *models.CohortStack, name string) *models.Volume {
	grid := stack.Grid()
	out := models.NewVolume(grid, name)
	for _, v := range stack.Volumes {
		checkGrids("MeanOverSubjects", stack.Volumes[0], v)
		for i, val := range v.Data {
			out.Data[i] += val
		}
	}
	n := float64(stack.Len())
	for i := range out.Data {
		out.Data[i] /= n
	}
	return out
}

// CountDegenerate returns the number of voxels in v that are NaN or Inf.
func CountDegenerate(v *models.Volume) int {
	n := 0
	for _, val := range v.Data {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			n++
		}
	}
	return n
}
