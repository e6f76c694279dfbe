package models

import (
	"fmt"
	"math"
)

// Modality identifies one of the co-registered input map types.
type Modality int

const (
	GM Modality = iota
	FA
	ODI
	ICVF
)

// String returns the conventional short name used in filenames and logs.
func (m Modality) String() string {
	switch m {
	case GM:
		return "GM"
	case FA:
		return "FA"
	case ODI:
		return "ODI"
	case ICVF:
		return "ICVF"
	}
	return fmt.Sprintf("Modality(%d)", int(m))
}

// Modalities lists all modalities in their canonical processing order.
var Modalities = []Modality{GM, FA, ODI, ICVF}

// Grid describes the voxel lattice shared by every volume in a run.
type Grid struct {
	// Width, Height, Depth are the voxel counts along x, y, z
	Width, Height, Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// Len returns the number of voxels in the grid.
func (g Grid) Len() int {
	return g.Width * g.Height * g.Depth
}

// Equal reports whether two grids have identical dimensions and spacing.
func (g Grid) Equal(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height && g.Depth == o.Depth &&
		g.VoxelSize == o.VoxelSize
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%dx%d (%.2fx%.2fx%.2f mm)",
		g.Width, g.Height, g.Depth, g.VoxelSize.X, g.VoxelSize.Y, g.VoxelSize.Z)
}

// Volume is a single 3D scalar map on a fixed voxel grid.
//
// Data is stored as a 1D array in row-major order with x varying fastest:
// idx = z*Width*Height + y*Width + x.
type Volume struct {
	Data []float64
	Grid Grid

	// Name is the original filename or a stage-assigned label, used in
	// diagnostics and QA artifact names.
	Name string
}

// NewVolume allocates a zero-filled volume on the given grid.
func NewVolume(grid Grid, name string) *Volume {
	return &Volume{
		Data: make([]float64, grid.Len()),
		Grid: grid,
		Name: name,
	}
}

// Idx converts voxel coordinates to a flat Data index.
func (v *Volume) Idx(x, y, z int) int {
	return z*v.Grid.Width*v.Grid.Height + y*v.Grid.Width + x
}

// At returns the intensity at voxel (x, y, z).
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Idx(x, y, z)]
}

// Set assigns the intensity at voxel (x, y, z).
func (v *Volume) Set(x, y, z int, val float64) {
	v.Data[v.Idx(x, y, z)] = val
}

// In reports whether (x, y, z) lies inside the grid.
func (v *Volume) In(x, y, z int) bool {
	return x >= 0 && x < v.Grid.Width &&
		y >= 0 && y < v.Grid.Height &&
		z >= 0 && z < v.Grid.Depth
}

// Clone returns a deep copy of the volume with the given name.
func (v *Volume) Clone(name string) *Volume {
	out := NewVolume(v.Grid, name)
	copy(out.Data, v.Data)
	return out
}

// CountNonzero returns the number of nonzero, non-NaN voxels.
func (v *Volume) CountNonzero() int {
	n := 0
	for _, val := range v.Data {
		if val != 0 && !math.IsNaN(val) {
			n++
		}
	}
	return n
}

// CohortStack is an ordered sequence of volumes for one modality, one per
// subject. Index i refers to the same subject across all modality stacks.
type CohortStack struct {
	Modality Modality
	Volumes  []*Volume

	// Name labels the stack in QA artifacts and diagnostics.
	Name string
}

// NewCohortStack returns an empty stack for the given modality.
func NewCohortStack(m Modality, name string) *CohortStack {
	return &CohortStack{Modality: m, Name: name}
}

// Len returns the number of subjects in the stack.
func (s *CohortStack) Len() int {
	return len(s.Volumes)
}

// Grid returns the shared grid of the stack. Panics on an empty stack;
// stacks are always validated non-empty by the aggregator.
func (s *CohortStack) Grid() Grid {
	return s.Volumes[0].Grid
}

// ShapeMismatchError reports a volume whose grid disagrees with the cohort
// reference grid. Structural, fatal: the run aborts.
type ShapeMismatchError struct {
	Stage  string
	Volume string
	Want   Grid
	Got    Grid
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: volume %q has grid %s, cohort grid is %s",
		e.Stage, e.Volume, e.Got, e.Want)
}

// EmptySkeletonError reports that thresholding left no skeleton voxels,
// which would make every downstream projection degenerate.
type EmptySkeletonError struct {
	Threshold float64
}

func (e *EmptySkeletonError) Error() string {
	return fmt.Sprintf("skeleton is empty after thresholding at %.2f", e.Threshold)
}
