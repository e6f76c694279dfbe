package lesion

import (
	"fmt"
	"sync"

	"gbss/internal/models"
	"gbss/pkg/volmath"
)

// Filler reconstructs lesion voxels by normalized convolution: a Gaussian
// low-pass of the masked data divided by the same filter applied to the
// binary support mask, yielding a locally weighted average of the valid
// neighbors.
type Filler struct {
	// Sigma is the Gaussian kernel width in voxels.
	Sigma float64

	// CoverageCutoff is the minimum smoothed-support weight for a fill to
	// count as reliable.
	CoverageCutoff float64

	// NumWorkers bounds subject-level parallelism.
	NumWorkers int
}

// NewFiller returns a filler with the given smoothing parameters.
func NewFiller(sigma, coverageCutoff float64, numWorkers int) *Filler {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Filler{Sigma: sigma, CoverageCutoff: coverageCutoff, NumWorkers: numWorkers}
}

// FillResult is a filled cohort stack plus per-subject counts of voxels
// whose fill came from a zero-coverage neighborhood (the degenerate
// divisions the coverage threshold later masks out).
type FillResult struct {
	Filled           *models.CohortStack
	DegenerateCounts []int
}

// FillStack fills every subject of proj under the combined lesion stack.
// Subject order is preserved; each worker writes only its own slice.
func (f *Filler) FillStack(proj, allLesion *models.CohortStack) (*FillResult, error) {
	if proj.Len() != allLesion.Len() {
		return nil, fmt.Errorf("fill %s: projection has %d subjects, lesion stack has %d",
			proj.Modality, proj.Len(), allLesion.Len())
	}

	filled := models.NewCohortStack(proj.Modality,
		fmt.Sprintf("all_%s_skeletonised_lesionFilled", proj.Modality))
	filled.Volumes = make([]*models.Volume, proj.Len())
	degenerate := make([]int, proj.Len())

	order := make(chan int, f.NumWorkers)
	var wg sync.WaitGroup
	wg.Add(proj.Len())

	for i := 0; i < f.NumWorkers; i++ {
		go func() {
			for idx := range order {
				vol, nDegen := f.fillVolume(
					proj.Volumes[idx], allLesion.Volumes[idx],
					fmt.Sprintf("%s_filled_subj%03d", proj.Modality, idx))
				filled.Volumes[idx] = vol
				degenerate[idx] = nDegen
				wg.Done()
			}
		}()
	}
	for i := 0; i < proj.Len(); i++ {
		order <- i
	}
	wg.Wait()
	close(order)

	return &FillResult{Filled: filled, DegenerateCounts: degenerate}, nil
}

// fillVolume reconstructs one subject's lesion voxels.
//
// The composite is the three-term sum, including the unguarded fill term
// under the whole lesion mask:
//
//	filled = reliableFill*filler + nonLesion + allLesion*filler
//
// so NaN/Inf from zero-coverage neighborhoods propagate into lesion
// voxels the coverage cutoff rejects. The degenerate count reports them.
func (f *Filler) fillVolume(proj, lesion *models.Volume, name string) (*models.Volume, int) {
	// Valid data is everything off the lesion; the complement-multiply can
	// only go negative on non-physical input, clamp it at zero.
	nonLesion := volmath.ClampMin(
		volmath.Mul(volmath.Complement(lesion, ""), proj, ""),
		0, "non_lesion_data")

	smoothedData := volmath.SmoothGaussian(nonLesion, f.Sigma, "smoothed_data")
	support := volmath.Binarize(nonLesion, "support_mask")
	smoothedWeight := volmath.SmoothGaussian(support, f.Sigma, "smoothed_weight")

	// Unguarded normalized convolution.
	filler := volmath.Div(smoothedData, smoothedWeight, "filler")

	filledInLesion := volmath.Mul(lesion, filler, "filled_in_lesion")
	reliableFill := volmath.Mul(
		volmath.Binarize(
			volmath.Threshold(smoothedWeight, f.CoverageCutoff, ""), ""),
		lesion, "reliable_fill_mask")

	filled := volmath.Add(
		volmath.Add(volmath.Mul(reliableFill, filler, ""), nonLesion, ""),
		filledInLesion, name)

	return filled, volmath.CountDegenerate(filledInLesion)
}
