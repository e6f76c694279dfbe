// Package skeleton builds the group-representative grey-matter skeleton
// and projects per-subject volumes onto it. It provides the two primitive
// operations the pipeline treats as black boxes, ridge extraction and the
// Euclidean distance transform, plus the builder and projection engine
// that consume them.
package skeleton

import (
	"gbss/internal/models"
	"gbss/pkg/volmath"
)

// Context is the skeleton context handed to the projection engine and the
// lesion detector: the group mean map, its masks, the distance field
// steering the projection search, and the thresholds the run was built
// with. All volumes are fully computed and treated as read-only once the
// context is returned.
type Context struct {
	MeanGM         *models.Volume
	GMMask         *models.Volume
	Skel           *models.Volume
	SkelMask       *models.Volume
	SkelThreshMask *models.Volume
	Distance       *models.Volume
	SearchGuide    *models.Volume

	// Thresh is the grey-matter/skeleton threshold, Perc the
	// fraction-of-subjects cutoff for the group consistency mask.
	Thresh float64
	Perc   float64
}

// Builder computes a skeleton Context from a grey-matter cohort stack.
type Builder struct {
	// GMMaskCutoff is the low cutoff applied to the mean grey-matter map.
	GMMaskCutoff float64

	// Thresh is the skeleton threshold.
	Thresh float64

	// Perc is the group-consistency fraction carried into the context.
	Perc float64
}

// NewBuilder returns a builder with the given thresholds.
func NewBuilder(gmMaskCutoff, thresh, perc float64) *Builder {
	return &Builder{GMMaskCutoff: gmMaskCutoff, Thresh: thresh, Perc: perc}
}

// Build derives the skeleton context from the grey-matter stack.
//
// Steps, in order: mean GM, mask at the low cutoff, ridge extraction,
// raw and thresholded skeleton masks, the (-GMMask - 1) + skelThreshMask
// distance seed, the distance field, and a zero search-guide volume.
// Returns EmptySkeletonError when thresholding leaves no skeleton voxels.
func (b *Builder) Build(gm *models.CohortStack) (*Context, error) {
	meanGM := volmath.MeanOverSubjects(gm, "mean_GM")
	gmMask := volmath.Binarize(
		volmath.Threshold(meanGM, b.GMMaskCutoff, "mean_GM_thr"), "mean_GM_mask")

	skel := Skeletonize(meanGM, b.GMMaskCutoff, "mean_GM_skeleton")
	skelMask := volmath.Binarize(skel, "mean_GM_skeleton_mask")
	skelThreshMask := volmath.Binarize(
		volmath.Threshold(skel, b.Thresh, "mean_GM_skeleton_thr"),
		"mean_GM_skeleton_mask_thr")

	if skelThreshMask.CountNonzero() == 0 {
		return nil, &models.EmptySkeletonError{Threshold: b.Thresh}
	}

	// seed = (-GMMask - 1) + skelThreshMask: -2 inside grey matter off the
	// skeleton, -1 outside the mask and on the thresholded skeleton. The
	// distance transform measures interior voxels against the -1 set.
	seed := volmath.Add(
		volmath.AddScalar(volmath.Scale(gmMask, -1, ""), -1, ""),
		skelThreshMask, "mean_GM_skeleton_mask_dst_seed")
	dist := DistanceTransform(seed, "mean_GM_skeleton_mask_dst")

	guide := models.NewVolume(meanGM.Grid, "search_guide")

	return &Context{
		MeanGM:         meanGM,
		GMMask:         gmMask,
		Skel:           skel,
		SkelMask:       skelMask,
		SkelThreshMask: skelThreshMask,
		Distance:       dist,
		SearchGuide:    guide,
		Thresh:         b.Thresh,
		Perc:           b.Perc,
	}, nil
}
