// Package lesion flags skeleton voxels whose projection is unreliable and
// reconstructs them by normalized-convolution interpolation.
package lesion

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"gbss/internal/models"
	"gbss/pkg/skeleton"
	"gbss/pkg/volmath"
)

// Detector derives per-subject lesion masks from skeleton projections.
type Detector struct {
	// Thresh is the grey-matter validity threshold for projected values.
	Thresh float64

	// Perc is the fraction of subjects that must exceed Thresh for a
	// voxel to count as consistently grey matter across the cohort.
	Perc float64

	// DiffusionCutoff is the lesion cutoff for ICVF and FA projections.
	// It equals the default Thresh numerically but is tuned independently.
	DiffusionCutoff float64
}

// NewDetector returns a detector with the given thresholds.
func NewDetector(thresh, perc, diffusionCutoff float64) *Detector {
	return &Detector{Thresh: thresh, Perc: perc, DiffusionCutoff: diffusionCutoff}
}

// Detection holds the detector's outputs: the combined lesion stack used
// for filling every modality, plus QA artifacts.
type Detection struct {
	// Consistency marks voxels where at least Perc of subjects project
	// grey matter above Thresh.
	Consistency *models.Volume

	// SkelThreshInv marks raw-skeleton voxels below the grey-matter
	// threshold; these are lesioned for every subject.
	SkelThreshInv *models.Volume

	// AllLesion is the per-subject combined lesion stack: grey-matter
	// unreliability plus the global skeleton exclusion. This one stack is
	// reused to fill GM, ICVF, FA and ODI alike, keeping the trustworthy
	// voxel set spatially consistent across modalities.
	AllLesion *models.CohortStack

	// LesionMeans is the per-subject mean of AllLesion, for QA reporting.
	LesionMeans []float64

	// ICVFLesionCounts and FALesionCounts are per-subject flagged-voxel
	// counts under the diffusion cutoff, reported but not used for filling.
	ICVFLesionCounts []int
	FALesionCounts   []int
}

// Detect computes the combined lesion stack from the projected cohorts.
// gmProj drives the lesion decision; icvfProj and faProj contribute QA
// counts only.
func (d *Detector) Detect(ctx *skeleton.Context, gmProj, icvfProj, faProj *models.CohortStack) (*Detection, error) {
	n := gmProj.Len()
	if icvfProj.Len() != n || faProj.Len() != n {
		return nil, fmt.Errorf("lesion detection: subject counts disagree (GM %d, ICVF %d, FA %d)",
			n, icvfProj.Len(), faProj.Len())
	}

	// Group consistency: binarize each subject's projection at Thresh,
	// average over subjects, binarize the fraction at Perc.
	aboveThresh := models.NewCohortStack(models.GM, "all_GM_above_thr")
	for i, vol := range gmProj.Volumes {
		aboveThresh.Volumes = append(aboveThresh.Volumes,
			volmath.BinarizeAbove(vol, d.Thresh, fmt.Sprintf("GM_above_thr_subj%03d", i)))
	}
	fraction := volmath.MeanOverSubjects(aboveThresh, "GM_consistency_fraction")
	consistency := volmath.BinarizeAbove(fraction, d.Perc, "group_consistency_mask")

	// Raw-skeleton voxels that failed the grey-matter threshold are
	// excluded globally.
	skelThreshInv := volmath.Sub(ctx.SkelMask, ctx.SkelThreshMask, "skeleton_thr_inv")

	allLesion := models.NewCohortStack(models.GM, "all_lesion")
	lesionMeans := make([]float64, n)
	icvfCounts := make([]int, n)
	faCounts := make([]int, n)

	for i := 0; i < n; i++ {
		// Upper-threshold-then-invert convention: a voxel is lesioned
		// where the consistency-masked projection fails to rise above the
		// threshold, zero-valued voxels included.
		gmLesion := volmath.BinarizeAtOrBelow(
			volmath.Mul(gmProj.Volumes[i], consistency, ""),
			d.Thresh, fmt.Sprintf("GM_lesion_subj%03d", i))

		combined := volmath.Binarize(
			volmath.Add(gmLesion, skelThreshInv, ""),
			fmt.Sprintf("all_lesion_subj%03d", i))
		allLesion.Volumes = append(allLesion.Volumes, combined)
		lesionMeans[i] = stat.Mean(combined.Data, nil)

		icvfCounts[i] = volmath.BinarizeAtOrBelow(
			volmath.Mul(icvfProj.Volumes[i], consistency, ""),
			d.DiffusionCutoff, "").CountNonzero()
		faCounts[i] = volmath.BinarizeAtOrBelow(
			volmath.Mul(faProj.Volumes[i], consistency, ""),
			d.DiffusionCutoff, "").CountNonzero()
	}

	return &Detection{
		Consistency:      consistency,
		SkelThreshInv:    skelThreshInv,
		AllLesion:        allLesion,
		LesionMeans:      lesionMeans,
		ICVFLesionCounts: icvfCounts,
		FALesionCounts:   faCounts,
	}, nil
}
