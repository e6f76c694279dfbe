// Package pipeline wires the five GBSS stages together: cohort
// validation, skeleton construction, projection, lesion detection and
// lesion filling. Data flows strictly forward; every stage's output is
// complete and read-only before the next stage starts.
package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"gbss/internal/models"
	"gbss/pkg/cohort"
	"gbss/pkg/lesion"
	"gbss/pkg/skeleton"
)

// ArtifactSink receives per-stage QA artifacts. File-format handling
// stays behind this interface so the pipeline itself never touches disk.
type ArtifactSink interface {
	SaveVolume(stage string, vol *models.Volume) error
	SaveStack(stage string, stack *models.CohortStack) error
	SaveVector(stage, name string, values []float64) error
}

// discardSink drops all artifacts.
type discardSink struct{}

func (discardSink) SaveVolume(string, *models.Volume) error           { return nil }
func (discardSink) SaveStack(string, *models.CohortStack) error       { return nil }
func (discardSink) SaveVector(string, string, []float64) error        { return nil }

// Params holds the pipeline configuration.
type Params struct {
	// GMMaskCutoff is the low cutoff on the mean grey-matter map.
	GMMaskCutoff float64

	// SkeletonThreshold is the grey-matter/skeleton threshold (thresh).
	SkeletonThreshold float64

	// ConsistencyFraction is the fraction-of-subjects cutoff for the
	// group consistency mask (perc).
	ConsistencyFraction float64

	// DiffusionLesionCutoff is the ICVF/FA lesion cutoff.
	DiffusionLesionCutoff float64

	// FillSigma is the Gaussian width for normalized-convolution filling.
	FillSigma float64

	// FillCoverageCutoff is the minimum smoothed coverage for a reliable
	// fill.
	FillCoverageCutoff float64

	// NumCores bounds per-subject parallelism.
	NumCores int

	// Verbose enables stage progress output.
	Verbose bool

	// Sink receives intermediary QA artifacts; nil discards them.
	Sink ArtifactSink
}

// FilledModalities are the stacks the filler reconstructs, in output
// order.
var FilledModalities = []models.Modality{models.ICVF, models.ODI, models.FA}

// Results collects every stage's output plus run-level QA metrics.
type Results struct {
	// Context is the skeleton context (mean GM, masks, distance field).
	Context *skeleton.Context

	// Projections holds the four skeletonized cohort stacks.
	Projections map[models.Modality]*models.CohortStack

	// Detection is the lesion detector output, including the combined
	// lesion stack reused across modalities.
	Detection *lesion.Detection

	// Filled holds the terminal filled stacks for ICVF, ODI and FA.
	Filled map[models.Modality]*models.CohortStack

	// DegenerateCounts reports, per modality and subject, lesion voxels
	// whose fill divided by a zero coverage weight.
	DegenerateCounts map[models.Modality][]int

	// SkeletonVoxels is the thresholded skeleton size.
	SkeletonVoxels int

	// LesionLoadMean and LesionLoadStdDev summarize the per-subject
	// lesion fractions across the cohort.
	LesionLoadMean   float64
	LesionLoadStdDev float64
}

// Pipeline runs the full GBSS computation over in-memory cohort stacks.
type Pipeline struct {
	params *Params
	sink   ArtifactSink
}

// New creates a pipeline with the provided parameters.
func New(params *Params) *Pipeline {
	sink := params.Sink
	if sink == nil {
		sink = discardSink{}
	}
	return &Pipeline{params: params, sink: sink}
}

// Run executes stages 1..5 over the four modality stacks and returns the
// collected results. A failed stage aborts the run; numeric edge cases in
// filling are masked and counted, never fatal.
func (p *Pipeline) Run(stacks map[models.Modality]*models.CohortStack) (*Results, error) {
	p.logf("Step 1: Validating cohort stacks...")
	if err := cohort.ValidateStacks(stacks); err != nil {
		return nil, fmt.Errorf("cohort validation failed: %w", err)
	}
	gm := stacks[models.GM]
	p.logf("Cohort: %d subjects on grid %s", gm.Len(), gm.Grid())

	p.logf("Step 2: Building group grey-matter skeleton...")
	builder := skeleton.NewBuilder(p.params.GMMaskCutoff, p.params.SkeletonThreshold, p.params.ConsistencyFraction)
	ctx, err := builder.Build(gm)
	if err != nil {
		return nil, fmt.Errorf("skeleton construction failed: %w", err)
	}
	skelVoxels := ctx.SkelThreshMask.CountNonzero()
	p.logf("Skeleton: %d voxels above %.2f", skelVoxels, p.params.SkeletonThreshold)
	p.saveVolume("02_skeleton", ctx.MeanGM)
	p.saveVolume("02_skeleton", ctx.GMMask)
	p.saveVolume("02_skeleton", ctx.Skel)
	p.saveVolume("02_skeleton", ctx.SkelThreshMask)
	p.saveVolume("02_skeleton", ctx.Distance)

	p.logf("Step 3: Projecting cohort data onto the skeleton...")
	engine := skeleton.NewEngine(ctx, p.params.NumCores)
	projections := make(map[models.Modality]*models.CohortStack, len(models.Modalities))
	for _, mod := range models.Modalities {
		// GM projects itself; the diffusion modalities ride the
		// grey-matter ridge and sample their own values.
		proj, err := engine.ProjectStack(gm, stacks[mod], fmt.Sprintf("all_%s_skeletonised", mod))
		if err != nil {
			return nil, fmt.Errorf("projection of %s failed: %w", mod, err)
		}
		projections[mod] = proj
		p.saveStack("03_projection", proj)
	}

	p.logf("Step 4: Detecting lesion voxels...")
	detector := lesion.NewDetector(p.params.SkeletonThreshold, p.params.ConsistencyFraction, p.params.DiffusionLesionCutoff)
	detection, err := detector.Detect(ctx, projections[models.GM], projections[models.ICVF], projections[models.FA])
	if err != nil {
		return nil, fmt.Errorf("lesion detection failed: %w", err)
	}
	p.saveVolume("04_lesion", detection.Consistency)
	p.saveVolume("04_lesion", detection.SkelThreshInv)
	p.saveStack("04_lesion", detection.AllLesion)
	p.saveVector("04_lesion", "lesion_mean", detection.LesionMeans)

	p.logf("Step 5: Filling lesion voxels...")
	filler := lesion.NewFiller(p.params.FillSigma, p.params.FillCoverageCutoff, p.params.NumCores)

	type fillResult struct {
		mod models.Modality
		res *lesion.FillResult
		err error
	}
	resultChan := make(chan fillResult)

	// The three fills are independent given the shared lesion stack and
	// their own projections, so they run as parallel tasks over read-only
	// inputs.
	for _, mod := range FilledModalities {
		go func(mod models.Modality) {
			res, err := filler.FillStack(projections[mod], detection.AllLesion)
			resultChan <- fillResult{mod: mod, res: res, err: err}
		}(mod)
	}

	filled := make(map[models.Modality]*models.CohortStack, len(FilledModalities))
	degenerate := make(map[models.Modality][]int, len(FilledModalities))
	for range FilledModalities {
		r := <-resultChan
		if r.err != nil {
			return nil, fmt.Errorf("filling of %s failed: %w", r.mod, r.err)
		}
		filled[r.mod] = r.res.Filled
		degenerate[r.mod] = r.res.DegenerateCounts
	}
	for _, mod := range FilledModalities {
		p.saveStack("05_filled", filled[mod])
	}

	results := &Results{
		Context:          ctx,
		Projections:      projections,
		Detection:        detection,
		Filled:           filled,
		DegenerateCounts: degenerate,
		SkeletonVoxels:   skelVoxels,
		LesionLoadMean:   stat.Mean(detection.LesionMeans, nil),
	}
	if len(detection.LesionMeans) > 1 {
		results.LesionLoadStdDev = stat.StdDev(detection.LesionMeans, nil)
	}
	return results, nil
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.params.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}

func (p *Pipeline) saveVolume(stage string, vol *models.Volume) {
	if err := p.sink.SaveVolume(stage, vol); err != nil {
		fmt.Printf("Warning: failed to save %s artifact %s: %v\n", stage, vol.Name, err)
	}
}

func (p *Pipeline) saveStack(stage string, stack *models.CohortStack) {
	if err := p.sink.SaveStack(stage, stack); err != nil {
		fmt.Printf("Warning: failed to save %s stack: %v\n", stage, err)
	}
}

func (p *Pipeline) saveVector(stage, name string, values []float64) {
	if err := p.sink.SaveVector(stage, name, values); err != nil {
		fmt.Printf("Warning: failed to save %s vector %s: %v\n", stage, name, err)
	}
}
