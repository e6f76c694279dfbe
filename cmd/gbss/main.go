package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"time"

	"gbss/internal/models"
	"gbss/pkg/cohort"
	"gbss/pkg/config"
	"gbss/pkg/pipeline"
	"gbss/pkg/visualization"

	gbssio "gbss/internal/io"
)

// npySink writes intermediary pipeline artifacts as .npy files grouped by
// stage under a base directory.
type npySink struct {
	baseDir string
}

func (s *npySink) SaveVolume(stage string, vol *models.Volume) error {
	return gbssio.VolumeToNpy(filepath.Join(s.baseDir, stage, vol.Name+".npy"), vol)
}

func (s *npySink) SaveStack(stage string, stack *models.CohortStack) error {
	return gbssio.StackToNpy(filepath.Join(s.baseDir, stage, stack.Name+".npy"), stack)
}

func (s *npySink) SaveVector(stage, name string, values []float64) error {
	return gbssio.VectorToNpy(filepath.Join(s.baseDir, stage, name+".npy"), values)
}

func main() {
	inputDir := flag.String("input", "", "Directory containing per-subject volumes named <subject>_<MOD>.nii[.gz]")
	outputDir := flag.String("output", "gbss_output", "Directory for final filled stacks and QA artifacts")
	configPath := flag.String("config", "gbss.yaml", "Path to YAML configuration file")
	thresh := flag.Float64("thresh", -1, "Grey-matter/skeleton threshold (overrides config)")
	perc := flag.Float64("perc", -1, "Fraction-of-subjects cutoff for the consistency mask (overrides config)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: config value or all available)")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save per-stage intermediary artifacts")
	intermediaryDir := flag.String("intermediary-dir", "", "Directory for intermediary artifacts (overrides config)")
	saveSlices := flag.Bool("save-slices", false, "Save axial QA slice sheets of skeleton and lesion volumes")
	flag.Parse()

	if *inputDir == "" {
		flag.Usage()
		log.Fatal("missing -input directory")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *thresh >= 0 {
		cfg.Thresholds.SkeletonThreshold = *thresh
	}
	if *perc >= 0 {
		cfg.Thresholds.ConsistencyFraction = *perc
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if cfg.Processing.NumCores <= 0 {
		cfg.Processing.NumCores = runtime.NumCPU()
	}
	if *saveIntermediary {
		cfg.Output.SaveIntermediaryResults = true
	}
	if *intermediaryDir != "" {
		cfg.Output.IntermediaryDir = *intermediaryDir
	}

	fmt.Println("================================")
	fmt.Println("GBSS: GREY-MATTER-BASED SPATIAL STATISTICS")
	fmt.Println("Skeleton projection, lesion detection and lesion filling")
	fmt.Println("================================")

	// Stage 1: discover and stack the cohort.
	aggregator := cohort.NewAggregator(*inputDir, gbssio.LoadVolume)
	subjects, err := aggregator.DiscoverSubjects()
	if err != nil {
		log.Fatalf("Cohort discovery failed: %v", err)
	}
	fmt.Printf("Found %d subjects:\n", len(subjects))
	for _, subj := range subjects {
		fmt.Printf("  %s\n", subj.ID)
	}

	stacks, err := aggregator.BuildStacks(subjects)
	if err != nil {
		log.Fatalf("Cohort aggregation failed: %v", err)
	}

	params := &pipeline.Params{
		GMMaskCutoff:          cfg.Thresholds.GMMaskCutoff,
		SkeletonThreshold:     cfg.Thresholds.SkeletonThreshold,
		ConsistencyFraction:   cfg.Thresholds.ConsistencyFraction,
		DiffusionLesionCutoff: cfg.Thresholds.DiffusionLesionCutoff,
		FillSigma:             cfg.Filling.Sigma,
		FillCoverageCutoff:    cfg.Filling.CoverageCutoff,
		NumCores:              cfg.Processing.NumCores,
		Verbose:               cfg.Output.Verbose,
	}
	if cfg.Output.SaveIntermediaryResults {
		params.Sink = &npySink{baseDir: cfg.Output.IntermediaryDir}
	}

	startTime := time.Now()
	results, err := pipeline.New(params).Run(stacks)
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	elapsed := time.Since(startTime)

	// The first GM input carries the header every output copies.
	template := subjects[0].Files[models.GM]

	if err := gbssio.SaveVolume(filepath.Join(*outputDir, "mean_GM_skeleton.nii"), template, results.Context.Skel); err != nil {
		log.Fatalf("Failed to save skeleton: %v", err)
	}
	if err := gbssio.SaveStack(filepath.Join(*outputDir, "all_lesion.nii"), template, results.Detection.AllLesion); err != nil {
		log.Fatalf("Failed to save lesion stack: %v", err)
	}
	for _, mod := range pipeline.FilledModalities {
		stack := results.Filled[mod]
		path := filepath.Join(*outputDir, stack.Name+".nii")
		if err := gbssio.SaveStack(path, template, stack); err != nil {
			log.Fatalf("Failed to save filled %s stack: %v", mod, err)
		}
		fmt.Printf("Saved %s\n", path)
	}
	if err := gbssio.VectorToNpy(filepath.Join(*outputDir, "lesion_mean.npy"), results.Detection.LesionMeans); err != nil {
		log.Fatalf("Failed to save lesion means: %v", err)
	}

	if *saveSlices {
		fmt.Println("Saving QA slice sheets...")
		qa := map[string]*models.Volume{
			"mean_GM":          results.Context.MeanGM,
			"mean_GM_skeleton": results.Context.Skel,
			"consistency_mask": results.Detection.Consistency,
		}
		for name, vol := range qa {
			dir := filepath.Join(*outputDir, "qa_slices", name)
			if err := visualization.NewViewer(vol).SaveSliceSequence("z", dir); err != nil {
				log.Printf("Warning: failed to save QA slices for %s: %v", name, err)
			}
		}
	}

	fmt.Printf("\nPipeline completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("=======================================\n")
	fmt.Printf("Subjects: %d\n", len(subjects))
	fmt.Printf("Skeleton voxels (>= %.2f): %d\n", cfg.Thresholds.SkeletonThreshold, results.SkeletonVoxels)
	fmt.Printf("Lesion load: mean %.4f, stddev %.4f\n", results.LesionLoadMean, results.LesionLoadStdDev)
	for _, mod := range pipeline.FilledModalities {
		total := 0
		for _, n := range results.DegenerateCounts[mod] {
			total += n
		}
		fmt.Printf("%s degenerate fill voxels (masked by coverage cutoff): %d\n", mod, total)
	}
	fmt.Printf("Outputs written to: %s\n", *outputDir)
}
