package skeleton

import (
	"testing"

	"gbss/internal/models"
)

func TestProjectStackSamplesValueAtRidgeMax(t *testing.T) {
	// Group skeleton: the x=4 plane of a tent-shaped mean map. One
	// subject whose own grey matter peaks off-skeleton at x=2; its
	// modality volume carries a marker value there. The projection must
	// walk the perpendicular search line and sample the marker.
	g := grid(9, 9, 9)
	mean := models.NewCohortStack(models.GM, "all_GM")
	mean.Volumes = append(mean.Volumes, tentVolume(g))

	ctx, err := NewBuilder(0.05, 0.45, 0.7).Build(mean)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ridge := models.NewVolume(g, "subj_gm")
	value := models.NewVolume(g, "subj_icvf")
	for z := 0; z < 9; z++ {
		for y := 0; y < 9; y++ {
			for x := 0; x < 9; x++ {
				if x == 2 {
					ridge.Set(x, y, z, 0.9)
					value.Set(x, y, z, 7.7)
				} else {
					ridge.Set(x, y, z, 0.2)
					value.Set(x, y, z, 0.2)
				}
			}
		}
	}
	ridgeStack := models.NewCohortStack(models.GM, "all_GM")
	ridgeStack.Volumes = append(ridgeStack.Volumes, ridge)
	valueStack := models.NewCohortStack(models.ICVF, "all_ICVF")
	valueStack.Volumes = append(valueStack.Volumes, value)

	proj, err := NewEngine(ctx, 2).ProjectStack(ridgeStack, valueStack, "all_ICVF_skeletonised")
	if err != nil {
		t.Fatalf("ProjectStack failed: %v", err)
	}
	out := proj.Volumes[0]

	for z := 1; z < 8; z++ {
		for y := 1; y < 8; y++ {
			if got := out.At(4, y, z); got != 7.7 {
				t.Fatalf("skeleton voxel (4,%d,%d): got %v, want 7.7", y, z, got)
			}
		}
	}
	// Non-skeleton voxels stay zero.
	for z := 0; z < 9; z++ {
		for y := 0; y < 9; y++ {
			for x := 0; x < 9; x++ {
				if x != 4 && out.At(x, y, z) != 0 {
					t.Fatalf("off-skeleton voxel (%d,%d,%d): got %v, want 0", x, y, z, out.At(x, y, z))
				}
			}
		}
	}
}

func TestProjectStackSelfProjection(t *testing.T) {
	// GM self-projection: ridge source and value source are the same
	// stack, so skeleton voxels receive the subject's ridge maximum.
	g := grid(9, 9, 9)
	mean := models.NewCohortStack(models.GM, "all_GM")
	mean.Volumes = append(mean.Volumes, tentVolume(g))

	ctx, err := NewBuilder(0.05, 0.45, 0.7).Build(mean)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	subj := tentVolume(g)
	stack := models.NewCohortStack(models.GM, "all_GM")
	stack.Volumes = append(stack.Volumes, subj)

	proj, err := NewEngine(ctx, 1).ProjectStack(stack, stack, "all_GM_skeletonised")
	if err != nil {
		t.Fatalf("ProjectStack failed: %v", err)
	}

	for z := 0; z < 9; z++ {
		for y := 0; y < 9; y++ {
			if got := proj.Volumes[0].At(4, y, z); got != 0.5 {
				t.Fatalf("skeleton voxel (4,%d,%d): got %v, want 0.5", y, z, got)
			}
		}
	}
}

func TestProjectStackSubjectCountMismatch(t *testing.T) {
	g := grid(5, 5, 5)
	mean := uniformStack(g, 2, 1.0)

	ctx, err := NewBuilder(0.2, 0.65, 0.7).Build(mean)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	one := uniformStack(g, 1, 1.0)
	two := uniformStack(g, 2, 1.0)
	if _, err := NewEngine(ctx, 1).ProjectStack(one, two, "mismatch"); err == nil {
		t.Fatal("expected error on subject count mismatch")
	}
}
