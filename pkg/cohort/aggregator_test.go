package cohort

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gbss/internal/models"
)

func testGrid(w, h, d int) models.Grid {
	var g models.Grid
	g.Width, g.Height, g.Depth = w, h, d
	g.VoxelSize.X, g.VoxelSize.Y, g.VoxelSize.Z = 1, 1, 1
	return g
}

// touchCohort creates empty volume files for the given subjects, one per
// modality, in dir.
func touchCohort(t *testing.T, dir string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		for _, mod := range models.Modalities {
			name := fmt.Sprintf("%s_%s.nii", id, mod)
			if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
				t.Fatalf("failed to create %s: %v", name, err)
			}
		}
	}
}

func fakeLoader(g models.Grid) Loader {
	return func(path string) (*models.Volume, error) {
		return models.NewVolume(g, filepath.Base(path)), nil
	}
}

func TestDiscoverSubjectsNumericOrder(t *testing.T) {
	dir := t.TempDir()
	touchCohort(t, dir, "sub10", "sub2", "sub1")
	// Files that do not follow the naming convention are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "template.nii"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	subjects, err := NewAggregator(dir, nil).DiscoverSubjects()
	if err != nil {
		t.Fatalf("DiscoverSubjects failed: %v", err)
	}

	var got []string
	for _, s := range subjects {
		got = append(got, s.ID)
	}
	want := []string{"sub1", "sub2", "sub10"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("subject order %v, want %v", got, want)
	}

	for _, s := range subjects {
		for _, mod := range models.Modalities {
			path, ok := s.Files[mod]
			if !ok {
				t.Fatalf("subject %s has no %s file", s.ID, mod)
			}
			if wantName := fmt.Sprintf("%s_%s.nii", s.ID, mod); filepath.Base(path) != wantName {
				t.Errorf("subject %s %s file %s, want %s", s.ID, mod, filepath.Base(path), wantName)
			}
		}
	}
}

func TestDiscoverSubjectsGzipSuffix(t *testing.T) {
	dir := t.TempDir()
	for _, mod := range models.Modalities {
		name := fmt.Sprintf("case7_%s.nii.gz", mod)
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	subjects, err := NewAggregator(dir, nil).DiscoverSubjects()
	if err != nil {
		t.Fatalf("DiscoverSubjects failed: %v", err)
	}
	if len(subjects) != 1 || subjects[0].ID != "case7" {
		t.Errorf("got subjects %v, want one subject case7", subjects)
	}
}

func TestDiscoverSubjectsMissingModality(t *testing.T) {
	dir := t.TempDir()
	touchCohort(t, dir, "sub1")
	if err := os.Remove(filepath.Join(dir, "sub1_ICVF.nii")); err != nil {
		t.Fatal(err)
	}

	_, err := NewAggregator(dir, nil).DiscoverSubjects()
	if err == nil {
		t.Fatal("expected error for a subject missing a modality")
	}
	if !strings.Contains(err.Error(), "ICVF") {
		t.Errorf("error %q does not name the missing modality", err)
	}
}

func TestDiscoverSubjectsEmptyDir(t *testing.T) {
	if _, err := NewAggregator(t.TempDir(), nil).DiscoverSubjects(); err == nil {
		t.Fatal("expected error for an empty input directory")
	}
}

func TestBuildStacksPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	touchCohort(t, dir, "sub3", "sub1", "sub2")

	agg := NewAggregator(dir, fakeLoader(testGrid(4, 4, 4)))
	subjects, err := agg.DiscoverSubjects()
	if err != nil {
		t.Fatalf("DiscoverSubjects failed: %v", err)
	}

	stacks, err := agg.BuildStacks(subjects)
	if err != nil {
		t.Fatalf("BuildStacks failed: %v", err)
	}

	for _, mod := range models.Modalities {
		stack := stacks[mod]
		if stack.Len() != 3 {
			t.Fatalf("%s stack has %d subjects, want 3", mod, stack.Len())
		}
		for i, id := range []string{"sub1", "sub2", "sub3"} {
			want := fmt.Sprintf("%s_%s.nii", id, mod)
			if stack.Volumes[i].Name != want {
				t.Errorf("%s stack slot %d holds %s, want %s", mod, i, stack.Volumes[i].Name, want)
			}
		}
	}
}

func TestBuildStacksShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	touchCohort(t, dir, "sub1", "sub2")

	load := func(path string) (*models.Volume, error) {
		g := testGrid(4, 4, 4)
		if strings.HasPrefix(filepath.Base(path), "sub2") {
			g = testGrid(5, 4, 4)
		}
		return models.NewVolume(g, filepath.Base(path)), nil
	}

	agg := NewAggregator(dir, load)
	subjects, err := agg.DiscoverSubjects()
	if err != nil {
		t.Fatalf("DiscoverSubjects failed: %v", err)
	}

	_, err = agg.BuildStacks(subjects)
	var mismatch *models.ShapeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("got %T (%v), want ShapeMismatchError", err, err)
	}
	if mismatch.Got.Width != 5 {
		t.Errorf("mismatch reports width %d, want 5", mismatch.Got.Width)
	}
}

func TestBuildStacksLoadFailure(t *testing.T) {
	dir := t.TempDir()
	touchCohort(t, dir, "sub1")

	load := func(path string) (*models.Volume, error) {
		return nil, fmt.Errorf("corrupt header")
	}

	agg := NewAggregator(dir, load)
	subjects, err := agg.DiscoverSubjects()
	if err != nil {
		t.Fatalf("DiscoverSubjects failed: %v", err)
	}
	if _, err := agg.BuildStacks(subjects); err == nil {
		t.Fatal("expected load error to propagate")
	}
}

func TestValidateStacks(t *testing.T) {
	g := testGrid(4, 4, 4)
	stacks := make(map[models.Modality]*models.CohortStack)
	for _, mod := range models.Modalities {
		stack := models.NewCohortStack(mod, "all_"+mod.String())
		for i := 0; i < 2; i++ {
			stack.Volumes = append(stack.Volumes, models.NewVolume(g, "v"))
		}
		stacks[mod] = stack
	}
	if err := ValidateStacks(stacks); err != nil {
		t.Fatalf("ValidateStacks failed on a consistent cohort: %v", err)
	}

	t.Run("subject count mismatch", func(t *testing.T) {
		stacks[models.FA].Volumes = stacks[models.FA].Volumes[:1]
		if err := ValidateStacks(stacks); err == nil {
			t.Fatal("expected error for unequal subject counts")
		}
		stacks[models.FA].Volumes = append(stacks[models.FA].Volumes, models.NewVolume(g, "v"))
	})

	t.Run("grid mismatch", func(t *testing.T) {
		stacks[models.ODI].Volumes[1] = models.NewVolume(testGrid(3, 4, 4), "odd")
		var mismatch *models.ShapeMismatchError
		if err := ValidateStacks(stacks); !errors.As(err, &mismatch) {
			t.Fatalf("got %v, want ShapeMismatchError", err)
		}
	})
}
