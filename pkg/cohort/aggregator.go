// Package cohort discovers per-subject volume files and stacks them into
// 4D cohort arrays with a fixed, consistent subject ordering across
// modalities.
package cohort

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gbss/internal/models"
)

// Subject pairs a subject identifier with its per-modality volume files.
type Subject struct {
	ID    string
	Files map[models.Modality]string
}

// Loader reads one volume file. Injected so that file-format handling
// stays at the repository boundary.
type Loader func(path string) (*models.Volume, error)

// Aggregator builds per-modality cohort stacks from a working directory
// of pre-registered subject volumes named <subject>_<MOD>.nii[.gz].
type Aggregator struct {
	// InputDir is the directory containing the per-subject volumes.
	InputDir string

	// Load reads a single volume file.
	Load Loader
}

// NewAggregator returns an aggregator over the given directory.
func NewAggregator(inputDir string, load Loader) *Aggregator {
	return &Aggregator{InputDir: inputDir, Load: load}
}

// DiscoverSubjects scans the input directory and returns the cohort in a
// fixed order: subjects sorted by the numeric part of their identifier,
// identifiers without one following in lexical order. Every subject must
// provide all four modalities.
func (a *Aggregator) DiscoverSubjects() ([]Subject, error) {
	entries, err := os.ReadDir(a.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}

	bySubject := make(map[string]map[models.Modality]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, mod, ok := parseVolumeName(entry.Name())
		if !ok {
			continue
		}
		if bySubject[id] == nil {
			bySubject[id] = make(map[models.Modality]string)
		}
		bySubject[id][mod] = filepath.Join(a.InputDir, entry.Name())
	}

	if len(bySubject) == 0 {
		return nil, fmt.Errorf("no subject volumes found in %s", a.InputDir)
	}

	subjects := make([]Subject, 0, len(bySubject))
	for id, files := range bySubject {
		for _, mod := range models.Modalities {
			if _, ok := files[mod]; !ok {
				return nil, fmt.Errorf("subject %s is missing a %s volume", id, mod)
			}
		}
		subjects = append(subjects, Subject{ID: id, Files: files})
	}

	// Sort by the numeric part of the identifier so that slice order
	// matches the anatomical-cohort convention used at acquisition time.
	sort.Slice(subjects, func(i, j int) bool {
		ni, iOK := extractNumber(subjects[i].ID)
		nj, jOK := extractNumber(subjects[j].ID)
		if iOK && jOK && ni != nj {
			return ni < nj
		}
		if iOK != jOK {
			return iOK
		}
		return subjects[i].ID < subjects[j].ID
	})

	return subjects, nil
}

// BuildStacks loads every subject volume and assembles one cohort stack
// per modality, preserving subject order. The first loaded volume defines
// the cohort reference grid; any disagreement is a ShapeMismatchError.
func (a *Aggregator) BuildStacks(subjects []Subject) (map[models.Modality]*models.CohortStack, error) {
	stacks := make(map[models.Modality]*models.CohortStack, len(models.Modalities))
	for _, mod := range models.Modalities {
		stacks[mod] = models.NewCohortStack(mod, "all_"+mod.String())
	}

	var refGrid models.Grid
	haveRef := false

	for _, subj := range subjects {
		for _, mod := range models.Modalities {
			vol, err := a.Load(subj.Files[mod])
			if err != nil {
				return nil, fmt.Errorf("failed to load %s volume for subject %s: %w", mod, subj.ID, err)
			}
			if !haveRef {
				refGrid = vol.Grid
				haveRef = true
			} else if !vol.Grid.Equal(refGrid) {
				return nil, &models.ShapeMismatchError{
					Stage:  "cohort aggregation",
					Volume: vol.Name,
					Want:   refGrid,
					Got:    vol.Grid,
				}
			}
			stacks[mod].Volumes = append(stacks[mod].Volumes, vol)
		}
	}

	return stacks, nil
}

// ValidateStacks checks that pre-built stacks (e.g. assembled in memory by
// tests or callers that bypass file discovery) agree on subject count and
// grid.
func ValidateStacks(stacks map[models.Modality]*models.CohortStack) error {
	gm, ok := stacks[models.GM]
	if !ok || gm.Len() == 0 {
		return fmt.Errorf("cohort has no grey-matter volumes")
	}
	refGrid := gm.Grid()

	for _, mod := range models.Modalities {
		stack, ok := stacks[mod]
		if !ok {
			return fmt.Errorf("cohort is missing the %s stack", mod)
		}
		if stack.Len() != gm.Len() {
			return fmt.Errorf("%s stack has %d subjects, GM stack has %d",
				mod, stack.Len(), gm.Len())
		}
		for _, vol := range stack.Volumes {
			if !vol.Grid.Equal(refGrid) {
				return &models.ShapeMismatchError{
					Stage:  "cohort validation",
					Volume: vol.Name,
					Want:   refGrid,
					Got:    vol.Grid,
				}
			}
		}
	}
	return nil
}

// parseVolumeName splits <subject>_<MOD>.nii[.gz] into its parts.
func parseVolumeName(name string) (id string, mod models.Modality, ok bool) {
	var base string
	switch {
	case strings.HasSuffix(name, ".nii.gz"):
		base = strings.TrimSuffix(name, ".nii.gz")
	case strings.HasSuffix(name, ".nii"):
		base = strings.TrimSuffix(name, ".nii")
	default:
		return "", 0, false
	}
	underscore := strings.LastIndex(base, "_")
	if underscore < 1 {
		return "", 0, false
	}
	suffix := base[underscore+1:]
	for _, m := range models.Modalities {
		if suffix == m.String() {
			return base[:underscore], m, true
		}
	}
	return "", 0, false
}

// extractNumber extracts the numeric part from a subject identifier.
func extractNumber(id string) (int, bool) {
	numStr := ""
	for _, c := range id {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}
	if numStr == "" {
		return 0, false
	}
	num, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, false
	}
	return num, true
}
