package io

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kshedden/gonpy"

	"gbss/internal/models"
)

// VolumeToNpy writes a volume to a Python numpy .npy binary file with
// shape (depth, height, width), the C-order layout numpy expects for the
// x-fastest flat data.
func VolumeToNpy(path string, vol *models.Volume) error {
	w, err := newNpyWriter(path)
	if err != nil {
		return err
	}
	w.Shape = []int{vol.Grid.Depth, vol.Grid.Height, vol.Grid.Width}
	if err := w.WriteFloat64(vol.Data); err != nil {
		return fmt.Errorf("failed to write npy %s: %w", path, err)
	}
	return nil
}

// StackToNpy writes a cohort stack to a .npy file with the subject axis
// first, shape (subjects, depth, height, width).
func StackToNpy(path string, stack *models.CohortStack) error {
	grid := stack.Grid()
	flat := make([]float64, 0, stack.Len()*grid.Len())
	for _, vol := range stack.Volumes {
		flat = append(flat, vol.Data...)
	}

	w, err := newNpyWriter(path)
	if err != nil {
		return err
	}
	w.Shape = []int{stack.Len(), grid.Depth, grid.Height, grid.Width}
	if err := w.WriteFloat64(flat); err != nil {
		return fmt.Errorf("failed to write npy %s: %w", path, err)
	}
	return nil
}

// VectorToNpy writes a per-subject vector (e.g. lesion means) to .npy.
func VectorToNpy(path string, values []float64) error {
	w, err := newNpyWriter(path)
	if err != nil {
		return err
	}
	w.Shape = []int{len(values)}
	if err := w.WriteFloat64(values); err != nil {
		return fmt.Errorf("failed to write npy %s: %w", path, err)
	}
	return nil
}

func newNpyWriter(path string) (*gonpy.NpyWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open npy %s: %w", path, err)
	}
	w.Version = 2
	return w, nil
}
