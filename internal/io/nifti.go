// Package io confines file-format handling to the repository boundary:
// NIfTI volumes in and out, .npy dumps for QA inspection. The pipeline
// itself only ever sees in-memory volumes and stacks.
package io

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/KyungWonPark/nifti"

	"gbss/internal/models"
)

// LoadVolume reads a 3D NIfTI volume (first timepoint of a 4D file) into
// a Volume, with voxel spacing taken from the header pixdims.
func LoadVolume(path string) (*models.Volume, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot read volume: %w", err)
	}

	var header nifti.Nifti1Header
	header.LoadHeader(path)

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	var grid models.Grid
	grid.Width = int(header.Dim[1])
	grid.Height = int(header.Dim[2])
	grid.Depth = int(header.Dim[3])
	grid.VoxelSize.X = float64(header.Pixdim[1])
	grid.VoxelSize.Y = float64(header.Pixdim[2])
	grid.VoxelSize.Z = float64(header.Pixdim[3])

	if grid.Len() <= 0 {
		return nil, fmt.Errorf("volume %s has degenerate dimensions %s", path, grid)
	}

	vol := models.NewVolume(grid, filepath.Base(path))
	for z := 0; z < grid.Depth; z++ {
		for y := 0; y < grid.Height; y++ {
			for x := 0; x < grid.Width; x++ {
				vol.Set(x, y, z, float64(img.GetAt(uint32(x), uint32(y), uint32(z), 0)))
			}
		}
	}
	return vol, nil
}

// SaveVolume writes a single 3D volume as NIfTI, copying the header from
// a template file (typically one of the run's input volumes) so that the
// output stays aligned with the common registration grid.
func SaveVolume(path, templatePath string, vol *models.Volume) error {
	return saveNifti(path, templatePath, vol.Grid, 1, func(x, y, z, t int) float64 {
		return vol.At(x, y, z)
	})
}

// SaveStack writes a cohort stack as a 4D NIfTI with the subject axis as
// the fourth dimension, in stack order.
func SaveStack(path, templatePath string, stack *models.CohortStack) error {
	grid := stack.Grid()
	return saveNifti(path, templatePath, grid, stack.Len(), func(x, y, z, t int) float64 {
		return stack.Volumes[t].At(x, y, z)
	})
}

func saveNifti(path, templatePath string, grid models.Grid, nt int, sample func(x, y, z, t int) float64) error {
	if _, err := os.Stat(templatePath); err != nil {
		return fmt.Errorf("cannot read header template: %w", err)
	}

	var header nifti.Nifti1Header
	header.LoadHeader(templatePath)

	img := nifti.NewImg(grid.Width, grid.Height, grid.Depth, nt)
	img.SetNewHeader(header)
	img.SetHeaderDim(grid.Width, grid.Height, grid.Depth, nt)

	for t := 0; t < nt; t++ {
		for z := 0; z < grid.Depth; z++ {
			for y := 0; y < grid.Height; y++ {
				for x := 0; x < grid.Width; x++ {
					img.SetAt(uint32(x), uint32(y), uint32(z), uint32(t),
						float32(sample(x, y, z, t)))
				}
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	img.Save(path)
	return nil
}
