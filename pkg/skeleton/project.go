package skeleton

import (
	"fmt"
	"sync"

	"gbss/internal/models"
)

// Engine projects cohort stacks onto the skeleton defined by a Context.
//
// The call contract mirrors the external projection primitive: a
// skeleton-defining map and threshold, a distance field and a search-guide
// volume steering the search, a ridge-source stack defining where to look,
// and a value-source stack defining what to sample. Grey matter projects
// itself (ridge source == value source); the diffusion modalities use the
// grey-matter stack as ridge source and their own data as value source.
type Engine struct {
	ctx *Context

	// NumWorkers bounds subject-level parallelism. Each subject reads only
	// its own volumes plus the read-only context, so workers need no locks.
	NumWorkers int
}

// NewEngine returns a projection engine over the given context.
func NewEngine(ctx *Context, numWorkers int) *Engine {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Engine{ctx: ctx, NumWorkers: numWorkers}
}

// ProjectStack projects every subject of valueSrc onto the skeleton,
// searching along ridgeSrc. The returned stack preserves subject order.
func (e *Engine) ProjectStack(ridgeSrc, valueSrc *models.CohortStack, name string) (*models.CohortStack, error) {
	if ridgeSrc.Len() != valueSrc.Len() {
		return nil, fmt.Errorf("project %s: ridge stack has %d subjects, value stack has %d",
			name, ridgeSrc.Len(), valueSrc.Len())
	}

	out := models.NewCohortStack(valueSrc.Modality, name)
	out.Volumes = make([]*models.Volume, valueSrc.Len())

	order := make(chan int, e.NumWorkers)
	var wg sync.WaitGroup
	wg.Add(valueSrc.Len())

	for i := 0; i < e.NumWorkers; i++ {
		go func() {
			for idx := range order {
				out.Volumes[idx] = e.projectVolume(
					ridgeSrc.Volumes[idx], valueSrc.Volumes[idx],
					fmt.Sprintf("%s_subj%03d", name, idx))
				wg.Done()
			}
		}()
	}
	for i := 0; i < valueSrc.Len(); i++ {
		order <- i
	}
	wg.Wait()
	close(order)

	return out, nil
}

// projectVolume fills each skeleton voxel with the value-source sample at
// the best ridge position along the perpendicular search line; everything
// off the skeleton stays zero.
func (e *Engine) projectVolume(ridge, value *models.Volume, name string) *models.Volume {
	ctx := e.ctx
	out := models.NewVolume(value.Grid, name)
	w, h, d := value.Grid.Width, value.Grid.Height, value.Grid.Depth

	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if ctx.SkelThreshMask.At(x, y, z) == 0 {
					continue
				}

				dir := principalDirection(ctx.MeanGM, x, y, z)
				bestScore := ridge.At(x, y, z) + ctx.SearchGuide.At(x, y, z)
				bestVal := value.At(x, y, z)

				for _, sign := range [2]int{1, -1} {
					prevDist := ctx.Distance.At(x, y, z)
					for t := 1; ; t++ {
						px := x + sign*t*dir[0]
						py := y + sign*t*dir[1]
						pz := z + sign*t*dir[2]
						if !value.In(px, py, pz) || ctx.GMMask.At(px, py, pz) == 0 {
							break
						}
						// Stop once the distance field turns back toward
						// the skeleton or the mask edge: the search stays
						// within this skeleton voxel's own basin.
						dist := ctx.Distance.At(px, py, pz)
						if dist < prevDist {
							break
						}
						prevDist = dist

						score := ridge.At(px, py, pz) + ctx.SearchGuide.At(px, py, pz)
						if score > bestScore {
							bestScore = score
							bestVal = value.At(px, py, pz)
						}
					}
				}

				out.Set(x, y, z, bestVal)
			}
		}
	}
	return out
}
