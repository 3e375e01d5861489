package logic

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/talgya/macrosim/internal/config"
	"github.com/talgya/macrosim/internal/detrand"
	"github.com/talgya/macrosim/internal/worldstate"
)

// pcgSource adapts a *rand/v2.Rand to the golang.org/x/exp/rand.Source
// interface gonum's distuv package expects, so a shock draw can be seeded
// through internal/detrand instead of a global RNG.
type pcgSource struct{ r *rand.Rand }

func (s pcgSource) Uint64() uint64   { return s.r.Uint64() }
func (s pcgSource) Seed(seed uint64) {}

const shockTruncationSigma = 3.0

// InjectShocks draws a single truncated-normal productivity shock for the
// firm when features.shock_enabled is set (design doc Section 4.7). The
// draw is rejection-sampled to stay within [-3σ, 3σ] and seeded from
// (global_seed, tick_index, "shock") so a replay at the same seed reproduces
// the identical shock.
func InjectShocks(w *worldstate.WorldState, cfg config.Config, globalSeed int64, tickIndex uint64) ([]worldstate.StateUpdateCommand, []worldstate.TickLogEntry) {
	if !cfg.Features.ShockEnabled || w.Firm == nil {
		return nil, nil
	}

	sigma := 0.05 * w.Firm.Productivity
	if sigma <= 0 {
		sigma = 0.05
	}
	dist := distuv.Normal{
		Mu:    0,
		Sigma: sigma,
		Src:   pcgSource{r: detrand.Source(globalSeed, tickIndex, "shock", "firm_productivity")},
	}

	var draw float64
	for attempt := 0; attempt < 64; attempt++ {
		draw = dist.Rand()
		if draw >= -shockTruncationSigma*sigma && draw <= shockTruncationSigma*sigma {
			break
		}
	}

	newProductivity := w.Firm.Productivity + draw
	if newProductivity < 0.01 {
		newProductivity = 0.01
	}

	cmds := []worldstate.StateUpdateCommand{
		worldstate.Assign("firm.productivity", newProductivity),
	}
	logs := []worldstate.TickLogEntry{{
		Message: fmt.Sprintf("shock: firm productivity %.4f -> %.4f", w.Firm.Productivity, newProductivity),
		Context: map[string]any{"delta": draw, "sigma": sigma},
	}}
	return cmds, logs
}
