// Package recon reconstructs a single sky image from a set of
// dithered fiber-extracted exposures, using the parsed calibration
// models and the IFU-center fiber positions.
package recon

import (
	"fmt"
	"math"
)

// Weighting selects how a fiber's flux is distributed over output
// pixels.
type Weighting string

const (
	// WeightNearest assigns all flux to the pixel whose center is
	// closest to the fiber position.
	WeightNearest Weighting = "nearest"
	// WeightFractional splits the flux bilinearly over the four
	// pixels covering the fiber position.
	WeightFractional Weighting = "fractional"
)

// Grid is the shared accumulation target of one reconstruction run.
// Flux and Coverage always have the same shape and are updated
// together: a flux contribution is never recorded without its
// coverage weight. Mutable only through Accumulate and Merge;
// Finalize seals it exactly once.
type Grid struct {
	PixelScale float64
	// X0, Y0 is the sky position of the center of pixel (0, 0).
	X0, Y0 float64
	NX, NY int

	Flux     []float64
	Coverage []float64

	finalized bool
}

// NewGrid allocates an empty grid. Pixel (i, j) covers the sky
// position (X0 + i*scale, Y0 + j*scale).
func NewGrid(x0, y0 float64, nx, ny int, scale float64) (*Grid, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid grid shape %dx%d", nx, ny)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("invalid pixel scale %g", scale)
	}
	return &Grid{
		PixelScale: scale,
		X0:         x0,
		Y0:         y0,
		NX:         nx,
		NY:         ny,
		Flux:       make([]float64, nx*ny),
		Coverage:   make([]float64, nx*ny),
	}, nil
}

// Empty returns a zeroed grid with the same geometry, for use as a
// per-worker partial.
func (g *Grid) Empty() *Grid {
	p, _ := NewGrid(g.X0, g.Y0, g.NX, g.NY, g.PixelScale)
	return p
}

func (g *Grid) add(i, j int, flux, w float64) {
	if i < 0 || i >= g.NX || j < 0 || j >= g.NY || w == 0 {
		return
	}
	idx := j*g.NX + i
	g.Flux[idx] += flux * w
	g.Coverage[idx] += w
}

// Accumulate distributes one fiber's flux at sky position (x, y)
// according to the weighting policy.
func (g *Grid) Accumulate(x, y, flux float64, mode Weighting) {
	fx := (x - g.X0) / g.PixelScale
	fy := (y - g.Y0) / g.PixelScale

	switch mode {
	case WeightFractional:
		i0 := int(math.Floor(fx))
		j0 := int(math.Floor(fy))
		tx := fx - float64(i0)
		ty := fy - float64(j0)
		g.add(i0, j0, flux, (1-tx)*(1-ty))
		g.add(i0+1, j0, flux, tx*(1-ty))
		g.add(i0, j0+1, flux, (1-tx)*ty)
		g.add(i0+1, j0+1, flux, tx*ty)
	default:
		g.add(int(math.Round(fx)), int(math.Round(fy)), flux, 1)
	}
}

// Merge folds a partial grid into g. Merging is commutative up to
// floating-point rounding, so partials may arrive in any order.
func (g *Grid) Merge(p *Grid) error {
	if p.NX != g.NX || p.NY != g.NY || p.PixelScale != g.PixelScale {
		return fmt.Errorf("grid shape mismatch: %dx%d@%g vs %dx%d@%g",
			g.NX, g.NY, g.PixelScale, p.NX, p.NY, p.PixelScale)
	}
	for i := range g.Flux {
		g.Flux[i] += p.Flux[i]
		g.Coverage[i] += p.Coverage[i]
	}
	return nil
}
