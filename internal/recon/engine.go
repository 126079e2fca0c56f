package recon

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"fiberecon/internal/cure"
	"fiberecon/internal/frame"
	"fiberecon/internal/ifu"
)

// MissingCalibrationError is returned when a frame's channel has no
// matching calibration model. It aborts the whole run: a partial
// reconstruction is worse than none for downstream photometry.
type MissingCalibrationError struct {
	Channel string
	Kind    string // "distortion" or "fibermodel"
}

func (e *MissingCalibrationError) Error() string {
	return fmt.Sprintf("no %s calibration for channel %q", e.Kind, e.Channel)
}

// Engine accumulates dither frames into a shared grid. All inputs are
// immutable for the duration of one Reconstruct call.
type Engine struct {
	Fibers     *ifu.CenterTable
	Distortion map[string]*cure.Distortion
	Trace      map[string]*cure.FiberModel

	PixelScale float64
	Weighting  Weighting

	// WMin, WMax restrict the integration band; zero values mean the
	// full calibrated wavelength range.
	WMin, WMax float64

	// Workers caps the parallel frame workers; <= 0 means GOMAXPROCS.
	Workers int

	Logger *zap.Logger
}

// Reconstruct processes the frames in parallel and returns the
// accumulated grid. Frames are independent until accumulation; each
// worker owns a partial grid and the partials are merged by a single
// combiner, so the result is order-independent up to floating-point
// rounding. The first frame failure cancels the run.
func (e *Engine) Reconstruct(ctx context.Context, frames []*frame.Frame) (*Grid, error) {
	log := e.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to reconstruct")
	}

	for _, fr := range frames {
		ch := fr.Header.Channel
		if _, ok := e.Distortion[ch]; !ok {
			return nil, &MissingCalibrationError{Channel: ch, Kind: "distortion"}
		}
		if _, ok := e.Trace[ch]; !ok {
			return nil, &MissingCalibrationError{Channel: ch, Kind: "fibermodel"}
		}
		if n := e.Fibers.NumFibers(ch); n != len(fr.Flux) {
			return nil, fmt.Errorf("%s: %d fiber rows but %d alive fibers in %s",
				fr.Path, len(fr.Flux), n, e.Fibers.Path)
		}
	}

	grid, err := e.makeGrid(frames)
	if err != nil {
		return nil, err
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(frames) {
		workers = len(frames)
	}

	jobs := make(chan *frame.Frame)
	partials := make([]*Grid, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		part := grid.Empty()
		partials[w] = part
		g.Go(func() error {
			for fr := range jobs {
				if err := e.accumulateFrame(part, fr); err != nil {
					return err
				}
				log.Debug("frame accumulated",
					zap.String("path", fr.Path),
					zap.String("channel", fr.Header.Channel),
					zap.Int("dither", fr.Header.DitherIndex))
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for _, fr := range frames {
			select {
			case jobs <- fr:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, part := range partials {
		if err := grid.Merge(part); err != nil {
			return nil, err
		}
	}
	log.Info("reconstruction accumulated",
		zap.Int("frames", len(frames)),
		zap.Int("workers", workers),
		zap.Int("nx", grid.NX),
		zap.Int("ny", grid.NY))
	return grid, nil
}

// makeGrid sizes the output grid to cover every alive fiber position
// under every dither offset.
func (e *Engine) makeGrid(frames []*frame.Frame) (*Grid, error) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, fr := range frames {
		for _, fib := range e.Fibers.AliveFibers(fr.Header.Channel) {
			minX = math.Min(minX, fib.X+fr.DX)
			maxX = math.Max(maxX, fib.X+fr.DX)
			minY = math.Min(minY, fib.Y+fr.DY)
			maxY = math.Max(maxY, fib.Y+fr.DY)
		}
	}
	if math.IsInf(minX, 1) {
		return nil, fmt.Errorf("no alive fibers for any frame channel")
	}
	nx := int(math.Floor((maxX-minX)/e.PixelScale+0.5)) + 1
	ny := int(math.Floor((maxY-minY)/e.PixelScale+0.5)) + 1
	return NewGrid(minX, minY, nx, ny, e.PixelScale)
}

// accumulateFrame does the per-frame work: band integration per fiber
// row, position lookup, offset, and distribution into the partial.
func (e *Engine) accumulateFrame(part *Grid, fr *frame.Frame) error {
	ch := fr.Header.Channel
	dist := e.Distortion[ch]
	trace := e.Trace[ch]

	lo, hi := e.band(dist, trace, fr)
	fibers := e.Fibers.AliveFibers(ch)

	for _, fib := range fibers {
		if !fib.Alive || fib.Throughput <= 0 {
			// expected data, not a defect
			continue
		}
		// frame rows are ordered by fiber number, 1-based
		row := fib.ID - 1
		if row < 0 || row >= len(fr.Flux) {
			return fmt.Errorf("%s: fiber %d has no row in frame", fr.Path, fib.ID)
		}
		flux := floats.Sum(fr.Flux[row][lo : hi+1])
		part.Accumulate(fib.X+fr.DX, fib.Y+fr.DY, flux, e.Weighting)
	}
	return nil
}

// band intersects the configured wavelength window with the validity
// ranges of both calibration models and maps it to a column range.
// The trace model locates the flux-bearing columns; the distortion
// model bounds the calibrated wavelengths.
func (e *Engine) band(dist *cure.Distortion, trace *cure.FiberModel, fr *frame.Frame) (int, int) {
	if fr.Header.CDelt1 == 0 {
		// no wavelength solution in the header: integrate everything
		return 0, len(fr.Flux[0]) - 1
	}
	wmin := math.Max(dist.MinW, trace.MinW)
	wmax := math.Min(dist.MaxW, trace.MaxW)
	if e.WMin != 0 {
		wmin = math.Max(wmin, e.WMin)
	}
	if e.WMax != 0 {
		wmax = math.Min(wmax, e.WMax)
	}
	lo := fr.WavelengthToColumn(wmin)
	hi := fr.WavelengthToColumn(wmax)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}
