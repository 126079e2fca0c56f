package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fiberecon/internal/cure"
	"fiberecon/internal/frame"
	"fiberecon/internal/ifu"
	"fiberecon/internal/recon"
)

var (
	outPath    string
	ifucenPath string
	ditherPath string
	pixelScale float64
)

// reconstructCmd runs the full pipeline over the frame files given as
// arguments.
var reconstructCmd = &cobra.Command{
	Use:   "reconstruct [frame.fits ...]",
	Short: "Reconstruct a sky image from dithered fiber-extracted frames",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ifucenPath != "" {
			cfg.Inputs.IFUCenter = ifucenPath
		}
		if ditherPath != "" {
			cfg.Inputs.DitherFile = ditherPath
		}
		if pixelScale > 0 {
			cfg.Reconstruction.PixelScale = pixelScale
		}
		if cfg.Inputs.IFUCenter == "" {
			return fmt.Errorf("no IFU-center file configured (--ifucen or inputs.ifu_center)")
		}

		fibers, err := ifu.LoadCenterTable(cfg.Inputs.IFUCenter)
		if err != nil {
			return err
		}
		logger.Info("loaded IFU-center table",
			zap.String("path", fibers.Path),
			zap.Int("fibers", len(fibers.Fibers)))

		dithers := ifu.SingleDither()
		if cfg.Inputs.DitherFile != "" {
			dithers, err = ifu.LoadDitherTable(cfg.Inputs.DitherFile)
			if err != nil {
				return err
			}
		}

		prov := recon.NewProvenance(args,
			recon.Weighting(cfg.Reconstruction.Weighting),
			recon.NormalizeMode(cfg.Reconstruction.Normalize))

		distortion := make(map[string]*cure.Distortion)
		trace := make(map[string]*cure.FiberModel)
		for ch, cal := range cfg.Calibration {
			if cal.Distortion != "" {
				d, err := cure.OpenDistortion(cal.Distortion)
				if err != nil {
					return err
				}
				distortion[ch] = d
				prov.Calibration["DISTV_"+ch] = d.Version
			}
			if cal.FiberModel != "" {
				m, err := cure.OpenFiberModel(cal.FiberModel)
				if err != nil {
					return err
				}
				trace[ch] = m
				prov.Calibration["FMODV_"+ch] = m.Version
			}
			if cal.PSFModel != "" {
				p, err := cure.OpenPSFModel(cal.PSFModel)
				if err != nil {
					return err
				}
				prov.Calibration["PSFV_"+ch] = p.Version
			}
		}

		frames := make([]*frame.Frame, 0, len(args))
		for i, path := range args {
			opts := frame.Options{Bias: frame.BiasMode(cfg.Reconstruction.Bias)}
			if cfg.Reconstruction.OrderBy == "explicit" {
				opts.DitherIndex = i + 1
			}
			fr, err := frame.Load(path, opts)
			if err != nil {
				return err
			}
			frames = append(frames, fr)
		}
		if err := frame.ResolveOffsets(frames, dithers); err != nil {
			return err
		}

		engine := &recon.Engine{
			Fibers:     fibers,
			Distortion: distortion,
			Trace:      trace,
			PixelScale: cfg.Reconstruction.PixelScale,
			Weighting:  recon.Weighting(cfg.Reconstruction.Weighting),
			WMin:       cfg.Reconstruction.WMin,
			WMax:       cfg.Reconstruction.WMax,
			Workers:    cfg.Reconstruction.Workers,
			Logger:     logger,
		}
		grid, err := engine.Reconstruct(cmd.Context(), frames)
		if err != nil {
			return err
		}

		img, err := recon.Finalize(grid, recon.NormalizeMode(cfg.Reconstruction.Normalize), prov)
		if err != nil {
			return err
		}
		if err := recon.WriteImage(outPath, img); err != nil {
			return err
		}
		logger.Info("wrote reconstructed image",
			zap.String("path", outPath),
			zap.Int("nx", img.NX),
			zap.Int("ny", img.NY),
			zap.String("run_id", img.Provenance.RunID))
		return nil
	},
}

func init() {
	reconstructCmd.Flags().StringVarP(&outPath, "out", "o", "reconstructed.fits", "output FITS image")
	reconstructCmd.Flags().StringVar(&ifucenPath, "ifucen", "", "IFU-center file (overrides config)")
	reconstructCmd.Flags().StringVar(&ditherPath, "dither", "", "dither offset file (overrides config)")
	reconstructCmd.Flags().Float64Var(&pixelScale, "pixel-scale", 0, "output pixel scale (overrides config)")
}
