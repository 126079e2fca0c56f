package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fiberecon/internal/cure"
)

var inspectKind string

// inspectCmd prints the version, validity bounds and a detector-center
// sample evaluation of a calibration file, useful when triaging
// unsupported-version failures or a suspect fit.
var inspectCmd = &cobra.Command{
	Use:   "inspect <calibration-file>",
	Short: "Print version, bounds and center-of-detector values of a calibration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		switch inspectKind {
		case "distortion":
			d, err := cure.OpenDistortion(path)
			if err != nil {
				return err
			}
			cx, cy := (d.MinX+d.MaxX)/2, (d.MinY+d.MaxY)/2
			cf := (d.MinF + d.MaxF) / 2
			fmt.Printf("distortion version %d\n", d.Version)
			fmt.Printf("  wavelength [%g, %g]\n", d.MinW, d.MaxW)
			fmt.Printf("  fiber      [%g, %g]\n", d.MinF, d.MaxF)
			fmt.Printf("  x          [%g, %g]\n", d.MinX, d.MaxX)
			fmt.Printf("  y          [%g, %g]\n", d.MinY, d.MaxY)
			fmt.Printf("  reference wavelength %g\n", d.ReferenceWavelength)
			fmt.Printf("  at detector center: wavelength %g, fiber %g\n",
				d.MapXYWavelength(cx, cy), d.MapXYFiber(cx, cy))
			fmt.Printf("  trace y of fiber %g at x %g: %g\n", cf, cx, d.MapXFY(cx, cf))
		case "fibermodel":
			m, err := cure.OpenFiberModel(path)
			if err != nil {
				return err
			}
			cx, cy := (m.MinX+m.MaxX)/2, (m.MinY+m.MaxY)/2
			fmt.Printf("fibermodel version %d\n", m.Version)
			fmt.Printf("  wavelength [%g, %g]\n", m.MinW, m.MaxW)
			fmt.Printf("  fiber      [%g, %g]\n", m.MinF, m.MaxF)
			fmt.Printf("  fibers     %d\n", m.NumFibers())
			fmt.Printf("  at detector center: sigma %g, h2 %g, h3 %g\n",
				m.TraceWidth(cx, cy), m.H2(cx, cy), m.H3(cx, cy))
		case "psfmodel":
			p, err := cure.OpenPSFModel(path)
			if err != nil {
				return err
			}
			cx, cy := (p.MinX+p.MaxX)/2, (p.MinY+p.MaxY)/2
			fmt.Printf("psfmodel version %d\n", p.Version)
			fmt.Printf("  x [%g, %g]\n", p.MinX, p.MaxX)
			fmt.Printf("  y [%g, %g]\n", p.MinY, p.MaxY)
			fmt.Printf("  at detector center: sigma x %g, sigma y %g\n",
				p.SigmaX(cx, cy), p.SigmaY(cx, cy))
		default:
			return fmt.Errorf("unknown kind %q (distortion, fibermodel, psfmodel)", inspectKind)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectKind, "kind", "k", "distortion", "calibration kind: distortion, fibermodel, psfmodel")
}
