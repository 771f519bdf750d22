package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edward-ap/boombox/internal/boomboxapp"
)

var opts boomboxapp.Options

var rootCmd = &cobra.Command{
	Use:   "boombox",
	Short: "An SDR HD Radio desktop receiver.",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := boomboxapp.NewApp(opts)
		if err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.Float64VarP(&opts.FreqMHz, "freq", "f", 0, "FM frequency in MHz (default: last tuned)")
	f.IntVar(&opts.HDProgram, "hd", 0, "HD sub-program index, 0-3")
	f.Float64VarP(&opts.Gain, "gain", "g", 0, "tuner gain in dB (0 = auto)")
	f.IntVarP(&opts.PPM, "ppm", "p", 0, "frequency correction in ppm")
	f.IntVarP(&opts.Device, "device", "d", 0, "RTL-SDR device index")
	f.BoolVar(&opts.TraceLog, "trace-log", false, "enable verbose debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
