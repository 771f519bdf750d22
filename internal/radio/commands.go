package radio

import (
	"fmt"
	"strconv"
	"strings"
)

// IsSyncLine reports whether a decoder log line marks acquired HD sync. The
// decoder announces it several ways depending on version and service config.
func IsSyncLine(line string) bool {
	return strings.Contains(line, "Synchronized") ||
		strings.Contains(line, "Audio program") ||
		strings.Contains(line, "SIG Service:")
}

// IsSyncLossLine reports whether a decoder log line marks lost HD sync.
func IsSyncLossLine(line string) bool {
	return strings.Contains(line, "Lost synchronization") ||
		strings.Contains(line, "Lost sync")
}

// NRSC5Args builds the HD decoder command line: raw audio to stdout, data
// service files dumped into the LOT directory, logs on stderr.
func NRSC5Args(o Options) []string {
	args := []string{"-o", "-", "--dump-aas-files", o.LotDir}
	if o.Gain > 0 {
		args = append(args, "-g", formatFloat(o.Gain))
	}
	if o.PPM != 0 {
		args = append(args, "-p", strconv.Itoa(o.PPM))
	}
	if o.DeviceIndex != 0 {
		args = append(args, "-d", strconv.Itoa(o.DeviceIndex))
	}
	return append(args, formatFreq(o.FreqMHz), strconv.Itoa(o.HDProgram))
}

// RtlFMArgs builds the analog FM demodulator command line: mono s16le at
// 48 kHz on stdout.
func RtlFMArgs(o Options) []string {
	args := []string{
		"-f", formatFreq(o.FreqMHz) + "M",
		"-M", "fm",
		"-s", "240k",
		"-r", "48k",
		"-A", "fast",
		"-E", "deemp",
	}
	if o.Gain > 0 {
		args = append(args, "-g", formatFloat(o.Gain))
	}
	if o.PPM != 0 {
		args = append(args, "-p", strconv.Itoa(o.PPM))
	}
	if o.DeviceIndex != 0 {
		args = append(args, "-d", strconv.Itoa(o.DeviceIndex))
	}
	return append(args, "-")
}

// HDPlayerArgs builds the ffplay command line for the decoder's WAV stream.
func HDPlayerArgs(o Options) []string {
	return append(playerCommonArgs(o), "-i", "-")
}

// AnalogPlayerArgs builds the ffplay command line for rtl_fm's raw samples.
func AnalogPlayerArgs(o Options) []string {
	args := []string{"-f", "s16le", "-ar", "48000", "-ac", "1"}
	return append(append(args, playerCommonArgs(o)...), "-i", "-")
}

func playerCommonArgs(o Options) []string {
	return []string{
		"-nodisp",
		"-hide_banner",
		"-loglevel", "quiet",
		"-volume", strconv.Itoa(o.Volume),
	}
}

func formatFreq(mhz float64) string {
	return strconv.FormatFloat(mhz, 'f', 1, 64)
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
