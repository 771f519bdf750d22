// Package config persists the tuner presets and user settings as JSON files
// under the OS config directory.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// AppID is the stable application identifier used for config storage.
	AppID = "boombox"
	// AppConfigSubdir is the OS-specific directory that holds the config files.
	AppConfigSubdir = "SDR-Boombox"
	// PresetsFileName stores the tuner presets.
	PresetsFileName = "presets.json"
	// SettingsFileName stores the remaining user preferences.
	SettingsFileName = "settings.json"

	// NumPresets is the number of preset buttons in the UI.
	NumPresets = 4
	// MaxHDProgram is the highest HD Radio sub-program index (HD4).
	MaxHDProgram = 3

	// DefaultVolume sets the safe initial playback level.
	DefaultVolume = 70
	// DefaultWidth and DefaultHeight are the preferred window size when no
	// persisted value exists.
	DefaultWidth  = 900
	DefaultHeight = 600
	// MinWindowWidth keeps the preset row and art panel visible.
	MinWindowWidth = 720
)

// defaultPresetFreqs seeds the preset buttons on first run.
var defaultPresetFreqs = [NumPresets]float64{100.7, 104.7, 98.1, 92.3}

// Preset is one tuner preset: an FM frequency and the HD sub-program on it.
type Preset struct {
	FreqMHz   float64
	HDProgram int
}

// Presets is the fixed preset set. Its on-disk form is a flat object mapping
// "P<i>" to the frequency and "P<i>_hd" to the sub-program index; the file is
// rewritten in full on every change.
type Presets [NumPresets]Preset

// MarshalJSON writes the flat key form.
func (p Presets) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumPresets*2)
	for i, pr := range p {
		key := fmt.Sprintf("P%d", i)
		m[key] = pr.FreqMHz
		m[key+"_hd"] = float64(pr.HDProgram)
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the flat key form; missing keys leave the slot at its
// current value.
func (p *Presets) UnmarshalJSON(b []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for i := range p {
		key := fmt.Sprintf("P%d", i)
		if v, ok := m[key]; ok {
			p[i].FreqMHz = v
		}
		if v, ok := m[key+"_hd"]; ok {
			p[i].HDProgram = int(v)
		}
	}
	return nil
}

// Settings aggregates every user-facing preference persisted between sessions.
type Settings struct {
	Gain           float64 `json:"gain"` // 0 means auto gain
	PPM            int     `json:"ppm"`
	DeviceIndex    int     `json:"deviceIndex"`
	Volume         int     `json:"volume"`
	AnalogFallback bool    `json:"analogFallback"`
	LastFrequency  float64 `json:"lastFrequency"`
	LastHDProgram  int     `json:"lastHdProgram"`
	WindowW        int     `json:"windowW"`
	WindowH        int     `json:"windowH"`
}

// ConfigDir resolves the writable directory that should contain the config files.
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppConfigSubdir), nil
}

func configPath(name string) (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, name), nil
}

// LoadPresets reads the preset file, seeding and persisting defaults on first
// run.
func LoadPresets() (Presets, error) {
	var p Presets
	path, err := configPath(PresetsFileName)
	if err != nil {
		return p, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			for i := range p {
				p[i].FreqMHz = defaultPresetFreqs[i]
			}
			// Try saving the initial file, but still return defaults if it fails.
			_ = p.Save()
			return p, nil
		}
		return p, err
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("presets parse error: %w", err)
	}
	return p, nil
}

// Save rewrites the preset file in full.
func (p Presets) Save() error {
	return writeConfigFile(PresetsFileName, p)
}

// LoadSettings reads the settings file, applying defaults or persisting an
// initial file when none exists.
func LoadSettings() (*Settings, error) {
	path, err := configPath(SettingsFileName)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s := newDefaultSettings()
			_ = s.Save()
			return s, nil
		}
		return nil, err
	}
	s := &Settings{}
	if err := json.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("settings parse error: %w", err)
	}
	s.applyRuntimeDefaults()
	return s, nil
}

// Save persists the settings to disk, creating directories as needed.
func (s *Settings) Save() error {
	return writeConfigFile(SettingsFileName, s)
}

func writeConfigFile(name string, v any) error {
	path, err := configPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func newDefaultSettings() *Settings {
	s := &Settings{
		Volume:         DefaultVolume,
		AnalogFallback: true,
		LastFrequency:  defaultPresetFreqs[0],
		WindowW:        DefaultWidth,
		WindowH:        DefaultHeight,
	}
	s.applyRuntimeDefaults()
	return s
}

// applyRuntimeDefaults normalizes settings after a load so the UI and the
// tuner command lines always receive sane inputs.
func (s *Settings) applyRuntimeDefaults() {
	if s.Volume < 0 || s.Volume > 100 {
		s.Volume = DefaultVolume
	}
	if s.WindowW == 0 {
		s.WindowW = DefaultWidth
	}
	if s.WindowW < MinWindowWidth {
		s.WindowW = MinWindowWidth
	}
	if s.WindowH == 0 {
		s.WindowH = DefaultHeight
	}
	if s.LastFrequency < 76.0 || s.LastFrequency > 108.0 {
		s.LastFrequency = defaultPresetFreqs[0]
	}
	if s.LastHDProgram < 0 || s.LastHDProgram > MaxHDProgram {
		s.LastHDProgram = 0
	}
	if s.Gain < 0 {
		s.Gain = 0
	}
}
