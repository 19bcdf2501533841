package continuity

import "fmt"

// Settings are the editor constants the services compute against.
type Settings struct {
	DisplayWidth     int         `yaml:"displayWidth"`
	MinSectionHeight int         `yaml:"minSectionHeight"`
	MaxExtension     int         `yaml:"maxExtension"`
	MinExtension     int         `yaml:"minExtension"`
	MaxGenerateSize  int         `yaml:"maxGenerateSize"`
	ExtensionStrip   StripPolicy `yaml:"extensionStrip"`
	GenerationStrip  StripPolicy `yaml:"generationStrip"`
}

func DefaultSettings() Settings {
	return Settings{
		DisplayWidth:     600,
		MinSectionHeight: 100,
		MaxExtension:     500,
		MinExtension:     10,
		MaxGenerateSize:  4096,
		ExtensionStrip:   StripPolicy{MaxPixels: 150, Ratio: 0.20},
		GenerationStrip:  StripPolicy{MaxPixels: 100, Ratio: 0.15},
	}
}

// WithDefaults fills every unset field from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.DisplayWidth == 0 {
		s.DisplayWidth = d.DisplayWidth
	}
	if s.MinSectionHeight == 0 {
		s.MinSectionHeight = d.MinSectionHeight
	}
	if s.MaxExtension == 0 {
		s.MaxExtension = d.MaxExtension
	}
	if s.MinExtension == 0 {
		s.MinExtension = d.MinExtension
	}
	if s.MaxGenerateSize == 0 {
		s.MaxGenerateSize = d.MaxGenerateSize
	}
	if s.ExtensionStrip == (StripPolicy{}) {
		s.ExtensionStrip = d.ExtensionStrip
	}
	if s.GenerationStrip == (StripPolicy{}) {
		s.GenerationStrip = d.GenerationStrip
	}
	return s
}

func (s Settings) Validate() error {
	switch {
	case s.DisplayWidth <= 0:
		return fmt.Errorf("displayWidth must be positive, got %d", s.DisplayWidth)
	case s.MinSectionHeight < 1:
		return fmt.Errorf("minSectionHeight must be at least 1, got %d", s.MinSectionHeight)
	case s.MinExtension < 1 || s.MinExtension > s.MaxExtension:
		return fmt.Errorf("minExtension must be between 1 and maxExtension (%d), got %d", s.MaxExtension, s.MinExtension)
	case s.MaxGenerateSize <= 0:
		return fmt.Errorf("maxGenerateSize must be positive, got %d", s.MaxGenerateSize)
	}
	for name, p := range map[string]StripPolicy{"extensionStrip": s.ExtensionStrip, "generationStrip": s.GenerationStrip} {
		if p.MaxPixels <= 0 || p.Ratio <= 0 || p.Ratio > 1 {
			return fmt.Errorf("%s needs maxPixels > 0 and 0 < ratio <= 1, got %+v", name, p)
		}
	}
	return nil
}
