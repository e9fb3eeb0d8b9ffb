// Package config loads analyzer settings from an optional TOML file,
// layered over the built-in defaults. A missing file is not an error: the
// analyzer runs usefully with no configuration at all.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/ericfowler-dev/bms-log-analyzer/analysis"
)

var fs = afero.NewOsFs()

// SetFs changes the filesystem used to read configuration. For testing.
func SetFs(f afero.Fs) {
	fs = f
}

// Settings is everything a deployment can override.
type Settings struct {
	Rules analysis.RuleConfig `mapstructure:"rules"`

	// Extra or replacement display names for alarm codes, merged over the
	// built-in catalog.
	AlarmNames map[string]string `mapstructure:"alarm-names"`
}

// DefaultSettings returns the built-in thresholds and alarm names.
func DefaultSettings() *Settings {
	return &Settings{
		Rules:      analysis.DefaultRuleConfig(),
		AlarmNames: analysis.DefaultAlarmNames(),
	}
}

// Load reads the settings file at path over the defaults. Keys absent from
// the file keep their default values; an empty path or a missing file
// returns the defaults unchanged.
func Load(path string) (*Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return settings, nil
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var overrides Settings
	overrides.Rules = settings.Rules
	// Weak typing lets a bare integer in the file satisfy a float threshold.
	weakDecode := func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true }
	if err := v.Unmarshal(&overrides, weakDecode); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	settings.Rules = overrides.Rules
	for code, name := range overrides.AlarmNames {
		settings.AlarmNames[code] = name
	}
	return settings, nil
}

// Analyzer builds an analyzer carrying these settings.
func (s *Settings) Analyzer() *analysis.Analyzer {
	a := analysis.NewAnalyzer()
	a.Rules = s.Rules
	a.AlarmNames = s.AlarmNames
	return a
}
