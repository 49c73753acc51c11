// Package config reads the optional project file whitfield.toml.
//
//	include   = ["lib", "/usr/share/whitfield"]
//	targets   = ["ll", "h"]
//	out-dir   = "build"
//	log-level = "debug"
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

// FileNames are the project file names looked up by Load, in order.
var FileNames = []string{"whitfield.toml", ".whitfield.toml"}

type Config struct {
	// Include lists extra directories searched for imports.
	Include []string `toml:"include"`
	// Targets are the backends run by build when no --target is given.
	Targets []string `toml:"targets"`
	// OutDir receives build outputs. Empty means next to each input.
	OutDir   string        `toml:"out-dir"`
	LogLevel zapcore.Level `toml:"log-level"`
}

// Default returns the configuration used when no project file exists.
func Default() Config {
	return Config{
		Targets:  []string{"ll"},
		LogLevel: zapcore.InfoLevel,
	}
}

// Load reads the first project file found in dir. Relative include
// directories are resolved against dir. It returns the path of the file
// read, or "" when none exists.
func Load(dir string) (Config, string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		cfg, err := Decode(path)
		if err != nil {
			return Config{}, "", err
		}
		for i, inc := range cfg.Include {
			if !filepath.IsAbs(inc) {
				cfg.Include[i] = filepath.Join(dir, inc)
			}
		}
		if cfg.OutDir != "" && !filepath.IsAbs(cfg.OutDir) {
			cfg.OutDir = filepath.Join(dir, cfg.OutDir)
		}
		return cfg, path, nil
	}
	return Default(), "", nil
}

// Decode parses one project file on top of the defaults. Unknown keys are
// an error.
func Decode(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, errors.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if len(cfg.Targets) == 0 {
		return Config{}, errors.Errorf("%s: targets must not be empty", path)
	}
	return cfg, nil
}
