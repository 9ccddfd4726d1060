package preview

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gnolang/laic/internal"
	"github.com/gnolang/laic/internal/batch"
	"github.com/gnolang/laic/internal/bind"
	"github.com/gnolang/laic/internal/render"
	"github.com/gnolang/laic/internal/types"
)

// DefaultConfigFile is the configuration file looked up when none is given.
const DefaultConfigFile = ".laic.yaml"

// Config is the content of a .laic.yaml file.
type Config struct {
	Render    RenderSection                      `yaml:"render"`
	Renderer  render.Options                     `yaml:"renderer"`
	Languages map[string]internal.LanguageConfig `yaml:"languages,omitempty"`
	Cache     CacheSection                       `yaml:"cache"`
	Display   bind.Options                       `yaml:"display"`

	// Exclude lists paths, relative to each scanned directory, that are
	// never scanned.
	Exclude []string `yaml:"exclude,omitempty"`
}

// RenderSection is the document default render configuration.
type RenderSection struct {
	types.RenderConfig `yaml:",inline"`
	MaxRows            int `yaml:"max_rows"`
}

// CacheSection configures the artifact cache.
type CacheSection struct {
	Dir     string        `yaml:"dir"`
	Persist bool          `yaml:"persist"`
	MaxAge  time.Duration `yaml:"max_age,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Render: RenderSection{
			RenderConfig: types.RenderConfig{
				Packages:     []string{},
				DefaultColor: types.DefaultColor,
				DPI:          types.DefaultDPI,
			},
			MaxRows: batch.DefaultMaxRows,
		},
		Renderer: render.Options{
			Latex:   "latex",
			Dvipng:  "dvipng",
			Timeout: render.DefaultTimeout,
		},
		Cache: CacheSection{
			Dir:     ".laic-cache",
			Persist: true,
		},
	}
}

// LoadConfig reads the configuration at path over the defaults. A missing
// file yields the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		path = DefaultConfigFile
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return config, err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return config, nil
}

// WriteConfig writes config to path as YAML.
func WriteConfig(path string, config Config) error {
	d, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0o644)
}

// EngineConfig converts the file configuration for the engine.
func (c Config) EngineConfig() internal.Config {
	return internal.Config{
		Render:    c.Render.RenderConfig,
		Languages: c.Languages,
		MaxRows:   c.Render.MaxRows,
		Display:   c.Display,
	}
}
