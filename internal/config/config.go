package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/23skdu/longbow-lens/internal/extract"
)

type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Output     OutputConfig     `yaml:"output"`
	Publish    PublishConfig    `yaml:"publish"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ModelConfig struct {
	Name    string `yaml:"name"`    // tiny | base
	Vocab   string `yaml:"vocab"`   // vocab.txt; empty builds one from the problem texts
	Weights string `yaml:"weights"` // raw float32 weights; empty keeps seeded init
	Seed    int64  `yaml:"seed"`

	ONNX extract.ONNXConfig `yaml:"onnx"`
}

type ExperimentConfig struct {
	Problems string `yaml:"problems"` // YAML problem set; empty uses the builtin set
	Layers   []int  `yaml:"layers"`   // 1-based
	Heads    []int  `yaml:"heads"`    // 0-based
	Workers  int    `yaml:"workers"`
	Cache    bool   `yaml:"cache"`
}

type OutputConfig struct {
	Results string `yaml:"results"`
	Plots   string `yaml:"plots"`
	CSV     string `yaml:"csv"`
}

type PublishConfig struct {
	Server      string        `yaml:"server"` // Longbow Flight address; empty disables publishing
	Dataset     string        `yaml:"dataset"`
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
	Backoff     time.Duration `yaml:"backoff"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Model.Name == "" {
		cfg.Model.Name = "base"
	}
	if len(cfg.Experiment.Layers) == 0 {
		cfg.Experiment.Layers = []int{6, 7, 8, 9, 10, 11, 12}
	}
	if len(cfg.Experiment.Heads) == 0 {
		cfg.Experiment.Heads = []int{0, 1, 2, 3}
	}
	if cfg.Experiment.Workers <= 0 {
		cfg.Experiment.Workers = 1
	}
	if cfg.Output.Results == "" {
		cfg.Output.Results = "results"
	}
	if cfg.Output.Plots == "" {
		cfg.Output.Plots = "plots"
	}
	if cfg.Output.CSV == "" {
		cfg.Output.CSV = "attention_analysis_summary.csv"
	}
	if cfg.Publish.Dataset == "" {
		cfg.Publish.Dataset = "lens_attention"
	}
	if cfg.Publish.MaxFailures <= 0 {
		cfg.Publish.MaxFailures = 3
	}
	if cfg.Publish.Cooldown == 0 {
		cfg.Publish.Cooldown = 30 * time.Second
	}
	if cfg.Publish.Backoff == 0 {
		cfg.Publish.Backoff = time.Second
	}
	if cfg.Publish.Timeout == 0 {
		cfg.Publish.Timeout = 60 * time.Second
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxConcurrent <= 0 {
		cfg.Server.MaxConcurrent = 64
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	for _, l := range c.Experiment.Layers {
		if l < 1 {
			return fmt.Errorf("layers are 1-based, got %d", l)
		}
	}
	for _, h := range c.Experiment.Heads {
		if h < 0 {
			return fmt.Errorf("negative head index %d", h)
		}
	}
	return nil
}

// ZeroBasedLayers converts the configured 1-based layers to indices.
func (c *Config) ZeroBasedLayers() []int {
	out := make([]int, len(c.Experiment.Layers))
	for i, l := range c.Experiment.Layers {
		out[i] = l - 1
	}
	return out
}
