package encoder

import "fmt"

// Config holds the shape of the encoder.
type Config struct {
	VocabSize        int   `yaml:"vocab_size"`
	HiddenSize       int   `yaml:"hidden_size"`
	NumLayers        int   `yaml:"num_layers"`
	NumHeads         int   `yaml:"num_heads"`
	IntermediateSize int   `yaml:"intermediate_size"`
	MaxPositions     int   `yaml:"max_positions"`
	Seed             int64 `yaml:"seed"`
}

// DefaultTinyConfig returns the configuration for BERT-Tiny.
func DefaultTinyConfig() Config {
	return Config{
		VocabSize:        30522,
		HiddenSize:       128,
		NumLayers:        2,
		NumHeads:         2,
		IntermediateSize: 512,
		MaxPositions:     512,
		Seed:             1,
	}
}

// DefaultBaseConfig returns a 12 layer, 12 head configuration matching the
// depth of the base-sized encoders probed in the layer 6..12 experiments.
func DefaultBaseConfig() Config {
	return Config{
		VocabSize:        30522,
		HiddenSize:       768,
		NumLayers:        12,
		NumHeads:         12,
		IntermediateSize: 3072,
		MaxPositions:     512,
		Seed:             1,
	}
}

// ConfigByName resolves a model type flag value.
func ConfigByName(name string) (Config, error) {
	switch name {
	case "tiny", "bert-tiny":
		return DefaultTinyConfig(), nil
	case "base", "bert-base":
		return DefaultBaseConfig(), nil
	default:
		return Config{}, fmt.Errorf("unknown model type: %s", name)
	}
}

// Validate checks that the head count divides the hidden size.
func (c Config) Validate() error {
	if c.NumLayers <= 0 || c.NumHeads <= 0 || c.HiddenSize <= 0 {
		return fmt.Errorf("invalid encoder config: layers=%d heads=%d hidden=%d", c.NumLayers, c.NumHeads, c.HiddenSize)
	}
	if c.HiddenSize%c.NumHeads != 0 {
		return fmt.Errorf("hidden size %d not divisible by %d heads", c.HiddenSize, c.NumHeads)
	}
	if c.VocabSize <= 0 || c.MaxPositions <= 0 || c.IntermediateSize <= 0 {
		return fmt.Errorf("invalid encoder config: vocab=%d positions=%d intermediate=%d", c.VocabSize, c.MaxPositions, c.IntermediateSize)
	}
	return nil
}
