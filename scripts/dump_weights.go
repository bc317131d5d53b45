package main

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-lens/internal/encoder"
	"github.com/23skdu/longbow-lens/internal/encoder/weights"
)

// dump_weights prints a per-tensor summary of a raw weights file so it can be
// compared against the exporting framework. With -init it instead writes the
// seeded initialization of the chosen config to -weights.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	modelName := flag.String("model", "tiny", "Model config (tiny, base)")
	weightsPath := flag.String("weights", "bert_tiny.bin", "Path to weights binary")
	vocabSize := flag.Int("vocab-size", 0, "Override the config vocab size")
	seed := flag.Int64("seed", 0, "Override the init seed")
	initOnly := flag.Bool("init", false, "Write seeded weights instead of reading")
	flag.Parse()

	cfg, err := encoder.ConfigByName(*modelName)
	if err != nil {
		log.Fatal().Err(err).Msg("Unknown model")
	}
	if *vocabSize > 0 {
		cfg.VocabSize = *vocabSize
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	m, err := encoder.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build model")
	}
	loader := weights.NewLoader(m)

	if *initOnly {
		if err := loader.WriteRawBinary(*weightsPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to write weights")
		}
		log.Info().Str("path", *weightsPath).Str("model", *modelName).Msg("Wrote seeded weights")
		return
	}

	if err := loader.LoadFromRawBinary(*weightsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to load weights")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(loader.Summaries()); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode summary")
	}
}
