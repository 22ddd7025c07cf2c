package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "constfold.yaml"

type Config struct {
	Fold struct {
		Prefix            string `yaml:"prefix"`
		MaxConstantBytes  int    `yaml:"max_constant_bytes"`
		Parallelism       int    `yaml:"parallelism"`
		MaterializeShapes bool   `yaml:"materialize_shapes"`
	} `yaml:"fold"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text or json
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Fold.Prefix = "ConstantFolding"
	cfg.Fold.MaxConstantBytes = 10 << 20
	cfg.Fold.Parallelism = 1
	cfg.Fold.MaterializeShapes = true
	cfg.Storage.DBPath = "constfold.db"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return &cfg
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config over the defaults; a missing file keeps them
	cfg := Default()
	file, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, err
		}
	}

	// 3. Override with Environment Variables if present
	cfg.Fold.Prefix = env.Str("CONSTFOLD_PREFIX", cfg.Fold.Prefix)
	cfg.Fold.MaxConstantBytes = env.Int("CONSTFOLD_MAX_CONSTANT_BYTES", cfg.Fold.MaxConstantBytes)
	cfg.Fold.Parallelism = env.Int("CONSTFOLD_PARALLELISM", cfg.Fold.Parallelism)
	if env.Has("CONSTFOLD_MATERIALIZE_SHAPES") {
		cfg.Fold.MaterializeShapes = env.Bool("CONSTFOLD_MATERIALIZE_SHAPES")
	}
	cfg.Storage.DBPath = env.Str("CONSTFOLD_DB_PATH", cfg.Storage.DBPath)
	cfg.Log.Level = env.Str("CONSTFOLD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = env.Str("CONSTFOLD_LOG_FORMAT", cfg.Log.Format)

	return cfg, nil
}
