// Package config loads run settings from a YAML file and converts them
// into engine settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/op/go-logging"
	"gopkg.in/yaml.v3"

	"bitbucket.org/Davydov/charphy/bmodel"
	"bitbucket.org/Davydov/charphy/chars"
	"bitbucket.org/Davydov/charphy/parsimony"
)

var log = logging.MustGetLogger("config")

var validate = validator.New()

// Config contains all run settings.
type Config struct {
	Alphabet   AlphabetConfig   `yaml:"alphabet"`
	Seed       int64            `yaml:"seed"`
	Threads    int              `yaml:"threads" validate:"gte=0"`
	Ratchet    RatchetConfig    `yaml:"ratchet"`
	Likelihood LikelihoodConfig `yaml:"likelihood"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// AlphabetConfig describes state symbols.
type AlphabetConfig struct {
	Symbols string `yaml:"symbols" validate:"min=2,max=32"`
	Missing string `yaml:"missing" validate:"len=1"`
}

// RatchetConfig contains parsimony ratchet settings.
type RatchetConfig struct {
	Iterations       int           `yaml:"iterations" validate:"gte=0"`
	MaxNoImprovement int           `yaml:"max_no_improvement" validate:"gte=0"`
	MaxTime          time.Duration `yaml:"max_time" validate:"gte=0"`
	Perturbation     string        `yaml:"perturbation" validate:"oneof=bootstrap upweight"`
	UpweightFraction float64       `yaml:"upweight_fraction" validate:"gte=0,lte=1"`
	UpweightFactor   int           `yaml:"upweight_factor" validate:"gte=1"`
	Moves            string        `yaml:"moves" validate:"oneof=nni spr"`
}

// LikelihoodConfig contains substitution model and optimization
// settings.
type LikelihoodConfig struct {
	Model         string        `yaml:"model" validate:"oneof=ER"`
	NCat          int           `yaml:"ncat" validate:"gte=1,lte=64"`
	Alpha         float64       `yaml:"alpha" validate:"gt=0"`
	Pi1           float64       `yaml:"pi1" validate:"gt=0,lt=1"`
	OptimizeFreq  bool          `yaml:"optimize_freq"`
	FixAlpha      bool          `yaml:"fix_alpha"`
	Ascertainment bool          `yaml:"ascertainment"`
	Method        string        `yaml:"method" validate:"oneof=lbfgsb simplex bfgs none"`
	Topology      bool          `yaml:"topology"`
	Tolerance     float64       `yaml:"tolerance" validate:"gte=0"`
	MaxCycles     int           `yaml:"max_cycles" validate:"gte=0"`
	MaxTime       time.Duration `yaml:"max_time" validate:"gte=0"`
}

// CheckpointConfig contains checkpoint settings.
type CheckpointConfig struct {
	File    string  `yaml:"file"`
	Seconds float64 `yaml:"seconds" validate:"gte=0"`
}

// Default returns the default configuration.
func Default() Config {
	r := parsimony.DefaultSettings()
	s := bmodel.DefaultSubstitution()
	l := bmodel.DefaultSettings()
	return Config{
		Alphabet: AlphabetConfig{
			Symbols: "01",
			Missing: "?",
		},
		Seed: r.Seed,
		Ratchet: RatchetConfig{
			Iterations:       r.Iterations,
			MaxNoImprovement: r.MaxNoImprovement,
			Perturbation:     r.Perturbation.String(),
			UpweightFraction: r.UpweightFraction,
			UpweightFactor:   r.UpweightFactor,
			Moves:            r.Moves.String(),
		},
		Likelihood: LikelihoodConfig{
			Model:     s.Name,
			NCat:      s.NCat,
			Alpha:     s.Alpha,
			Pi1:       s.Pi1,
			Method:    l.Method,
			Topology:  l.Topology,
			Tolerance: l.Tolerance,
			MaxCycles: l.MaxCycles,
		},
		Checkpoint: CheckpointConfig{
			Seconds: 60,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("load config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Infof("Loaded configuration from %s", path)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// CharAlphabet returns the character alphabet.
func (c Config) CharAlphabet() (chars.Alphabet, error) {
	return chars.NewAlphabet(c.Alphabet.Symbols, c.Alphabet.Missing[0])
}

// RatchetSettings returns the parsimony ratchet settings.
func (c Config) RatchetSettings() parsimony.Settings {
	s := parsimony.DefaultSettings()
	s.Iterations = c.Ratchet.Iterations
	s.MaxNoImprovement = c.Ratchet.MaxNoImprovement
	s.MaxTime = c.Ratchet.MaxTime
	if c.Ratchet.Perturbation == parsimony.Upweight.String() {
		s.Perturbation = parsimony.Upweight
	} else {
		s.Perturbation = parsimony.Bootstrap
	}
	s.UpweightFraction = c.Ratchet.UpweightFraction
	s.UpweightFactor = c.Ratchet.UpweightFactor
	if c.Ratchet.Moves == parsimony.SPR.String() {
		s.Moves = parsimony.SPR
	} else {
		s.Moves = parsimony.NNI
	}
	s.Workers = c.Threads
	s.Seed = c.Seed
	return s
}

// Substitution returns the substitution model.
func (c Config) Substitution() bmodel.Substitution {
	l := c.Likelihood
	return bmodel.Substitution{
		Name:          l.Model,
		NCat:          l.NCat,
		Alpha:         l.Alpha,
		Pi1:           l.Pi1,
		OptimizeFreq:  l.OptimizeFreq,
		FixAlpha:      l.FixAlpha,
		Ascertainment: l.Ascertainment,
	}
}

// LikelihoodSettings returns likelihood optimization settings.
func (c Config) LikelihoodSettings() bmodel.Settings {
	s := bmodel.DefaultSettings()
	s.Method = c.Likelihood.Method
	s.Topology = c.Likelihood.Topology
	s.Tolerance = c.Likelihood.Tolerance
	s.MaxCycles = c.Likelihood.MaxCycles
	s.MaxTime = c.Likelihood.MaxTime
	s.Workers = c.Threads
	return s
}
