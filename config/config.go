// Package config loads and validates training run configuration,
// grounded on jhkimqd-chaos-utils's pkg/config package: a struct with
// yaml tags, a DefaultConfig constructor, Load/Save against a path, and
// a Validate pass run before anything else touches the config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/certrain/fixedpoint"
)

// Optimizer names the optimizer family a run uses.
type Optimizer string

// Supported optimizer choices.
const (
	OptimizerSGD         Optimizer = "sgd"
	OptimizerSGDMomentum Optimizer = "sgd_momentum"
	OptimizerAdam        Optimizer = "adam"
)

// Training is the on-disk shape of a training run's configuration. Field
// order here is the canonical field order CanonicalBytes encodes in,
// independent of the YAML source's key order.
type Training struct {
	Seed            uint64    `yaml:"seed"`
	Layers          []uint32  `yaml:"layers"`
	Optimizer       Optimizer `yaml:"optimizer"`
	LearningRateQ16 int32     `yaml:"learning_rate_q16"`
	BatchSize       uint32    `yaml:"batch_size"`
	Epochs          uint32    `yaml:"epochs"`
}

// DefaultTraining mirrors the canonical XOR demo run.
func DefaultTraining() *Training {
	return &Training{
		Seed:            3735928559,
		Layers:          []uint32{2, 2, 1},
		Optimizer:       OptimizerSGD,
		LearningRateQ16: 6553,
		BatchSize:       4,
		Epochs:          500,
	}
}

// Load reads and parses a YAML training configuration from path. If
// path does not exist, Load returns DefaultTraining without error —
// matching the teacher's "missing file falls back to defaults" Load
// contract.
func Load(path string) (*Training, error) {
	cfg := DefaultTraining()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read training config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse training config: %w", err)
	}

	return cfg, nil
}

// Save marshals c back to YAML at path.
func (c *Training) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal training config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write training config: %w", err)
	}
	return nil
}

// Validate checks that c describes a runnable training configuration.
func (c *Training) Validate() error {
	if len(c.Layers) < 2 {
		return fmt.Errorf("layers must name at least an input and output size")
	}
	for _, size := range c.Layers {
		if size == 0 {
			return fmt.Errorf("layer sizes must be nonzero")
		}
	}
	switch c.Optimizer {
	case OptimizerSGD, OptimizerSGDMomentum, OptimizerAdam:
	default:
		return fmt.Errorf("unknown optimizer %q", c.Optimizer)
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch_size must be nonzero")
	}
	if c.Epochs == 0 {
		return fmt.Errorf("epochs must be nonzero")
	}
	return nil
}

// LearningRate returns the configured learning rate as a Q16.16 value.
func (c *Training) LearningRate() fixedpoint.Q16 {
	return fixedpoint.Q16(c.LearningRateQ16)
}

func writeU64LE(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

func writeU32LE(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

// CanonicalBytes encodes c in a fixed field order — seed, layer count,
// layers, optimizer tag, learning rate, batch size, epochs — so that
// two configs with identical values hash identically regardless of how
// their YAML source ordered keys or formatted whitespace. Nothing in this
// module passes it to merkle.Init: driver.NewTrainXOR commits the fixed
// config string "xor_demo_v1" at genesis instead.
func (c *Training) CanonicalBytes() []byte {
	buf := make([]byte, 0, 8+4+4*len(c.Layers)+4+4+4+4)

	var seedBuf [8]byte
	writeU64LE(seedBuf[:], c.Seed)
	buf = append(buf, seedBuf[:]...)

	var countBuf [4]byte
	writeU32LE(countBuf[:], uint32(len(c.Layers)))
	buf = append(buf, countBuf[:]...)

	for _, size := range c.Layers {
		var sizeBuf [4]byte
		writeU32LE(sizeBuf[:], size)
		buf = append(buf, sizeBuf[:]...)
	}

	buf = append(buf, []byte(c.Optimizer)...)
	buf = append(buf, 0) // NUL terminator, fixing the optimizer tag's length

	var lrBuf [4]byte
	writeU32LE(lrBuf[:], uint32(c.LearningRateQ16))
	buf = append(buf, lrBuf[:]...)

	var batchBuf [4]byte
	writeU32LE(batchBuf[:], c.BatchSize)
	buf = append(buf, batchBuf[:]...)

	var epochBuf [4]byte
	writeU32LE(epochBuf[:], c.Epochs)
	buf = append(buf, epochBuf[:]...)

	return buf
}
