// Package logging provides the structured event logger drivers use to
// report step/fault/checkpoint events, grounded on
// jhkimqd-chaos-utils's pkg/reporting/logger.go. It never appears
// inside the L0-L7 numerical path: per spec.md §7, the fault record is
// the sole error-signalling channel there, and logging only observes
// decisions already made at a boundary.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/status"
)

// Level names the logger's minimum emitted severity.
type Level string

// Supported levels.
const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config configures a Logger at construction.
type Config struct {
	Level  Level
	Output io.Writer
}

// Logger wraps a zerolog.Logger with the field vocabulary this module's
// drivers need: step numbers, chain hashes, fault flags, checkpoint
// paths.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger from cfg. A nil Output defaults to os.Stdout.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	z := zerolog.New(out).With().Timestamp().Logger()
	switch cfg.Level {
	case LevelDebug:
		z = z.Level(zerolog.DebugLevel)
	case LevelWarn:
		z = z.Level(zerolog.WarnLevel)
	case LevelError:
		z = z.Level(zerolog.ErrorLevel)
	default:
		z = z.Level(zerolog.InfoLevel)
	}

	return &Logger{z: z}
}

// StepCommitted logs a successfully committed Merkle chain step.
func (l *Logger) StepCommitted(step uint64, epoch uint32, hash [32]byte) {
	l.z.Info().
		Uint64("step", step).
		Uint32("epoch", epoch).
		Hex("chain_hash", hash[:]).
		Msg("step committed")
}

// StepRejected logs a chain step refused for a fault or status reason.
func (l *Logger) StepRejected(step uint64, s status.Status, f fixedpoint.Fault) {
	l.z.Error().
		Uint64("step", step).
		Str("status", s.String()).
		Bool("overflow", f.Overflow).
		Bool("underflow", f.Underflow).
		Bool("div_zero", f.DivZero).
		Bool("domain", f.Domain).
		Bool("grad_floor", f.GradFloor).
		Msg("step rejected")
}

// ChainInvalidated logs the chain transitioning to the faulted state.
func (l *Logger) ChainInvalidated(step uint64) {
	l.z.Warn().Uint64("step", step).Msg("chain invalidated")
}

// CheckpointWritten logs a checkpoint's path and the step/epoch it snapshots.
func (l *Logger) CheckpointWritten(path string, step uint64, epoch uint32) {
	l.z.Info().
		Str("path", path).
		Uint64("step", step).
		Uint32("epoch", epoch).
		Msg("checkpoint written")
}

// EpochSummary logs one completed training epoch's mean loss.
func (l *Logger) EpochSummary(epoch uint32, lossQ16 int32) {
	l.z.Info().
		Uint32("epoch", epoch).
		Int32("loss_q16", lossQ16).
		Msg("epoch complete")
}

// VerifyResult logs the outcome of replaying a chain log.
func (l *Logger) VerifyResult(stepsChecked int, mismatchIndex int, s status.Status) {
	event := l.z.Info()
	if !s.OK() {
		event = l.z.Error()
	}
	event.
		Int("steps_checked", stepsChecked).
		Int("mismatch_index", mismatchIndex).
		Str("status", s.String()).
		Msg("chain verification finished")
}
