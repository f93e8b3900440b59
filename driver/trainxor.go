// Package driver orchestrates the numerical core and its collaborator
// layers/optimizers into runnable training and verification pipelines.
// It is the only package permitted to combine merkle, layers, optim, and
// permutation directly; nothing below it knows the others exist.
// Grounded on original_source/examples/train_xor.c and verify_step.c,
// styled on the teacher's driver.SyscallHandler — a struct holding the
// collaborators it orchestrates, built with functional options.
package driver

import (
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/layers"
	"github.com/sarchlab/certrain/merkle"
	"github.com/sarchlab/certrain/optim"
	"github.com/sarchlab/certrain/permutation"
	"github.com/sarchlab/certrain/prng"
	"github.com/sarchlab/certrain/status"
	"github.com/sarchlab/certrain/tensor"
)

// Sample is one labeled row of the XOR truth table.
type Sample struct {
	Inputs [2]fixedpoint.Q16
	Target fixedpoint.Q16
}

// xorDataset is the canonical four-row truth table, values in Q16.16.
var xorDataset = [4]Sample{
	{Inputs: [2]fixedpoint.Q16{0, 0}, Target: 0},
	{Inputs: [2]fixedpoint.Q16{0, fixedpoint.OneQ16}, Target: fixedpoint.OneQ16},
	{Inputs: [2]fixedpoint.Q16{fixedpoint.OneQ16, 0}, Target: fixedpoint.OneQ16},
	{Inputs: [2]fixedpoint.Q16{fixedpoint.OneQ16, fixedpoint.OneQ16}, Target: 0},
}

// TrainXORConfig configures the canonical 2-H-1 XOR demo.
type TrainXORConfig struct {
	Seed            uint64
	HiddenSize      uint32
	Epochs          uint32
	LearningRate    fixedpoint.Q16
	CheckpointEvery uint32
}

// DefaultTrainXORConfig mirrors the reference demo: 8 hidden units,
// 5000 epochs, lr=0.5, seed 0xDEADBEEFCAFEBABE, checkpointed every 500.
func DefaultTrainXORConfig() TrainXORConfig {
	return TrainXORConfig{
		Seed:            0xDEADBEEFCAFEBABE,
		HiddenSize:      8,
		Epochs:          5000,
		LearningRate:    32768, // 0.5 in Q16.16
		CheckpointEvery: 500,
	}
}

// Option configures a TrainXOR at construction.
type Option func(*TrainXORConfig)

// WithSeed overrides the PRNG seed used for both weight init and batch
// ordering.
func WithSeed(seed uint64) Option {
	return func(c *TrainXORConfig) { c.Seed = seed }
}

// WithHiddenSize overrides the hidden-layer width.
func WithHiddenSize(n uint32) Option {
	return func(c *TrainXORConfig) { c.HiddenSize = n }
}

// WithEpochs overrides the epoch count.
func WithEpochs(n uint32) Option {
	return func(c *TrainXORConfig) { c.Epochs = n }
}

// WithLearningRate overrides the SGD learning rate.
func WithLearningRate(lr fixedpoint.Q16) Option {
	return func(c *TrainXORConfig) { c.LearningRate = lr }
}

// WithCheckpointEvery overrides the checkpoint interval, in epochs.
func WithCheckpointEvery(n uint32) Option {
	return func(c *TrainXORConfig) { c.CheckpointEvery = n }
}

// EpochResult summarizes one completed epoch.
type EpochResult struct {
	Epoch       uint32
	AverageLoss fixedpoint.Q16
	ChainHash   [32]byte
}

// TrainXOR runs the canonical 2-input, H-hidden (ReLU), 1-output
// (sigmoid) network against the XOR truth table, committing a Merkle
// chain step after every sample and a checkpoint every
// Config.CheckpointEvery epochs.
type TrainXOR struct {
	Config TrainXORConfig

	linear1 layers.Linear
	act1    layers.Activation
	linear2 layers.Linear
	act2    layers.Activation
	sgd     *optim.SGD

	weights       []fixedpoint.Q16
	weightsTensor tensor.Tensor

	hiddenPre  []fixedpoint.Q16
	hiddenPost []fixedpoint.Q16

	Chain       merkle.Chain
	Checkpoints []merkle.Checkpoint

	batches    permutation.BatchContext
	globalStep uint64

	// StepHook, if set, is called after every committed chain step with
	// the emitted record and the batch indices that produced it (the
	// weights tensor aliases TrainXOR's live buffer, so a hook that
	// needs to retain weights must copy it). Used by cmd/certrain to log
	// a full, independently replayable record stream.
	StepHook func(step merkle.Step, weights tensor.Tensor, batchIndices []uint32)
}

// NewTrainXOR builds a trainer with randomly (but deterministically,
// from Config.Seed) initialized weights and an initialized Merkle
// chain. Returns status.Config if initialization raises a Domain fault.
// The batch context always covers the four XOR samples with a batch
// size of 1; no option changes either.
func NewTrainXOR(opts ...Option) (*TrainXOR, status.Status) {
	cfg := DefaultTrainXORConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	hidden := cfg.HiddenSize
	totalWeights := hidden*2 + hidden + hidden + 1

	weights := make([]fixedpoint.Q16, totalWeights)
	initXORWeights(weights, hidden, cfg.Seed)

	w1 := weights[0 : hidden*2]
	b1 := weights[hidden*2 : hidden*2+hidden]
	w2 := weights[hidden*2+hidden : hidden*2+hidden+hidden]
	b2 := weights[hidden*2+hidden+hidden:]

	t := &TrainXOR{
		Config:  cfg,
		linear1: layers.NewLinear(w1, b1, 2, hidden),
		act1:    layers.NewActivation(layers.ReLU, nil),
		linear2: layers.NewLinear(w2, b2, hidden, 1),
		act2:    layers.NewActivation(layers.Sigmoid, layers.NewSigmoidLUT()),
		sgd:     optim.NewSGD(optim.WithSGDConfig(optim.SGDConfig{LearningRate: cfg.LearningRate})),

		weights:    weights,
		hiddenPre:  make([]fixedpoint.Q16, hidden),
		hiddenPost: make([]fixedpoint.Q16, hidden),
	}
	t.weightsTensor = tensor.New1D(t.weights, totalWeights)

	var f fixedpoint.Fault
	t.Chain = merkle.Init(t.weightsTensor, []byte("xor_demo_v1"), cfg.Seed, &f)

	t.batches = permutation.NewBatchContext(cfg.Seed, 0, uint32(len(xorDataset)), 1, &f)
	if f.Domain {
		return nil, status.Config
	}

	return t, status.OK
}

// initXORWeights fills weights with the reference's init_weights ranges,
// drawn sequentially from a single PRNG stream: w1 in [-1, 1), b1 in
// [0, 0.1), w2 in [-0.5, 0.5), b2 == 0.
func initXORWeights(weights []fixedpoint.Q16, hidden uint32, seed uint64) {
	s := prng.Init(seed, 0)

	w1 := weights[0 : hidden*2]
	for i := range w1 {
		r := s.Next()
		w1[i] = fixedpoint.Q16(int32(r%131072) - 65536)
	}

	b1 := weights[hidden*2 : hidden*2+hidden]
	for i := range b1 {
		r := s.Next()
		b1[i] = fixedpoint.Q16(r % 6554)
	}

	w2 := weights[hidden*2+hidden : hidden*2+hidden+hidden]
	for i := range w2 {
		r := s.Next()
		w2[i] = fixedpoint.Q16(int32(r%65536) - 32768)
	}
	// b2 stays zero, matching the reference's near-zero output bias.
}

// RunEpoch runs one full pass over the XOR dataset (each sample its own
// single-element batch, in the order permutation.BatchContext assigns
// to the current global step), updating weights via SGD and committing
// one Merkle chain step after every sample. It returns the epoch's mean
// loss and sets Chain.Faulted if any DVM fault occurred.
func (t *TrainXOR) RunEpoch(epoch uint32, f *fixedpoint.Fault) EpochResult {
	t.batches.SetEpoch(epoch)

	var lossAcc int64
	batchIdx := make([]uint32, 1)
	for s := uint32(0); s < uint32(len(xorDataset)); s++ {
		t.batches.Indices(t.globalStep, batchIdx, f)
		sample := xorDataset[batchIdx[0]]

		loss := t.step(sample, f)
		lossAcc = dvmAddSat(lossAcc, int64(loss))

		step, committed := t.Chain.Advance(t.weightsTensor, batchIdx, f)
		if committed && t.StepHook != nil {
			t.StepHook(step, t.weightsTensor, batchIdx)
		}
		t.globalStep++
	}

	avg := fixedpoint.Q16(lossAcc / int64(len(xorDataset)))

	if epoch%t.Config.CheckpointEvery == 0 {
		cp := merkle.Create(t.Chain, prng.Init(t.Config.Seed, 0), epoch, t.weightsTensor, [32]byte{}, 0, f)
		t.Checkpoints = append(t.Checkpoints, cp)
	}

	return EpochResult{Epoch: epoch, AverageLoss: avg, ChainHash: t.Chain.CurrentHash}
}

// dvmAddSat is a tiny saturating add used only for loss-reporting
// accumulation, which never feeds back into a parameter update and so
// does not need the full fault-record contract.
func dvmAddSat(a, b int64) int64 {
	sum := a + b
	if (a >= 0) == (b >= 0) && (sum >= 0) != (a >= 0) {
		if a > 0 {
			return 1<<63 - 1
		}
		return -(1 << 63)
	}
	return sum
}

// step runs one sample's forward pass, backward pass, and SGD update,
// returning the sample's loss = (prediction-target)^2 / 2 in Q16.16.
func (t *TrainXOR) step(sample Sample, f *fixedpoint.Fault) fixedpoint.Q16 {
	input := tensor.New1D(sample.Inputs[:], 2)

	hiddenPreT := tensor.New1D(t.hiddenPre, t.Config.HiddenSize)
	t.linear1.Forward(input, hiddenPreT, f)

	hiddenPostT := tensor.New1D(t.hiddenPost, t.Config.HiddenSize)
	t.act1.Forward(hiddenPreT, hiddenPostT, f)

	var outPre, outPost [1]fixedpoint.Q16
	outPreT := tensor.New1D(outPre[:], 1)
	t.linear2.Forward(hiddenPostT, outPreT, f)

	outPostT := tensor.New1D(outPost[:], 1)
	t.act2.Forward(outPreT, outPostT, f)

	prediction := outPost[0]
	errVal := int64(prediction) - int64(sample.Target)
	if errVal > int64(fixedpoint.OneQ16) {
		errVal = int64(fixedpoint.OneQ16)
	}
	if errVal < -int64(fixedpoint.OneQ16) {
		errVal = -int64(fixedpoint.OneQ16)
	}
	loss := fixedpoint.Q16((errVal * errVal) >> 17)

	gradPred := fixedpoint.Widen16to8(fixedpoint.Q16(errVal))

	var gradPredBuf, gradOutPreBuf [1]fixedpoint.Q8
	gradPredT := tensor.GradNew1D(gradPredBuf[:], 1)
	gradPredT.Data[0] = gradPred

	gradOutPreT := tensor.GradNew1D(gradOutPreBuf[:], 1)
	t.act2.Backward(outPreT, outPostT, gradPredT, gradOutPreT, f)

	gradHiddenPost := make([]fixedpoint.Q8, t.Config.HiddenSize)
	gradW2 := make([]fixedpoint.Q8, t.Config.HiddenSize)
	gradB2 := make([]fixedpoint.Q8, 1)
	t.linear2.Backward(
		hiddenPostT,
		gradOutPreT,
		tensor.GradNew1D(gradHiddenPost, t.Config.HiddenSize),
		tensor.GradNew1D(gradW2, t.Config.HiddenSize),
		tensor.GradNew1D(gradB2, 1),
		f,
	)

	gradHiddenPre := make([]fixedpoint.Q8, t.Config.HiddenSize)
	t.act1.Backward(
		hiddenPreT,
		hiddenPostT,
		tensor.GradNew1D(gradHiddenPost, t.Config.HiddenSize),
		tensor.GradNew1D(gradHiddenPre, t.Config.HiddenSize),
		f,
	)

	gradW1 := make([]fixedpoint.Q8, t.Config.HiddenSize*2)
	gradB1 := make([]fixedpoint.Q8, t.Config.HiddenSize)
	gradInput := make([]fixedpoint.Q8, 2)
	t.linear1.Backward(
		input,
		tensor.GradNew1D(gradHiddenPre, t.Config.HiddenSize),
		tensor.GradNew1D(gradInput, 2),
		tensor.GradNew1D(gradW1, t.Config.HiddenSize*2),
		tensor.GradNew1D(gradB1, t.Config.HiddenSize),
		f,
	)

	t.sgd.Step(t.linear2.Weights.Data, gradW2, f)
	t.sgd.Step(t.linear2.Bias.Data, gradB2, f)
	t.sgd.Step(t.linear1.Weights.Data, gradW1, f)
	t.sgd.Step(t.linear1.Bias.Data, gradB1, f)

	return loss
}

// Predict runs a forward-only pass and returns the network's raw
// sigmoid output for a sample's inputs.
func (t *TrainXOR) Predict(inputs [2]fixedpoint.Q16, f *fixedpoint.Fault) fixedpoint.Q16 {
	input := tensor.New1D(inputs[:], 2)
	hiddenPreT := tensor.New1D(t.hiddenPre, t.Config.HiddenSize)
	t.linear1.Forward(input, hiddenPreT, f)

	hiddenPostT := tensor.New1D(t.hiddenPost, t.Config.HiddenSize)
	t.act1.Forward(hiddenPreT, hiddenPostT, f)

	var outPre, outPost [1]fixedpoint.Q16
	outPreT := tensor.New1D(outPre[:], 1)
	t.linear2.Forward(hiddenPostT, outPreT, f)
	outPostT := tensor.New1D(outPost[:], 1)
	t.act2.Forward(outPreT, outPostT, f)

	return outPost[0]
}
