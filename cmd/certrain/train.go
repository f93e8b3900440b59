package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/certrain/config"
	"github.com/sarchlab/certrain/driver"
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/logging"
	"github.com/sarchlab/certrain/merkle"
	"github.com/sarchlab/certrain/metrics"
	"github.com/sarchlab/certrain/status"
	"github.com/sarchlab/certrain/tensor"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Args:  cobra.NoArgs,
	Short: "Run the canonical XOR training demo and emit a chain log",
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().Uint32("checkpoint-every", 0, "checkpoint interval in epochs (0 = use config default)")
	trainCmd.Flags().String("out", "chain.log", "path to write the chain log")
	trainCmd.Flags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address while training")
}

func runTrain(cmd *cobra.Command, args []string) error {
	checkpointEvery, _ := cmd.Flags().GetUint32("checkpoint-every")
	outPath, _ := cmd.Flags().GetString("out")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level, Output: os.Stdout})
	rec := metrics.New()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rec.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		defer srv.Close()
	}

	opts := []driver.Option{
		driver.WithSeed(cfg.Seed),
		driver.WithLearningRate(cfg.LearningRate()),
		driver.WithEpochs(cfg.Epochs),
	}
	if checkpointEvery > 0 {
		opts = append(opts, driver.WithCheckpointEvery(checkpointEvery))
	}

	trainer, st := driver.NewTrainXOR(opts...)
	if !st.OK() {
		return fmt.Errorf("failed to construct trainer: %s", st)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to open chain log %q: %w", outPath, err)
	}
	defer out.Close()

	log := newChainLogWriter(out)
	if err := log.WriteGenesis(trainer.Chain.InitialHash); err != nil {
		return fmt.Errorf("failed to write genesis hash: %w", err)
	}

	var writeErr error
	trainer.StepHook = func(step merkle.Step, weights tensor.Tensor, batch []uint32) {
		if writeErr != nil {
			return
		}
		weightsCopy := make([]fixedpoint.Q16, weights.TotalSize)
		copy(weightsCopy, weights.Data[:weights.TotalSize])
		batchCopy := append([]uint32(nil), batch...)
		writeErr = log.WriteRecord(step, tensor.New1D(weightsCopy, weights.TotalSize), batchCopy)
		rec.StepsCommitted.Inc()
	}

	checkpointsSeen := 0
	for epoch := uint32(0); epoch < cfg.Epochs; epoch++ {
		var f fixedpoint.Fault
		result := trainer.RunEpoch(epoch, &f)

		rec.ObserveFault(f.Overflow, f.Underflow, f.DivZero, f.Domain, f.GradFloor)
		rec.CurrentEpoch.Set(float64(epoch))

		if writeErr != nil {
			return fmt.Errorf("failed to write chain log: %w", writeErr)
		}
		if f.HasFault() {
			rec.StepsRejected.Inc()
			rec.ChainInvalidations.Inc()
			logger.StepRejected(trainer.Chain.Step, status.Fault, f)
			return fmt.Errorf("training aborted: fault raised during epoch %d", epoch)
		}

		for ; checkpointsSeen < len(trainer.Checkpoints); checkpointsSeen++ {
			cp := trainer.Checkpoints[checkpointsSeen]
			rec.CheckpointsWritten.Inc()
			logger.CheckpointWritten(outPath, cp.Step, cp.Epoch)
		}

		logger.EpochSummary(epoch, int32(result.AverageLoss))
	}

	if err := log.Flush(); err != nil {
		return fmt.Errorf("failed to flush chain log: %w", err)
	}

	logger.StepCommitted(trainer.Chain.Step, trainer.Chain.Epoch, trainer.Chain.CurrentHash)
	fmt.Printf("training complete: step=%d hash=%x\n", trainer.Chain.Step, trainer.Chain.CurrentHash)
	return nil
}
