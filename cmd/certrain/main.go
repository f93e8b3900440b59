// Command certrain is the reference driver for certifiable training
// runs: it trains the canonical XOR demo, replays a recorded chain log
// for an external audit, and inspects a checkpoint file. It is a thin
// collaborator (spec.md §4.9/§10) over the driver, merkle, and config
// packages; none of the core numerical packages import it.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	version = "dev" // set by build flags
)

var rootCmd = &cobra.Command{
	Use:   "certrain",
	Short: "Certifiable neural-network training driver",
	Long: `certrain trains and audits a deterministic, Merkle-chained
training run: every arithmetic operation, PRNG draw, batch selection, and
weight update is bit-exactly reproducible, and every step is chained into
a cryptographic record an external party can later verify.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "run.yaml", "training config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
