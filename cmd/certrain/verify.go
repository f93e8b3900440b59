package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/certrain/driver"
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/logging"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Args:  cobra.NoArgs,
	Short: "Replay a chain log and confirm every step's hash is self-consistent",
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().String("chain", "chain.log", "chain log written by `certrain train`")
}

func runVerify(cmd *cobra.Command, args []string) error {
	chainPath, _ := cmd.Flags().GetString("chain")

	f, err := os.Open(chainPath)
	if err != nil {
		return fmt.Errorf("failed to open chain log: %w", err)
	}
	defer f.Close()

	genesis, records, err := readChainLog(f)
	if err != nil {
		return fmt.Errorf("failed to parse chain log: %w", err)
	}

	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level, Output: os.Stdout})

	var faults fixedpoint.Fault
	result := driver.VerifyStep(genesis, records, &faults)
	logger.VerifyResult(result.StepsChecked, result.MismatchIndex, result.Status)

	if !result.Status.OK() {
		return fmt.Errorf("chain verification failed at record %d of %d: %s",
			result.MismatchIndex, len(records), result.Status)
	}

	fmt.Printf("chain log %q: %d steps verified, all hashes consistent\n", chainPath, result.StepsChecked)
	return nil
}
