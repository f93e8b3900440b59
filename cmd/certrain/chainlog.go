package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sarchlab/certrain/driver"
	"github.com/sarchlab/certrain/fixedpoint"
	"github.com/sarchlab/certrain/merkle"
	"github.com/sarchlab/certrain/tensor"
)

// chainLogWriter appends one record per committed training step to an
// underlying writer, in a format driver.VerifyStep can replay without
// trusting any of the recorded hashes: every hash in the record is
// recomputed from the logged weights and batch indices at verify time.
//
// Record layout (all integers little-endian):
//
//	prev_hash     32 bytes
//	weights_hash  32 bytes
//	batch_hash    32 bytes
//	step_number   u64
//	step_hash     32 bytes
//	weights_len   u32   (count of i32 elements)
//	weights       weights_len x i32
//	batch_len     u32
//	batch         batch_len x u32
type chainLogWriter struct {
	w *bufio.Writer
}

func newChainLogWriter(w io.Writer) *chainLogWriter {
	return &chainLogWriter{w: bufio.NewWriter(w)}
}

func (c *chainLogWriter) WriteGenesis(hash [32]byte) error {
	_, err := c.w.Write(hash[:])
	return err
}

func (c *chainLogWriter) WriteRecord(step merkle.Step, weights tensor.Tensor, batch []uint32) error {
	var fixed [32 + 32 + 32 + 8 + 32]byte
	copy(fixed[0:32], step.PrevHash[:])
	copy(fixed[32:64], step.WeightsHash[:])
	copy(fixed[64:96], step.BatchHash[:])
	binary.LittleEndian.PutUint64(fixed[96:104], step.StepNumber)
	copy(fixed[104:136], step.StepHash[:])
	if _, err := c.w.Write(fixed[:]); err != nil {
		return err
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(weights.TotalSize))
	if _, err := c.w.Write(lenBuf[:]); err != nil {
		return err
	}
	var elemBuf [4]byte
	for i := uint32(0); i < weights.TotalSize; i++ {
		binary.LittleEndian.PutUint32(elemBuf[:], uint32(weights.Data[i]))
		if _, err := c.w.Write(elemBuf[:]); err != nil {
			return err
		}
	}

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(batch)))
	if _, err := c.w.Write(lenBuf[:]); err != nil {
		return err
	}
	for _, idx := range batch {
		binary.LittleEndian.PutUint32(elemBuf[:], idx)
		if _, err := c.w.Write(elemBuf[:]); err != nil {
			return err
		}
	}

	return nil
}

func (c *chainLogWriter) Flush() error {
	return c.w.Flush()
}

// readChainLog parses a full record stream written by chainLogWriter,
// returning the genesis hash and every record in order.
func readChainLog(r io.Reader) (genesis [32]byte, records []driver.ChainRecord, err error) {
	br := bufio.NewReader(r)

	if _, err = io.ReadFull(br, genesis[:]); err != nil {
		return genesis, nil, fmt.Errorf("failed to read genesis hash: %w", err)
	}

	for {
		var fixed [136]byte
		if _, err = io.ReadFull(br, fixed[:]); err != nil {
			if err == io.EOF {
				err = nil
				break
			}
			return genesis, nil, fmt.Errorf("failed to read record header: %w", err)
		}

		var step merkle.Step
		copy(step.PrevHash[:], fixed[0:32])
		copy(step.WeightsHash[:], fixed[32:64])
		copy(step.BatchHash[:], fixed[64:96])
		step.StepNumber = binary.LittleEndian.Uint64(fixed[96:104])
		copy(step.StepHash[:], fixed[104:136])

		var lenBuf [4]byte
		if _, err = io.ReadFull(br, lenBuf[:]); err != nil {
			return genesis, nil, fmt.Errorf("failed to read weights length: %w", err)
		}
		weightsLen := binary.LittleEndian.Uint32(lenBuf[:])
		weights := make([]fixedpoint.Q16, weightsLen)
		for i := range weights {
			var eb [4]byte
			if _, err = io.ReadFull(br, eb[:]); err != nil {
				return genesis, nil, fmt.Errorf("failed to read weight element: %w", err)
			}
			weights[i] = fixedpoint.Q16(binary.LittleEndian.Uint32(eb[:]))
		}

		if _, err = io.ReadFull(br, lenBuf[:]); err != nil {
			return genesis, nil, fmt.Errorf("failed to read batch length: %w", err)
		}
		batchLen := binary.LittleEndian.Uint32(lenBuf[:])
		batch := make([]uint32, batchLen)
		for i := range batch {
			var eb [4]byte
			if _, err = io.ReadFull(br, eb[:]); err != nil {
				return genesis, nil, fmt.Errorf("failed to read batch element: %w", err)
			}
			batch[i] = binary.LittleEndian.Uint32(eb[:])
		}

		records = append(records, driver.ChainRecord{
			Step:         step,
			Weights:      tensor.New1D(weights, weightsLen),
			BatchIndices: batch,
		})
	}

	return genesis, records, nil
}
