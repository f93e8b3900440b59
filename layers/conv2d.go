package layers

import (
	"github.com/sarchlab/certrain/compensated"
	"github.com/sarchlab/certrain/dvm"
	"github.com/sarchlab/certrain/fixedpoint"
)

// Conv2DConfig describes a direct (non-FFT) 2-D convolution's shape,
// grounded on original_source/src/layers/conv2d.c's ct_conv2d_config_t.
type Conv2DConfig struct {
	InChannels  uint32
	OutChannels uint32
	KernelH     uint32
	KernelW     uint32
	StrideH     uint32
	StrideW     uint32
	PaddingH    uint32
	PaddingW    uint32
}

// DefaultConv2DConfig returns the reference's 3x3/stride-1/same-padding
// default for the given channel counts.
func DefaultConv2DConfig(inChannels, outChannels uint32) Conv2DConfig {
	return Conv2DConfig{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelH:     3,
		KernelW:     3,
		StrideH:     1,
		StrideW:     1,
		PaddingH:    1,
		PaddingW:    1,
	}
}

// Conv2D is a direct convolution layer operating on [channels, height,
// width] tensors flattened into plain Q16.16 slices. It has no batch
// dimension: Conv2D operates one image at a time, the way
// ct_conv2d_forward does.
type Conv2D struct {
	Config  Conv2DConfig
	Weights []fixedpoint.Q16 // [out_channels, in_channels, kernel_h, kernel_w]
	Bias    []fixedpoint.Q16 // [out_channels]
}

// NewConv2D builds a Conv2D layer over caller-provided weight/bias
// buffers; WeightCount(cfg) and cfg.OutChannels size them.
func NewConv2D(cfg Conv2DConfig, weights, bias []fixedpoint.Q16) Conv2D {
	return Conv2D{Config: cfg, Weights: weights, Bias: bias}
}

// WeightCount returns the number of weight elements cfg's layer needs.
func WeightCount(cfg Conv2DConfig) uint32 {
	return cfg.OutChannels * cfg.InChannels * cfg.KernelH * cfg.KernelW
}

// OutputDim returns the convolution output size along one axis, per
// conv_output_dim in the reference: (in + 2*pad - kernel)/stride + 1.
func OutputDim(in, kernel, stride, padding uint32) uint32 {
	return (in+2*padding-kernel)/stride + 1
}

func (c Conv2D) weightIndex(oc, ic, kh, kw uint32) uint32 {
	cfg := c.Config
	return ((oc*cfg.InChannels+ic)*cfg.KernelH+kh)*cfg.KernelW + kw
}

// Forward runs the convolution over a single [InChannels, inH, inW]
// image into a [OutChannels, outH, outW] output buffer, zero-padding
// positions that fall outside the input.
func (c Conv2D) Forward(input []fixedpoint.Q16, inH, inW uint32, output []fixedpoint.Q16, f *fixedpoint.Fault) {
	cfg := c.Config
	ct := dvm.New()
	outH := OutputDim(inH, cfg.KernelH, cfg.StrideH, cfg.PaddingH)
	outW := OutputDim(inW, cfg.KernelW, cfg.StrideW, cfg.PaddingW)

	for oc := uint32(0); oc < cfg.OutChannels; oc++ {
		for oh := uint32(0); oh < outH; oh++ {
			for ow := uint32(0); ow < outW; ow++ {
				var acc compensated.Accumulator

				for ic := uint32(0); ic < cfg.InChannels; ic++ {
					for kh := uint32(0); kh < cfg.KernelH; kh++ {
						for kw := uint32(0); kw < cfg.KernelW; kw++ {
							ih := int64(oh*cfg.StrideH+kh) - int64(cfg.PaddingH)
							iw := int64(ow*cfg.StrideW+kw) - int64(cfg.PaddingW)
							if ih < 0 || ih >= int64(inH) || iw < 0 || iw >= int64(inW) {
								continue
							}

							inIdx := (ic*inH+uint32(ih))*inW + uint32(iw)
							wIdx := c.weightIndex(oc, ic, kh, kw)
							prod := int64(input[inIdx]) * int64(c.Weights[wIdx])
							acc = compensated.Add(acc, prod, f)
						}
					}
				}

				sum := compensated.Finalize(acc, f)
				convResult := fixedpoint.Q16(ct.RoundShiftRNE(sum, 16, f))
				outIdx := (oc*outH+oh)*outW + ow
				output[outIdx] = ct.Add(convResult, c.Bias[oc], f)
			}
		}
	}
}
