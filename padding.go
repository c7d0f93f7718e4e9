package resnet1d

// This file implements the 1-D convolution and max-pooling operations with dynamic
// "same" padding: the padding amounts are recomputed from the current input length
// on every graph build, so the same layer works for sequences of any length.

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
)

// SamePadding returns the left/right zero-padding for a windowed operation over a
// sequence of length inputLen, such that the output length is ceil(inputLen/stride).
// When the total padding is odd, the extra unit goes to the right.
//
// Note this differs from the XLA "same" convention for even kernels, which puts the
// short half first; here the left side always gets the short half, matching the
// usual signal-processing layout.
func SamePadding(kernelSize, stride, inputLen int) (left, right int) {
	outLen := (inputLen + stride - 1) / stride
	total := (outLen-1)*stride + kernelSize - inputLen
	if total < 0 {
		total = 0
	}
	left = total / 2
	right = total - left
	return
}

// padLength zero-pads x (shaped [batch, channels, length]) on the length axis.
func padLength(x *Node, left, right int) *Node {
	if left == 0 && right == 0 {
		return x
	}
	zero := ScalarZero(x.Graph(), x.DType())
	return Pad(x, zero, PadAxis{}, PadAxis{}, PadAxis{Start: left, End: right})
}

// Conv1DPadSame applies a strided 1-D convolution with dynamic "same" padding.
//
// x must be shaped [batch, inChannels, length]; the result is shaped
// [batch, channels, ceil(length/stride)]. The kernel and bias variables are owned
// by ctx (in a "conv" sub-scope) and created on first use, so the same ctx scope
// can be executed with inputs of varying lengths.
func Conv1DPadSame(ctx *context.Context, x *Node, channels, kernelSize, stride int) *Node {
	x.AssertRank(3)
	left, right := SamePadding(kernelSize, stride, x.Shape().Dimensions[2])
	x = padLength(x, left, right)
	return layers.Convolution(ctx, x).
		ChannelsAxis(images.ChannelsFirst).
		Channels(channels).
		KernelSize(kernelSize).
		Strides(stride).
		NoPadding().
		Done()
}

// MaxPool1DPadSame applies a 1-D max-pooling with dynamic "same" padding.
//
// The padding is computed as for a stride-1 window, but the pooling itself moves by
// kernelSize (the PoolBuilder default), so x shaped [batch, channels, length]
// becomes [batch, channels, ceil(length/kernelSize)]. The padded border is zero,
// not -inf: a padded window can therefore never return a negative maximum, same as
// zero-padding the input before pooling.
func MaxPool1DPadSame(x *Node, kernelSize int) *Node {
	x.AssertRank(3)
	left, right := SamePadding(kernelSize, 1, x.Shape().Dimensions[2])
	x = padLength(x, left, right)
	return MaxPool(x).
		ChannelsAxis(images.ChannelsFirst).
		Window(kernelSize).
		NoPadding().
		Done()
}
