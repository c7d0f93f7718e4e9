package resnet1d

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
)

// BlockConfig describes one residual bottleneck block. All fields are fixed at
// network construction; see BlockConfigForIndex for how they are derived.
type BlockConfig struct {
	InChannels, OutChannels int
	KernelSize, Stride      int

	// Downsample selects whether the first convolution uses Stride (shrinking the
	// sequence to ceil(length/Stride)) and the identity branch is max-pooled to match.
	Downsample bool

	// IsFirstBlock skips the pre-activation (norm/relu/dropout) before the first
	// convolution: the network's initial stage has just normalized and activated.
	IsFirstBlock bool
}

// BlockConfigForIndex derives the configuration of block index (0-based) from the
// network Config. The progression alternates "downsample, keep width" (odd indices)
// and "same length, double width" (even indices > 0):
//
//	block 0:   in = out = BaseFilters, no downsample.
//	block i>0: in = BaseFilters * 2^((i-1)/2); downsample iff i is odd;
//	           out = in when downsampling, else 2*in.
//
// This derivation determines the channel-padding of every identity branch, and so
// the shapes that must align on every residual addition.
func BlockConfigForIndex(cfg Config, index int) BlockConfig {
	bc := BlockConfig{
		KernelSize:   cfg.KernelSize,
		Stride:       cfg.Stride,
		Downsample:   index%2 == 1,
		IsFirstBlock: index == 0,
	}
	if index == 0 {
		bc.InChannels = cfg.BaseFilters
		bc.OutChannels = cfg.BaseFilters
		return bc
	}
	bc.InChannels = cfg.BaseFilters * (1 << ((index - 1) / 2))
	if bc.Downsample {
		bc.OutChannels = bc.InChannels
	} else {
		bc.OutChannels = 2 * bc.InChannels
	}
	return bc
}

// channelPadSplit splits the number of zero channels to insert around the identity
// branch. The extra channel of an odd delta goes after, so the original channels
// stay centered.
func channelPadSplit(delta int) (before, after int) {
	before = delta / 2
	after = delta - before
	return
}

// identityBranch adapts x, shaped [batch, bc.InChannels, length], to the shape of
// the block's main branch: max-pooled by bc.Stride when downsampling, and expanded
// to bc.OutChannels with zero channels split around the originals.
func identityBranch(x *Node, bc BlockConfig) *Node {
	if bc.Downsample {
		x = MaxPool1DPadSame(x, bc.Stride)
	}
	if delta := bc.OutChannels - bc.InChannels; delta > 0 {
		before, after := channelPadSplit(delta)
		zero := ScalarZero(x.Graph(), x.DType())
		x = Pad(x, zero, PadAxis{}, PadAxis{Start: before, End: after})
	}
	return x
}

// BottleneckBlock builds one residual unit on x, shaped [batch, bc.InChannels, length].
//
// Main branch: (norm → relu → dropout, unless IsFirstBlock) → conv1 (stride bc.Stride
// when Downsample, else 1) → norm → relu → dropout → conv2 (stride 1). Identity
// branch: max-pooled when Downsample, zero-padded on the channel axis when
// OutChannels > InChannels. The two branches are added elementwise.
//
// dropoutRate may be nil to disable regularization; when set, it only takes effect
// while ctx is in training mode.
func BottleneckBlock(ctx *context.Context, x *Node, bc BlockConfig, dropoutRate *Node) *Node {
	x.AssertRank(3)
	if x.Shape().Dimensions[1] != bc.InChannels {
		exceptions.Panicf("BottleneckBlock: input has %d channels, block configured for %d",
			x.Shape().Dimensions[1], bc.InChannels)
	}
	if bc.OutChannels < bc.InChannels {
		exceptions.Panicf("BottleneckBlock: OutChannels (%d) must be >= InChannels (%d), the identity branch can only be expanded",
			bc.OutChannels, bc.InChannels)
	}

	identity := x
	out := x
	if !bc.IsFirstBlock {
		out = batchnorm.New(ctx.In("norm1"), out, 1).Done()
		out = activations.Relu(out)
		if dropoutRate != nil {
			out = layers.Dropout(ctx.In("dropout1"), out, dropoutRate)
		}
	}
	convStride := 1
	if bc.Downsample {
		convStride = bc.Stride
	}
	out = Conv1DPadSame(ctx.In("conv1"), out, bc.OutChannels, bc.KernelSize, convStride)

	out = batchnorm.New(ctx.In("norm2"), out, 1).Done()
	out = activations.Relu(out)
	if dropoutRate != nil {
		out = layers.Dropout(ctx.In("dropout2"), out, dropoutRate)
	}
	out = Conv1DPadSame(ctx.In("conv2"), out, bc.OutChannels, bc.KernelSize, 1)

	identity = identityBranch(identity, bc)

	// Both branches must agree exactly before the residual addition; a mismatch here
	// is a violation of the progression rule, not bad user input.
	out.AssertDims(identity.Shape().Dimensions...)
	return Add(out, identity)
}
