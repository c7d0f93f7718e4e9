// Package resnet1d implements a 1-D convolutional residual network for classifying
// multi-channel signal sequences (time series, sensor traces, ECG-style records).
//
// The architecture is a stack of pre-activation bottleneck blocks over a
// channels-first [batch, channels, length] layout, with dynamically computed "same"
// padding so any sequence length works, alternating length-halving and
// width-doubling blocks, and a global-average-pool softmax head.
//
// The model is expressed as gomlx graph-building functions: all weights live in a
// context.Context and are created once, on the first graph build. Concurrent
// forward passes over independent batches are safe only while no training step is
// mutating the context variables; that synchronization is the caller's
// responsibility.
package resnet1d

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Hyperparameter names understood by ConfigFromContext, and therefore by ModelGraph
// and the training driver.
const (
	ParamBaseFilters = "base_filters"
	ParamKernelSize  = "kernel_size"
	ParamStride      = "stride"
	ParamNumBlocks   = "n_block"
	ParamNumClasses  = "num_classes"
	ParamVerbose     = "verbose"
)

// Config fully determines the network architecture. All fields are fixed at
// construction time; only tensors flow per forward pass.
type Config struct {
	// InChannels is the number of channels of the input signal.
	InChannels int

	// BaseFilters is the channel width of the initial stage and of block 0; widths
	// double every other block after that.
	BaseFilters int

	// KernelSize and Stride are shared by every convolution in the network; Stride
	// only takes effect on downsampling blocks (and as their identity pool window).
	KernelSize int
	Stride     int

	// NumBlocks is the number of bottleneck blocks (>= 1).
	NumBlocks int

	// NumClasses is the size of the output distribution.
	NumClasses int

	// DropoutRate, when > 0, randomly zeroes activations inside the blocks during
	// training. It is a no-op at inference.
	DropoutRate float64

	// Verbose emits a shape trace of every stage while the graph is built.
	Verbose bool
}

// ConfigFromContext assembles a Config from hyperparameters stored in ctx,
// falling back to the defaults below. The input channel count comes from the data,
// not from a hyperparameter.
func ConfigFromContext(ctx *context.Context, inChannels int) Config {
	return Config{
		InChannels:  inChannels,
		BaseFilters: context.GetParamOr(ctx, ParamBaseFilters, 64),
		KernelSize:  context.GetParamOr(ctx, ParamKernelSize, 16),
		Stride:      context.GetParamOr(ctx, ParamStride, 2),
		NumBlocks:   context.GetParamOr(ctx, ParamNumBlocks, 10),
		NumClasses:  context.GetParamOr(ctx, ParamNumClasses, 2),
		DropoutRate: context.GetParamOr(ctx, layers.ParamDropoutRate, 0.5),
		Verbose:     context.GetParamOr(ctx, ParamVerbose, false),
	}
}

// Validate returns an error for configurations that could never build a valid
// network. It is cheap and should be called before any graph building, where the
// same mistakes would surface as panics instead.
func (c Config) Validate() error {
	if c.InChannels < 1 {
		return errors.Errorf("resnet1d: InChannels must be >= 1, got %d", c.InChannels)
	}
	if c.BaseFilters < 1 {
		return errors.Errorf("resnet1d: BaseFilters must be >= 1, got %d", c.BaseFilters)
	}
	if c.KernelSize < 1 {
		return errors.Errorf("resnet1d: KernelSize must be >= 1, got %d", c.KernelSize)
	}
	if c.Stride < 1 {
		return errors.Errorf("resnet1d: Stride must be >= 1, got %d", c.Stride)
	}
	if c.NumBlocks < 1 {
		return errors.Errorf("resnet1d: NumBlocks must be >= 1, got %d", c.NumBlocks)
	}
	if c.NumClasses < 2 {
		return errors.Errorf("resnet1d: NumClasses must be >= 2, got %d", c.NumClasses)
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return errors.Errorf("resnet1d: DropoutRate must be in [0, 1), got %g", c.DropoutRate)
	}
	for i := range c.NumBlocks {
		bc := BlockConfigForIndex(c, i)
		if bc.InChannels < 1 || bc.OutChannels < 1 {
			return errors.Errorf("resnet1d: block %d derives non-positive channels (in=%d, out=%d) -- "+
				"NumBlocks=%d overflows the width progression for BaseFilters=%d",
				i, bc.InChannels, bc.OutChannels, c.NumBlocks, c.BaseFilters)
		}
	}
	return nil
}

// BlockConfigs returns the derived per-block configurations, in execution order.
// The slice is freshly built on each call; the derivation itself is pure.
func (c Config) BlockConfigs() []BlockConfig {
	blocks := make([]BlockConfig, c.NumBlocks)
	for i := range blocks {
		blocks[i] = BlockConfigForIndex(c, i)
	}
	return blocks
}

func (c Config) trace(stage string, x *Node) {
	if c.Verbose {
		klog.Infof("resnet1d %s: %s", stage, x.Shape())
	}
}

// BuildLogits builds the network on x, shaped [batch, InChannels, length], up to
// and including the linear projection: the result is shaped [batch, NumClasses]
// and holds unnormalized class scores. Most losses want this node; see BuildGraph
// for the probability head.
func (c Config) BuildLogits(ctx *context.Context, x *Node) *Node {
	x.AssertRank(3)
	if x.Shape().Dimensions[1] != c.InChannels {
		exceptions.Panicf("resnet1d: input has %d channels, model configured for %d (input shape %s)",
			x.Shape().Dimensions[1], c.InChannels, x.Shape())
	}
	g := x.Graph()
	batchSize := x.Shape().Dimensions[0]

	var dropoutRate *Node
	if c.DropoutRate > 0 {
		dropoutRate = Scalar(g, x.DType(), c.DropoutRate)
	}

	c.trace("input", x)
	out := Conv1DPadSame(ctx.In("first_conv"), x, c.BaseFilters, c.KernelSize, 1)
	c.trace("after first conv", out)
	out = batchnorm.New(ctx.In("first_norm"), out, 1).Done()
	out = activations.Relu(out)

	for i, bc := range c.BlockConfigs() {
		if c.Verbose {
			klog.Infof("resnet1d block %d: in_channels=%d, out_channels=%d, downsample=%v",
				i, bc.InChannels, bc.OutChannels, bc.Downsample)
		}
		out = BottleneckBlock(ctx.Inf("%03d_block", i), out, bc, dropoutRate)
		c.trace("block output", out)
	}

	out = batchnorm.New(ctx.In("final_norm"), out, 1).Done()
	out = activations.Relu(out)
	out = ReduceMean(out, -1) // Global average pool over the length axis: [batch, channels].
	c.trace("after mean pool", out)
	logits := layers.DenseWithBias(ctx.In("dense"), out, c.NumClasses)
	logits.AssertDims(batchSize, c.NumClasses)
	c.trace("logits", logits)
	return logits
}

// BuildGraph builds the full network on x and returns the class distribution,
// shaped [batch, NumClasses]: rows are non-negative and sum to 1.
func (c Config) BuildGraph(ctx *context.Context, x *Node) *Node {
	probabilities := Softmax(c.BuildLogits(ctx, x))
	c.trace("softmax", probabilities)
	return probabilities
}

// ModelGraph implements train.ModelFn: it reads the architecture from the context
// hyperparameters (see Param* constants) and the channel count from the input
// itself, and returns the logits. inputs must hold a single tensor shaped
// [batch, channels, length].
func ModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec
	ctx = ctx.In("model")
	x := inputs[0]
	x.AssertRank(3)
	cfg := ConfigFromContext(ctx, x.Shape().Dimensions[1])
	return []*Node{cfg.BuildLogits(ctx, x)}
}
