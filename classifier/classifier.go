// Package classifier serves a trained signal classification model for inference.
//
// It loads a checkpoint produced by resnet1d.TrainModel -- the architecture
// hyperparameters travel with the checkpoint, so the exact same network is rebuilt
// -- and offers a Classify method for single signals.
package classifier

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/sailfish009/resnet1d"
)

// Classifier holds the signal model compiled for inference.
// It will use XLA with GPU if available or CPU by default; the backend can be
// configured with GOMLX_BACKEND.
type Classifier struct {
	// backend is created with defaults, which uses GOMLX_BACKEND if it is set.
	backend backends.Backend

	// ctx with the model's weights.
	ctx *context.Context

	// exec is used to execute the model with a context.
	exec *context.Exec
}

// New creates a Classifier from a checkpoint directory written by TrainModel.
func New(checkpointDir string) (*Classifier, error) {
	c := &Classifier{
		backend: backends.MustNew(),
		ctx:     context.New(),
	}

	// All hyperparameters are read from the checkpoint, so the exact same model is
	// rebuilt. The handler is not kept: the classifier never saves.
	_, err := checkpoints.Load(c.ctx).
		Dir(checkpointDir).
		Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed while loading signal model from %q", checkpointDir)
	}
	c.ctx = c.ctx.Reuse() // It will be an error to create a new variable -- for extra sanity checking.

	// Create the model executor: probabilities plus the top class.
	c.exec = context.MustNewExec(c.backend, c.ctx.In("model"),
		func(ctx *context.Context, signal *graph.Node) []*graph.Node {
			signal = graph.ExpandAxes(signal, 0) // Create a batch dimension of size 1.
			cfg := resnet1d.ConfigFromContext(ctx, signal.Shape().Dimensions[1])
			probabilities := cfg.BuildGraph(ctx, signal)
			choice := graph.ArgMax(probabilities, -1, dtypes.Int32)
			return []*graph.Node{
				graph.Reshape(choice), // No dimensions given, means a scalar.
				graph.Reshape(probabilities, -1),
			}
		})
	return c, nil
}

// Classify takes one signal shaped [channels, length] (float32) and returns the
// predicted class along with the full probability distribution over classes.
func (c *Classifier) Classify(signal *tensors.Tensor) (class int32, probabilities []float32, err error) {
	var outputs []*tensors.Tensor
	err = exceptions.TryCatch[error](func() { outputs = c.exec.MustExec(signal) })
	if err != nil {
		return 0, nil, err
	}
	class = tensors.ToScalar[int32](outputs[0])
	probabilities = tensors.CopyFlatData[float32](outputs[1])
	return
}
