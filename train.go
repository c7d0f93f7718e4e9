package resnet1d

import (
	"fmt"
	"os"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
)

// ParamsExcludedFromLoading are hyperparameters not restored from a checkpoint:
// they describe the run, not the model.
var ParamsExcludedFromLoading = []string{"train_steps", "num_checkpoints", ParamVerbose}

// CreateDefaultContext creates a context with the default hyperparameters for
// TrainModel. Any of them can be overridden with commandline.ParseContextSettings
// or ctx.SetParams before training.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.RngStateReset()
	ctx.SetParams(map[string]any{
		// Architecture.
		ParamBaseFilters: 64,
		ParamKernelSize:  16,
		ParamStride:      2,
		ParamNumBlocks:   10,
		ParamNumClasses:  4,
		ParamVerbose:     false,

		// Synthetic dataset.
		"num_train":      8000,
		"num_validation": 2000,
		"num_channels":   12,
		"signal_length":  200,
		"noise_stddev":   0.3,
		"data_seed":      42,

		// Training.
		"batch_size":      32,
		"eval_batch_size": 400,
		"train_steps":     2000,
		"num_checkpoints": 3,

		layers.ParamDropoutRate:      0.5,
		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 1e-3,
	})
	return ctx
}

// SignalsConfigFromContext reads the dataset hyperparameters from ctx.
func SignalsConfigFromContext(ctx *context.Context) SignalsConfig {
	sc := SignalsConfig{
		NumTrain:      context.GetParamOr(ctx, "num_train", 8000),
		NumValidation: context.GetParamOr(ctx, "num_validation", 2000),
		NumChannels:   context.GetParamOr(ctx, "num_channels", 12),
		NumLength:     context.GetParamOr(ctx, "signal_length", 200),
		NumClasses:    context.GetParamOr(ctx, ParamNumClasses, 4),
		NoiseStdDev:   context.GetParamOr(ctx, "noise_stddev", 0.3),
		Seed:          uint64(context.GetParamOr(ctx, "data_seed", 42)),
		BatchSize:     context.GetParamOr(ctx, "batch_size", 32),
		EvalBatchSize: context.GetParamOr(ctx, "eval_batch_size", 0),
	}
	if sc.BatchSize <= 0 {
		exceptions.Panicf("batch_size must be > 0 (maybe it was not set?): %d", sc.BatchSize)
	}
	if sc.EvalBatchSize <= 0 {
		sc.EvalBatchSize = sc.BatchSize
	}
	return sc
}

// TrainModel trains the residual network on the synthetic signals dataset, with
// hyperparameters given in ctx. If checkpointPath is not empty, the model (and its
// hyperparameters) are saved there and training resumes from a previous checkpoint
// if one exists; paramsSet lists hyperparameters overridden for this run, which
// are then not restored from the checkpoint.
func TrainModel(ctx *context.Context, dataDir, checkpointPath string, paramsSet []string, evaluateOnEnd bool) {
	dataDir = fsutil.MustReplaceTildeInDir(dataDir)
	if dataDir != "" && !fsutil.MustFileExists(dataDir) {
		must.M(os.MkdirAll(dataDir, 0777))
	}
	backend := backends.MustNew()

	// Validate the architecture before building anything.
	sc := SignalsConfigFromContext(ctx)
	must.M(ConfigFromContext(ctx, sc.NumChannels).Validate())

	trainDS, trainEvalDS, validationEvalDS := must.M3(sc.NewDatasets(backend))

	// Metrics we are interested in.
	meanAccuracyMetric := metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "#acc")
	movingAccuracyMetric := metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.01)

	// Create a train.Trainer: this object will orchestrate running the model, feeding
	// results to the optimizer, evaluating the metrics, etc. (all happens in trainer.TrainStep)
	trainer := train.NewTrainer(backend, ctx,
		ModelGraph,
		losses.SparseCategoricalCrossEntropyLogits,
		optimizers.FromContext(ctx),
		[]metrics.Interface{movingAccuracyMetric}, // trainMetrics
		[]metrics.Interface{meanAccuracyMetric})   // evalMetrics

	// Use standard training loop.
	loop := train.NewLoop(trainer)
	commandline.AttachProgressBar(loop) // Attaches a progress bar to the loop.

	// Checkpoints saving.
	var checkpoint *checkpoints.Handler
	if checkpointPath != "" {
		numCheckpointsToKeep := context.GetParamOr(ctx, "num_checkpoints", 3)
		checkpoint = must.M1(checkpoints.Build(ctx).
			DirFromBase(checkpointPath, dataDir).
			Keep(numCheckpointsToKeep).
			ExcludeParams(append(paramsSet, ParamsExcludedFromLoading...)...).
			Done())
		fmt.Printf("Checkpoint: %q\n", checkpoint.Dir())
	}

	// Loop for the given number of steps.
	numTrainSteps := context.GetParamOr(ctx, "train_steps", 0)
	globalStep := int(optimizers.GetGlobalStep(ctx))
	if globalStep > 0 {
		trainer.SetContext(ctx.Reuse())
	}
	if globalStep < numTrainSteps {
		_ = must.M1(loop.RunSteps(trainDS, numTrainSteps-globalStep))
		fmt.Printf("\t[Step %d] median train step: %d microseconds\n",
			loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())

		// Update batch normalization averages, if they are used.
		if batchnorm.UpdateAverages(trainer, trainEvalDS) {
			fmt.Println("\tUpdated batch normalization mean/variances averages.")
			if checkpoint != nil {
				must.M(checkpoint.Save())
			}
		}
	} else {
		fmt.Printf("\t - target train_steps=%d already reached. To train further, set a number additional "+
			"to current global step.\n", numTrainSteps)
	}

	// Finally, print an evaluation on the train and validation datasets.
	if evaluateOnEnd {
		fmt.Println()
		must.M(commandline.ReportEval(trainer, trainEvalDS, validationEvalDS))
		fmt.Println()
	}
}
