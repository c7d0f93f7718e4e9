// Demo trainer for the 1-D signal ResNet: generates a synthetic multi-channel
// signals dataset and trains a classifier on it.
//
// Hyperparameters (architecture, dataset and training) can be overridden with
// --set, e.g.:
//
//	demo --checkpoint=~/tmp/resnet1d/base --set="n_block=16;base_filters=32;train_steps=5000"
package main

import (
	"flag"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/sailfish009/resnet1d"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagDataDir    = flag.String("data", "~/tmp/resnet1d", "Directory to hold checkpoints and generated files.")
	flagEval       = flag.Bool("eval", true, "Whether to evaluate the model on the validation data in the end.")
	flagVerbose    = flag.Bool("verbose", false, "Trace tensor shapes at each stage of the network while building it.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory to save and load checkpoints from. If left empty, no checkpoints are created.")
)

func main() {
	ctx := resnet1d.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	if *flagVerbose {
		ctx.SetParam(resnet1d.ParamVerbose, true)
	}
	err := exceptions.TryCatch[error](func() {
		resnet1d.TrainModel(ctx, *flagDataDir, *flagCheckpoint, paramsSet, *flagEval)
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}
