package resnet1d

// Synthetic labeled signals, so the model can be trained and evaluated without any
// external data: each class is a family of sinusoids with a class-specific
// frequency, random phase, a fixed phase lag between channels and additive
// Gaussian noise.

import (
	"math"
	"math/rand/v2"

	"github.com/gomlx/gomlx/backends"
	data "github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// SignalsConfig configures the synthetic dataset generation and batching.
type SignalsConfig struct {
	NumTrain      int
	NumValidation int

	NumChannels int
	NumLength   int
	NumClasses  int

	// NoiseStdDev is the standard deviation of the Gaussian noise added to every
	// sample point.
	NoiseStdDev float64

	// Seed makes generation deterministic; the validation split uses Seed+1.
	Seed uint64

	BatchSize     int
	EvalBatchSize int
}

// GenerateSignals synthesizes numSamples labeled signals. It returns the signals
// shaped [numSamples, numChannels, numLength] (float32) and the labels shaped
// [numSamples, 1] (int32, values in [0, numClasses)), with classes balanced.
func GenerateSignals(numSamples, numChannels, numLength, numClasses int, noiseStdDev float64, seed uint64) (signals, labels *tensors.Tensor) {
	src := rand.NewPCG(seed, seed)
	rng := rand.New(src)
	noise := distuv.Normal{Mu: 0, Sigma: noiseStdDev, Src: src}

	flat := make([]float32, numSamples*numChannels*numLength)
	classes := make([]int32, numSamples)
	const channelLag = math.Pi / 4
	pos := 0
	for sample := 0; sample < numSamples; sample++ {
		class := sample % numClasses
		classes[sample] = int32(class)
		frequency := float64(class + 1)
		phase := rng.Float64() * 2 * math.Pi
		for channel := 0; channel < numChannels; channel++ {
			offset := phase + float64(channel)*channelLag
			for t := 0; t < numLength; t++ {
				value := math.Sin(2*math.Pi*frequency*float64(t)/float64(numLength) + offset)
				if noiseStdDev > 0 {
					value += noise.Rand()
				}
				flat[pos] = float32(value)
				pos++
			}
		}
	}
	signals = tensors.FromFlatDataAndDimensions(flat, numSamples, numChannels, numLength)
	labels = tensors.FromFlatDataAndDimensions(classes, numSamples, 1)
	return
}

// NewDatasets generates the train and validation splits and wraps them as
// in-memory datasets: trainDS shuffles, loops forever and drops incomplete
// batches; the two eval datasets run through their split exactly once per epoch.
func (sc SignalsConfig) NewDatasets(backend backends.Backend) (trainDS, trainEvalDS, validationEvalDS *data.InMemoryDataset, err error) {
	trainX, trainY := GenerateSignals(sc.NumTrain, sc.NumChannels, sc.NumLength, sc.NumClasses, sc.NoiseStdDev, sc.Seed)
	validX, validY := GenerateSignals(sc.NumValidation, sc.NumChannels, sc.NumLength, sc.NumClasses, sc.NoiseStdDev, sc.Seed+1)

	trainDS, err = data.InMemoryFromData(backend, "train", []any{trainX}, []any{trainY})
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "failed to create train dataset")
	}
	validationEvalDS, err = data.InMemoryFromData(backend, "validation", []any{validX}, []any{validY})
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "failed to create validation dataset")
	}

	trainEvalDS = trainDS.Copy().BatchSize(sc.EvalBatchSize, false)
	validationEvalDS.BatchSize(sc.EvalBatchSize, false)
	trainDS.Shuffle().Infinite(true).BatchSize(sc.BatchSize, true)
	return
}
