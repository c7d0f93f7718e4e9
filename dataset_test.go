package resnet1d

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestGenerateSignals(t *testing.T) {
	signals, labels := GenerateSignals(30, 4, 50, 3, 0.3, 42)
	require.Equal(t, []int{30, 4, 50}, signals.Shape().Dimensions)
	require.Equal(t, dtypes.Float32, signals.DType())
	require.Equal(t, []int{30, 1}, labels.Shape().Dimensions)
	require.Equal(t, dtypes.Int32, labels.DType())

	// Classes are balanced and in range.
	counts := make([]int, 3)
	for _, label := range labels.Value().([][]int32) {
		require.GreaterOrEqual(t, label[0], int32(0))
		require.Less(t, label[0], int32(3))
		counts[label[0]]++
	}
	require.Equal(t, []int{10, 10, 10}, counts)

	// Same seed reproduces the data, a different seed doesn't.
	sameSignals, sameLabels := GenerateSignals(30, 4, 50, 3, 0.3, 42)
	require.Equal(t, signals.Value(), sameSignals.Value())
	require.Equal(t, labels.Value(), sameLabels.Value())
	otherSignals, _ := GenerateSignals(30, 4, 50, 3, 0.3, 43)
	require.NotEqual(t, signals.Value(), otherSignals.Value())
}

func TestNewDatasets(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	sc := SignalsConfig{
		NumTrain:      64,
		NumValidation: 32,
		NumChannels:   4,
		NumLength:     50,
		NumClasses:    3,
		NoiseStdDev:   0.3,
		Seed:          17,
		BatchSize:     8,
		EvalBatchSize: 16,
	}
	trainDS, trainEvalDS, validationEvalDS, err := sc.NewDatasets(backend)
	require.NoError(t, err)

	_, inputs, batchLabels, err := trainDS.Yield()
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Equal(t, []int{8, 4, 50}, inputs[0].Shape().Dimensions)
	require.Equal(t, []int{8, 1}, batchLabels[0].Shape().Dimensions)

	// Eval datasets are finite: one pass over the split, then exhaustion.
	seen := 0
	for {
		_, evalInputs, _, err := validationEvalDS.Yield()
		if err != nil {
			break
		}
		seen += evalInputs[0].Shape().Dimensions[0]
	}
	require.Equal(t, sc.NumValidation, seen)

	trainEvalDS.Reset()
	seen = 0
	for {
		_, evalInputs, _, err := trainEvalDS.Yield()
		if err != nil {
			break
		}
		seen += evalInputs[0].Shape().Dimensions[0]
	}
	require.Equal(t, sc.NumTrain, seen)
}
