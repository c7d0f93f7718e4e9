package resnet1d

import (
	"testing"

	_ "github.com/gomlx/gomlx/backends/default"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	good := Config{
		InChannels:  12,
		BaseFilters: 64,
		KernelSize:  16,
		Stride:      3,
		NumBlocks:   10,
		NumClasses:  3,
	}
	require.NoError(t, good.Validate())

	for name, mutate := range map[string]func(*Config){
		"zero input channels": func(c *Config) { c.InChannels = 0 },
		"zero base filters":   func(c *Config) { c.BaseFilters = 0 },
		"zero kernel size":    func(c *Config) { c.KernelSize = 0 },
		"zero stride":         func(c *Config) { c.Stride = 0 },
		"zero blocks":         func(c *Config) { c.NumBlocks = 0 },
		"one class":           func(c *Config) { c.NumClasses = 1 },
		"dropout rate >= 1":   func(c *Config) { c.DropoutRate = 1.0 },
		"negative dropout":    func(c *Config) { c.DropoutRate = -0.1 },
	} {
		t.Run(name, func(t *testing.T) {
			bad := good
			mutate(&bad)
			require.Error(t, bad.Validate())
		})
	}
}

func TestResNetForward(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	cfg := Config{
		InChannels:  12,
		BaseFilters: 64,
		KernelSize:  16,
		Stride:      3,
		NumBlocks:   10,
		NumClasses:  3,
		DropoutRate: 0.5,
	}
	require.NoError(t, cfg.Validate())

	signals, _ := GenerateSignals(4, 12, 200, 3, 0.3, 42)
	ctx := context.New()
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, x *graph.Node) *graph.Node {
		return cfg.BuildGraph(ctx.In("model"), x)
	})

	output := exec.Call(signals)[0]
	require.Equal(t, []int{4, 3}, output.Shape().Dimensions)

	probabilities := output.Value().([][]float32)
	for row, p := range probabilities {
		var sum float32
		for _, v := range p {
			require.GreaterOrEqualf(t, v, float32(0), "row %d: %v", row, p)
			sum += v
		}
		require.InDeltaf(t, 1.0, sum, 1e-5, "row %d: %v", row, p)
	}

	// Outside of training the same input must map to the same output,
	// dropout included.
	again := exec.Call(signals)[0]
	require.Equal(t, output.Value(), again.Value())
}

func TestModelGraph(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		ParamBaseFilters: 8,
		ParamNumBlocks:   3,
		ParamNumClasses:  5,
	})

	signals, _ := GenerateSignals(2, 4, 60, 5, 0.3, 7)
	exec := context.NewExec(backend, ctx, func(ctx *context.Context, x *graph.Node) *graph.Node {
		return ModelGraph(ctx, nil, []*graph.Node{x})[0]
	})
	logits := exec.Call(signals)[0]
	require.Equal(t, []int{2, 5}, logits.Shape().Dimensions)
}
