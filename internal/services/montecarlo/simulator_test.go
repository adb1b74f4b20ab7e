package montecarlo

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateZeroVolatilityZeroReturn(t *testing.T) {
	sim := NewSimulator(WithSeed(7))
	res, err := sim.Simulate(context.Background(), Params{
		CurrentPrice: 150, ExpectedReturn: 0, Volatility: 0, Simulations: 100, Days: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, res.ExpectedPrice30d)
	assert.Equal(t, 150.0, res.WorstCase5pct)
	assert.Equal(t, 150.0, res.BestCase95pct)
}

func TestSimulateZeroVolatilityFollowsDrift(t *testing.T) {
	sim := NewSimulator(WithSeed(7))
	res, err := sim.Simulate(context.Background(), Params{
		CurrentPrice: 100, ExpectedReturn: 0.05, Volatility: 0, Simulations: 50, Days: 10,
	})
	require.NoError(t, err)
	want := 100 * math.Pow(math.Exp(0.05/252), 9)
	assert.InDelta(t, want, res.ExpectedPrice30d, 1e-9)
	assert.Equal(t, res.WorstCase5pct, res.BestCase95pct)
	assert.InDelta(t, res.ExpectedPrice30d, res.WorstCase5pct, 1e-9)
}

func TestSimulateStatisticalProperties(t *testing.T) {
	sim := NewSimulator(WithSeed(42))
	price, r, vol := 150.0, 0.04, 0.06
	res, err := sim.Simulate(context.Background(), Params{
		CurrentPrice: price, ExpectedReturn: r, Volatility: vol, Simulations: 5000, Days: 30,
	})
	require.NoError(t, err)
	assert.InEpsilon(t, price*math.Exp(r), res.ExpectedPrice30d, 0.05)
	assert.LessOrEqual(t, res.WorstCase5pct, res.ExpectedPrice30d)
	assert.LessOrEqual(t, res.ExpectedPrice30d, res.BestCase95pct)
	assert.Less(t, res.WorstCase5pct, res.BestCase95pct)
}

func TestSimulateDefaults(t *testing.T) {
	sim := NewSimulator(WithSeed(1), WithDefaults(200, 3))
	res, err := sim.Simulate(context.Background(), Params{CurrentPrice: 10, ExpectedReturn: 0, Volatility: 0})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.ExpectedPrice30d)
}

func TestSimulateReproducibleAcrossWorkerCounts(t *testing.T) {
	p := Params{CurrentPrice: 80, ExpectedReturn: 0.1, Volatility: 0.3, Simulations: 1200, Days: 30}

	a, err := NewSimulator(WithWorkers(1), WithBatchSize(100)).SimulateWithSource(context.Background(), p, rand.NewPCG(3, 4))
	require.NoError(t, err)
	b, err := NewSimulator(WithWorkers(8), WithBatchSize(100)).SimulateWithSource(context.Background(), p, rand.NewPCG(3, 4))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := NewSimulator(WithSeed(9)).Simulate(context.Background(), p)
	require.NoError(t, err)
	d, err := NewSimulator(WithSeed(9)).Simulate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, c, d)
}

func TestSimulateRejectsInvalidInput(t *testing.T) {
	sim := NewSimulator()
	tests := []struct {
		name string
		p    Params
	}{
		{"negative volatility", Params{CurrentPrice: 100, Volatility: -0.1, Simulations: 10, Days: 5}},
		{"zero price", Params{CurrentPrice: 0, Volatility: 0.1, Simulations: 10, Days: 5}},
		{"nan return", Params{CurrentPrice: 100, ExpectedReturn: math.NaN(), Simulations: 10, Days: 5}},
		{"infinite volatility", Params{CurrentPrice: 100, Volatility: math.Inf(1), Simulations: 10, Days: 5}},
		{"negative simulations", Params{CurrentPrice: 100, Simulations: -1, Days: 5}},
		{"negative days", Params{CurrentPrice: 100, Simulations: 10, Days: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Simulate(context.Background(), tt.p)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestSimulateObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimulator(WithSeed(1)).Simulate(ctx, Params{CurrentPrice: 100, ExpectedReturn: 0.01, Volatility: 0.2})
	assert.ErrorIs(t, err, context.Canceled)
}

// cancelingSource cancels the run after a fixed number of draws.
type cancelingSource struct {
	src    rand.Source
	after  int
	draws  int
	cancel context.CancelFunc
}

func (c *cancelingSource) Uint64() uint64 {
	c.draws++
	if c.draws == c.after {
		c.cancel()
	}
	return c.src.Uint64()
}

func TestSimulateStopsAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Each batch draws two seeds, so cancellation lands while seeding batch 10 of 100.
	src := &cancelingSource{src: rand.NewPCG(3, 4), after: 20, cancel: cancel}
	sim := NewSimulator(
		WithWorkers(1),
		WithBatchSize(500),
		WithSourceFactory(func() rand.Source { return src }),
	)

	_, err := sim.Simulate(ctx, Params{CurrentPrice: 100, ExpectedReturn: 0.01, Volatility: 0.2, Simulations: 50000, Days: 30})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 20, src.draws)
}

func TestSimulateSourceFactoryIsReproducible(t *testing.T) {
	factory := func() rand.Source { return rand.NewPCG(11, 12) }
	p := Params{CurrentPrice: 50, ExpectedReturn: 0.03, Volatility: 0.3, Simulations: 2000, Days: 20}

	a, err := NewSimulator(WithSourceFactory(factory), WithWorkers(4)).Simulate(context.Background(), p)
	require.NoError(t, err)
	b, err := NewSimulator(WithSourceFactory(factory), WithWorkers(1), WithBatchSize(500)).Simulate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSimulateSingleDayHorizon(t *testing.T) {
	res, err := NewSimulator(WithSeed(5)).Simulate(context.Background(), Params{
		CurrentPrice: 42, ExpectedReturn: 0.2, Volatility: 0.5, Simulations: 10, Days: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.ExpectedPrice30d)
}
