package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"StockPulse/internal/domain/models"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	DefaultSimulations = 5000
	DefaultDays        = 30
	TradingDaysPerYear = 252
)

var (
	// ErrInvalidInput is returned before any path is generated.
	ErrInvalidInput = errors.New("invalid simulation input")
	// ErrNonFinite is returned when the summarized distribution overflows.
	ErrNonFinite = errors.New("simulation produced non-finite values")
)

// Params describes one simulation run. Zero Simulations or Days fall back to
// the simulator defaults.
type Params struct {
	CurrentPrice   float64
	ExpectedReturn float64
	Volatility     float64
	Simulations    int
	Days           int
}

// Validate rejects inputs that would silently produce NaNs.
func (p Params) Validate() error {
	switch {
	case !finite(p.CurrentPrice) || p.CurrentPrice <= 0:
		return fmt.Errorf("%w: current price %v must be positive", ErrInvalidInput, p.CurrentPrice)
	case !finite(p.ExpectedReturn):
		return fmt.Errorf("%w: expected return %v", ErrInvalidInput, p.ExpectedReturn)
	case !finite(p.Volatility) || p.Volatility < 0:
		return fmt.Errorf("%w: volatility %v must be non-negative", ErrInvalidInput, p.Volatility)
	case p.Simulations < 1:
		return fmt.Errorf("%w: simulations %d", ErrInvalidInput, p.Simulations)
	case p.Days < 1:
		return fmt.Errorf("%w: days %d", ErrInvalidInput, p.Days)
	}
	return nil
}

// Simulator runs Geometric Brownian Motion price paths in parallel batches.
type Simulator struct {
	simulations int
	days        int
	workers     int
	batchSize   int
	newSource   func() rand.Source
}

type Option func(*Simulator)

// WithDefaults sets the path count and horizon used when Params leaves them zero.
func WithDefaults(simulations, days int) Option {
	return func(s *Simulator) {
		if simulations > 0 {
			s.simulations = simulations
		}
		if days > 0 {
			s.days = days
		}
	}
}

func WithWorkers(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBatchSize sets how many paths one worker generates between cancellation checks.
func WithBatchSize(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithSeed makes every Simulate call reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.newSource = func() rand.Source { return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15) }
	}
}

// WithSourceFactory injects the generator used when a call does not bring its own.
func WithSourceFactory(fn func() rand.Source) Option {
	return func(s *Simulator) {
		if fn != nil {
			s.newSource = fn
		}
	}
}

func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		simulations: DefaultSimulations,
		days:        DefaultDays,
		workers:     4,
		batchSize:   500,
		newSource: func() rand.Source {
			return rand.NewPCG(rand.Uint64(), rand.Uint64())
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Simulate runs p with the simulator's generator.
func (s *Simulator) Simulate(ctx context.Context, p Params) (models.SimulationResult, error) {
	return s.SimulateWithSource(ctx, p, nil)
}

// SimulateWithSource runs p drawing every shock from src. Each batch gets its
// own generator seeded from src in batch order, so results do not depend on
// goroutine scheduling.
func (s *Simulator) SimulateWithSource(ctx context.Context, p Params, src rand.Source) (models.SimulationResult, error) {
	if p.Simulations == 0 {
		p.Simulations = s.simulations
	}
	if p.Days == 0 {
		p.Days = s.days
	}
	if err := p.Validate(); err != nil {
		return models.SimulationResult{}, err
	}
	if src == nil {
		src = s.newSource()
	}
	seeds := rand.New(src)

	dt := 1.0 / TradingDaysPerYear
	drift := (p.ExpectedReturn - 0.5*p.Volatility*p.Volatility) * dt
	diffusion := p.Volatility * math.Sqrt(dt)

	finals := make([]float64, p.Simulations)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for start := 0; start < p.Simulations; start += s.batchSize {
		if gctx.Err() != nil {
			break
		}
		end := min(start+s.batchSize, p.Simulations)
		batchSrc := rand.NewPCG(seeds.Uint64(), seeds.Uint64())
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			z := distuv.Normal{Mu: 0, Sigma: 1, Src: batchSrc}
			for i := start; i < end; i++ {
				price := p.CurrentPrice
				for t := 1; t < p.Days; t++ {
					price *= math.Exp(drift + diffusion*z.Rand())
				}
				finals[i] = price
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.SimulationResult{}, fmt.Errorf("simulation interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return models.SimulationResult{}, fmt.Errorf("simulation interrupted: %w", err)
	}
	return summarize(finals)
}

func summarize(finals []float64) (models.SimulationResult, error) {
	sort.Float64s(finals)
	res := models.SimulationResult{
		ExpectedPrice30d: stat.Mean(finals, nil),
		WorstCase5pct:    stat.Quantile(0.05, stat.Empirical, finals, nil),
		BestCase95pct:    stat.Quantile(0.95, stat.Empirical, finals, nil),
	}
	if !finite(res.ExpectedPrice30d) || !finite(res.WorstCase5pct) || !finite(res.BestCase95pct) {
		return models.SimulationResult{}, ErrNonFinite
	}
	return res, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
