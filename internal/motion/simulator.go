// -- internal/motion/simulator.go --
package motion

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/config"
)

// maxVelocity defines the maximum physiological pointer velocity
// (pixels per second).
const maxVelocity = 6000.0

// Simulator manages the state and execution of human-like input. It is
// stateful (cursor position, fatigue) and safe for use from a single
// traversal loop; the mutex guards the rng for callers that share it.
type Simulator struct {
	cfg      config.MotionConfig
	logger   *zap.Logger
	executor Executor

	mu         sync.Mutex
	currentPos Vector2D

	// Fatigue ranges from 0.0 (rested) to 1.0 (exhausted) and stretches the
	// timing parameters as a session wears on.
	fatigueLevel float64

	rng    *rand.Rand
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
}

// New creates a Simulator seeded from the wall clock.
func New(cfg config.MotionConfig, logger *zap.Logger, exec Executor) *Simulator {
	seed := time.Now().UnixNano()
	return NewWithRand(cfg, logger, exec, rand.New(rand.NewSource(seed)), seed)
}

// NewWithRand creates a Simulator with an injected random source. Tests use
// this with a fixed seed for deterministic trajectories.
func NewWithRand(cfg config.MotionConfig, logger *zap.Logger, exec Executor, rng *rand.Rand, noiseSeed int64) *Simulator {
	// Standard Perlin parameters; offset seed for the Y axis so the drift
	// components are uncorrelated.
	alpha, beta, n := 2.0, 2.0, int32(3)
	return &Simulator{
		cfg:      cfg,
		logger:   logger.Named("motion"),
		executor: exec,
		// Start with an off-surface position; the first move initializes it.
		currentPos: Vector2D{X: -1, Y: -1},
		rng:        rng,
		noiseX:     perlin.NewPerlin(alpha, beta, n, noiseSeed),
		noiseY:     perlin.NewPerlin(alpha, beta, n, noiseSeed+1),
	}
}

// CurrentPos returns the simulator's notion of the cursor position.
func (s *Simulator) CurrentPos() Vector2D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPos
}

// Pause sleeps for a normally distributed cognitive pause. Fatigue makes
// pauses longer; pauses in turn recover fatigue.
func (s *Simulator) Pause(ctx context.Context, meanMs, stdDevMs float64) error {
	s.mu.Lock()
	fatigueFactor := 1.0 + s.fatigueLevel
	duration := time.Duration(fatigueFactor*(meanMs+s.rng.NormFloat64()*stdDevMs)) * time.Millisecond
	s.mu.Unlock()

	if duration <= 0 {
		return nil
	}
	s.recoverFatigue(duration)
	return s.executor.Sleep(ctx, duration)
}

// Break inserts a long idle rest, drawn uniformly from the configured band.
// The navigation loop calls this periodically to break up traffic cadence.
func (s *Simulator) Break(ctx context.Context) error {
	s.mu.Lock()
	span := s.cfg.BreakMax - s.cfg.BreakMin
	duration := s.cfg.BreakMin + time.Duration(s.rng.Int63n(int64(span)+1))
	s.mu.Unlock()

	s.logger.Info("Taking an idle break", zap.Duration("duration", duration))
	s.recoverFatigue(duration)
	return s.executor.Sleep(ctx, duration)
}

// jitter returns a uniform random value in [-spread, spread].
func (s *Simulator) jitter(spread float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.rng.Float64() - 0.5) * 2.0 * spread
}

// applyNoise combines Perlin drift (low-frequency wander) with Gaussian
// perturbation (high-frequency tremor) on top of an ideal path point.
func (s *Simulator) applyNoise(point Vector2D, t float64) Vector2D {
	s.mu.Lock()
	defer s.mu.Unlock()

	fatigueFactor := 1.0 + s.fatigueLevel
	strength := s.cfg.GaussianStrength * fatigueFactor * (0.5 + s.rng.Float64())
	pX := s.rng.NormFloat64() * strength
	pY := s.rng.NormFloat64() * strength

	amp := s.cfg.PerlinAmplitude * fatigueFactor
	driftX := s.noiseX.Noise1D(t*0.8) * amp
	driftY := s.noiseY.Noise1D(t*0.8) * amp

	return Vector2D{X: point.X + pX + driftX, Y: point.Y + pY + driftY}
}

// updateFatigue raises the fatigue level according to action intensity.
func (s *Simulator) updateFatigue(intensity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatigueLevel = math.Min(1.0, s.fatigueLevel+0.01*intensity)
}

// recoverFatigue lowers the fatigue level in proportion to idle time.
func (s *Simulator) recoverFatigue(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatigueLevel = math.Max(0.0, s.fatigueLevel-0.005*d.Seconds())
}
