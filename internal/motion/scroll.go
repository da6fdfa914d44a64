// internal/motion/scroll.go
package motion

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Scroll advances the page by roughly distance pixels (negative scrolls up)
// through a sequence of small wheel deltas with randomized magnitude and
// inter-step delay. Variance widens the per-step magnitude spread.
// Occasionally a step briefly reverses direction, imitating a reader
// hesitating. The caller clamps the requested distance to the surface.
func (s *Simulator) Scroll(ctx context.Context, distance, variance float64) error {
	if distance == 0 {
		return nil
	}

	s.mu.Lock()
	steps := s.cfg.ScrollStepMin + s.rng.Intn(s.cfg.ScrollStepMax-s.cfg.ScrollStepMin+1)
	pos := s.currentPos
	s.mu.Unlock()

	if pos.X < 0 || pos.Y < 0 {
		// Wheel events need a plausible cursor location.
		vp, err := s.executor.Viewport(ctx)
		if err != nil {
			vp = Viewport{Width: 1280, Height: 800}
		}
		pos = Vector2D{
			X: vp.Width/2 + s.jitter(vp.Width/6),
			Y: vp.Height/2 + s.jitter(vp.Height/6),
		}
		s.mu.Lock()
		s.currentPos = pos
		s.mu.Unlock()
	}

	base := distance / float64(steps)
	scrolled := 0.0

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		factor := 1.0 + (s.rng.Float64()-0.5)*2.0*variance
		reverse := s.rng.Float64() < s.cfg.ScrollReverseProb
		delaySpan := s.cfg.ScrollDelayMax - s.cfg.ScrollDelayMin
		delay := s.cfg.ScrollDelayMin + time.Duration(s.rng.Int63n(int64(delaySpan)+1))
		s.mu.Unlock()

		delta := base * factor

		if reverse && i > 0 && i < steps-1 {
			// A short counter-scroll, then continue; the lost ground is made
			// up by the remaining steps' base delta.
			back := -delta * 0.4
			if err := s.wheel(ctx, pos, back); err != nil {
				return err
			}
			scrolled += back
			if err := s.executor.Sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err := s.wheel(ctx, pos, delta); err != nil {
			return err
		}
		scrolled += delta

		if err := s.executor.Sleep(ctx, delay); err != nil {
			return err
		}
	}

	// Settle toward the requested distance if the random walk drifted far.
	if diff := distance - scrolled; math.Abs(diff) > math.Abs(base) {
		if err := s.wheel(ctx, pos, diff); err != nil {
			return err
		}
	}

	s.updateFatigue(0.3)
	return nil
}

// SlowScroll sweeps through totalHeight pixels in reading-sized chunks with
// pauses between them, triggering lazy-loaded content along the way.
func (s *Simulator) SlowScroll(ctx context.Context, totalHeight float64) error {
	const chunk = 420.0

	remaining := totalHeight
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := math.Min(chunk, remaining)
		if err := s.Scroll(ctx, step, 0.3); err != nil {
			return err
		}
		remaining -= step

		// Reading pause between chunks.
		if err := s.Pause(ctx, 600, 200); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) wheel(ctx context.Context, pos Vector2D, deltaY float64) error {
	err := s.executor.DispatchMouseEvent(ctx, MouseEventData{
		Type: MouseWheel, X: pos.X, Y: pos.Y, DeltaY: deltaY,
	})
	if err != nil {
		return fmt.Errorf("motion: failed to dispatch wheel event: %w", err)
	}
	return nil
}
