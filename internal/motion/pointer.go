// internal/motion/pointer.go
package motion

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Click moves the pointer toward (x, y) along a curved multi-step path, then
// presses and releases with a randomized hold duration. The caller is
// responsible for clamping coordinates to the visible surface. The sequence
// runs its randomized delays to completion and is interruptible only through
// ctx.
func (s *Simulator) Click(ctx context.Context, x, y float64) error {
	target := Vector2D{X: x, Y: y}

	s.mu.Lock()
	approachDist := s.currentPos.Dist(target)
	s.mu.Unlock()

	if err := s.moveTo(ctx, target); err != nil {
		return err
	}

	// Fitts's-law terminal latency before the press, scaled by the distance
	// the approach covered.
	if err := s.executor.Sleep(ctx, s.terminalDelay(approachDist)); err != nil {
		return err
	}

	// Press with residual jitter; real clicks rarely land on the exact pixel
	// the approach ended on.
	pressPos := Vector2D{X: target.X + s.jitter(1.5), Y: target.Y + s.jitter(1.5)}
	if err := s.executor.DispatchMouseEvent(ctx, MouseEventData{
		Type: MousePress, X: pressPos.X, Y: pressPos.Y,
		Button: ButtonLeft, ClickCount: 1,
	}); err != nil {
		return fmt.Errorf("motion: failed to dispatch mousedown: %w", err)
	}

	s.mu.Lock()
	holdSpan := s.cfg.ClickHoldMax - s.cfg.ClickHoldMin
	hold := s.cfg.ClickHoldMin + time.Duration(s.rng.Int63n(int64(holdSpan)+1))
	s.mu.Unlock()
	if err := s.executor.Sleep(ctx, hold); err != nil {
		return err
	}

	if err := s.executor.DispatchMouseEvent(ctx, MouseEventData{
		Type: MouseRelease, X: pressPos.X, Y: pressPos.Y,
		Button: ButtonLeft, ClickCount: 1,
	}); err != nil {
		return fmt.Errorf("motion: failed to dispatch mouseup: %w", err)
	}

	s.updateFatigue(0.5)
	return nil
}

// moveTo walks the pointer from its current position to the target through a
// Bezier path deformed by noise.
func (s *Simulator) moveTo(ctx context.Context, target Vector2D) error {
	s.mu.Lock()
	start := s.currentPos
	s.mu.Unlock()

	// Unknown position: teleporting once at session start is indistinguishable
	// from the OS placing the cursor.
	if start.X < 0 || start.Y < 0 {
		start = target.Add(Vector2D{X: s.jitter(120), Y: s.jitter(120)})
	}

	path := s.generatePath(start, target)
	startTime := time.Now()

	for i, point := range path {
		if err := ctx.Err(); err != nil {
			return err
		}

		noisy := point
		if i < len(path)-1 {
			// The final point lands exactly on target.
			noisy = s.applyNoise(point, time.Since(startTime).Seconds())
		}

		if err := s.executor.DispatchMouseEvent(ctx, MouseEventData{
			Type: MouseMove, X: noisy.X, Y: noisy.Y,
		}); err != nil {
			return fmt.Errorf("motion: failed to dispatch mouse move: %w", err)
		}

		if i < len(path)-1 {
			// Deceleration toward the target: velocity shrinks as the
			// remaining distance does.
			remaining := path[i+1].Dist(target)
			total := start.Dist(target)
			frac := 1.0
			if total > 1e-9 {
				frac = remaining / total
			}
			velocity := math.Max(300.0, maxVelocity*(1.0-frac*0.7))
			stepDist := path[i+1].Dist(point)
			sleep := time.Duration(stepDist / velocity * float64(time.Second))
			if sleep < 4*time.Millisecond {
				sleep = 4 * time.Millisecond
			}
			if err := s.executor.Sleep(ctx, sleep); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	s.currentPos = target
	s.mu.Unlock()
	s.updateFatigue(0.1)
	return nil
}

// generatePath builds a cubic Bezier trajectory between two points with
// randomized control-point offsets perpendicular to the direct line.
func (s *Simulator) generatePath(start, end Vector2D) []Vector2D {
	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	if dist < 1.0 {
		return []Vector2D{end}
	}

	numSteps := int(math.Max(8.0, math.Min(dist/12.0, 60.0)))
	mainDir := mainVec.Normalize()
	perpDir := Vector2D{X: -mainDir.Y, Y: mainDir.X}

	s.mu.Lock()
	bend1 := (s.rng.Float64() - 0.5) * dist * 0.25
	bend2 := (s.rng.Float64() - 0.5) * dist * 0.25
	s.mu.Unlock()

	p0, p3 := start, end
	p1 := start.Add(mainDir.Mul(dist / 3.0)).Add(perpDir.Mul(bend1))
	p2 := start.Add(mainDir.Mul(dist * 2.0 / 3.0)).Add(perpDir.Mul(bend2))

	path := make([]Vector2D, 0, numSteps+1)
	for i := 0; i <= numSteps; i++ {
		t := float64(i) / float64(numSteps)
		c0 := math.Pow(1-t, 3)
		c1 := 3 * math.Pow(1-t, 2) * t
		c2 := 3 * (1 - t) * math.Pow(t, 2)
		c3 := math.Pow(t, 3)
		path = append(path, Vector2D{
			X: c0*p0.X + c1*p1.X + c2*p2.X + c3*p3.X,
			Y: c0*p0.Y + c1*p1.Y + c2*p2.Y + c3*p3.Y,
		})
	}
	return path
}

// terminalDelay computes the pre-click latency from Fitts's law:
// MT = A + B * log2(1 + D/W).
func (s *Simulator) terminalDelay(distance float64) time.Duration {
	// Assumed target width for the terminal phase.
	const w = 20.0
	id := math.Log2(1.0 + distance/w)

	s.mu.Lock()
	fatigueFactor := 1.0 + s.fatigueLevel
	mt := (s.cfg.FittsA + s.cfg.FittsB*id) * fatigueFactor
	// +/- 10% variation.
	mt += (s.rng.Float64() - 0.5) * mt * 0.2
	s.mu.Unlock()

	if mt < 50 {
		mt = 50
	}
	return time.Duration(mt) * time.Millisecond
}
