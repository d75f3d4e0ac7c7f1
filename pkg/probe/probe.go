// Package probe runs capability checks: startup health checks and the
// recorder's container negotiation.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// CheckFunc is a function that performs a health check.
// It returns nil if the check passes, or an error if it fails.
type CheckFunc func(ctx context.Context) error

// DefaultTimeout bounds a probe that does not set its own.
const DefaultTimeout = 5 * time.Second

// Probe represents a single check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool          // If true, a failure here should prevent startup.
	Timeout  time.Duration // Zero uses DefaultTimeout.
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes a list of probes and returns their results.
// It enforces a timeout for each check if the context doesn't already have one.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))

	for i, p := range probes {
		results[i] = runOne(ctx, p)
	}

	return results
}

// First runs probes in order and stops at the first one that passes.
// ok is false when none did; the returned slice holds every attempt.
func First(ctx context.Context, probes []Probe) (winner Result, attempts []Result, ok bool) {
	for _, p := range probes {
		if err := ctx.Err(); err != nil {
			break
		}
		r := runOne(ctx, p)
		attempts = append(attempts, r)
		if r.Error == nil {
			return r, attempts, true
		}
		slog.Debug("Probe: candidate rejected", "name", p.Name, "error", r.Error)
	}
	return Result{}, attempts, false
}

func runOne(ctx context.Context, p Probe) Result {
	start := time.Now()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// Individual probes must not hang even under a long-lived parent.
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.Check(checkCtx)
	return Result{
		Probe:    p,
		Error:    err,
		Duration: time.Since(start),
	}
}

// AnalyzeResults aggregates the results and returns a combined error if critical probes failed.
// It also logs the results using the provided logger or default slog.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Capability Checks Summary")

	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}

		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		if r.Error != nil {
			slog.Error(msg, "error", r.Error)
			if r.Probe.Critical {
				criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
			}
		} else {
			slog.Info(msg)
		}
	}

	if len(criticalErrors) > 0 {
		return errors.Join(criticalErrors...)
	}

	return nil
}
