package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	probes := []Probe{
		{
			Name: "Success Probe",
			Check: func(ctx context.Context) error {
				return nil
			},
			Critical: true,
		},
		{
			Name: "Failure Probe (Non-Critical)",
			Check: func(ctx context.Context) error {
				return errors.New("minor issue")
			},
			Critical: false,
		},
	}

	results := Run(context.Background(), probes)

	if len(results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(results))
	}

	if results[0].Error != nil {
		t.Errorf("Expected success probe to pass, got error: %v", results[0].Error)
	}

	if results[1].Error == nil {
		t.Error("Expected failure probe to fail, got nil")
	}
}

func TestAnalyzeResults(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		wantErr bool
	}{
		{
			name: "All Pass",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: true}, Error: nil},
			},
			wantErr: false,
		},
		{
			name: "Critical Failure",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: true}, Error: errors.New("fail")},
			},
			wantErr: true,
		},
		{
			name: "Non-Critical Failure",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: false}, Error: errors.New("fail")},
			},
			wantErr: false,
		},
		{
			name: "Mixed Failure",
			results: []Result{
				{Probe: Probe{Name: "P1", Critical: false}, Error: errors.New("fail")},
				{Probe: Probe{Name: "P2", Critical: true}, Error: errors.New("fail")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AnalyzeResults(tt.results)
			if (err != nil) != tt.wantErr {
				t.Errorf("AnalyzeResults() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFirst(t *testing.T) {
	var calls []string
	mk := func(name string, err error) Probe {
		return Probe{Name: name, Check: func(ctx context.Context) error {
			calls = append(calls, name)
			return err
		}}
	}

	winner, attempts, ok := First(context.Background(), []Probe{
		mk("vp9", errors.New("no encoder")),
		mk("vp8", nil),
		mk("mjpeg", nil),
	})
	assert.True(t, ok)
	assert.Equal(t, "vp8", winner.Probe.Name)
	assert.Len(t, attempts, 2)
	assert.Equal(t, []string{"vp9", "vp8"}, calls, "stops at first pass")

	_, attempts, ok = First(context.Background(), []Probe{mk("a", errors.New("x"))})
	assert.False(t, ok)
	assert.Len(t, attempts, 1)
}

func TestRun_Timeout(t *testing.T) {
	results := Run(context.Background(), []Probe{{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}})
	assert.ErrorIs(t, results[0].Error, context.DeadlineExceeded)
	assert.Less(t, results[0].Duration, time.Second)
}
