package monitor

import (
	"errors"
	"testing"
)

func TestRenderMonitor_RecordSuccess(t *testing.T) {
	rm := &RenderMonitor{}
	rm.RecordSuccess()

	status := rm.Status()
	if !status.Healthy {
		t.Error("Status should be healthy after success")
	}
	if status.Renders != 1 || status.Failures != 0 {
		t.Errorf("Renders/Failures = %d/%d, want 1/0", status.Renders, status.Failures)
	}
	if status.LastSuccess == "" || status.TimeSinceSuccess == "" {
		t.Error("LastSuccess and TimeSinceSuccess should be set")
	}
}

func TestRenderMonitor_RecordFailure(t *testing.T) {
	rm := &RenderMonitor{}
	rm.RecordFailure(errors.New("warehouse unreachable"))

	status := rm.Status()
	if status.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", status.ConsecutiveErrors)
	}
	if status.LastError != "warehouse unreachable" {
		t.Errorf("LastError = %q, want %q", status.LastError, "warehouse unreachable")
	}
	if status.LastSuccess != "" {
		t.Errorf("LastSuccess = %q, want empty", status.LastSuccess)
	}
}

func TestRenderMonitor_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*RenderMonitor)
		expected bool
	}{
		{
			name:     "no renders yet",
			setup:    func(*RenderMonitor) {},
			expected: true,
		},
		{
			name: "single failure",
			setup: func(rm *RenderMonitor) {
				rm.RecordFailure(errors.New("timeout"))
			},
			expected: true,
		},
		{
			name: "too many consecutive errors",
			setup: func(rm *RenderMonitor) {
				for i := 0; i < 4; i++ {
					rm.RecordFailure(errors.New("timeout"))
				}
			},
			expected: false,
		},
		{
			name: "recovered after failures",
			setup: func(rm *RenderMonitor) {
				for i := 0; i < 4; i++ {
					rm.RecordFailure(errors.New("timeout"))
				}
				for i := 0; i < 5; i++ {
					rm.RecordSuccess()
				}
			},
			expected: true,
		},
		{
			name: "high failure rate",
			setup: func(rm *RenderMonitor) {
				for i := 0; i < 4; i++ {
					rm.RecordSuccess()
					rm.RecordFailure(errors.New("timeout"))
					rm.RecordFailure(errors.New("timeout"))
				}
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := &RenderMonitor{}
			tt.setup(rm)
			if got := rm.IsHealthy(); got != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.expected)
			}
			if got := rm.Status().Healthy; got != tt.expected {
				t.Errorf("Status().Healthy = %v, want %v", got, tt.expected)
			}
		})
	}
}
