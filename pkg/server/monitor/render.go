package monitor

import (
	"sync"
	"time"

	"github.com/nicktill/carbondash/pkg/config"
)

// RenderMonitor tracks dashboard render outcomes for health checks. It
// satisfies dashboard.Observer.
type RenderMonitor struct {
	mu                sync.RWMutex
	renders           int
	failures          int
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
}

// RecordSuccess records a successful render.
func (rm *RenderMonitor) RecordSuccess() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	now := time.Now()
	rm.renders++
	rm.lastSuccess = now
	rm.lastAttempt = now
	rm.consecutiveErrors = 0
	rm.lastError = ""
}

// RecordFailure records a failed render.
func (rm *RenderMonitor) RecordFailure(err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.renders++
	rm.failures++
	rm.lastAttempt = time.Now()
	rm.consecutiveErrors++
	if err != nil {
		rm.lastError = err.Error()
	}
}

// IsHealthy reports whether renders are working. Unhealthy conditions:
//   - more than 3 consecutive failures
//   - a failure rate above config.MaxFailureRate once enough renders ran
func (rm *RenderMonitor) IsHealthy() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.healthyLocked()
}

func (rm *RenderMonitor) healthyLocked() bool {
	if rm.consecutiveErrors > 3 {
		return false
	}
	if rm.renders >= config.MinRendersForHealth &&
		float64(rm.failures)/float64(rm.renders) > config.MaxFailureRate {
		return false
	}
	return true
}

// RenderStatus is the render part of the health response.
type RenderStatus struct {
	Healthy           bool   `json:"healthy"`
	Renders           int    `json:"renders"`
	Failures          int    `json:"failures"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// Status returns the current render status.
func (rm *RenderMonitor) Status() RenderStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	status := RenderStatus{
		Healthy:  rm.healthyLocked(),
		Renders:  rm.renders,
		Failures: rm.failures,
	}

	if !rm.lastSuccess.IsZero() {
		status.LastSuccess = rm.lastSuccess.Format(time.RFC3339)
		status.TimeSinceSuccess = time.Since(rm.lastSuccess).Round(time.Second).String()
	}
	if !rm.lastAttempt.IsZero() {
		status.LastAttempt = rm.lastAttempt.Format(time.RFC3339)
	}
	if rm.consecutiveErrors > 0 {
		status.ConsecutiveErrors = rm.consecutiveErrors
		status.LastError = rm.lastError
	}
	return status
}
