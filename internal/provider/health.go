package provider

import (
	"context"
	"sync"
	"time"
)

const (
	defaultCheckInterval = 30 * time.Second
	defaultCheckTimeout  = 10 * time.Second
	unhealthyThreshold   = 3
)

// HealthStatus is the last observed state of the transport.
type HealthStatus struct {
	Provider            string    `json:"provider"`
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// HealthChecker periodically verifies the configured transport so readiness
// probes can report it without opening a connection per request.
type HealthChecker struct {
	provider      Provider
	checkInterval time.Duration
	checkTimeout  time.Duration

	mu      sync.RWMutex
	status  HealthStatus
	checked bool

	stopCh  chan struct{}
	stopped chan struct{}
}

// NewHealthChecker creates a checker for p.
func NewHealthChecker(p Provider) *HealthChecker {
	return &HealthChecker{
		provider:      p,
		checkInterval: defaultCheckInterval,
		checkTimeout:  defaultCheckTimeout,
		status:        HealthStatus{Provider: p.GetName()},
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Start begins the background health check loop.
func (hc *HealthChecker) Start() {
	go hc.run()
}

// Stop signals the health check loop to terminate and waits for it to finish.
func (hc *HealthChecker) Stop() {
	close(hc.stopCh)
	<-hc.stopped
}

// IsHealthy reports whether the transport is healthy. It is false until the
// first check has completed.
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.checked && hc.status.Healthy
}

// Status returns a snapshot of the transport health.
func (hc *HealthChecker) Status() HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.status
}

func (hc *HealthChecker) run() {
	defer close(hc.stopped)

	hc.check()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hc.stopCh:
			return
		case <-ticker.C:
			hc.check()
		}
	}
}

func (hc *HealthChecker) check() {
	ctx, cancel := context.WithTimeout(context.Background(), hc.checkTimeout)
	defer cancel()

	err := hc.provider.HealthCheck(ctx)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	if !hc.checked {
		hc.checked = true
		hc.status.Healthy = true
	}
	hc.status.LastCheck = time.Now()

	if err != nil {
		hc.status.ConsecutiveFailures++
		hc.status.LastError = err.Error()
		if hc.status.ConsecutiveFailures >= unhealthyThreshold {
			hc.status.Healthy = false
		}
		return
	}

	// One success resets to healthy.
	hc.status.ConsecutiveFailures = 0
	hc.status.Healthy = true
	hc.status.LastError = ""
}
