package device

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome for one endpoint in a fan-out. Outcomes are
// independent; one endpoint failing never blocks or rolls back the others.
type Result struct {
	EndpointID string `json:"endpoint_id"`
	Role       string `json:"role"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

// Dispatcher fans a switch command out to N endpoints concurrently, each
// with its own timeout, and joins all outcomes before returning.
type Dispatcher struct {
	driver  Driver
	timeout time.Duration
}

// NewDispatcher creates a dispatcher with a per-endpoint timeout.
func NewDispatcher(driver Driver, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{driver: driver, timeout: timeout}
}

// Dispatch sets every endpoint to the requested state. A slow or
// unreachable endpoint only times out itself.
func (d *Dispatcher) Dispatch(ctx context.Context, endpoints []Endpoint, on bool) []Result {
	results := make([]Result, len(endpoints))
	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep Endpoint) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			res := Result{EndpointID: ep.ID, Role: ep.Role, OK: true}
			if err := d.driver.Set(callCtx, ep.ControlCode, on); err != nil {
				res.OK = false
				res.Error = err.Error()
			}
			results[i] = res
		}(i, ep)
	}
	wg.Wait()
	return results
}
