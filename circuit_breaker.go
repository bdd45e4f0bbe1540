package emc

import (
	"time"

	"github.com/pior/emc/text"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker guards the round trips of one client.
// *gobreaker.CircuitBreaker[bool] satisfies it.
type CircuitBreaker interface {
	Execute(req func() (bool, error)) (bool, error)
	State() gobreaker.State
}

var _ CircuitBreaker = (*gobreaker.CircuitBreaker[bool])(nil)

// NewCircuitBreakerConfig returns a function that creates circuit breakers for servers.
//
// Only connection-level failures count against the breaker: a miss, a
// NOT_STORED or a server-side CLIENT_ERROR is a valid answer from a healthy server.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(string) CircuitBreaker {
	return func(serverAddr string) CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return !text.IsConnectionFailure(err)
			},
		}
		return gobreaker.NewCircuitBreaker[bool](settings)
	}
}
