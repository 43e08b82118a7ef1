package circuitbreaker

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

func onChange(name string, from gobreaker.State, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		log.WithField("type", "breaker").Error(name + " breaker is open")
	} else if to == gobreaker.StateHalfOpen {
		log.WithField("type", "breaker").Warn(name + " breaker is half open")
	} else if to == gobreaker.StateClosed {
		log.WithField("type", "breaker").Info(name + " breaker is closed")
	}
}

// New returns a breaker that opens after more than five consecutive failures
// and probes again after timeout. Errors for which ignore returns true count
// as successes.
func New[T any](name string, timeout time.Duration, ignore func(error) bool) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:          name,
		Timeout:       timeout,
		OnStateChange: onChange,
	}
	if ignore != nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || ignore(err)
		}
	}

	return gobreaker.NewCircuitBreaker[T](settings)
}
