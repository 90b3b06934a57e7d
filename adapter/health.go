// Package adapter provides adapters for shm-watch integration with
// external systems.
package adapter

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"
)

// Liveness is the surface a health check needs from a watcher: whether
// the publisher closed the region. Watcher[T].Gone satisfies it.
type Liveness interface {
	Gone() bool
}

// PublisherAliveCheck returns a healthcheck.Check that fails once the
// watched region's publisher closed it.
func PublisherAliveCheck(name string, src Liveness) healthcheck.Check {
	return func() error {
		if src.Gone() {
			return fmt.Errorf("publisher of %s is gone", name)
		}
		return nil
	}
}

// NewHealthHandler builds an HTTP health handler with a liveness check
// per named source. Serve it on an internal port to expose publisher
// liveness to orchestration.
func NewHealthHandler(sources map[string]Liveness) healthcheck.Handler {
	h := healthcheck.NewHandler()
	for name, src := range sources {
		h.AddLivenessCheck(name, PublisherAliveCheck(name, src))
	}
	return h
}
