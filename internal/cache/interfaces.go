package cache

import (
	"context"

	"github.com/bassista/go_devwatch/internal/model"
)

// Getter is the cache API needed by the refresh coordinator.
// A nil payload with a nil error means the resource is currently unavailable.
type Getter interface {
	Get(ctx context.Context, resource string) (model.Payload, error)
	Resources() []string
}

// AvailabilityReader exposes the availability flags kept per resource.
type AvailabilityReader interface {
	Available(resource string) bool
	AllAvailable() bool
}

// PollingStore is the full cache contract a device exposes.
type PollingStore interface {
	Getter
	AvailabilityReader
	Entry(resource string) (Entry, bool)
}
