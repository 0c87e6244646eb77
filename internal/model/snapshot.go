package model

import (
	"sort"
	"time"
)

// Resource names polled from the device APIs.
const (
	ResourceJob     = "job"
	ResourcePrinter = "printer"
	ResourceCamera  = "camera"
)

// Payload is a decoded JSON object returned by a device endpoint.
// Payloads are shared between the cache and every published snapshot, so
// callers must treat them as read-only.
type Payload map[string]any

// ResourceState is the outcome of fetching one resource during a refresh cycle.
type ResourceState struct {
	Payload   Payload `json:"payload"`
	Available bool    `json:"available"`
}

// Snapshot holds the results of a single refresh cycle across all resources of a device.
// A published snapshot is never mutated; the coordinator replaces it as a whole.
type Snapshot struct {
	Device    string                   `json:"device"`
	FetchedAt time.Time                `json:"fetchedAt"`
	Resources map[string]ResourceState `json:"resources"`
}

// NewSnapshot builds a snapshot owning its own copy of the resource map.
func NewSnapshot(device string, fetchedAt time.Time, states map[string]ResourceState) *Snapshot {
	resources := make(map[string]ResourceState, len(states))
	for name, st := range states {
		if st.Payload == nil {
			st.Available = false
		}
		resources[name] = st
	}
	return &Snapshot{Device: device, FetchedAt: fetchedAt, Resources: resources}
}

// Payload returns the payload of resource, or nil when the snapshot is nil,
// the resource is unknown or it was unavailable in this cycle.
func (s *Snapshot) Payload(resource string) Payload {
	if s == nil {
		return nil
	}
	st, ok := s.Resources[resource]
	if !ok || !st.Available {
		return nil
	}
	return st.Payload
}

// Available reports whether resource was fetched successfully in this cycle.
func (s *Snapshot) Available(resource string) bool {
	return s.Payload(resource) != nil
}

// ResourceNames returns the resource names in sorted order.
func (s *Snapshot) ResourceNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Resources))
	for name := range s.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
