// Package entity turns published device snapshots into named states.
//
// Entities never talk to a device. They read the last snapshot of their
// coordinator, so every consumer sees the same refresh cycle.
package entity

import (
	"github.com/bassista/go_devwatch/internal/model"
)

// Kind classifies an entity.
type Kind string

const (
	KindSensor       Kind = "sensor"
	KindBinarySensor Kind = "binary_sensor"
	KindCamera       Kind = "camera"
)

// State is the rendered value of one entity. A nil Value on an available
// entity means the value is unknown.
type State struct {
	UniqueID   string         `json:"uniqueId"`
	Name       string         `json:"name"`
	Kind       Kind           `json:"kind"`
	Value      any            `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	Icon       string         `json:"icon,omitempty"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Entity renders its state from a snapshot.
type Entity interface {
	UniqueID() string
	Name() string
	Kind() Kind
	// Render computes the state from snap, which is never nil.
	Render(snap *model.Snapshot) State
}

// Source is the read side of a coordinator.
type Source interface {
	Snapshot() *model.Snapshot
	LastUpdateSuccess() bool
}

// Render renders every entity against the current snapshot of src.
// When there is no snapshot, or the last refresh failed, all entities are unavailable.
func Render(src Source, entities []Entity) []State {
	snap := src.Snapshot()
	ok := snap != nil && src.LastUpdateSuccess()

	states := make([]State, 0, len(entities))
	for _, e := range entities {
		if !ok {
			states = append(states, unavailable(e))
			continue
		}
		states = append(states, e.Render(snap))
	}
	return states
}

func unavailable(e Entity) State {
	return State{
		UniqueID: e.UniqueID(),
		Name:     e.Name(),
		Kind:     e.Kind(),
	}
}
