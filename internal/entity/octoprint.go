package entity

import (
	"fmt"
	"sort"

	"github.com/bassista/go_devwatch/internal/field"
	"github.com/bassista/go_devwatch/internal/model"
)

// Sensor types selectable per printer.
const (
	SensorTemperatures  = "Temperatures"
	SensorCurrentState  = "Current State"
	SensorJobPercentage = "Job Percentage"
	SensorTimeRemaining = "Time Remaining"
	SensorTimeElapsed   = "Time Elapsed"

	BinarySensorPrinting      = "Printing"
	BinarySensorPrintingError = "Printing Error"
)

// Units.
const (
	UnitCelsius    = "°C"
	UnitPercentage = "%"
	UnitSeconds    = "s"
)

// SensorTypes lists every sensor type in display order.
var SensorTypes = []string{
	SensorTemperatures,
	SensorCurrentState,
	SensorJobPercentage,
	SensorTimeRemaining,
	SensorTimeElapsed,
}

// BinarySensorTypes lists every binary sensor type.
var BinarySensorTypes = []string{
	BinarySensorPrinting,
	BinarySensorPrintingError,
}

// Sensor reads one numeric or text value from an OctoPrint resource.
type Sensor struct {
	name     string
	uniqueID string
	unit     string
	icon     string
	resource string
	group    string
	key      string
	tool     string
}

// NewSensor builds a sensor named "<device> <condition>", or
// "<device> <condition> <tool> temp" when tool is set.
// baseURL only feeds the unique id.
func NewSensor(device, condition, baseURL, unit, icon, resource, group, key, tool string) *Sensor {
	name := fmt.Sprintf("%s %s", device, condition)
	if tool != "" {
		name = fmt.Sprintf("%s %s temp", name, tool)
	}
	return &Sensor{
		name:     name,
		uniqueID: fmt.Sprintf("%s-%s", name, baseURL),
		unit:     unit,
		icon:     icon,
		resource: resource,
		group:    group,
		key:      key,
		tool:     tool,
	}
}

func (s *Sensor) UniqueID() string { return s.uniqueID }
func (s *Sensor) Name() string     { return s.name }
func (s *Sensor) Kind() Kind       { return KindSensor }

// Render reads the value from the sensor's resource. Temperatures and
// percentages are rounded to two decimals and a missing one reads as 0.
func (s *Sensor) Render(snap *model.Snapshot) State {
	st := State{
		UniqueID:  s.uniqueID,
		Name:      s.name,
		Kind:      KindSensor,
		Unit:      s.unit,
		Icon:      s.icon,
		Available: snap.Available(s.resource),
	}
	if !st.Available {
		return st
	}

	v, _ := field.Extract(snap.Payload(s.resource), s.group, s.key, s.tool)
	switch s.unit {
	case UnitCelsius, UnitPercentage:
		f, _ := field.Number(v)
		st.Value = field.Round2(f)
	default:
		st.Value = v
	}
	return st
}

// BinarySensor reads a flag from the printer state.
type BinarySensor struct {
	name     string
	uniqueID string
	key      string
}

// NewBinarySensor builds a binary sensor reading state.flags.<key>.
func NewBinarySensor(device, sensorType, key string) *BinarySensor {
	name := fmt.Sprintf("%s %s", device, sensorType)
	return &BinarySensor{
		name:     name,
		uniqueID: fmt.Sprintf("%s-%s", name, device),
		key:      key,
	}
}

func (b *BinarySensor) UniqueID() string { return b.uniqueID }
func (b *BinarySensor) Name() string     { return b.name }
func (b *BinarySensor) Kind() Kind       { return KindBinarySensor }

// Render reports the flag as a bool, or nil while the printer resource is missing.
func (b *BinarySensor) Render(snap *model.Snapshot) State {
	st := State{
		UniqueID:  b.uniqueID,
		Name:      b.name,
		Kind:      KindBinarySensor,
		Available: true,
	}
	on, ok := field.Bool(snap.Payload(model.ResourcePrinter), "state", b.key, "flags")
	if ok {
		st.Value = on
	}
	return st
}

// PrinterOptions selects the entities created for one printer.
type PrinterOptions struct {
	Name          string
	BaseURL       string
	NumberOfTools int
	Bed           bool
	Sensors       []string
	BinarySensors []string
}

// Tools returns the heaters to report temperatures for: tool0..toolN-1 plus
// "bed" when configured, otherwise the heaters listed in the printer payload.
func Tools(numberOfTools int, bed bool, printer model.Payload) []string {
	var tools []string
	for i := 0; i < numberOfTools; i++ {
		tools = append(tools, fmt.Sprintf("tool%d", i))
	}
	if bed {
		tools = append(tools, "bed")
	}
	if numberOfTools > 0 || bed {
		return tools
	}

	temps, ok := printer["temperature"].(map[string]any)
	if !ok {
		return nil
	}
	for name := range temps {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	return tools
}

// OctoPrintEntities builds the selected sensors of a printer. printer is the
// payload used for tool discovery and may be nil.
func OctoPrintEntities(opts PrinterOptions, printer model.Payload) []Entity {
	var entities []Entity
	for _, t := range opts.Sensors {
		switch t {
		case SensorTemperatures:
			for _, tool := range Tools(opts.NumberOfTools, opts.Bed, printer) {
				for _, kind := range []string{"actual", "target"} {
					entities = append(entities, NewSensor(opts.Name, kind, opts.BaseURL,
						UnitCelsius, "", model.ResourcePrinter, "temperature", kind, tool))
				}
			}
		case SensorCurrentState:
			entities = append(entities, NewSensor(opts.Name, t, opts.BaseURL,
				"", "mdi:printer-3d", model.ResourcePrinter, "state", "text", ""))
		case SensorJobPercentage:
			entities = append(entities, NewSensor(opts.Name, t, opts.BaseURL,
				UnitPercentage, "mdi:file-percent", model.ResourceJob, "progress", "completion", ""))
		case SensorTimeRemaining:
			entities = append(entities, NewSensor(opts.Name, t, opts.BaseURL,
				UnitSeconds, "mdi:clock-start", model.ResourceJob, "progress", "printTimeLeft", ""))
		case SensorTimeElapsed:
			entities = append(entities, NewSensor(opts.Name, t, opts.BaseURL,
				UnitSeconds, "mdi:clock-end", model.ResourceJob, "progress", "printTime", ""))
		}
	}
	for _, t := range opts.BinarySensors {
		switch t {
		case BinarySensorPrinting:
			entities = append(entities, NewBinarySensor(opts.Name, t, "printing"))
		case BinarySensorPrintingError:
			entities = append(entities, NewBinarySensor(opts.Name, t, "error"))
		}
	}
	return entities
}
