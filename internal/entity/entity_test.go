package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassista/go_devwatch/internal/model"
)

const testBaseURL = "http://192.168.1.35/path/api/"

type fakeSource struct {
	snap *model.Snapshot
	ok   bool
}

func (f fakeSource) Snapshot() *model.Snapshot { return f.snap }
func (f fakeSource) LastUpdateSuccess() bool   { return f.ok }

func printerPayload() model.Payload {
	return model.Payload{
		"state": map[string]any{
			"text": "Printing",
			"flags": map[string]any{
				"printing": true,
				"error":    false,
			},
		},
		"temperature": map[string]any{
			"tool0": map[string]any{"actual": 201.337, "target": 210.0},
			"bed":   map[string]any{"actual": 59.994, "target": nil},
		},
	}
}

func jobPayload() model.Payload {
	return model.Payload{
		"progress": map[string]any{
			"completion":    12.3456,
			"printTimeLeft": 3600.0,
			"printTime":     120.0,
		},
	}
}

func snapshot(job, printer model.Payload) *model.Snapshot {
	return model.NewSnapshot("octo", time.Now(), map[string]model.ResourceState{
		model.ResourceJob:     {Payload: job, Available: job != nil},
		model.ResourcePrinter: {Payload: printer, Available: printer != nil},
	})
}

func allPrinterOptions() PrinterOptions {
	return PrinterOptions{
		Name:          "OctoPrint",
		BaseURL:       testBaseURL,
		Sensors:       SensorTypes,
		BinarySensors: BinarySensorTypes,
	}
}

func byName(states []State) map[string]State {
	out := make(map[string]State, len(states))
	for _, s := range states {
		out[s.Name] = s
	}
	return out
}

func TestSensorNaming(t *testing.T) {
	s := NewSensor("name", "condition", testBaseURL, "", "", model.ResourceJob, "group", "key", "")
	assert.Equal(t, "name condition", s.Name())
	assert.Equal(t, "name condition-"+testBaseURL, s.UniqueID())
	assert.Equal(t, KindSensor, s.Kind())

	s = NewSensor("name", "condition", testBaseURL, "", "", model.ResourceJob, "group", "key", "tool")
	assert.Equal(t, "name condition tool temp", s.Name())
	assert.Equal(t, "name condition tool temp-"+testBaseURL, s.UniqueID())
}

func TestBinarySensorNaming(t *testing.T) {
	b := NewBinarySensor("name", BinarySensorPrinting, "printing")
	assert.Equal(t, "name Printing", b.Name())
	assert.Equal(t, "name Printing-name", b.UniqueID())
	assert.Equal(t, KindBinarySensor, b.Kind())
}

func TestTools(t *testing.T) {
	assert.Equal(t, []string{"tool0", "tool1", "bed"}, Tools(2, true, nil))
	assert.Equal(t, []string{"tool0"}, Tools(1, false, printerPayload()))
	assert.Equal(t, []string{"bed"}, Tools(0, true, printerPayload()))
	assert.Equal(t, []string{"bed", "tool0"}, Tools(0, false, printerPayload()))
	assert.Empty(t, Tools(0, false, nil))
}

func TestOctoPrintEntities_All(t *testing.T) {
	entities := OctoPrintEntities(allPrinterOptions(), printerPayload())

	// 2 heaters x (actual, target) + 4 sensors + 2 binary sensors
	require.Len(t, entities, 10)

	states := byName(Render(fakeSource{snap: snapshot(jobPayload(), printerPayload()), ok: true}, entities))

	assert.Equal(t, 201.34, states["OctoPrint actual tool0 temp"].Value)
	assert.Equal(t, 210.0, states["OctoPrint target tool0 temp"].Value)
	assert.Equal(t, 59.99, states["OctoPrint actual bed temp"].Value)
	assert.Equal(t, 0.0, states["OctoPrint target bed temp"].Value)
	assert.Equal(t, UnitCelsius, states["OctoPrint actual bed temp"].Unit)

	assert.Equal(t, "Printing", states["OctoPrint Current State"].Value)
	assert.Equal(t, "mdi:printer-3d", states["OctoPrint Current State"].Icon)

	assert.Equal(t, 12.35, states["OctoPrint Job Percentage"].Value)
	assert.Equal(t, UnitPercentage, states["OctoPrint Job Percentage"].Unit)
	assert.Equal(t, 3600.0, states["OctoPrint Time Remaining"].Value)
	assert.Equal(t, "mdi:clock-start", states["OctoPrint Time Remaining"].Icon)
	assert.Equal(t, 120.0, states["OctoPrint Time Elapsed"].Value)
	assert.Equal(t, UnitSeconds, states["OctoPrint Time Elapsed"].Unit)

	assert.Equal(t, true, states["OctoPrint Printing"].Value)
	assert.Equal(t, false, states["OctoPrint Printing Error"].Value)

	for name, st := range states {
		assert.True(t, st.Available, name)
	}
}

func TestOctoPrintEntities_Selection(t *testing.T) {
	opts := allPrinterOptions()
	opts.Sensors = []string{SensorCurrentState}
	opts.BinarySensors = []string{BinarySensorPrintingError}

	entities := OctoPrintEntities(opts, nil)
	require.Len(t, entities, 2)
	assert.Equal(t, "OctoPrint Current State", entities[0].Name())
	assert.Equal(t, "OctoPrint Printing Error", entities[1].Name())
}

func TestRender_PrinterNotReady(t *testing.T) {
	entities := OctoPrintEntities(allPrinterOptions(), printerPayload())
	states := byName(Render(fakeSource{snap: snapshot(jobPayload(), nil), ok: true}, entities))

	assert.False(t, states["OctoPrint Current State"].Available)
	assert.False(t, states["OctoPrint actual tool0 temp"].Available)
	assert.True(t, states["OctoPrint Job Percentage"].Available)

	printing := states["OctoPrint Printing"]
	assert.True(t, printing.Available)
	assert.Nil(t, printing.Value)
}

func TestRender_MissingPercentageReadsZero(t *testing.T) {
	job := model.Payload{"progress": map[string]any{"completion": nil}}
	entities := OctoPrintEntities(PrinterOptions{Name: "p", Sensors: []string{SensorJobPercentage}}, nil)

	states := Render(fakeSource{snap: snapshot(job, printerPayload()), ok: true}, entities)
	require.Len(t, states, 1)
	assert.Equal(t, 0.0, states[0].Value)
}

func TestRender_FailedUpdateMakesEverythingUnavailable(t *testing.T) {
	entities := OctoPrintEntities(allPrinterOptions(), printerPayload())

	for _, src := range []fakeSource{
		{snap: snapshot(jobPayload(), printerPayload()), ok: false},
		{snap: nil, ok: false},
	} {
		states := Render(src, entities)
		require.Len(t, states, len(entities))
		for _, st := range states {
			assert.False(t, st.Available, st.Name)
			assert.Nil(t, st.Value, st.Name)
			assert.NotEmpty(t, st.UniqueID)
		}
	}
}
