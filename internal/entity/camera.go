package entity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bassista/go_devwatch/internal/model"
)

// CameraBrand is reported for every Unifi Video camera.
const CameraBrand = "Ubiquiti"

// Camera is a Unifi Video camera listed by an NVR.
type Camera struct {
	id      string
	name    string
	idField string
	nvrHost string
}

// NewCamera builds a camera identified by the value of idField ("id" or "uuid").
// nvrHost selects which RTSP URI is reported as the stream source.
func NewCamera(id, name, idField, nvrHost string) *Camera {
	return &Camera{id: id, name: name, idField: idField, nvrHost: nvrHost}
}

func (c *Camera) UniqueID() string { return c.id }
func (c *Camera) Name() string     { return c.name }
func (c *Camera) Kind() Kind       { return KindCamera }

// Render reports the recording mode as value and the camera properties as attributes.
// A camera that is no longer listed by the NVR is unavailable.
func (c *Camera) Render(snap *model.Snapshot) State {
	st := State{UniqueID: c.id, Name: c.name, Kind: KindCamera}

	info, ok := Cameras(snap.Payload(model.ResourceCamera), c.idField)[c.id]
	if !ok {
		return st
	}

	recording, _ := lookupBool(info, "recordingSettings", "fullTimeRecordEnabled")
	motion, _ := lookupBool(info, "recordingSettings", "motionRecordEnabled")

	st.Available = true
	st.Value = "idle"
	if recording {
		st.Value = "recording"
	}
	st.Attributes = map[string]any{
		"brand":                    CameraBrand,
		"model":                    info["model"],
		"recording":                recording,
		"motion_detection_enabled": motion,
		"stream_supported":         streamSupported(info),
	}
	if src := c.streamSource(info); src != "" {
		st.Attributes["stream_source"] = src
	}
	return st
}

func (c *Camera) streamSource(info map[string]any) string {
	for _, ch := range channels(info) {
		if enabled, _ := ch["isRtspEnabled"].(bool); !enabled {
			continue
		}
		uris, _ := ch["rtspUris"].([]any)
		for _, u := range uris {
			if s, ok := u.(string); ok && strings.Contains(s, c.nvrHost) {
				return s
			}
		}
		return ""
	}
	return ""
}

func streamSupported(info map[string]any) bool {
	for _, ch := range channels(info) {
		if enabled, _ := ch["isRtspEnabled"].(bool); enabled {
			return true
		}
	}
	return false
}

func channels(info map[string]any) []map[string]any {
	raw, _ := info["channels"].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if ch, ok := r.(map[string]any); ok {
			out = append(out, ch)
		}
	}
	return out
}

func lookupBool(info map[string]any, group, key string) (bool, bool) {
	g, ok := info[group].(map[string]any)
	if !ok {
		return false, false
	}
	b, ok := g[key].(bool)
	return b, ok
}

// Cameras indexes the "data" list of an NVR camera payload by idField.
// Entries without a usable identifier are skipped.
func Cameras(payload model.Payload, idField string) map[string]map[string]any {
	out := map[string]map[string]any{}
	data, _ := payload["data"].([]any)
	for _, d := range data {
		cam, ok := d.(map[string]any)
		if !ok {
			continue
		}
		id := fmt.Sprint(cam[idField])
		if cam[idField] == nil || id == "" {
			continue
		}
		out[id] = cam
	}
	return out
}

// CameraOptions configures the cameras created for one NVR.
type CameraOptions struct {
	IDField string
	NVRHost string
}

// CameraEntities builds one camera per entry of the NVR camera payload.
func CameraEntities(opts CameraOptions, payload model.Payload) []Entity {
	cams := Cameras(payload, opts.IDField)
	ids := make([]string, 0, len(cams))
	for id := range cams {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entities := make([]Entity, 0, len(ids))
	for _, id := range ids {
		name, _ := cams[id]["name"].(string)
		if name == "" {
			name = id
		}
		entities = append(entities, NewCamera(id, name, opts.IDField, opts.NVRHost))
	}
	return entities
}
