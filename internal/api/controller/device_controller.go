package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_devwatch/internal/coordinator"
	"github.com/bassista/go_devwatch/internal/device"
	"github.com/bassista/go_devwatch/internal/entity"
	"github.com/bassista/go_devwatch/internal/logger"
)

// DeviceLookup is the read side of device.Registry.
type DeviceLookup interface {
	Get(name string) (*device.Device, error)
	All() []*device.Device
}

type DeviceController struct {
	devices DeviceLookup
}

func NewDeviceController(devices DeviceLookup) *DeviceController {
	return &DeviceController{devices: devices}
}

type deviceSummary struct {
	Name              string     `json:"name"`
	Slug              string     `json:"slug"`
	Kind              string     `json:"kind"`
	State             string     `json:"state"`
	Outcome           string     `json:"outcome"`
	LastUpdateSuccess bool       `json:"lastUpdateSuccess"`
	LastError         string     `json:"lastError,omitempty"`
	FetchedAt         *time.Time `json:"fetchedAt,omitempty"`
}

func summarize(d *device.Device) deviceSummary {
	co := d.Coordinator
	s := deviceSummary{
		Name:              d.Name,
		Slug:              d.Slug,
		Kind:              string(d.Kind),
		State:             co.State().String(),
		Outcome:           co.Outcome().String(),
		LastUpdateSuccess: co.LastUpdateSuccess(),
	}
	if err := co.LastError(); err != nil {
		s.LastError = err.Error()
	}
	if snap := co.Snapshot(); snap != nil {
		fetchedAt := snap.FetchedAt
		s.FetchedAt = &fetchedAt
	}
	return s
}

// List returns a summary of every configured device.
func (dc *DeviceController) List(c *gin.Context) {
	devices := dc.devices.All()
	out := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		out = append(out, summarize(d))
	}
	c.JSON(http.StatusOK, out)
}

// lookup resolves the :name parameter and writes the error response itself.
func (dc *DeviceController) lookup(c *gin.Context) (*device.Device, bool) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing device name"})
		return nil, false
	}
	d, err := dc.devices.Get(name)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return d, true
}

// Snapshot returns the last published snapshot of a device.
func (dc *DeviceController) Snapshot(c *gin.Context) {
	d, ok := dc.lookup(c)
	if !ok {
		return
	}
	snap := d.Coordinator.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data fetched yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Entities renders the entity states of a device.
func (dc *DeviceController) Entities(c *gin.Context) {
	d, ok := dc.lookup(c)
	if !ok {
		return
	}
	states := d.States()
	if states == nil {
		states = []entity.State{}
	}
	c.JSON(http.StatusOK, gin.H{
		"device":            d.Name,
		"lastUpdateSuccess": d.Coordinator.LastUpdateSuccess(),
		"entities":          states,
	})
}

// Refresh runs a refresh cycle now, within the request context.
func (dc *DeviceController) Refresh(c *gin.Context) {
	d, ok := dc.lookup(c)
	if !ok {
		return
	}

	if err := d.Coordinator.Refresh(c.Request.Context()); err != nil {
		var failed *coordinator.UpdateFailedError
		if errors.As(err, &failed) {
			logger.WithDevice("device_controller", d.Name).Warnf("on-demand refresh failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		// the request gave up before the cycle finished; the device state is unchanged
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "refresh aborted"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, d.Coordinator.Snapshot())
}
