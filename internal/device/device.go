// Package device assembles the polling stack of one configured device:
// client, cache, coordinator and entities.
package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bassista/go_devwatch/internal/cache"
	"github.com/bassista/go_devwatch/internal/client"
	"github.com/bassista/go_devwatch/internal/config"
	"github.com/bassista/go_devwatch/internal/coordinator"
	"github.com/bassista/go_devwatch/internal/entity"
	"github.com/bassista/go_devwatch/internal/logger"
	"github.com/bassista/go_devwatch/internal/model"
)

// ErrDeviceNotFound is returned by Registry lookups for unknown devices.
var ErrDeviceNotFound = errors.New("device not found")

// Kind identifies the vendor API of a device.
type Kind string

const (
	KindOctoPrint  Kind = "octoprint"
	KindUnifiVideo Kind = "unifi_video"
)

// Device is one polled device.
type Device struct {
	Name        string
	Slug        string
	Kind        Kind
	Client      *client.Client
	Store       *cache.Store
	Coordinator *coordinator.Coordinator

	validateResource string
	// discover builds the entity list from a snapshot (which may be nil) and
	// reports whether the list is final.
	discover func(snap *model.Snapshot) ([]entity.Entity, bool)
	log      *logrus.Entry

	mu       sync.Mutex
	entities []entity.Entity
	settled  bool
}

// Validate fetches the device's probe resource once.
func (d *Device) Validate(ctx context.Context) error {
	return client.Validate(ctx, d.Client, d.validateResource)
}

// Entities returns the device entities. Entities that depend on device data
// (printer heaters, NVR cameras) are discovered from the first snapshot
// that carries that data.
func (d *Device) Entities() []entity.Entity {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.settled {
		entities, final := d.discover(d.Coordinator.Snapshot())
		d.entities = entities
		d.settled = final
		if final {
			d.log.Debugf("discovered %d entities", len(entities))
		}
	}
	return append([]entity.Entity(nil), d.entities...)
}

// States renders every entity against the last published snapshot.
func (d *Device) States() []entity.State {
	return entity.Render(d.Coordinator, d.Entities())
}

func coordinatorOptions(p config.PollingConfig, log *logrus.Entry) []coordinator.Option {
	return []coordinator.Option{
		coordinator.WithInterval(p.Interval),
		coordinator.WithTimeout(p.RefreshTimeout),
		coordinator.WithLogger(log),
	}
}

// NewOctoPrint builds a printer polling "job" and "printer". A 409 on
// "printer" means no printer is connected and is not logged.
func NewOctoPrint(cfg config.OctoPrintConfig, polling config.PollingConfig) (*Device, error) {
	c, err := client.New(client.ClientConfig{
		BaseURL:            cfg.BaseURL(),
		APIKey:             cfg.APIKey,
		AuthMode:           client.AuthHeader,
		RequestTimeout:     polling.RequestTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RequestsPerMinute:  polling.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("octoprint %q: %w", cfg.Name, err)
	}

	store := cache.NewStore(c, []string{model.ResourceJob, model.ResourcePrinter},
		cache.WithTTL(polling.CacheTTL),
		cache.WithNotReady(model.ResourcePrinter),
		cache.WithLogger(logger.WithDevice("cache", cfg.Name)),
	)

	opts := entity.PrinterOptions{
		Name:          cfg.Name,
		BaseURL:       c.BaseURL(),
		NumberOfTools: cfg.NumberOfTools,
		Bed:           cfg.Bed,
		Sensors:       cfg.Sensors,
		BinarySensors: cfg.BinarySensors,
	}
	needsPrinter := cfg.NumberOfTools == 0 && !cfg.Bed && slices.Contains(cfg.Sensors, entity.SensorTemperatures)

	return &Device{
		Name:             cfg.Name,
		Slug:             config.Slugify(cfg.Name),
		Kind:             KindOctoPrint,
		Client:           c,
		Store:            store,
		Coordinator:      coordinator.New(cfg.Name, store, coordinatorOptions(polling, logger.WithDevice("coordinator", cfg.Name))...),
		validateResource: model.ResourceJob,
		log:              logger.WithDevice("device", cfg.Name),
		discover: func(snap *model.Snapshot) ([]entity.Entity, bool) {
			printer := snap.Payload(model.ResourcePrinter)
			return entity.OctoPrintEntities(opts, printer), !needsPrinter || printer != nil
		},
	}, nil
}

// NewUnifiVideo builds an NVR polling its camera list.
func NewUnifiVideo(cfg config.UnifiVideoConfig, polling config.PollingConfig) (*Device, error) {
	c, err := client.New(client.ClientConfig{
		BaseURL:            cfg.BaseURL(),
		APIKey:             cfg.APIKey,
		AuthMode:           client.AuthQuery,
		RequestTimeout:     polling.RequestTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RequestsPerMinute:  polling.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("unifi video %q: %w", cfg.Name, err)
	}

	store := cache.NewStore(c, []string{model.ResourceCamera},
		cache.WithTTL(polling.CacheTTL),
		cache.WithLogger(logger.WithDevice("cache", cfg.Name)),
	)

	opts := entity.CameraOptions{IDField: cfg.IDField, NVRHost: cfg.Host}

	return &Device{
		Name:             cfg.Name,
		Slug:             config.Slugify(cfg.Name),
		Kind:             KindUnifiVideo,
		Client:           c,
		Store:            store,
		Coordinator:      coordinator.New(cfg.Name, store, coordinatorOptions(polling, logger.WithDevice("coordinator", cfg.Name))...),
		validateResource: model.ResourceCamera,
		log:              logger.WithDevice("device", cfg.Name),
		discover: func(snap *model.Snapshot) ([]entity.Entity, bool) {
			cameras := snap.Payload(model.ResourceCamera)
			return entity.CameraEntities(opts, cameras), cameras != nil
		},
	}, nil
}

// Registry holds the configured devices keyed by slug.
type Registry struct {
	devices map[string]*Device
}

// NewRegistry builds every device listed in cfg.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{devices: map[string]*Device{}}
	for _, o := range cfg.OctoPrint {
		d, err := NewOctoPrint(o, cfg.Polling)
		if err != nil {
			return nil, err
		}
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	for _, u := range cfg.UnifiVideo {
		d, err := NewUnifiVideo(u, cfg.Polling)
		if err != nil {
			return nil, err
		}
		if err := r.Add(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers d. Slugs must be unique.
func (r *Registry) Add(d *Device) error {
	if _, ok := r.devices[d.Slug]; ok {
		return fmt.Errorf("duplicate device %q", d.Slug)
	}
	r.devices[d.Slug] = d
	return nil
}

// Get looks a device up by slug or by name.
func (r *Registry) Get(name string) (*Device, error) {
	if d, ok := r.devices[name]; ok {
		return d, nil
	}
	if d, ok := r.devices[config.Slugify(name)]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
}

// All returns the devices ordered by slug.
func (r *Registry) All() []*Device {
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	return len(r.devices)
}
