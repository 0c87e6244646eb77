package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/bassista/go_devwatch/internal/client"
	"github.com/bassista/go_devwatch/internal/logger"
	"github.com/bassista/go_devwatch/internal/model"
)

// DefaultTTL is the minimum interval between live fetches of the same resource.
const DefaultTTL = 30 * time.Second

// ErrUnknownResource is returned for resources the store was not created with.
var ErrUnknownResource = errors.New("unknown resource")

// Entry is a copy of the cached state of one resource.
type Entry struct {
	Payload     model.Payload
	FetchedAt   time.Time
	Available   bool
	ErrorLogged bool
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger replaces the default component logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithNotReady lists resources for which a 409 Conflict means "device not
// ready" and is recorded as unavailable without logging.
func WithNotReady(resources ...string) Option {
	return func(s *Store) {
		for _, r := range resources {
			s.notReady[r] = true
		}
	}
}

// Store keeps the last payload of every tracked resource and refetches it
// through the client once it is older than the TTL.
//
// Fetch failures never reach the caller: network and HTTP errors mark the
// resource unavailable and are logged once until the device recovers.
// Only unexpected errors (cancelled context, undecodable body) are returned.
type Store struct {
	fetcher  client.Fetcher
	ttl      time.Duration
	now      func() time.Time
	log      *logrus.Entry
	notReady map[string]bool

	mu              sync.RWMutex
	entries         map[string]*Entry
	order           []string
	connErrorLogged bool // shared by all resources: one unreachable host, one message

	inflight singleflight.Group
}

// NewStore creates a store tracking resources, all initially empty and unavailable.
func NewStore(fetcher client.Fetcher, resources []string, opts ...Option) *Store {
	s := &Store{
		fetcher:  fetcher,
		ttl:      DefaultTTL,
		now:      time.Now,
		log:      logger.WithComponent("cache"),
		notReady: map[string]bool{},
		entries:  make(map[string]*Entry, len(resources)),
	}
	for _, r := range resources {
		if _, dup := s.entries[r]; dup {
			continue
		}
		s.entries[r] = &Entry{}
		s.order = append(s.order, r)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the payload of resource, fetching it when the cached copy is
// missing or older than the TTL. Concurrent callers for the same resource
// share one outbound request.
func (s *Store) Get(ctx context.Context, resource string) (model.Payload, error) {
	payload, fresh, err := s.cached(resource)
	if err != nil {
		return nil, err
	}
	if fresh {
		s.log.Tracef("cache hit for %s", resource)
		return payload, nil
	}

	// The shared fetch runs with the context of the caller that started it.
	// Each caller waits on its own ctx, and a caller whose flight was cut short
	// by someone else's context joins or starts the next one.
	for {
		ch := s.inflight.DoChan(resource, func() (any, error) {
			// Another caller may have refreshed while we waited for the flight.
			if payload, fresh, _ := s.cached(resource); fresh {
				return payload, nil
			}
			return s.fetch(ctx, resource)
		})

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("get %s: %w", resource, ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				if isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			payload, _ = res.Val.(model.Payload)
			return payload, nil
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *Store) cached(resource string) (model.Payload, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[resource]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	// FetchedAt only moves on success, so a failed resource is always past its TTL.
	if !e.FetchedAt.IsZero() && s.now().Sub(e.FetchedAt) < s.ttl {
		return e.Payload, true, nil
	}
	return nil, false, nil
}

func (s *Store) fetch(ctx context.Context, resource string) (model.Payload, error) {
	s.log.Debugf("fetching %s", resource)
	payload, err := s.fetcher.Fetch(ctx, resource)

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[resource]

	if err == nil {
		e.Payload = payload
		e.FetchedAt = s.now()
		e.Available = true
		if s.allAvailableLocked() {
			for _, other := range s.entries {
				other.ErrorLogged = false
			}
			s.connErrorLogged = false
		}
		return payload, nil
	}

	switch {
	case client.IsNetworkError(err):
		e.Available = false
		if !s.connErrorLogged {
			s.log.Errorf("Failed to connect to device. Error: %v", err)
			s.connErrorLogged = true
		}
		return nil, nil

	case client.StatusCode(err) != 0:
		e.Available = false
		if client.IsNotReady(err) && s.notReady[resource] {
			return nil, nil
		}
		if !e.ErrorLogged {
			s.log.Errorf("Endpoint: %s Failed to update device status. Error: %v", resource, err)
			e.ErrorLogged = true
		}
		return nil, nil

	default:
		return nil, err
	}
}

// Resources returns the tracked resource names in construction order.
func (s *Store) Resources() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Available reports whether the last fetch of resource succeeded.
func (s *Store) Available(resource string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[resource]
	return ok && e.Available
}

// AllAvailable reports whether every tracked resource is available.
func (s *Store) AllAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allAvailableLocked()
}

func (s *Store) allAvailableLocked() bool {
	for _, e := range s.entries {
		if !e.Available {
			return false
		}
	}
	return len(s.entries) > 0
}

// ErrorLogged reports whether an HTTP failure of resource was already logged.
func (s *Store) ErrorLogged(resource string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[resource]
	return ok && e.ErrorLogged
}

// ConnectionErrorLogged reports whether a connection failure was already logged.
func (s *Store) ConnectionErrorLogged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connErrorLogged
}

// Entry returns a copy of the cached state of resource.
func (s *Store) Entry(resource string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[resource]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}
