package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/tavlicon/lanes"
)

// Class names one hardware-exclusive resource.
type Class string

const (
	// ClassImage guards the generative image pipeline.
	ClassImage Class = "image"
	// ClassMesh guards the mesh reconstruction model.
	ClassMesh Class = "mesh"
)

// DefaultPermits is the permit count of a class that was not configured.
// Accelerators cannot safely interleave two heavy workloads.
const DefaultPermits = 1

type permitSet struct {
	sem     *semaphore.Weighted
	permits int64
	inUse   atomic.Int64
}

// Manager holds one counting permit set per resource class. Classes are
// created on first use with DefaultPermits unless configured otherwise.
// It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	classes map[Class]*permitSet
	permits map[Class]int64
	strict  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithPermits sets the permit count for class. Non-positive values fall
// back to DefaultPermits.
func WithPermits(class Class, n int) Option {
	return func(m *Manager) {
		if n <= 0 {
			n = DefaultPermits
		}
		m.permits[class] = int64(n)
	}
}

// WithStrictClasses makes Acquire reject classes that were not
// configured with WithPermits instead of creating them on demand.
func WithStrictClasses() Option {
	return func(m *Manager) { m.strict = true }
}

// NewManager creates a Manager. ClassImage and ClassMesh always exist.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		classes: make(map[Class]*permitSet),
		permits: map[Class]int64{
			ClassImage: DefaultPermits,
			ClassMesh:  DefaultPermits,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) class(c Class) (*permitSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ps, ok := m.classes[c]; ok {
		return ps, nil
	}
	n, ok := m.permits[c]
	if !ok {
		if m.strict {
			return nil, fmt.Errorf("%w: %q", lanes.ErrUnknownClass, c)
		}
		n = DefaultPermits
	}
	ps := &permitSet{sem: semaphore.NewWeighted(n), permits: n}
	m.classes[c] = ps
	return ps, nil
}

// Acquire blocks until a permit of class is available or ctx is done.
// The returned release function must be called exactly once; calling it
// again is a no-op.
func (m *Manager) Acquire(ctx context.Context, c Class) (release func(), err error) {
	ps, err := m.class(c)
	if err != nil {
		return nil, err
	}
	if err := ps.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire %s permit: %w", c, err)
	}
	ps.inUse.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			ps.inUse.Add(-1)
			ps.sem.Release(1)
		})
	}, nil
}

// Do runs fn while holding a permit of class. The permit is released on
// every exit path, including a panic in fn.
func (m *Manager) Do(ctx context.Context, c Class, fn func(ctx context.Context) error) error {
	release, err := m.Acquire(ctx, c)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// InUse returns the number of permits of class currently held.
func (m *Manager) InUse(c Class) int {
	m.mu.Lock()
	ps, ok := m.classes[c]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return int(ps.inUse.Load())
}

// Permits returns the configured permit count of class.
func (m *Manager) Permits(c Class) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ps, ok := m.classes[c]; ok {
		return int(ps.permits)
	}
	if n, ok := m.permits[c]; ok {
		return int(n)
	}
	return DefaultPermits
}

// Usage is a point-in-time view of one class.
type Usage struct {
	Class   Class `json:"class"`
	Permits int   `json:"permits"`
	InUse   int   `json:"in_use"`
}

// Snapshot returns the usage of every configured or used class, sorted
// by class name.
func (m *Manager) Snapshot() []Usage {
	m.mu.Lock()
	names := make(map[Class]struct{}, len(m.permits)+len(m.classes))
	for c := range m.permits {
		names[c] = struct{}{}
	}
	for c := range m.classes {
		names[c] = struct{}{}
	}
	m.mu.Unlock()

	out := make([]Usage, 0, len(names))
	for c := range names {
		out = append(out, Usage{Class: c, Permits: m.Permits(c), InUse: m.InUse(c)})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Class < out[k].Class })
	return out
}
