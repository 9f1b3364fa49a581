package router

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openospf/ospfd"
	"github.com/openospf/ospfd/internal/config"
	"github.com/openospf/ospfd/internal/rib"
)

type fakeFib struct {
	added   map[string]*rib.Entry
	deleted map[string]bool
	notify  chan netip.Prefix
}

func newFakeFib() *fakeFib {
	return &fakeFib{
		added:   make(map[string]*rib.Entry),
		deleted: make(map[string]bool),
		notify:  make(chan netip.Prefix, 8),
	}
}

func (f *fakeFib) AddRoute(ctx context.Context, prefix netip.Prefix, e *rib.Entry) error {
	f.added[prefix.String()] = e
	return nil
}

func (f *fakeFib) DeleteRoute(ctx context.Context, prefix netip.Prefix) error {
	f.deleted[prefix.String()] = true
	return nil
}

func (f *fakeFib) KrtDeleteNotifications() <-chan netip.Prefix {
	return f.notify
}

func baseConfig() config.Config {
	return config.Config{
		RouterID: ospf2.ID{1, 1, 1, 1},
		Areas: []config.Area{
			{ID: ospf2.ID{0, 0, 0, 0}},
		},
	}
}

func TestNewRouterBuildsConfiguredAreas(t *testing.T) {
	r := New(baseConfig(), nil, nil)

	_, ok := r.Area(ospf2.ID{0, 0, 0, 0})
	assert.True(t, ok)
	_, ok = r.Area(ospf2.ID{0, 0, 0, 1})
	assert.False(t, ok)
}

func TestConfigureAddsAndRemovesAreas(t *testing.T) {
	r := New(baseConfig(), nil, nil)

	tx := config.Begin(r.config)
	tx.Add(config.Op{
		Kind:  config.AddArea,
		Field: "Areas",
		Apply: func(c *config.Config) error {
			c.Areas = []config.Area{{ID: ospf2.ID{0, 0, 0, 1}, Stub: true}}
			return nil
		},
	})

	diff, err := r.Configure(tx)
	require.NoError(t, err)
	assert.True(t, diff.Changed("Areas"))

	_, ok := r.Area(ospf2.ID{0, 0, 0, 0})
	assert.False(t, ok, "an area removed from the committed config must be dropped")

	a, ok := r.Area(ospf2.ID{0, 0, 0, 1})
	require.True(t, ok)
	assert.True(t, a.Stub)
}

func TestTickSyncsChangedRoutesToFib(t *testing.T) {
	fib := newFakeFib()
	r := New(baseConfig(), fib, nil)

	prefix := netip.MustParsePrefix("10.0.0.0/24")
	r.routes.Insert(prefix, &rib.Entry{Type: rib.SPFIntra, Changed: true})

	err := r.Tick(time.Unix(0, 0))
	require.NoError(t, err)

	assert.Contains(t, fib.added, prefix.String())

	e, ok := r.routes.Get(prefix)
	require.True(t, ok)
	assert.False(t, e.Changed, "a successfully synced route must be marked unchanged")
}

func TestTickSkipsUnchangedRoutes(t *testing.T) {
	fib := newFakeFib()
	r := New(baseConfig(), fib, nil)

	prefix := netip.MustParsePrefix("10.0.0.0/24")
	r.routes.Insert(prefix, &rib.Entry{Type: rib.SPFIntra, Changed: false})

	require.NoError(t, r.Tick(time.Unix(0, 0)))

	assert.NotContains(t, fib.added, prefix.String())
}

func TestShutdownWithdrawsEveryRoute(t *testing.T) {
	fib := newFakeFib()
	r := New(baseConfig(), fib, nil)

	prefix := netip.MustParsePrefix("10.0.0.0/24")
	r.routes.Insert(prefix, &rib.Entry{Type: rib.SPFIntra})

	require.NoError(t, r.Shutdown(0))
	assert.True(t, fib.deleted[prefix.String()])
}

func TestKrtDeleteNotificationMarksRouteChanged(t *testing.T) {
	fib := newFakeFib()
	r := New(baseConfig(), fib, nil)

	prefix := netip.MustParsePrefix("10.0.0.0/24")
	r.routes.Insert(prefix, &rib.Entry{Type: rib.SPFIntra, Changed: false})
	fib.notify <- prefix

	require.NoError(t, r.Tick(time.Unix(0, 0)))

	e, ok := r.routes.Get(prefix)
	require.True(t, ok)
	assert.True(t, e.Changed, "a kernel-desync notification must mark the route for reinstallation")
}

func TestScheduleSPFMarksPending(t *testing.T) {
	r := New(baseConfig(), nil, nil)
	assert.False(t, r.pendingSPF)

	r.ScheduleSPF()
	assert.True(t, r.pendingSPF)
}
