package geocast

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/geocast/src/common"
	"github.com/mosaicnetworks/geocast/src/config"
	"github.com/mosaicnetworks/geocast/src/crypto/keys"
	"github.com/mosaicnetworks/geocast/src/net"
)

func newTestGeocast(t *testing.T, registry *net.InmemRegistry, location string) *Geocast {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.DataDir = t.TempDir()
	conf.Backend = config.BackendInmem
	conf.NoService = true
	conf.Location = location
	conf.Clock = clock.NewMock()

	g := NewGeocast(conf)
	g.Registry = registry

	if err := g.Init(); err != nil {
		t.Fatal(err)
	}

	return g
}

func TestInitKey(t *testing.T) {
	g := newTestGeocast(t, nil, "")

	if _, err := os.Stat(filepath.Join(g.Config.DataDir, config.DefaultKeyfile)); err != nil {
		t.Fatalf("key file should have been created: %v", err)
	}

	if id := keys.DeviceID(&g.Config.Key.PublicKey); g.Node.ID() != id {
		t.Fatalf("device id should be %s, not %s", id, g.Node.ID())
	}

	if g.Registry == nil {
		t.Fatal("a registry should have been created")
	}

	if g.Service != nil {
		t.Fatal("no service should have been created")
	}

	// a second device on the same datadir reuses the key
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.DataDir = g.Config.DataDir
	conf.Backend = config.BackendInmem
	conf.NoService = true

	h := NewGeocast(conf)
	if err := h.Init(); err != nil {
		t.Fatal(err)
	}

	if h.Node.ID() != g.Node.ID() {
		t.Fatalf("device id should be %s, not %s", g.Node.ID(), h.Node.ID())
	}
}

func TestInitDeviceID(t *testing.T) {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.DataDir = t.TempDir()
	conf.Backend = config.BackendInmem
	conf.DeviceID = "alice"
	conf.Location = "45,7"
	conf.Source = true

	g := NewGeocast(conf)
	if err := g.Init(); err != nil {
		t.Fatal(err)
	}

	if g.Node.ID() != "alice" {
		t.Fatalf("device id should be alice, not %s", g.Node.ID())
	}

	if _, err := os.Stat(conf.Keyfile()); !os.IsNotExist(err) {
		t.Fatal("no key file should be created when the id is given")
	}

	state := g.Node.State()
	if !state.IsSource {
		t.Fatal("device should be a source")
	}
	if state.Location == nil || state.Location.Latitude != 45 {
		t.Fatalf("location should be set, got %v", state.Location)
	}

	if g.Service == nil {
		t.Fatal("service should have been created")
	}
}

func TestInitErrors(t *testing.T) {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.DataDir = t.TempDir()
	conf.DeviceID = "alice"
	conf.Backend = "carrier-pigeon"

	if err := NewGeocast(conf).Init(); err == nil {
		t.Fatal("unknown backend should be rejected")
	}

	conf.Backend = config.BackendInmem
	conf.Location = "north"

	if err := NewGeocast(conf).Init(); err == nil {
		t.Fatal("bad location should be rejected")
	}
}

func TestKeygen(t *testing.T) {
	dir := t.TempDir()

	if _, err := Keygen(dir); err != nil {
		t.Fatal(err)
	}

	if _, err := Keygen(dir); err == nil {
		t.Fatal("second keygen in the same directory should fail")
	}
}

func TestStartShutdown(t *testing.T) {
	registry := net.NewInmemRegistry()

	a := newTestGeocast(t, registry, "45,7")
	b := newTestGeocast(t, registry, "45,7.001")

	for _, g := range []*Geocast{a, b} {
		if err := g.Start(); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(registry.Registered()); got != 2 {
		t.Fatalf("registry should have 2 devices, not %d", got)
	}

	if _, err := a.Node.SubmitMessage("hello", 1000, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	for _, g := range []*Geocast{a, b} {
		if err := g.Shutdown(); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(registry.Registered()); got != 0 {
		t.Fatalf("registry should be empty, not %d", got)
	}
}

func TestInitCacheSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		conf := config.NewTestConfig(t, common.TestLogLevel)
		conf.DataDir = t.TempDir()
		conf.Backend = config.BackendInmem
		conf.NoService = true
		conf.DeviceID = "alice"
		conf.CacheSize = size

		g := NewGeocast(conf)
		if err := g.Init(); err != nil {
			t.Fatalf("cache size %d: %v", size, err)
		}

		if g.Config.CacheSize != config.DefaultCacheSize {
			t.Fatalf("cache size should be %d, not %d", config.DefaultCacheSize, g.Config.CacheSize)
		}
	}
}
