package neighbors

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/geocast/src/common"
	"github.com/mosaicnetworks/geocast/src/net"
)

func newTestDirectories(t *testing.T, registry *net.InmemRegistry, clk clock.Clock, ids ...string) []*Directory {
	res := make([]*Directory, len(ids))
	for i, id := range ids {
		trans := net.NewInmemTransport(id, registry, clk, common.NewTestEntry(t, common.TestLogLevel))
		if err := trans.Listen(); err != nil {
			t.Fatal(err)
		}
		res[i] = NewDirectory(trans, time.Second, common.NewTestEntry(t, common.TestLogLevel))
	}
	return res
}

func TestDirectoryRefresh(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()
	dirs := newTestDirectories(t, registry, clk, "alice", "bob", "carol")

	for _, d := range dirs {
		if s := d.Status(); s != Disconnected {
			t.Fatalf("initial status should be DISCONNECTED, not %v", s)
		}
	}

	for _, d := range dirs {
		if err := d.Refresh(clk.Now()); err != nil {
			t.Fatal(err)
		}
	}

	// alice refreshed first and only knows what was sent before her round
	if n := dirs[0].Neighbors(); len(n) != 0 {
		t.Fatalf("alice should have no neighbors yet, not %v", n)
	}
	if n := dirs[2].Neighbors(); !reflect.DeepEqual(n, []string{"alice", "bob"}) {
		t.Fatalf("carol neighbors should be [alice bob], not %v", n)
	}

	clk.Add(time.Second)
	for _, d := range dirs {
		if err := d.Refresh(clk.Now()); err != nil {
			t.Fatal(err)
		}
		if s := d.Status(); s != Connected {
			t.Fatalf("status should be CONNECTED, not %v", s)
		}
	}

	if n := dirs[0].Neighbors(); !reflect.DeepEqual(n, []string{"bob", "carol"}) {
		t.Fatalf("alice neighbors should be [bob carol], not %v", n)
	}
}

func TestDirectoryAbsence(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()
	dirs := newTestDirectories(t, registry, clk, "alice", "bob")

	for i := 0; i < 2; i++ {
		for _, d := range dirs {
			if err := d.Refresh(clk.Now()); err != nil {
				t.Fatal(err)
			}
		}
		clk.Add(time.Second)
	}

	registry.Disconnect("alice", "bob")

	// bob heard alice one period ago; she is still present
	if err := dirs[1].Refresh(clk.Now()); err != nil {
		t.Fatal(err)
	}
	if n := dirs[1].Neighbors(); !reflect.DeepEqual(n, []string{"alice"}) {
		t.Fatalf("bob neighbors should be [alice], not %v", n)
	}

	clk.Add(time.Second)
	if err := dirs[1].Refresh(clk.Now()); err != nil {
		t.Fatal(err)
	}
	if n := dirs[1].Neighbors(); len(n) != 0 {
		t.Fatalf("bob should have no neighbors, not %v", n)
	}
}

func TestDirectoryTransportFailure(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()
	dirs := newTestDirectories(t, registry, clk, "alice", "bob")

	for i := 0; i < 2; i++ {
		for _, d := range dirs {
			if err := d.Refresh(clk.Now()); err != nil {
				t.Fatal(err)
			}
		}
	}

	registry.Clear()

	err := dirs[0].Refresh(clk.Now())
	if err == nil {
		t.Fatal("Refresh should fail on a closed transport")
	}
	if s := dirs[0].Status(); s != Disconnected {
		t.Fatalf("status should be DISCONNECTED, not %v", s)
	}
	if dirs[0].LastError() == nil {
		t.Fatal("LastError should be set")
	}

	// the neighbour set is frozen at its last value
	if n := dirs[0].Neighbors(); !reflect.DeepEqual(n, []string{"bob"}) {
		t.Fatalf("alice neighbors should stay [bob], not %v", n)
	}
}

func TestDirectoryStop(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()
	dirs := newTestDirectories(t, registry, clk, "alice", "bob")

	for i := 0; i < 2; i++ {
		for _, d := range dirs {
			if err := d.Refresh(clk.Now()); err != nil {
				t.Fatal(err)
			}
		}
	}

	dirs[0].Stop()

	if s := dirs[0].Status(); s != Disconnected {
		t.Fatalf("status should be DISCONNECTED after Stop, not %v", s)
	}
	if n := dirs[0].Neighbors(); !reflect.DeepEqual(n, []string{"bob"}) {
		t.Fatalf("alice neighbors should stay [bob] after Stop, not %v", n)
	}

	dirs[1].MarkDisconnected(errors.New("no route"))
	if s := dirs[1].Status(); s != Disconnected {
		t.Fatalf("status should be DISCONNECTED, not %v", s)
	}
}
