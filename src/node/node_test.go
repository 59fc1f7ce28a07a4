package node

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/geocast/src/common"
	"github.com/mosaicnetworks/geocast/src/geo"
	"github.com/mosaicnetworks/geocast/src/neighbors"
	"github.com/mosaicnetworks/geocast/src/net"
	"go.uber.org/goleak"
)

// linePositions places n devices on the ground, 100 meters apart along the X
// axis of the ECEF frame, starting from latitude 45 on the prime meridian.
func linePositions(n int) []geo.GeoPoint {
	base := geo.ToCartesian(geo.GeoPoint{Latitude: 45, Longitude: 0, Altitude: 0})

	res := make([]geo.GeoPoint, n)
	for i := 0; i < n; i++ {
		p := geo.ToGeo(base.Add(float64(i)*100, 0, 0))
		p.Altitude = 0
		res[i] = p
	}

	return res
}

func newTestNodes(t *testing.T, registry *net.InmemRegistry, clk clock.Clock, ids []string, positions []geo.GeoPoint) []*Node {
	nodes := make([]*Node, len(ids))
	for i, id := range ids {
		conf := TestConfig(t, clk)
		conf.Moniker = id

		trans := net.NewInmemTransport(id, registry, clk, common.NewTestEntry(t, common.TestLogLevel))

		nodes[i] = NewNode(conf, trans)
		if positions != nil {
			nodes[i].SetLocation(&positions[i])
		}
	}
	return nodes
}

// goOnline brings nodes online without starting their round loops, so that
// tests can step them deterministically.
func goOnline(t *testing.T, nodes []*Node) {
	for _, n := range nodes {
		if err := n.setOnline(true, false); err != nil {
			t.Fatal(err)
		}
	}
}

func goOffline(t *testing.T, nodes []*Node) {
	for _, n := range nodes {
		if err := n.SetOnlineStatus(false); err != nil {
			t.Fatal(err)
		}
	}
}

// stepAll runs rounds rounds on every node, in order, one period apart.
func stepAll(clk *clock.Mock, nodes []*Node, rounds int) {
	for r := 0; r < rounds; r++ {
		for _, n := range nodes {
			n.step(clk.Now())
		}
		clk.Add(time.Second)
	}
}

func TestLinearChain(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()

	ids := []string{"d0", "d1", "d2", "d3", "d4"}
	nodes := newTestNodes(t, registry, clk, ids, linePositions(5))
	goOnline(t, nodes)
	defer goOffline(t, nodes)

	nodes[0].MarkAsSource(clk.Now())
	for _, n := range nodes {
		n.SetSendFlag(true)
	}

	msg := nodes[0].EnqueueMessage("hello", clk.Now(), 2000, 5*time.Second)

	stepAll(clk, nodes, 7)

	if l := nodes[0].GetCurrentListOfMessages(); len(l) != 0 {
		t.Fatalf("originator should not deliver its own message, got %v", l)
	}

	expected := []float64{71, 141, 211, 281}
	for i, n := range nodes[1:] {
		l := n.GetCurrentListOfMessages()
		if len(l) != 1 {
			t.Fatalf("%s should have received exactly 1 message, not %d", n.ID(), len(l))
		}
		if l[0].Message.ID != msg.ID {
			t.Fatalf("%s received message should be %s, not %s", n.ID(), msg.ID, l[0].Message.ID)
		}
		if math.Abs(l[0].Distance-expected[i]) > 2 {
			t.Fatalf("%s distance should be about %v, not %v", n.ID(), expected[i], l[0].Distance)
		}
	}

	// everything has expired by now
	for _, n := range nodes {
		if p := n.Pending(); len(p) != 0 {
			t.Fatalf("%s pending should be empty, not %v", n.ID(), p)
		}
	}
}

func TestOutOfRange(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()

	ids := []string{"d0", "d1", "d2", "d3", "d4"}
	nodes := newTestNodes(t, registry, clk, ids, linePositions(5))
	goOnline(t, nodes)
	defer goOffline(t, nodes)

	for _, n := range nodes {
		n.SetSendFlag(true)
	}

	nodes[0].EnqueueMessage("hello", clk.Now(), 100, 5*time.Second)

	stepAll(clk, nodes, 7)

	if l := nodes[1].GetCurrentListOfMessages(); len(l) != 1 {
		t.Fatalf("d1 should have received 1 message, not %d", len(l))
	}

	for _, n := range nodes[2:] {
		if l := n.GetCurrentListOfMessages(); len(l) != 0 {
			t.Fatalf("%s should not have received anything, got %v", n.ID(), l)
		}
	}
}

func TestMultiHop(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()

	ids := []string{"d0", "d1", "d2"}
	nodes := newTestNodes(t, registry, clk, ids, linePositions(3))

	// d2 only hears d0 through d1
	registry.Disconnect("d0", "d2")

	goOnline(t, nodes)
	defer goOffline(t, nodes)

	nodes[0].MarkAsSource(clk.Now())

	// let the gradient settle first
	stepAll(clk, nodes, 3)

	if g, ok := nodes[2].Gradients()["d0"]; !ok || math.Abs(g-141.4) > 1 {
		t.Fatalf("d2 gradient to d0 should be about 141.4, not %v", g)
	}

	nodes[0].EnqueueMessage("hello", clk.Now(), 2000, 5*time.Second)
	nodes[0].SetSendFlag(true)

	stepAll(clk, nodes, 3)

	l := nodes[2].GetCurrentListOfMessages()
	if len(l) != 1 {
		t.Fatalf("d2 should have received 1 message through d1, not %d", len(l))
	}
	if math.Abs(l[0].Distance-141.4) > 1 {
		t.Fatalf("d2 distance should be about 141.4, not %v", l[0].Distance)
	}

	rec := nodes[2].Received()
	if len(rec) != 1 || rec[0].SenderID != "d1" {
		t.Fatalf("d2 should have received the envelope from d1, got %v", rec)
	}
}

func TestReadOnlyDevice(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()

	nodes := newTestNodes(t, registry, clk, []string{"alice", "bob"}, linePositions(2))
	nodes[1].SetLocation(nil)

	goOnline(t, nodes)
	defer goOffline(t, nodes)

	nodes[0].SetSendFlag(true)
	nodes[1].SetSendFlag(true)

	nodes[0].EnqueueMessage("hello", clk.Now(), 2000, 5*time.Second)
	bobMsg := nodes[1].EnqueueMessage("from bob", clk.Now(), 2000, 5*time.Second)

	stepAll(clk, nodes, 3)

	l := nodes[1].GetCurrentListOfMessages()
	if len(l) != 1 || l[0].Located {
		t.Fatalf("bob should display 1 unlocated message, got %v", l)
	}

	if l := nodes[0].GetCurrentListOfMessages(); len(l) != 0 {
		t.Fatalf("bob cannot forward without location, alice got %v", l)
	}

	p := nodes[1].Pending()
	if len(p) != 1 || p[0].Message.ID != bobMsg.ID {
		t.Fatalf("bob's own message should stay pending, got %v", p)
	}
}

func TestStatus(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()

	nodes := newTestNodes(t, registry, clk, []string{"alice", "bob"}, linePositions(2))

	if s := nodes[0].Status(); s != neighbors.Disconnected {
		t.Fatalf("initial status should be DISCONNECTED, not %v", s)
	}

	goOnline(t, nodes)
	stepAll(clk, nodes, 2)

	if s := nodes[0].Status(); s != neighbors.Connected {
		t.Fatalf("status should be CONNECTED, not %v", s)
	}
	if n := nodes[0].Neighbors(); !reflect.DeepEqual(n, []string{"bob"}) {
		t.Fatalf("alice neighbors should be [bob], not %v", n)
	}

	// the registry loses every transport; nodes reconnect on the next round
	registry.Clear()
	nodes[0].step(clk.Now())

	if s := nodes[0].Status(); s != neighbors.Disconnected {
		t.Fatalf("status should be DISCONNECTED after transport loss, not %v", s)
	}

	clk.Add(time.Second)
	nodes[0].step(clk.Now())

	if s := nodes[0].Status(); s != neighbors.Connected {
		t.Fatalf("status should be CONNECTED after reconnecting, not %v", s)
	}

	before := nodes[0].Neighbors()

	goOffline(t, nodes)

	if s := nodes[0].Status(); s != neighbors.Disconnected {
		t.Fatalf("status should be DISCONNECTED offline, not %v", s)
	}
	if n := nodes[0].Neighbors(); !reflect.DeepEqual(n, before) {
		t.Fatalf("neighbors should be frozen at %v, not %v", before, n)
	}
	if st := nodes[0].State(); st.Online {
		t.Fatal("State should report offline")
	}
}

func TestOfflineDevice(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()

	nodes := newTestNodes(t, registry, clk, []string{"alice", "bob"}, linePositions(2))
	goOnline(t, nodes)
	defer goOffline(t, nodes[:1])

	stepAll(clk, nodes, 2)

	if err := nodes[1].SetOnlineStatus(false); err != nil {
		t.Fatal(err)
	}

	if _, err := nodes[1].SubmitMessage("offline", 2000, 5*time.Second); err != ErrOffline {
		t.Fatalf("SubmitMessage offline should be ErrOffline, not %v", err)
	}

	nodes[0].EnqueueMessage("hello", clk.Now(), 2000, 5*time.Second)
	nodes[0].SetSendFlag(true)
	stepAll(clk, nodes, 3)

	if l := nodes[1].GetCurrentListOfMessages(); len(l) != 0 {
		t.Fatalf("offline bob should not receive anything, got %v", l)
	}
}

func TestSourceStatus(t *testing.T) {
	clk := clock.NewMock()
	n := newTestNodes(t, net.NewInmemRegistry(), clk, []string{"alice"}, linePositions(1))[0]

	now := clk.Now()
	n.MarkAsSource(now)

	st := n.State()
	if !st.IsSource || st.SourceSince == nil || !st.SourceSince.Equal(now) {
		t.Fatalf("alice should be a source since %v, got %+v", now, st)
	}

	n.ClearSourceStatus()

	st = n.State()
	if st.IsSource || st.SourceSince != nil {
		t.Fatalf("alice should not be a source, got %+v", st)
	}
}

// A device that loses its location stops publishing its field. Its
// neighbours must stop routing through it even though they still hear its
// heartbeats.
func TestReadOnlyDeviceLeavesGradient(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()

	ids := []string{"d0", "d1", "d2"}
	nodes := newTestNodes(t, registry, clk, ids, linePositions(3))
	registry.Disconnect("d0", "d2")

	goOnline(t, nodes)
	defer goOffline(t, nodes)

	nodes[0].MarkAsSource(clk.Now())

	stepAll(clk, nodes, 3)

	if _, ok := nodes[2].Gradients()["d0"]; !ok {
		t.Fatal("d2 should reach d0 through d1")
	}

	nodes[1].SetLocation(nil)

	stepAll(clk, nodes, 3)

	if g := nodes[1].Gradients(); len(g) != 0 {
		t.Fatalf("read-only d1 should have no gradient, not %v", g)
	}
	if g, ok := nodes[2].Gradients()["d0"]; ok {
		t.Fatalf("d2 should have lost its route to d0, still has %v", g)
	}
	if n := nodes[2].Neighbors(); !reflect.DeepEqual(n, []string{"d1"}) {
		t.Fatalf("d2 should still hear d1, neighbors are %v", n)
	}
}

func TestSendTriggerOneShot(t *testing.T) {
	clk := clock.NewMock()
	registry := net.NewInmemRegistry()

	nodes := newTestNodes(t, registry, clk, []string{"alice", "bob"}, linePositions(2))
	alice, bob := nodes[0], nodes[1]

	goOnline(t, nodes)
	defer goOffline(t, nodes)

	if _, err := alice.SubmitMessage("first", 2000, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	stepAll(clk, nodes, 2)

	if l := bob.GetCurrentListOfMessages(); len(l) != 1 {
		t.Fatalf("bob should have received 1 message, not %d", len(l))
	}

	alice.mu.RLock()
	send := alice.sendFlag
	alice.mu.RUnlock()
	if send {
		t.Fatal("send trigger should be cleared once alice's queue is empty")
	}

	queued := alice.EnqueueMessage("queued", clk.Now(), 2000, 5*time.Second)

	stepAll(clk, nodes, 2)

	if l := bob.GetCurrentListOfMessages(); len(l) != 1 {
		t.Fatalf("queued message should wait for the trigger, bob has %d messages", len(l))
	}
	if p := alice.Pending(); len(p) != 1 || p[0].Message.ID != queued.ID {
		t.Fatalf("queued message should be pending, got %v", p)
	}

	alice.SetSendFlag(true)
	stepAll(clk, nodes, 1)

	if l := bob.GetCurrentListOfMessages(); len(l) != 2 {
		t.Fatalf("bob should have received 2 messages, not %d", len(l))
	}
}

// TestTwoDevicesRoundLoop runs Alice and Bob with their real round loops,
// driven by a mock clock.
func TestTwoDevicesRoundLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := clock.NewMock()
	registry := net.NewInmemRegistry()

	nodes := newTestNodes(t, registry, clk, []string{"Alice", "Bob"}, linePositions(2))
	alice, bob := nodes[0], nodes[1]

	for _, n := range nodes {
		if err := n.SetOnlineStatus(true); err != nil {
			t.Fatal(err)
		}
	}
	defer goOffline(t, nodes)

	alice.EnqueueMessage("hello bob", clk.Now(), 2000, 5*time.Second)
	alice.SetSendFlag(true)

	for i := 0; i < 7; i++ {
		clk.Add(time.Second)
		time.Sleep(20 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(bob.GetCurrentListOfMessages()) == 0 && time.Now().Before(deadline) {
		clk.Add(time.Second)
		time.Sleep(20 * time.Millisecond)
	}

	if len(bob.Received()) == 0 {
		t.Fatal("Bob's received log should not be empty")
	}

	l := bob.GetCurrentListOfMessages()
	if len(l) != 1 || l[0].Message.Text != "hello bob" {
		t.Fatalf("Bob should display hello bob, got %v", l)
	}
}

func TestOfflineStopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := clock.NewMock()
	n := newTestNodes(t, net.NewInmemRegistry(), clk, []string{"alice"}, linePositions(1))[0]

	for i := 0; i < 3; i++ {
		if err := n.SetOnlineStatus(true); err != nil {
			t.Fatal(err)
		}
		// idempotent
		if err := n.SetOnlineStatus(true); err != nil {
			t.Fatal(err)
		}

		clk.Add(time.Second)

		if err := n.SetOnlineStatus(false); err != nil {
			t.Fatal(err)
		}
	}

	if err := n.SetOnlineStatus(false); err != nil {
		t.Fatal(err)
	}

	if st := n.State(); st.Online {
		t.Fatal("alice should be offline")
	}
}
