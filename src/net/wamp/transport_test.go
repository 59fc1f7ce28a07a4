package wamp

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/geocast/src/common"
	"github.com/mosaicnetworks/geocast/src/geo"
	"github.com/mosaicnetworks/geocast/src/message"
	gnet "github.com/mosaicnetworks/geocast/src/net"
)

// waitFor polls cond until it returns true or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestLocalTransport(t *testing.T) {
	logger := common.NewTestEntry(t, common.TestLogLevel)

	r, err := NewRouter("office", logger)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	alice := NewLocalTransport("alice", "office", "", r, clock.New(), logger)
	bob := NewLocalTransport("bob", "office", "", r, clock.New(), logger)

	if err := alice.Heartbeat(); err != gnet.ErrTransportShutdown {
		t.Fatalf("Heartbeat before Listen should be ErrTransportShutdown, not %v", err)
	}

	for _, tr := range []*Transport{alice, bob} {
		if err := tr.Listen(); err != nil {
			t.Fatal(err)
		}
		defer tr.Close()
	}

	// a second Listen on a connected transport is a no-op
	if err := alice.Listen(); err != nil {
		t.Fatal(err)
	}

	if err := alice.Heartbeat(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, "heartbeat", func() bool {
		_, ok := bob.Mailbox().LastSeen("alice")
		return ok
	})

	pos := geo.CartesianPoint{X: 1, Y: 2, Z: 3}
	if err := alice.Publish(&gnet.Datum{
		From:     "alice",
		Key:      "gradient",
		Position: &pos,
		Values:   map[string]float64{"alice": 0},
	}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, "datum", func() bool {
		d, ok := bob.Mailbox().Datum("alice", "gradient")
		return ok && d.Position != nil && *d.Position == pos
	})

	received := make(chan *gnet.Envelope, 1)
	bob.Mailbox().Subscribe(func(env *gnet.Envelope) {
		received <- env
	})

	msg := message.NewMessage("hello", "alice", "alice", time.Now(), 2000, 5*time.Second)
	if err := alice.Send(&gnet.Envelope{
		Message:        msg,
		SenderID:       "alice",
		SenderPosition: pos,
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case env := <-received:
		if env.Message.ID != msg.ID {
			t.Fatalf("received message should be %s, not %s", msg.ID, env.Message.ID)
		}
		if env.Message.Text != "hello" {
			t.Fatalf("received text should be hello, not %s", env.Message.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for envelope")
	}

	if c := alice.Mailbox().ReceivedCount(); c != 0 {
		t.Fatalf("alice should not receive her own envelope, got %d", c)
	}
}

func TestLocalTransportSkipsMalformed(t *testing.T) {
	logger := common.NewTestEntry(t, common.TestLogLevel)

	r, err := NewRouter(DefaultRealm, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	alice := NewLocalTransport("alice", "", "", r, clock.New(), logger)
	bob := NewLocalTransport("bob", "", "", r, clock.New(), logger)

	for _, tr := range []*Transport{alice, bob} {
		if err := tr.Listen(); err != nil {
			t.Fatal(err)
		}
		defer tr.Close()
	}

	if err := alice.publish(envelopeTopic(DefaultPrefix), "{not json"); err != nil {
		t.Fatal(err)
	}

	msg := message.NewMessage("after", "alice", "alice", time.Now(), 2000, 5*time.Second)
	if err := alice.Send(&gnet.Envelope{Message: msg, SenderID: "alice"}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, "envelope", func() bool {
		return bob.Mailbox().ReceivedCount() == 1
	})

	if rec := bob.Mailbox().Received(); rec[0].Message.ID != msg.ID {
		t.Fatalf("received message should be %s, not %s", msg.ID, rec[0].Message.ID)
	}
}

func TestTransportClose(t *testing.T) {
	logger := common.NewTestEntry(t, common.TestLogLevel)

	r, err := NewRouter(DefaultRealm, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	alice := NewLocalTransport("alice", "", "", r, clock.New(), logger)
	if err := alice.Listen(); err != nil {
		t.Fatal(err)
	}

	if err := alice.Close(); err != nil {
		t.Fatal(err)
	}

	if err := alice.Heartbeat(); err != gnet.ErrTransportShutdown {
		t.Fatalf("Heartbeat after Close should be ErrTransportShutdown, not %v", err)
	}

	// Listen again after Close reconnects
	if err := alice.Listen(); err != nil {
		t.Fatal(err)
	}
	defer alice.Close()

	if err := alice.Heartbeat(); err != nil {
		t.Fatal(err)
	}
}
