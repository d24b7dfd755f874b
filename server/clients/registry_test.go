package clients

import (
	"net"
	"testing"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/rs/zerolog"
)

type fakeRoom struct {
	code protocol.GameCode
	left []int32
}

func (f *fakeRoom) CodeValue() protocol.GameCode { return f.code }
func (f *fakeRoom) HandleLeave(c *Connection)    { f.left = append(f.left, c.ID()) }

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry(&fakeSink{}, zerolog.Nop())

	addr1 := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000}
	addr2 := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1001}

	c1, created := r.GetOrCreate(addr1)
	if !created {
		t.Fatal("first contact should create")
	}
	c1again, created := r.GetOrCreate(addr1)
	if created || c1again != c1 {
		t.Fatal("same endpoint should return the same connection")
	}

	// A different port is a different identity.
	c2, created := r.GetOrCreate(addr2)
	if !created || c2 == c1 {
		t.Fatal("different port should create a fresh connection")
	}
	if c2.ID() <= c1.ID() {
		t.Fatalf("client ids must increase: %d then %d", c1.ID(), c2.ID())
	}

	if r.Count() != 2 {
		t.Fatalf("count = %d, want 2", r.Count())
	}
}

func TestRemoveEmitsLeave(t *testing.T) {
	r := NewRegistry(&fakeSink{}, zerolog.Nop())
	c, _ := r.GetOrCreate(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000})

	room := &fakeRoom{code: 1}
	c.Room = room
	r.Remove(c)

	if len(room.left) != 1 || room.left[0] != c.ID() {
		t.Fatalf("leave not emitted, got %v", room.left)
	}
	if c.Room != nil {
		t.Fatal("room back-reference should be cleared")
	}
	if r.Get(c.Addr()) != nil {
		t.Fatal("connection should be gone from the registry")
	}
}

func TestGracefulDisconnectSendsReason(t *testing.T) {
	sink := &fakeSink{}
	r := NewRegistry(sink, zerolog.Nop())
	c, _ := r.GetOrCreate(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000})

	r.Disconnect(c, protocol.ReasonCustom, "begone")

	var found bool
	for _, data := range sink.sent() {
		pkt, err := protocol.Parse(data, protocol.Clientbound)
		if err != nil {
			continue
		}
		if dc, ok := pkt.(*protocol.DisconnectPacket); ok {
			if dc.Reason == nil || *dc.Reason != protocol.ReasonCustom || dc.Message != "begone" {
				t.Fatalf("unexpected disconnect payload: %+v", dc)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("no disconnect packet sent")
	}
	if r.Count() != 0 {
		t.Fatal("connection should be removed after disconnect")
	}
}

func TestByID(t *testing.T) {
	r := NewRegistry(&fakeSink{}, zerolog.Nop())
	c, _ := r.GetOrCreate(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 2000})

	if got := r.ByID(c.ID()); got != c {
		t.Fatal("ByID should find the connection")
	}
	if got := r.ByID(c.ID() + 999); got != nil {
		t.Fatal("ByID should return nil for unknown ids")
	}
}
