package clients

import (
	"net"
	"sync"
	"time"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/rs/zerolog"
)

const (
	// TickInterval is the period of the reliability/keepalive ticker.
	TickInterval = 2000 * time.Millisecond
	// RetransmitAfter is how old an unacked packet must be before it is
	// sent again.
	RetransmitAfter = 500 * time.Millisecond
	// MaxInflight bounds the per-connection in-flight deque. A full deque
	// with no acked entries means the peer is gone.
	MaxInflight = 8
	// nonceWindow bounds the received-nonce dedupe deque.
	nonceWindow = 8
)

// PacketSink is where serialized datagrams go. *net.UDPConn satisfies it.
type PacketSink interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// RoomHandle is the connection's back-reference to the room it is in. The
// room package implements it; connections never own rooms.
type RoomHandle interface {
	CodeValue() protocol.GameCode
	HandleLeave(c *Connection)
}

// HandshakeState tracks the mod-handshake progression for one connection.
type HandshakeState int

const (
	StateNew HandshakeState = iota
	StateHelloReceived
	StateModsAwaited
	StateReady
)

// ModInfo is one announced client mod.
type ModInfo struct {
	NetID   uint32
	ID      string
	Version string
	Side    protocol.NetworkSide
}

// SentPacket is one tracked reliable transmission. Immutable once created
// except for Acked and SentAt.
type SentPacket struct {
	Nonce  uint16
	Data   []byte
	SentAt time.Time
	Acked  bool
}

// Connection is one client endpoint, keyed by its remote address:port.
type Connection struct {
	mu sync.Mutex

	addr *net.UDPAddr
	key  string
	id   int32

	Username      string
	Language      uint32
	ClientVersion int32
	HelloDone     bool
	UsesReactor   bool
	DeclaredMods  uint32

	state       HandshakeState
	mods        map[string]*ModInfo
	modsByNetID map[uint32]*ModInfo

	sendNonce  uint16
	lastSeen   uint16
	recvNonces []uint16
	inflight   []*SentPacket // newest first
	roundTrip  time.Duration

	Room         RoomHandle
	disconnected bool

	sink   PacketSink
	logger zerolog.Logger
}

// NewConnection builds a connection for a remote endpoint. The caller owns
// registration.
func NewConnection(id int32, addr *net.UDPAddr, sink PacketSink, logger zerolog.Logger) *Connection {
	return &Connection{
		addr:        addr,
		key:         addr.String(),
		id:          id,
		state:       StateNew,
		mods:        make(map[string]*ModInfo),
		modsByNetID: make(map[uint32]*ModInfo),
		sink:        sink,
		logger: logger.With().
			Int32("client_id", id).
			Str("addr", addr.String()).
			Logger(),
	}
}

func (c *Connection) ID() int32          { return c.id }
func (c *Connection) Addr() *net.UDPAddr { return c.addr }
func (c *Connection) Key() string        { return c.key }

func (c *Connection) Logger() *zerolog.Logger {
	return &c.logger
}

// State returns the handshake state.
func (c *Connection) State() HandshakeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState advances the handshake state machine.
func (c *Connection) SetState(s HandshakeState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// AddMod records an announced mod. Excess declarations beyond the declared
// count are discarded. Returns true once every declared mod has arrived.
func (c *Connection) AddMod(m *ModInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if uint32(len(c.mods)) >= c.DeclaredMods {
		return true
	}
	if _, dup := c.mods[m.ID]; !dup {
		c.mods[m.ID] = m
		c.modsByNetID[m.NetID] = m
	}
	return uint32(len(c.mods)) >= c.DeclaredMods
}

// Mod looks up an announced mod by its id string.
func (c *Connection) Mod(id string) (*ModInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.mods[id]
	return m, ok
}

// Mods snapshots the announced mod set.
func (c *Connection) Mods() []*ModInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ModInfo, 0, len(c.mods))
	for _, m := range c.mods {
		out = append(out, m)
	}
	return out
}

// ModCount reports how many mods have been announced so far.
func (c *Connection) ModCount() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(len(c.mods))
}

// Disconnected reports whether a disconnect has been initiated.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// RoundTrip returns the last measured round-trip estimate.
func (c *Connection) RoundTrip() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip
}

// SendReliable serializes children into a Reliable packet with a fresh
// nonce, tracks it for retransmission and transmits it.
func (c *Connection) SendReliable(children ...protocol.Message) error {
	c.mu.Lock()
	c.sendNonce++
	nonce := c.sendNonce
	c.mu.Unlock()

	w := protocol.GetWriter()
	defer protocol.PutWriter(w)
	protocol.WriteTo(w, &protocol.ReliablePacket{Nonce: nonce, Children: children}, protocol.Clientbound)
	data := append([]byte(nil), w.Data()...)

	c.track(nonce, data)
	return c.write(data)
}

// SendUnreliable ships children with no delivery tracking.
func (c *Connection) SendUnreliable(children ...protocol.Message) error {
	w := protocol.GetWriter()
	defer protocol.PutWriter(w)
	protocol.WriteTo(w, &protocol.UnreliablePacket{Children: children}, protocol.Clientbound)
	return c.write(w.Data())
}

// SendRaw transmits pre-serialized bytes as-is, without tracking. Used for
// acknowledgements, keepalive pings, retransmits and disconnects.
func (c *Connection) SendRaw(data []byte) error {
	return c.write(data)
}

func (c *Connection) write(data []byte) error {
	_, err := c.sink.WriteToUDP(data, c.addr)
	if err != nil {
		c.logger.Warn().Err(err).Msg("send failed")
	}
	return err
}

// track appends a sent packet at the head of the in-flight deque,
// truncating to MaxInflight.
func (c *Connection) track(nonce uint16, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sp := &SentPacket{Nonce: nonce, Data: data, SentAt: time.Now()}
	c.inflight = append([]*SentPacket{sp}, c.inflight...)
	if len(c.inflight) > MaxInflight {
		c.inflight = c.inflight[:MaxInflight]
	}
}

// Inflight snapshots the in-flight deque, newest first.
func (c *Connection) Inflight() []*SentPacket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*SentPacket(nil), c.inflight...)
}

// AcceptNonce applies the dedupe rule to an inbound reliable nonce and
// returns whether the packet should be processed. The caller acknowledges
// regardless.
func (c *Connection) AcceptNonce(nonce uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if nonce <= c.lastSeen {
		return false
	}
	c.lastSeen = nonce
	c.recvNonces = append(c.recvNonces, nonce)
	if len(c.recvNonces) > nonceWindow {
		c.recvNonces = c.recvNonces[len(c.recvNonces)-nonceWindow:]
	}
	return true
}

// LastSeenNonce returns the highest inbound nonce accepted so far.
func (c *Connection) LastSeenNonce() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Acknowledge emits an Acknowledge for an inbound nonce, with a bitmask of
// the previous eight nonces not yet received.
func (c *Connection) Acknowledge(nonce uint16) error {
	c.mu.Lock()
	var missing byte
	for i := 0; i < 8; i++ {
		prev := nonce - uint16(i) - 1
		seen := false
		for _, n := range c.recvNonces {
			if n == prev {
				seen = true
				break
			}
		}
		if !seen {
			missing |= 1 << i
		}
	}
	c.mu.Unlock()
	return c.SendRaw(protocol.Write(&protocol.AckPacket{Nonce: nonce, MissingPackets: missing}, protocol.Clientbound))
}

// HandleAck marks the matching in-flight packet acked and updates the
// round-trip estimate.
func (c *Connection) HandleAck(nonce uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sp := range c.inflight {
		if sp.Nonce == nonce && !sp.Acked {
			sp.Acked = true
			c.roundTrip = time.Since(sp.SentAt)
			return
		}
	}
}

// Tick runs one reliability interval: a keepalive ping, retransmission of
// stale unacked packets, and the liveness verdict. It returns false when
// the in-flight deque is full with nothing acked, meaning the peer is gone.
func (c *Connection) Tick(now time.Time) bool {
	c.mu.Lock()
	c.sendNonce++
	nonce := c.sendNonce
	c.mu.Unlock()

	ping := protocol.Write(&protocol.PingPacket{Nonce: nonce}, protocol.Clientbound)
	c.track(nonce, ping)
	_ = c.SendRaw(ping)

	var resend [][]byte
	c.mu.Lock()
	anyAcked := false
	for _, sp := range c.inflight {
		if sp.Acked {
			anyAcked = true
			continue
		}
		if now.Sub(sp.SentAt) > RetransmitAfter {
			sp.SentAt = now
			resend = append(resend, sp.Data)
		}
	}
	dead := len(c.inflight) == MaxInflight && !anyAcked
	c.mu.Unlock()

	for _, data := range resend {
		_ = c.SendRaw(data)
	}
	return !dead
}

// SendDisconnect ships a Disconnect with a structured reason and marks the
// connection as disconnecting. Repeat calls are no-ops.
func (c *Connection) SendDisconnect(reason protocol.DisconnectReason, message string) error {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return nil
	}
	c.disconnected = true
	c.mu.Unlock()
	pkt := &protocol.DisconnectPacket{Reason: &reason, Message: message}
	return c.SendRaw(protocol.Write(pkt, protocol.Clientbound))
}
