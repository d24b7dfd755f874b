package clients

import (
	"net"
	"sync"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clientid"
	"github.com/rs/zerolog"
)

// Registry owns every live connection, keyed by "address:port".
type Registry struct {
	mu     sync.Mutex
	conns  map[string]*Connection
	ids    clientid.Allocator
	sink   PacketSink
	logger zerolog.Logger
}

func NewRegistry(sink PacketSink, logger zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		sink:   sink,
		logger: logger.With().Str("com", "clients").Logger(),
	}
}

// GetOrCreate returns the connection for a remote endpoint, creating one
// with a fresh client id on first contact. The second return reports
// whether the connection was just created.
func (r *Registry) GetOrCreate(addr *net.UDPAddr) (*Connection, bool) {
	key := addr.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[key]; ok {
		return c, false
	}
	c := NewConnection(r.ids.Next(), addr, r.sink, r.logger)
	r.conns[key] = c
	r.logger.Debug().Int32("client_id", c.ID()).Str("addr", key).Msg("connection created")
	return c, true
}

// Get returns the connection for an endpoint, or nil.
func (r *Registry) Get(addr *net.UDPAddr) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[addr.String()]
}

// ByID scans for a connection by client id.
func (r *Registry) ByID(id int32) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.ID() == id {
			return c
		}
	}
	return nil
}

// Remove detaches a connection from its room and deletes it from the
// registry. It does not notify the peer; use Disconnect for that.
func (r *Registry) Remove(c *Connection) {
	if room := c.Room; room != nil {
		room.HandleLeave(c)
		c.Room = nil
	}
	r.mu.Lock()
	delete(r.conns, c.Key())
	r.mu.Unlock()
	r.logger.Debug().Int32("client_id", c.ID()).Msg("connection removed")
}

// Disconnect performs a graceful disconnect: a Disconnect packet with the
// given reason, then removal.
func (r *Registry) Disconnect(c *Connection, reason protocol.DisconnectReason, message string) {
	_ = c.SendDisconnect(reason, message)
	r.Remove(c)
	r.logger.Info().
		Int32("client_id", c.ID()).
		Int32("reason", int32(reason)).
		Str("message", message).
		Msg("client disconnected")
}

// List snapshots all live connections.
func (r *Registry) List() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
