package rooms

import (
	"sync"
	"time"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
	"github.com/rs/zerolog"
)

// GameState is the room lifecycle state.
type GameState int

const (
	StateNotStarted GameState = iota
	StateStarted
	StateEnded
	StateDestroyed
)

// RelayOptions carries the configuration knobs the relay consults.
type RelayOptions struct {
	AcceptUnknownGameData bool
	DisablePerspectives   bool
}

// Relayed wraps one game-data child with its cancel flag for the duration
// of a relay pass. Handlers mutate Canceled; the wire format never carries
// it.
type Relayed struct {
	Child    protocol.GameDataChild
	Canceled bool
}

// DecodeFunc observes a child on its way through a room or perspective and
// may cancel it.
type DecodeFunc func(sender *clients.Connection, r *Relayed)

// Room is one game session: membership, host, bans, perspectives and the
// broadcast surface. Rooms hold back-references to connections but never
// own them.
type Room struct {
	mu sync.Mutex

	code      protocol.GameCode
	createdAt time.Time
	state     GameState
	settings  protocol.GameSettings
	public    bool

	hostID  int32
	members map[int32]*clients.Connection
	bans    map[string]struct{}

	perspectives    []*Perspective
	transformNetIDs map[uint32]struct{}

	decodeHooks []DecodeFunc
	hooks       *Hooks
	opts        RelayOptions
	onDestroy   func(*Room)
	logger      zerolog.Logger
}

func newRoom(code protocol.GameCode, settings protocol.GameSettings, hooks *Hooks, opts RelayOptions, onDestroy func(*Room), logger zerolog.Logger) *Room {
	return &Room{
		code:            code,
		createdAt:       time.Now(),
		state:           StateNotStarted,
		settings:        settings,
		members:         make(map[int32]*clients.Connection),
		bans:            make(map[string]struct{}),
		transformNetIDs: make(map[uint32]struct{}),
		hooks:           hooks,
		opts:            opts,
		onDestroy:       onDestroy,
		logger:          logger.With().Str("room", code.String()).Logger(),
	}
}

// CodeValue implements clients.RoomHandle.
func (r *Room) CodeValue() protocol.GameCode { return r.code }

func (r *Room) Code() protocol.GameCode { return r.code }

func (r *Room) CreatedAt() time.Time { return r.createdAt }

func (r *Room) State() GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) Settings() protocol.GameSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// Public reports the room's public flag. Game listings do not consult it.
func (r *Room) Public() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.public
}

// HostID returns the current host's client id, or 0 with no members.
func (r *Room) HostID() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostID
}

// IsHost reports whether the connection is the room's current host.
func (r *Room) IsHost(c *clients.Connection) bool {
	return r.HostID() == c.ID()
}

// Host returns the host connection, or nil.
func (r *Room) Host() *clients.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[r.hostID]
}

// Members snapshots the member list.
func (r *Room) Members() []*clients.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*clients.Connection, 0, len(r.members))
	for _, c := range r.members {
		out = append(out, c)
	}
	return out
}

// Member looks a member up by client id.
func (r *Room) Member(id int32) *clients.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[id]
}

// MemberCount reports the current member count.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// BanAddress adds an IP to the room's ban set.
func (r *Room) BanAddress(ip string) {
	r.mu.Lock()
	r.bans[ip] = struct{}{}
	r.mu.Unlock()
}

// IsBanned reports whether an IP is banned from this room.
func (r *Room) IsBanned(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bans[ip]
	return ok
}

// AddDecodeHook installs an observer on the room's relay path.
func (r *Room) AddDecodeHook(h DecodeFunc) {
	r.mu.Lock()
	r.decodeHooks = append(r.decodeHooks, h)
	r.mu.Unlock()
}

// HandleRemoteJoin admits a connection into the room, or refuses it with a
// JoinGameError without altering room state.
func (r *Room) HandleRemoteJoin(c *clients.Connection) error {
	refuse := func(reason protocol.DisconnectReason, msg string) error {
		return c.SendReliable(&protocol.JoinGameError{Reason: reason, Message: msg})
	}

	r.mu.Lock()
	switch {
	case r.state == StateDestroyed:
		r.mu.Unlock()
		return refuse(protocol.ReasonGameNotFound, "")
	case r.isBannedLocked(c.Addr().IP.String()):
		r.mu.Unlock()
		return refuse(protocol.ReasonBanned, "")
	case len(r.members) >= int(r.settings.MaxPlayers):
		r.mu.Unlock()
		return refuse(protocol.ReasonGameFull, "")
	case r.state == StateStarted:
		r.mu.Unlock()
		return refuse(protocol.ReasonGameStarted, "")
	}
	r.mu.Unlock()

	if r.hooks != nil && r.hooks.BeforeJoin != nil {
		if cancel := r.hooks.BeforeJoin(r, c); cancel {
			return refuse(protocol.ReasonCustom, "Join was refused by the server")
		}
	}

	r.mu.Lock()
	c.Room = r
	r.members[c.ID()] = c
	if r.hostID == 0 {
		r.hostID = c.ID()
	}
	hostID := r.hostID
	others := make([]*clients.Connection, 0, len(r.members)-1)
	otherIDs := make([]int32, 0, len(r.members)-1)
	for id, m := range r.members {
		if id != c.ID() {
			others = append(others, m)
			otherIDs = append(otherIDs, id)
		}
	}
	r.mu.Unlock()

	r.logger.Info().Int32("client_id", c.ID()).Str("username", c.Username).Msg("client joined")

	announce := &protocol.JoinedGame{Code: r.code, JoinedID: c.ID(), HostID: hostID}
	for _, m := range others {
		if err := m.SendReliable(announce); err != nil {
			m.Logger().Warn().Err(err).Msg("join announce failed")
		}
	}
	return c.SendReliable(&protocol.JoinedGame{
		Code:     r.code,
		JoinedID: c.ID(),
		HostID:   hostID,
		OtherIDs: otherIDs,
	})
}

func (r *Room) isBannedLocked(ip string) bool {
	_, ok := r.bans[ip]
	return ok
}

// HandleLeave implements clients.RoomHandle: it detaches the member,
// re-elects the host if needed, and destroys the room once empty. The host
// is always a member unless the room is empty; on host departure the
// remaining member with the lowest client id takes over.
func (r *Room) HandleLeave(c *clients.Connection) {
	r.mu.Lock()
	if _, ok := r.members[c.ID()]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.members, c.ID())
	for _, p := range r.perspectives {
		p.removePlayer(c.ID())
	}
	empty := len(r.members) == 0
	hostLeft := r.hostID == c.ID()
	if hostLeft && !empty {
		lowest := int32(0)
		for id := range r.members {
			if lowest == 0 || id < lowest {
				lowest = id
			}
		}
		r.hostID = lowest
	}
	if empty {
		r.hostID = 0
	}
	r.mu.Unlock()

	r.logger.Info().Int32("client_id", c.ID()).Msg("client left")

	if empty {
		r.Destroy(protocol.ReasonDestroy)
	}
}

// SetState applies a host game-control transition.
func (r *Room) SetState(s GameState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// SetPublic sets the room's public flag (AlterGame tag 1).
func (r *Room) SetPublic(public bool) {
	r.mu.Lock()
	r.public = public
	r.mu.Unlock()
}

// Destroy tears the room down: members are detached (never destroyed) and
// told the game is gone.
func (r *Room) Destroy(reason protocol.DisconnectReason) {
	r.mu.Lock()
	if r.state == StateDestroyed {
		r.mu.Unlock()
		return
	}
	r.state = StateDestroyed
	members := make([]*clients.Connection, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	r.members = make(map[int32]*clients.Connection)
	r.hostID = 0
	r.mu.Unlock()

	for _, m := range members {
		m.Room = nil
		if err := m.SendReliable(&protocol.RemoveGame{Reason: reason}); err != nil {
			m.Logger().Warn().Err(err).Msg("remove game notify failed")
		}
	}

	r.logger.Info().Int("members", len(members)).Msg("room destroyed")
	if r.onDestroy != nil {
		r.onDestroy(r)
	}
}

// Broadcast ships messages to room members. With target set, delivery is
// restricted to that member; exclude always wins. Reliable wraps in a fresh
// Reliable per recipient, otherwise each recipient gets its own Unreliable.
func (r *Room) Broadcast(messages []protocol.Message, target *clients.Connection, exclude map[int32]bool, reliable bool) {
	for _, m := range r.recipients(target, exclude) {
		var err error
		if reliable {
			err = m.SendReliable(messages...)
		} else {
			err = m.SendUnreliable(messages...)
		}
		if err != nil {
			m.Logger().Warn().Err(err).Msg("broadcast send failed")
		}
	}
}

func (r *Room) recipients(target *clients.Connection, exclude map[int32]bool) []*clients.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*clients.Connection
	for id, m := range r.members {
		if exclude[id] {
			continue
		}
		if target != nil && id != target.ID() {
			continue
		}
		out = append(out, m)
	}
	return out
}
