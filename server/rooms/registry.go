package rooms

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
	"github.com/rs/zerolog"
)

var (
	ErrCodeInUse = errors.New("rooms: game code already in use")
	ErrNotFound  = errors.New("rooms: no room with that code")
	ErrCanceled  = errors.New("rooms: operation canceled by hook")
)

// Hooks are the narrow pre-operation veto points plugins and the operator
// surface install. Nil funcs are no-ops.
type Hooks struct {
	// BeforeCreate may cancel room creation or alter the settings.
	BeforeCreate func(settings *protocol.GameSettings) (cancel bool)
	// BeforeJoin may cancel a join.
	BeforeJoin func(room *Room, c *clients.Connection) (cancel bool)
	// BeforeDestroy may veto a destroy initiated by timers or the
	// operator surface. Explicit client-driven destroys are not vetoable.
	BeforeDestroy func(room *Room) (cancel bool)
}

// Registry allocates game codes and owns the code → room map.
type Registry struct {
	mu     sync.Mutex
	rooms  map[protocol.GameCode]*Room
	scheme string // "v1" or "v2"
	hooks  Hooks
	opts   RelayOptions
	logger zerolog.Logger
}

func NewRegistry(scheme string, hooks Hooks, opts RelayOptions, logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[protocol.GameCode]*Room),
		scheme: scheme,
		hooks:  hooks,
		opts:   opts,
		logger: logger.With().Str("com", "rooms").Logger(),
	}
}

// Generate draws codes until it finds one not in use. The reserved LOCAL
// code is never produced.
func (r *Registry) Generate() protocol.GameCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		code := r.randomCode()
		if code == protocol.CodeLocal {
			continue
		}
		if _, used := r.rooms[code]; !used {
			return code
		}
	}
}

func (r *Registry) randomCode() protocol.GameCode {
	n := 4
	if r.scheme == "v2" {
		n = 6
	}
	letters := make([]byte, n)
	for i := range letters {
		letters[i] = byte('A' + rand.IntN(26))
	}
	code, _ := protocol.CodeFromString(string(letters))
	return code
}

// Create constructs a room under the given code in NotStarted with no
// members. It fails if the code is taken or a hook cancels.
func (r *Registry) Create(code protocol.GameCode, settings protocol.GameSettings) (*Room, error) {
	if r.hooks.BeforeCreate != nil {
		if cancel := r.hooks.BeforeCreate(&settings); cancel {
			return nil, ErrCanceled
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, used := r.rooms[code]; used {
		return nil, ErrCodeInUse
	}
	room := newRoom(code, settings, &r.hooks, r.opts, r.detach, r.logger)
	r.rooms[code] = room
	r.logger.Info().Str("room", code.String()).Uint8("max_players", settings.MaxPlayers).Msg("room created")
	return room, nil
}

// detach is the room's destroy callback; the room has already notified its
// members.
func (r *Registry) detach(room *Room) {
	r.mu.Lock()
	delete(r.rooms, room.Code())
	r.mu.Unlock()
}

// Get returns the room under a code, or nil.
func (r *Registry) Get(code protocol.GameCode) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[code]
}

// List snapshots all rooms.
func (r *Registry) List() []*Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room)
	}
	return out
}

// Count reports the number of live rooms.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Destroy tears a room down through the BeforeDestroy hook.
func (r *Registry) Destroy(code protocol.GameCode, reason protocol.DisconnectReason) error {
	room := r.Get(code)
	if room == nil {
		return ErrNotFound
	}
	if r.hooks.BeforeDestroy != nil {
		if cancel := r.hooks.BeforeDestroy(room); cancel {
			return ErrCanceled
		}
	}
	room.Destroy(reason)
	return nil
}

// Sweep destroys rooms that have sat empty past the creation grace period.
func (r *Registry) Sweep(now time.Time, createTimeout time.Duration) {
	for _, room := range r.List() {
		if room.MemberCount() == 0 && now.Sub(room.CreatedAt()) > createTimeout {
			if r.hooks.BeforeDestroy != nil && r.hooks.BeforeDestroy(room) {
				continue
			}
			r.logger.Info().Str("room", room.Code().String()).Msg("sweeping empty room")
			room.Destroy(protocol.ReasonDestroy)
		}
	}
}

// maxGameListings caps a GetGameList response.
const maxGameListings = 10

// GameList filters hosted rooms for a listing request: keyword equality,
// the room's map bit set in the requester's mask, and impostor count equal
// unless the requester asked for zero. LOCAL never appears. The room's
// public flag is not consulted.
func (r *Registry) GameList(req *protocol.GetGameListRequest) []protocol.GameListing {
	var out []protocol.GameListing
	for _, room := range r.List() {
		if len(out) >= maxGameListings {
			break
		}
		if room.Code() == protocol.CodeLocal || room.State() == StateDestroyed {
			continue
		}
		settings := room.Settings()
		if settings.Keywords != req.Keywords {
			continue
		}
		if req.MapFilter&(1<<settings.MapID) == 0 {
			continue
		}
		if req.NumImpostors != 0 && settings.NumImpostors != req.NumImpostors {
			continue
		}
		host := room.Host()
		if host == nil {
			continue
		}
		listing := protocol.GameListing{
			Port:         uint16(host.Addr().Port),
			Code:         room.Code(),
			HostName:     host.Username,
			PlayerCount:  uint8(room.MemberCount()),
			Age:          uint32(time.Since(room.CreatedAt()).Seconds()),
			MapID:        settings.MapID,
			NumImpostors: settings.NumImpostors,
			MaxPlayers:   settings.MaxPlayers,
		}
		copy(listing.IP[:], host.Addr().IP.To4())
		out = append(out, listing)
	}
	return out
}
