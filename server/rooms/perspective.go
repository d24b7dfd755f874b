package rooms

import (
	"sync"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
)

// FilterDirection distinguishes the two filter passes: children leaving a
// perspective toward the base room, and children entering it from outside.
type FilterDirection int

const (
	FilterOutgoing FilterDirection = iota
	FilterIncoming
)

// FilterFunc inspects one relayed child and may cancel it.
type FilterFunc func(sender *clients.Connection, r *Relayed, dir FilterDirection)

// Perspective is a filtered sub-view of a room owned by a subset of
// players. Children sent by its players pass the outgoing filter before
// reaching the base room; children from outside pass the incoming filter
// before reaching its players.
type Perspective struct {
	mu sync.Mutex

	room        *Room
	players     map[int32]*clients.Connection
	filter      FilterFunc
	decodeHooks []DecodeFunc
}

// CreatePerspective carves a perspective out of the room for the given
// players. With perspectives disabled by configuration this returns nil and
// the relay path is unchanged.
func (r *Room) CreatePerspective(players []*clients.Connection, filter FilterFunc) *Perspective {
	if r.opts.DisablePerspectives {
		return nil
	}
	p := &Perspective{
		room:    r,
		players: make(map[int32]*clients.Connection, len(players)),
		filter:  filter,
	}
	for _, c := range players {
		p.players[c.ID()] = c
	}
	r.mu.Lock()
	r.perspectives = append(r.perspectives, p)
	r.mu.Unlock()
	return p
}

// DestroyPerspective removes the perspective; its players fall back to the
// base room surface.
func (r *Room) DestroyPerspective(p *Perspective) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, q := range r.perspectives {
		if q == p {
			r.perspectives = append(r.perspectives[:i], r.perspectives[i+1:]...)
			return
		}
	}
}

// Perspectives snapshots the room's active perspectives.
func (r *Room) Perspectives() []*Perspective {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Perspective(nil), r.perspectives...)
}

// AddDecodeHook installs an observer on children sent by this perspective's
// players.
func (p *Perspective) AddDecodeHook(h DecodeFunc) {
	p.mu.Lock()
	p.decodeHooks = append(p.decodeHooks, h)
	p.mu.Unlock()
}

// Players snapshots the perspective's player set.
func (p *Perspective) Players() []*clients.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*clients.Connection, 0, len(p.players))
	for _, c := range p.players {
		out = append(out, c)
	}
	return out
}

func (p *Perspective) has(id int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.players[id]
	return ok
}

func (p *Perspective) removePlayer(id int32) {
	p.mu.Lock()
	delete(p.players, id)
	p.mu.Unlock()
}

// decode runs the perspective's decode hooks over one relayed child.
func (p *Perspective) decode(sender *clients.Connection, r *Relayed) {
	p.mu.Lock()
	hooks := append([]DecodeFunc(nil), p.decodeHooks...)
	p.mu.Unlock()
	for _, h := range hooks {
		h(sender, r)
	}
}

// applyFilter runs the outgoing or incoming filter over one relayed child.
func (p *Perspective) applyFilter(sender *clients.Connection, r *Relayed, dir FilterDirection) {
	if p.filter != nil {
		p.filter(sender, r, dir)
	}
}

// deliver pushes children arriving from outside the perspective through the
// incoming filter and on to the perspective's players, excluding the
// sender.
func (p *Perspective) deliver(sender *clients.Connection, children []protocol.GameDataChild, reliable bool) {
	var kept []protocol.GameDataChild
	for _, child := range children {
		relayed := &Relayed{Child: child}
		p.applyFilter(sender, relayed, FilterIncoming)
		if !relayed.Canceled {
			kept = append(kept, relayed.Child)
		}
	}
	if len(kept) == 0 {
		return
	}
	msg := &protocol.GameData{Code: p.room.Code(), Children: kept}
	for _, c := range p.Players() {
		if c.ID() == sender.ID() {
			continue
		}
		p.send(c, msg, reliable)
	}
}

// sendLocal broadcasts children that stay inside the perspective to its
// players, excluding the sender. No filter applies; these already passed
// the decode phase.
func (p *Perspective) sendLocal(sender *clients.Connection, children []protocol.GameDataChild, reliable bool) {
	if len(children) == 0 {
		return
	}
	msg := &protocol.GameData{Code: p.room.Code(), Children: children}
	for _, c := range p.Players() {
		if c.ID() == sender.ID() {
			continue
		}
		p.send(c, msg, reliable)
	}
}

func (p *Perspective) send(c *clients.Connection, msg protocol.Message, reliable bool) {
	var err error
	if reliable {
		err = c.SendReliable(msg)
	} else {
		err = c.SendUnreliable(msg)
	}
	if err != nil {
		c.Logger().Warn().Err(err).Msg("perspective send failed")
	}
}
