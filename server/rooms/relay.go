package rooms

import (
	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
)

// RelayGameData fans a GameData frame from one sender out to the rest of
// the room, honoring perspectives.
//
// With the sender inside a perspective the relay is two-phase: children
// first pass the perspective's decode hooks (phase one); survivors are then
// copied with a fresh cancel flag through the outgoing filter (phase two)
// before reaching the base room and the other perspectives. Phase-one
// survivors reach the perspective's own players regardless of phase two.
func (r *Room) RelayGameData(sender *clients.Connection, children []protocol.GameDataChild, reliable bool) {
	r.trackNetObjects(children)
	children = r.dropUnknown(children)

	p := r.perspectiveOf(sender)
	if p == nil {
		kept := r.decodePass(sender, children)
		r.relayToRoom(sender, kept, reliable)
		return
	}

	// Phase one: the perspective's decoder observes and may cancel.
	var phaseOne []protocol.GameDataChild
	for _, child := range children {
		relayed := &Relayed{Child: child}
		p.decode(sender, relayed)
		if !relayed.Canceled {
			phaseOne = append(phaseOne, relayed.Child)
		}
	}

	// Phase two: fresh copies through the outgoing filter. The cancel flag
	// is reset between phases; a child canceled here still reaches the
	// perspective's own players below.
	var toBase []protocol.GameDataChild
	for _, child := range phaseOne {
		relayed := &Relayed{Child: child}
		p.applyFilter(sender, relayed, FilterOutgoing)
		if !relayed.Canceled {
			toBase = append(toBase, relayed.Child)
		}
	}
	r.relayToRoom(sender, toBase, reliable)

	p.sendLocal(sender, phaseOne, reliable)
}

// decodePass runs the room's decode hooks, returning the children that
// were not canceled.
func (r *Room) decodePass(sender *clients.Connection, children []protocol.GameDataChild) []protocol.GameDataChild {
	r.mu.Lock()
	hooks := append([]DecodeFunc(nil), r.decodeHooks...)
	r.mu.Unlock()
	var kept []protocol.GameDataChild
	for _, child := range children {
		relayed := &Relayed{Child: child}
		for _, h := range hooks {
			h(sender, relayed)
		}
		if !relayed.Canceled {
			kept = append(kept, relayed.Child)
		}
	}
	return kept
}

// relayToRoom broadcasts children to base-room members outside any
// perspective, then fans out to every perspective the sender is not in.
func (r *Room) relayToRoom(sender *clients.Connection, children []protocol.GameDataChild, reliable bool) {
	if len(children) == 0 {
		return
	}

	exclude := map[int32]bool{sender.ID(): true}
	perspectives := r.Perspectives()
	for _, p := range perspectives {
		for _, c := range p.Players() {
			exclude[c.ID()] = true
		}
	}

	msg := &protocol.GameData{Code: r.Code(), Children: children}
	r.Broadcast([]protocol.Message{msg}, nil, exclude, reliable)

	for _, p := range perspectives {
		if p.has(sender.ID()) {
			continue
		}
		p.deliver(sender, children, reliable)
	}
}

// HandleGameDataTo forwards a directed frame to exactly the named room
// member. An absent recipient means a silent drop.
func (r *Room) HandleGameDataTo(sender *clients.Connection, msg *protocol.GameDataTo) {
	target := r.Member(msg.Target)
	if target == nil || target.ID() == sender.ID() {
		return
	}
	children := r.dropUnknown(msg.Children)
	if len(children) == 0 {
		return
	}
	forward := &protocol.GameDataTo{Code: r.Code(), Target: msg.Target, Children: children}
	if err := target.SendReliable(forward); err != nil {
		target.Logger().Warn().Err(err).Msg("directed send failed")
	}
}

func (r *Room) perspectiveOf(sender *clients.Connection) *Perspective {
	if r.opts.DisablePerspectives {
		return nil
	}
	for _, p := range r.Perspectives() {
		if p.has(sender.ID()) {
			return p
		}
	}
	return nil
}

func (r *Room) dropUnknown(children []protocol.GameDataChild) []protocol.GameDataChild {
	if r.opts.AcceptUnknownGameData {
		return children
	}
	kept := children[:0:0]
	for _, child := range children {
		if _, unknown := child.(*protocol.UnknownGameData); unknown {
			r.logger.Debug().Uint8("tag", child.DataTag()).Msg("dropped unknown game data")
			continue
		}
		kept = append(kept, child)
	}
	return kept
}

// trackNetObjects follows Spawn and Despawn children so the relay knows
// which net ids carry movement. A Player spawn's transform component is the
// unreliable fast path.
func (r *Room) trackNetObjects(children []protocol.GameDataChild) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, child := range children {
		switch c := child.(type) {
		case *protocol.SpawnMessage:
			if c.SpawnType == protocol.SpawnPlayer && len(c.Components) > protocol.PlayerTransformComponent {
				r.transformNetIDs[c.Components[protocol.PlayerTransformComponent].NetID] = struct{}{}
			}
		case *protocol.DespawnMessage:
			delete(r.transformNetIDs, c.NetID)
		}
	}
}

// IsMovementFrame reports whether a frame is a pure movement update: a
// single Data child targeting a tracked player transform. Movement is
// relayed unreliably; retransmitting stale positions is worse than losing
// them.
func (r *Room) IsMovementFrame(children []protocol.GameDataChild) bool {
	if len(children) != 1 {
		return false
	}
	data, ok := children[0].(*protocol.DataMessage)
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok = r.transformNetIDs[data.NetID]
	return ok
}
