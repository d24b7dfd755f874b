package server

import (
	"net"
	"strings"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/chat"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
	"github.com/ILikePlayingGames/Hindenburg/server/rooms"
)

// handleDatagram decodes and routes one inbound datagram. A panic in a
// handler is logged with the sender's identity and serving continues.
func (s *Server) handleDatagram(remote *net.UDPAddr, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("addr", remote.String()).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	pkt, err := protocol.Parse(data, protocol.Serverbound)
	if err != nil {
		s.logger.Debug().Err(err).Str("addr", remote.String()).Msg("malformed packet")
		return
	}

	if hello, ok := pkt.(*protocol.HelloPacket); ok {
		s.handleHello(remote, hello)
		return
	}

	// Anything but a hello from an unknown endpoint has no identity and is
	// ignored.
	conn := s.Clients.Get(remote)
	if conn == nil {
		return
	}

	switch p := pkt.(type) {
	case *protocol.DisconnectPacket:
		s.Clients.Remove(conn)

	case *protocol.AckPacket:
		conn.HandleAck(p.Nonce)

	case *protocol.PingPacket:
		conn.AcceptNonce(p.Nonce)
		if err := conn.Acknowledge(p.Nonce); err != nil {
			conn.Logger().Warn().Err(err).Msg("ping ack failed")
		}

	case *protocol.ReliablePacket:
		accepted := conn.AcceptNonce(p.Nonce)
		if err := conn.Acknowledge(p.Nonce); err != nil {
			conn.Logger().Warn().Err(err).Msg("ack failed")
		}
		if accepted {
			s.handleChildren(conn, p.Children, true)
			return
		}
		// Known client bug: mod declarations can arrive under nonce 0,
		// which the dedupe rule would otherwise suppress.
		if p.Nonce == 0 {
			for _, m := range p.Children {
				if decl, ok := m.(*protocol.ModDeclaration); ok {
					s.Handshake.OnModDeclaration(conn, decl)
				}
			}
		}

	case *protocol.UnreliablePacket:
		s.handleChildren(conn, p.Children, false)
	}
}

func (s *Server) handleHello(remote *net.UDPAddr, hello *protocol.HelloPacket) {
	conn, _ := s.Clients.GetOrCreate(remote)
	accepted := conn.AcceptNonce(hello.Nonce)
	if err := conn.Acknowledge(hello.Nonce); err != nil {
		conn.Logger().Warn().Err(err).Msg("hello ack failed")
	}
	if !accepted || conn.HelloDone {
		return
	}
	if refusal := s.Handshake.OnHello(conn, hello); refusal != nil {
		s.Clients.Disconnect(conn, refusal.Reason, refusal.Message)
	}
}

func (s *Server) handleChildren(conn *clients.Connection, children []protocol.Message, reliable bool) {
	for _, msg := range children {
		switch m := msg.(type) {
		case *protocol.ModDeclaration:
			s.Handshake.OnModDeclaration(conn, m)

		case *protocol.HostGameRequest:
			s.handleHostGame(conn, m)

		case *protocol.JoinGameRequest:
			s.handleJoinGame(conn, m)

		case *protocol.GameData:
			s.handleGameData(conn, m, reliable)

		case *protocol.GameDataTo:
			if room := s.currentRoom(conn, m.Code); room != nil {
				room.HandleGameDataTo(conn, m)
			}

		case *protocol.StartGame, *protocol.EndGame, *protocol.AlterGame, *protocol.KickPlayer:
			s.handleHostAction(conn, m)

		case *protocol.GetGameListRequest:
			games := s.Rooms.GameList(m)
			if err := conn.SendReliable(&protocol.GetGameListResponse{Games: games}); err != nil {
				conn.Logger().Warn().Err(err).Msg("game list send failed")
			}

		default:
			conn.Logger().Debug().Uint8("tag", msg.MsgTag()).Msg("ignoring unexpected message")
		}
	}
}

func (s *Server) handleHostGame(conn *clients.Connection, m *protocol.HostGameRequest) {
	if !conn.HelloDone {
		return
	}
	code := s.Rooms.Generate()
	room, err := s.Rooms.Create(code, m.Settings)
	if err != nil {
		conn.Logger().Warn().Err(err).Msg("room creation refused")
		refuse := &protocol.JoinGameError{Reason: protocol.ReasonCustom, Message: "Room creation was refused by the server"}
		if err := conn.SendReliable(refuse); err != nil {
			conn.Logger().Warn().Err(err).Msg("refusal send failed")
		}
		return
	}
	if s.cfg.Rooms.ChatCommands {
		room.AddDecodeHook(s.chatInterceptor(room))
	}
	if err := conn.SendReliable(&protocol.HostGameResponse{Code: code}); err != nil {
		conn.Logger().Warn().Err(err).Msg("host response send failed")
	}
}

func (s *Server) handleJoinGame(conn *clients.Connection, m *protocol.JoinGameRequest) {
	if !conn.HelloDone {
		return
	}
	room := s.Rooms.Get(m.Code)
	if room == nil || room.State() == rooms.StateDestroyed {
		refuse := &protocol.JoinGameError{Reason: protocol.ReasonGameNotFound}
		if err := conn.SendReliable(refuse); err != nil {
			conn.Logger().Warn().Err(err).Msg("refusal send failed")
		}
		return
	}

	if refusal := s.Handshake.ValidateJoin(conn, room.Host()); refusal != nil {
		s.Clients.Disconnect(conn, refusal.Reason, refusal.Message)
		return
	}

	// Joining a second room implies leaving the first.
	if conn.Room != nil && conn.Room.CodeValue() != m.Code {
		conn.Room.HandleLeave(conn)
		conn.Room = nil
	}

	if err := room.HandleRemoteJoin(conn); err != nil {
		conn.Logger().Warn().Err(err).Msg("join handling failed")
	}
}

func (s *Server) handleGameData(conn *clients.Connection, m *protocol.GameData, reliable bool) {
	room := s.currentRoom(conn, m.Code)
	if room == nil {
		return
	}
	// Movement must not retransmit; stale positions are worse than lost
	// ones.
	if reliable && room.IsMovementFrame(m.Children) {
		reliable = false
	}
	room.RelayGameData(conn, m.Children, reliable)
}

// handleHostAction enforces host authority over game-control messages.
// A non-host sending one is disconnected as hacking; a valid one is applied
// to room state and re-broadcast to the rest of the room.
func (s *Server) handleHostAction(conn *clients.Connection, msg protocol.Message) {
	var code protocol.GameCode
	switch m := msg.(type) {
	case *protocol.StartGame:
		code = m.Code
	case *protocol.EndGame:
		code = m.Code
	case *protocol.AlterGame:
		code = m.Code
	case *protocol.KickPlayer:
		code = m.Code
	}

	room := s.currentRoom(conn, code)
	if room == nil {
		return
	}
	if !room.IsHost(conn) {
		conn.Logger().Warn().Uint8("tag", msg.MsgTag()).Msg("host-only message from non-host")
		s.Clients.Disconnect(conn, protocol.ReasonHacking, "")
		return
	}

	exclude := map[int32]bool{conn.ID(): true}
	switch m := msg.(type) {
	case *protocol.StartGame:
		room.SetState(rooms.StateStarted)
		room.Broadcast([]protocol.Message{m}, nil, exclude, true)

	case *protocol.EndGame:
		room.SetState(rooms.StateEnded)
		room.Broadcast([]protocol.Message{m}, nil, exclude, true)

	case *protocol.AlterGame:
		if m.AlterTag == 1 {
			room.SetPublic(m.Value != 0)
		}
		room.Broadcast([]protocol.Message{m}, nil, exclude, true)

	case *protocol.KickPlayer:
		target := room.Member(m.ClientID)
		if target == nil {
			return
		}
		if m.Banned {
			room.BanAddress(target.Addr().IP.String())
		}
		room.Broadcast([]protocol.Message{m}, nil, exclude, true)
		reason := protocol.ReasonKicked
		if m.Banned {
			reason = protocol.ReasonBanned
		}
		s.Clients.Disconnect(target, reason, "")
	}
}

// currentRoom resolves the sender's room and checks the message's code
// against it; a mismatch drops the message.
func (s *Server) currentRoom(conn *clients.Connection, code protocol.GameCode) *rooms.Room {
	handle := conn.Room
	if handle == nil {
		return nil
	}
	room, ok := handle.(*rooms.Room)
	if !ok || room.Code() != code {
		return nil
	}
	return room
}

// chatInterceptor watches relayed chat RPCs for "/" commands. A command is
// canceled out of the relay and dispatched; replies reach only the caller.
func (s *Server) chatInterceptor(room *rooms.Room) rooms.DecodeFunc {
	return func(sender *clients.Connection, r *rooms.Relayed) {
		rpc, ok := r.Child.(*protocol.RpcMessage)
		if !ok || rpc.CallID != protocol.RpcSendChat {
			return
		}
		text, err := protocol.NewReader(rpc.Payload).ReadString()
		if err != nil || !strings.HasPrefix(text, "/") {
			return
		}
		r.Canceled = true

		ctx := chat.NewContext(room, sender, text, func(reply string) error {
			return s.sendChatReply(room, sender, rpc.NetID, reply)
		})
		s.Chat.Dispatch(ctx, strings.TrimPrefix(text, "/"))
	}
}

// sendChatReply delivers a command reply to the caller only, marked with
// the left-side chat note so the client renders it apart from player chat.
func (s *Server) sendChatReply(room *rooms.Room, caller *clients.Connection, netID uint32, text string) error {
	w := protocol.NewWriter()
	w.String(text)
	w.Byte(protocol.ChatNoteSideLeft)
	reply := &protocol.GameDataTo{
		Code:   room.Code(),
		Target: caller.ID(),
		Children: []protocol.GameDataChild{
			&protocol.RpcMessage{NetID: netID, CallID: protocol.RpcSendChat, Payload: w.Data()},
		},
	}
	return caller.SendReliable(reply)
}
