package server

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/ILikePlayingGames/Hindenburg/protocol"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
	"github.com/ILikePlayingGames/Hindenburg/server/operator"
	"github.com/ILikePlayingGames/Hindenburg/server/rooms"
)

// The methods below implement operator.Backend, the console's view of the
// server.

func (s *Server) ListClients() []operator.ClientRow {
	conns := s.Clients.List()
	rows := make([]operator.ClientRow, 0, len(conns))
	for _, c := range conns {
		rows = append(rows, clientRow(c))
	}
	return rows
}

func clientRow(c *clients.Connection) operator.ClientRow {
	row := operator.ClientRow{
		ID:       c.ID(),
		Username: c.Username,
		Address:  c.Key(),
	}
	if c.Room != nil {
		row.Room = c.Room.CodeValue().String()
	}
	if rtt := c.RoundTrip(); rtt > 0 {
		row.RTT = rtt.String()
	}
	return row
}

func (s *Server) ListRooms() []operator.RoomRow {
	all := s.Rooms.List()
	rows := make([]operator.RoomRow, 0, len(all))
	for _, room := range all {
		row := operator.RoomRow{
			Code:    room.Code().String(),
			State:   stateName(room.State()),
			Players: room.MemberCount(),
			Max:     room.Settings().MaxPlayers,
			Public:  room.Public(),
			AgeSecs: int64(time.Since(room.CreatedAt()).Seconds()),
		}
		if host := room.Host(); host != nil {
			row.Host = host.Username
		}
		rows = append(rows, row)
	}
	return rows
}

func stateName(s rooms.GameState) string {
	switch s {
	case rooms.StateNotStarted:
		return "not-started"
	case rooms.StateStarted:
		return "started"
	case rooms.StateEnded:
		return "ended"
	case rooms.StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

func (s *Server) ListPlugins() []operator.PluginRow {
	all := s.Plugins.List()
	rows := make([]operator.PluginRow, 0, len(all))
	for _, p := range all {
		rows = append(rows, operator.PluginRow{
			ID:      p.Manifest.ID,
			Version: p.Manifest.Version,
			Mirror:  p.Manifest.MirrorsAsMod,
		})
	}
	return rows
}

func (s *Server) ListMods(clientID int32) ([]operator.ModRow, error) {
	c := s.Clients.ByID(clientID)
	if c == nil {
		return nil, fmt.Errorf("no client with id %d", clientID)
	}
	mods := c.Mods()
	rows := make([]operator.ModRow, 0, len(mods))
	for _, m := range mods {
		rows = append(rows, operator.ModRow{
			NetID:   m.NetID,
			ID:      m.ID,
			Version: m.Version,
			Side:    sideName(m.Side),
		})
	}
	return rows, nil
}

func sideName(s protocol.NetworkSide) string {
	switch s {
	case protocol.SideClientside:
		return "clientside"
	case protocol.SideServerside:
		return "serverside"
	}
	return "both"
}

func (s *Server) ListPlayers(code string) ([]operator.ClientRow, error) {
	room, err := s.roomByCode(code)
	if err != nil {
		return nil, err
	}
	members := room.Members()
	rows := make([]operator.ClientRow, 0, len(members))
	for _, c := range members {
		rows = append(rows, clientRow(c))
	}
	return rows, nil
}

func (s *Server) ListPerspectives(code string) ([]operator.PovRow, error) {
	room, err := s.roomByCode(code)
	if err != nil {
		return nil, err
	}
	var rows []operator.PovRow
	for i, p := range room.Perspectives() {
		row := operator.PovRow{Index: i}
		for _, c := range p.Players() {
			row.Players = append(row.Players, c.Username)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DisconnectClients applies the dc filter. A positive ban duration also
// bans the client's address from its room.
func (s *Server) DisconnectClients(filter operator.DisconnectFilter) (int, error) {
	reason := protocol.ReasonCustom
	message := filter.Reason
	if message == "" {
		message = "You were disconnected by the server"
	}

	n := 0
	for _, c := range s.Clients.List() {
		if filter.ClientID != 0 && c.ID() != filter.ClientID {
			continue
		}
		if filter.Username != "" && !strings.EqualFold(c.Username, filter.Username) {
			continue
		}
		if filter.Address != "" && c.Addr().IP.String() != filter.Address {
			continue
		}
		if filter.Room != "" {
			if c.Room == nil || !strings.EqualFold(c.Room.CodeValue().String(), filter.Room) {
				continue
			}
		}
		if filter.BanMinutes > 0 {
			if room, ok := c.Room.(*rooms.Room); ok && room != nil {
				room.BanAddress(c.Addr().IP.String())
			}
		}
		s.Clients.Disconnect(c, reason, message)
		n++
	}
	return n, nil
}

func (s *Server) DestroyRoom(code, reason string) error {
	room, err := s.roomByCode(code)
	if err != nil {
		return err
	}
	why := protocol.ReasonDestroy
	if reason != "" {
		s.logger.Info().Str("room", room.Code().String()).Str("reason", reason).Msg("operator destroy")
	}
	return s.Rooms.Destroy(room.Code(), why)
}

func (s *Server) LoadPlugin(path string) error {
	_, err := s.Plugins.Load(path)
	return err
}

func (s *Server) UnloadPlugin(id string) error {
	return s.Plugins.Unload(id)
}

// BroadcastChat pushes a server chat note to every client that is in a
// room, or to one room's members. Clients outside any room are skipped.
func (s *Server) BroadcastChat(text, roomCode string) error {
	if roomCode != "" {
		room, err := s.roomByCode(roomCode)
		if err != nil {
			return err
		}
		for _, c := range room.Members() {
			if err := s.sendChatReply(room, c, 0, text); err != nil {
				c.Logger().Warn().Err(err).Msg("broadcast send failed")
			}
		}
		return nil
	}
	for _, c := range s.Clients.List() {
		room, ok := c.Room.(*rooms.Room)
		if !ok || room == nil {
			continue
		}
		if err := s.sendChatReply(room, c, 0, text); err != nil {
			c.Logger().Warn().Err(err).Msg("broadcast send failed")
		}
	}
	return nil
}

func (s *Server) MemStats() operator.MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return operator.MemStats{
		AllocBytes: m.Alloc,
		SysBytes:   m.Sys,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
		Clients:    s.Clients.Count(),
		Rooms:      s.Rooms.Count(),
	}
}

func (s *Server) roomByCode(code string) (*rooms.Room, error) {
	parsed, err := protocol.CodeFromString(code)
	if err != nil {
		return nil, err
	}
	room := s.Rooms.Get(parsed)
	if room == nil {
		return nil, fmt.Errorf("no room with code %s", strings.ToUpper(code))
	}
	return room, nil
}
