package protocol

import (
	"fmt"
)

// The codec is stateless. Parse and Write are exact inverses over the packet
// catalog: Write(Parse(b, dir), dir) reproduces b for every well-formed
// datagram.

// Parse decodes one datagram into a root packet.
func Parse(data []byte, dir Direction) (RootPacket, error) {
	r := NewReader(data)
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagReliable:
		nonce, err := r.ReadUint16BE()
		if err != nil {
			return nil, err
		}
		children, err := parseChildren(r, dir)
		if err != nil {
			return nil, err
		}
		return &ReliablePacket{Nonce: nonce, Children: children}, nil

	case TagUnreliable:
		children, err := parseChildren(r, dir)
		if err != nil {
			return nil, err
		}
		return &UnreliablePacket{Children: children}, nil

	case TagHello:
		return parseHello(r)

	case TagDisconnect:
		return parseDisconnect(r)

	case TagAcknowledge:
		nonce, err := r.ReadUint16BE()
		if err != nil {
			return nil, err
		}
		missing, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return &AckPacket{Nonce: nonce, MissingPackets: missing}, nil

	case TagPing:
		nonce, err := r.ReadUint16BE()
		if err != nil {
			return nil, err
		}
		return &PingPacket{Nonce: nonce}, nil

	default:
		return nil, fmt.Errorf("unknown root tag 0x%02x", tag)
	}
}

func parseHello(r *Reader) (*HelloPacket, error) {
	p := &HelloPacket{}
	var err error
	if p.Nonce, err = r.ReadUint16BE(); err != nil {
		return nil, err
	}
	if p.HazelVersion, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if p.ClientVersion, err = r.ReadInt32LE(); err != nil {
		return nil, err
	}
	if p.Username, err = r.ReadString(); err != nil {
		return nil, err
	}
	if p.Language, err = r.ReadUint32LE(); err != nil {
		return nil, err
	}
	// A modded hello continues past the vanilla fields.
	if r.Remaining() > 0 {
		mod := &ModHello{}
		if mod.ProtocolVersion, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if mod.ModCount, err = r.ReadPacked(); err != nil {
			return nil, err
		}
		p.Mod = mod
	}
	return p, nil
}

func parseDisconnect(r *Reader) (*DisconnectPacket, error) {
	p := &DisconnectPacket{}
	if r.Remaining() == 0 {
		return p, nil
	}
	// forced flag, then a single framed reason message
	if _, err := r.ReadByte(); err != nil {
		return nil, err
	}
	if r.Remaining() == 0 {
		return p, nil
	}
	_, body, err := r.ReadMessage()
	if err != nil {
		return nil, err
	}
	reasonRaw, err := body.ReadPacked()
	if err != nil {
		return nil, err
	}
	reason := DisconnectReason(reasonRaw)
	p.Reason = &reason
	if reason == ReasonCustom {
		if p.Message, err = body.ReadString(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func parseChildren(r *Reader, dir Direction) ([]Message, error) {
	var children []Message
	for r.Remaining() > 0 {
		tag, body, err := r.ReadMessage()
		if err != nil {
			return nil, err
		}
		msg, err := parseMessage(tag, body, dir)
		if err != nil {
			return nil, fmt.Errorf("child 0x%02x: %w", tag, err)
		}
		children = append(children, msg)
	}
	return children, nil
}

func parseMessage(tag byte, r *Reader, dir Direction) (Message, error) {
	switch tag {
	case MsgHostGame:
		if dir == Serverbound {
			settings, err := parseGameSettings(r)
			if err != nil {
				return nil, err
			}
			return &HostGameRequest{Settings: settings}, nil
		}
		code, err := r.ReadInt32LE()
		return &HostGameResponse{Code: GameCode(code)}, err

	case MsgJoinGame:
		if dir == Serverbound {
			code, err := r.ReadInt32LE()
			return &JoinGameRequest{Code: GameCode(code)}, err
		}
		reason, err := r.ReadInt32LE()
		m := &JoinGameError{Reason: DisconnectReason(reason)}
		if err != nil {
			return nil, err
		}
		if m.Reason == ReasonCustom {
			if m.Message, err = r.ReadString(); err != nil {
				return nil, err
			}
		}
		return m, nil

	case MsgJoinedGame:
		m := &JoinedGame{}
		code, err := r.ReadInt32LE()
		if err != nil {
			return nil, err
		}
		m.Code = GameCode(code)
		if m.JoinedID, err = r.ReadInt32LE(); err != nil {
			return nil, err
		}
		if m.HostID, err = r.ReadInt32LE(); err != nil {
			return nil, err
		}
		count, err := r.ReadPacked()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			id, err := r.ReadPacked()
			if err != nil {
				return nil, err
			}
			m.OtherIDs = append(m.OtherIDs, int32(id))
		}
		return m, nil

	case MsgStartGame:
		code, err := r.ReadInt32LE()
		return &StartGame{Code: GameCode(code)}, err

	case MsgEndGame:
		code, err := r.ReadInt32LE()
		if err != nil {
			return nil, err
		}
		reason, err := r.ReadByte()
		return &EndGame{Code: GameCode(code), Reason: reason}, err

	case MsgRemoveGame:
		reason, err := r.ReadInt32LE()
		return &RemoveGame{Reason: DisconnectReason(reason)}, err

	case MsgAlterGame:
		m := &AlterGame{}
		code, err := r.ReadInt32LE()
		if err != nil {
			return nil, err
		}
		m.Code = GameCode(code)
		if m.AlterTag, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if m.Value, err = r.ReadByte(); err != nil {
			return nil, err
		}
		return m, nil

	case MsgKickPlayer:
		m := &KickPlayer{}
		code, err := r.ReadInt32LE()
		if err != nil {
			return nil, err
		}
		m.Code = GameCode(code)
		id, err := r.ReadPacked()
		if err != nil {
			return nil, err
		}
		m.ClientID = int32(id)
		if m.Banned, err = r.ReadBool(); err != nil {
			return nil, err
		}
		return m, nil

	case MsgGetGameList:
		if dir == Serverbound {
			m := &GetGameListRequest{}
			var err error
			if m.MapFilter, err = r.ReadUint32LE(); err != nil {
				return nil, err
			}
			if m.NumImpostors, err = r.ReadByte(); err != nil {
				return nil, err
			}
			if m.Keywords, err = r.ReadUint32LE(); err != nil {
				return nil, err
			}
			return m, nil
		}
		return parseGameListResponse(r)

	case MsgGameData:
		code, err := r.ReadInt32LE()
		if err != nil {
			return nil, err
		}
		children, err := parseGameDataChildren(r)
		if err != nil {
			return nil, err
		}
		return &GameData{Code: GameCode(code), Children: children}, nil

	case MsgGameDataTo:
		code, err := r.ReadInt32LE()
		if err != nil {
			return nil, err
		}
		target, err := r.ReadPacked()
		if err != nil {
			return nil, err
		}
		children, err := parseGameDataChildren(r)
		if err != nil {
			return nil, err
		}
		return &GameDataTo{Code: GameCode(code), Target: int32(target), Children: children}, nil

	case MsgReactor:
		return parseReactor(r)

	default:
		return nil, fmt.Errorf("unknown message tag")
	}
}

func parseReactor(r *Reader) (Message, error) {
	sub, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch sub {
	case ReactorHandshakeTag:
		m := &ReactorHandshake{}
		if m.Brand, err = r.ReadString(); err != nil {
			return nil, err
		}
		if m.Version, err = r.ReadString(); err != nil {
			return nil, err
		}
		if m.PluginCount, err = r.ReadPacked(); err != nil {
			return nil, err
		}
		return m, nil
	case ReactorModDeclarationTag:
		m := &ModDeclaration{}
		if m.NetID, err = r.ReadPacked(); err != nil {
			return nil, err
		}
		if m.ModID, err = r.ReadString(); err != nil {
			return nil, err
		}
		if m.Version, err = r.ReadString(); err != nil {
			return nil, err
		}
		side, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		m.Side = NetworkSide(side)
		return m, nil
	case ReactorPluginMirrorTag:
		m := &PluginMirror{}
		if m.ID, err = r.ReadString(); err != nil {
			return nil, err
		}
		if m.Version, err = r.ReadString(); err != nil {
			return nil, err
		}
		side, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		m.Side = NetworkSide(side)
		return m, nil
	default:
		return nil, fmt.Errorf("unknown reactor sub-tag 0x%02x", sub)
	}
}

func parseGameSettings(r *Reader) (GameSettings, error) {
	var s GameSettings
	n, err := r.ReadPacked()
	if err != nil {
		return s, err
	}
	blob, err := r.ReadBytes(int(n))
	if err != nil {
		return s, err
	}
	br := NewReader(blob)
	if s.Version, err = br.ReadByte(); err != nil {
		return s, err
	}
	if s.MaxPlayers, err = br.ReadByte(); err != nil {
		return s, err
	}
	if s.Keywords, err = br.ReadUint32LE(); err != nil {
		return s, err
	}
	if s.MapID, err = br.ReadByte(); err != nil {
		return s, err
	}
	if s.NumImpostors, err = br.ReadByte(); err != nil {
		return s, err
	}
	s.Raw = br.ReadRest()
	return s, nil
}

func parseGameListResponse(r *Reader) (*GetGameListResponse, error) {
	m := &GetGameListResponse{}
	for r.Remaining() > 0 {
		_, body, err := r.ReadMessage()
		if err != nil {
			return nil, err
		}
		var g GameListing
		ip, err := body.ReadBytes(4)
		if err != nil {
			return nil, err
		}
		copy(g.IP[:], ip)
		if g.Port, err = body.ReadUint16LE(); err != nil {
			return nil, err
		}
		code, err := body.ReadInt32LE()
		if err != nil {
			return nil, err
		}
		g.Code = GameCode(code)
		if g.HostName, err = body.ReadString(); err != nil {
			return nil, err
		}
		if g.PlayerCount, err = body.ReadByte(); err != nil {
			return nil, err
		}
		if g.Age, err = body.ReadPacked(); err != nil {
			return nil, err
		}
		if g.MapID, err = body.ReadByte(); err != nil {
			return nil, err
		}
		if g.NumImpostors, err = body.ReadByte(); err != nil {
			return nil, err
		}
		if g.MaxPlayers, err = body.ReadByte(); err != nil {
			return nil, err
		}
		m.Games = append(m.Games, g)
	}
	return m, nil
}

func parseGameDataChildren(r *Reader) ([]GameDataChild, error) {
	var children []GameDataChild
	for r.Remaining() > 0 {
		tag, body, err := r.ReadMessage()
		if err != nil {
			return nil, err
		}
		child, err := parseGameDataChild(tag, body)
		if err != nil {
			return nil, fmt.Errorf("game data child 0x%02x: %w", tag, err)
		}
		children = append(children, child)
	}
	return children, nil
}

func parseGameDataChild(tag byte, r *Reader) (GameDataChild, error) {
	switch tag {
	case DataTagData:
		netID, err := r.ReadPacked()
		if err != nil {
			return nil, err
		}
		return &DataMessage{NetID: netID, Payload: r.ReadRest()}, nil

	case DataTagRpc:
		netID, err := r.ReadPacked()
		if err != nil {
			return nil, err
		}
		callID, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return &RpcMessage{NetID: netID, CallID: callID, Payload: r.ReadRest()}, nil

	case DataTagSpawn:
		m := &SpawnMessage{}
		var err error
		if m.SpawnType, err = r.ReadPacked(); err != nil {
			return nil, err
		}
		owner, err := r.ReadPacked()
		if err != nil {
			return nil, err
		}
		m.OwnerID = int32(owner)
		if m.Flags, err = r.ReadByte(); err != nil {
			return nil, err
		}
		count, err := r.ReadPacked()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			netID, err := r.ReadPacked()
			if err != nil {
				return nil, err
			}
			_, body, err := r.ReadMessage()
			if err != nil {
				return nil, err
			}
			m.Components = append(m.Components, SpawnComponent{NetID: netID, Payload: body.ReadRest()})
		}
		return m, nil

	case DataTagDespawn:
		netID, err := r.ReadPacked()
		return &DespawnMessage{NetID: netID}, err

	case DataTagSceneChange:
		id, err := r.ReadPacked()
		if err != nil {
			return nil, err
		}
		scene, err := r.ReadString()
		return &SceneChangeMessage{ClientID: int32(id), Scene: scene}, err

	case DataTagReady:
		id, err := r.ReadPacked()
		return &ReadyMessage{ClientID: int32(id)}, err

	case DataTagClientInfo:
		id, err := r.ReadPacked()
		if err != nil {
			return nil, err
		}
		return &ClientInfoMessage{ClientID: int32(id), Payload: r.ReadRest()}, nil

	default:
		return &UnknownGameData{RawTag: tag, Payload: r.ReadRest()}, nil
	}
}

// Write encodes a root packet into a fresh datagram.
func Write(p RootPacket, dir Direction) []byte {
	w := NewWriter()
	WriteTo(w, p, dir)
	return w.Data()
}

// WriteTo encodes a root packet into an existing writer, allowing callers to
// reuse buffers on hot paths.
func WriteTo(w *Writer, p RootPacket, dir Direction) {
	switch p := p.(type) {
	case *ReliablePacket:
		w.Byte(TagReliable)
		w.Uint16BE(p.Nonce)
		for _, c := range p.Children {
			writeMessage(w, c, dir)
		}
	case *UnreliablePacket:
		w.Byte(TagUnreliable)
		for _, c := range p.Children {
			writeMessage(w, c, dir)
		}
	case *HelloPacket:
		w.Byte(TagHello)
		w.Uint16BE(p.Nonce)
		w.Byte(p.HazelVersion)
		w.Int32LE(p.ClientVersion)
		w.String(p.Username)
		w.Uint32LE(p.Language)
		if p.Mod != nil {
			w.Byte(p.Mod.ProtocolVersion)
			w.Packed(p.Mod.ModCount)
		}
	case *DisconnectPacket:
		w.Byte(TagDisconnect)
		if p.Reason != nil {
			w.Byte(1)
			w.StartMessage(0)
			w.Packed(uint32(*p.Reason))
			if *p.Reason == ReasonCustom {
				w.String(p.Message)
			}
			w.EndMessage()
		}
	case *AckPacket:
		w.Byte(TagAcknowledge)
		w.Uint16BE(p.Nonce)
		w.Byte(p.MissingPackets)
	case *PingPacket:
		w.Byte(TagPing)
		w.Uint16BE(p.Nonce)
	}
}

func writeMessage(w *Writer, m Message, dir Direction) {
	w.StartMessage(m.MsgTag())
	defer w.EndMessage()
	switch m := m.(type) {
	case *HostGameRequest:
		writeGameSettings(w, m.Settings)
	case *HostGameResponse:
		w.Int32LE(int32(m.Code))
	case *JoinGameRequest:
		w.Int32LE(int32(m.Code))
	case *JoinGameError:
		w.Int32LE(int32(m.Reason))
		if m.Reason == ReasonCustom {
			w.String(m.Message)
		}
	case *JoinedGame:
		w.Int32LE(int32(m.Code))
		w.Int32LE(m.JoinedID)
		w.Int32LE(m.HostID)
		w.Packed(uint32(len(m.OtherIDs)))
		for _, id := range m.OtherIDs {
			w.Packed(uint32(id))
		}
	case *StartGame:
		w.Int32LE(int32(m.Code))
	case *EndGame:
		w.Int32LE(int32(m.Code))
		w.Byte(m.Reason)
	case *RemoveGame:
		w.Int32LE(int32(m.Reason))
	case *AlterGame:
		w.Int32LE(int32(m.Code))
		w.Byte(m.AlterTag)
		w.Byte(m.Value)
	case *KickPlayer:
		w.Int32LE(int32(m.Code))
		w.Packed(uint32(m.ClientID))
		w.Bool(m.Banned)
	case *GetGameListRequest:
		w.Uint32LE(m.MapFilter)
		w.Byte(m.NumImpostors)
		w.Uint32LE(m.Keywords)
	case *GetGameListResponse:
		for _, g := range m.Games {
			w.StartMessage(0)
			w.Bytes(g.IP[:])
			w.Uint16LE(g.Port)
			w.Int32LE(int32(g.Code))
			w.String(g.HostName)
			w.Byte(g.PlayerCount)
			w.Packed(g.Age)
			w.Byte(g.MapID)
			w.Byte(g.NumImpostors)
			w.Byte(g.MaxPlayers)
			w.EndMessage()
		}
	case *GameData:
		w.Int32LE(int32(m.Code))
		for _, c := range m.Children {
			writeGameDataChild(w, c)
		}
	case *GameDataTo:
		w.Int32LE(int32(m.Code))
		w.Packed(uint32(m.Target))
		for _, c := range m.Children {
			writeGameDataChild(w, c)
		}
	case *ReactorHandshake:
		w.Byte(ReactorHandshakeTag)
		w.String(m.Brand)
		w.String(m.Version)
		w.Packed(m.PluginCount)
	case *ModDeclaration:
		w.Byte(ReactorModDeclarationTag)
		w.Packed(m.NetID)
		w.String(m.ModID)
		w.String(m.Version)
		w.Byte(byte(m.Side))
	case *PluginMirror:
		w.Byte(ReactorPluginMirrorTag)
		w.String(m.ID)
		w.String(m.Version)
		w.Byte(byte(m.Side))
	}
}

func writeGameSettings(w *Writer, s GameSettings) {
	blob := NewWriter()
	blob.Byte(s.Version)
	blob.Byte(s.MaxPlayers)
	blob.Uint32LE(s.Keywords)
	blob.Byte(s.MapID)
	blob.Byte(s.NumImpostors)
	blob.Bytes(s.Raw)
	w.Packed(uint32(len(blob.Data())))
	w.Bytes(blob.Data())
}

// WriteGameDataChild encodes one game-data child with its hazel frame.
func WriteGameDataChild(w *Writer, c GameDataChild) {
	writeGameDataChild(w, c)
}

func writeGameDataChild(w *Writer, c GameDataChild) {
	w.StartMessage(c.DataTag())
	defer w.EndMessage()
	switch c := c.(type) {
	case *DataMessage:
		w.Packed(c.NetID)
		w.Bytes(c.Payload)
	case *RpcMessage:
		w.Packed(c.NetID)
		w.Byte(c.CallID)
		w.Bytes(c.Payload)
	case *SpawnMessage:
		w.Packed(c.SpawnType)
		w.Packed(uint32(c.OwnerID))
		w.Byte(c.Flags)
		w.Packed(uint32(len(c.Components)))
		for _, comp := range c.Components {
			w.Packed(comp.NetID)
			w.StartMessage(1)
			w.Bytes(comp.Payload)
			w.EndMessage()
		}
	case *DespawnMessage:
		w.Packed(c.NetID)
	case *SceneChangeMessage:
		w.Packed(uint32(c.ClientID))
		w.String(c.Scene)
	case *ReadyMessage:
		w.Packed(uint32(c.ClientID))
	case *ClientInfoMessage:
		w.Packed(uint32(c.ClientID))
		w.Bytes(c.Payload)
	case *UnknownGameData:
		w.Bytes(c.Payload)
	}
}
