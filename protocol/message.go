package protocol

// Root packet tags, the first byte of every datagram.
const (
	TagUnreliable  = 0x00
	TagReliable    = 0x01
	TagHello       = 0x08
	TagDisconnect  = 0x09
	TagAcknowledge = 0x0a
	TagPing        = 0x0c
)

// Child message tags carried inside Reliable and Unreliable packets.
const (
	MsgHostGame    = 0x00
	MsgJoinGame    = 0x01
	MsgStartGame   = 0x02
	MsgRemoveGame  = 0x03
	MsgGameData    = 0x05
	MsgGameDataTo  = 0x06
	MsgJoinedGame  = 0x07
	MsgEndGame     = 0x08
	MsgAlterGame   = 0x0a
	MsgKickPlayer  = 0x0b
	MsgGetGameList = 0x10
	MsgReactor     = 0xff
)

// GameData child tags.
const (
	DataTagData        = 0x01
	DataTagRpc         = 0x02
	DataTagSpawn       = 0x04
	DataTagDespawn     = 0x05
	DataTagSceneChange = 0x06
	DataTagReady       = 0x07
	DataTagClientInfo  = 0xcd
)

// Reactor sub-tags (inside MsgReactor).
const (
	ReactorHandshakeTag      = 0x00
	ReactorModDeclarationTag = 0x01
	ReactorPluginMirrorTag   = 0x02
)

// RPC call ids the relay inspects.
const (
	RpcSendChat = 0x0d
)

// ChatNoteSideLeft marks a server chat reply so the client renders it apart
// from player chat.
const ChatNoteSideLeft = 0x00

// Spawn types the relay inspects.
const (
	SpawnPlayer = 0x04
)

// In a Player spawn, component index 2 is the network transform whose Data
// updates are relayed unreliably.
const PlayerTransformComponent = 2

// Direction selects the dialect for dual-meaning tags: a JoinGame message is
// a request serverbound and a join error clientbound.
type Direction int

const (
	Serverbound Direction = iota
	Clientbound
)

// DisconnectReason is the structured reason code carried in Disconnect and
// join-error messages.
type DisconnectReason int32

const (
	ReasonExitGame         DisconnectReason = 0
	ReasonGameFull         DisconnectReason = 1
	ReasonGameStarted      DisconnectReason = 2
	ReasonGameNotFound     DisconnectReason = 3
	ReasonIncorrectVersion DisconnectReason = 5
	ReasonBanned           DisconnectReason = 6
	ReasonKicked           DisconnectReason = 7
	ReasonCustom           DisconnectReason = 8
	ReasonHacking          DisconnectReason = 10
	ReasonDestroy          DisconnectReason = 16
	ReasonError            DisconnectReason = 17
)

// NetworkSide declares where a mod runs.
type NetworkSide byte

const (
	SideClientside NetworkSide = iota
	SideServerside
	SideBoth
)

// RootPacket is one decoded datagram.
type RootPacket interface {
	RootTag() byte
}

// ReliablePacket carries a nonce and a list of child messages. The receiver
// must acknowledge the nonce.
type ReliablePacket struct {
	Nonce    uint16
	Children []Message
}

func (*ReliablePacket) RootTag() byte { return TagReliable }

// UnreliablePacket carries child messages with no delivery guarantee.
type UnreliablePacket struct {
	Children []Message
}

func (*UnreliablePacket) RootTag() byte { return TagUnreliable }

// HelloPacket opens a connection. Mod is non-nil when the client speaks the
// mod-framework handshake.
type HelloPacket struct {
	Nonce         uint16
	HazelVersion  byte
	ClientVersion int32
	Username      string
	Language      uint32
	Mod           *ModHello
}

func (*HelloPacket) RootTag() byte { return TagHello }

// ModHello is the trailing section of a modded Hello.
type ModHello struct {
	ProtocolVersion byte
	ModCount        uint32
}

// DisconnectPacket optionally carries a structured reason. A bare disconnect
// has Reason == nil.
type DisconnectPacket struct {
	Reason  *DisconnectReason
	Message string // only meaningful with ReasonCustom
}

func (*DisconnectPacket) RootTag() byte { return TagDisconnect }

// AckPacket acknowledges a nonce. MissingPackets is a bitmask of the
// previous eight nonces the sender has not yet seen.
type AckPacket struct {
	Nonce          uint16
	MissingPackets byte
}

func (*AckPacket) RootTag() byte { return TagAcknowledge }

// PingPacket is a nonce-only keepalive; it is acknowledged like a Reliable.
type PingPacket struct {
	Nonce uint16
}

func (*PingPacket) RootTag() byte { return TagPing }

// Message is one hazel-framed child of a Reliable or Unreliable packet.
type Message interface {
	MsgTag() byte
}

// GameSettings is the lobby settings blob. The core reads only the fields it
// filters on; the remainder round-trips opaquely in Raw.
type GameSettings struct {
	Version      byte
	MaxPlayers   uint8
	Keywords     uint32
	MapID        uint8
	NumImpostors uint8
	Raw          []byte
}

// HostGameRequest asks the server to allocate a room (serverbound).
type HostGameRequest struct {
	Settings GameSettings
}

func (*HostGameRequest) MsgTag() byte { return MsgHostGame }

// HostGameResponse returns the allocated room code (clientbound).
type HostGameResponse struct {
	Code GameCode
}

func (*HostGameResponse) MsgTag() byte { return MsgHostGame }

// JoinGameRequest asks to join a room by code (serverbound).
type JoinGameRequest struct {
	Code GameCode
}

func (*JoinGameRequest) MsgTag() byte { return MsgJoinGame }

// JoinGameError refuses a join (clientbound). For ReasonCustom the Message
// field carries the localized text.
type JoinGameError struct {
	Reason  DisconnectReason
	Message string
}

func (*JoinGameError) MsgTag() byte { return MsgJoinGame }

// JoinedGame confirms a join to the joiner, carrying the full member list,
// or announces a new member to existing members (OtherIDs empty).
type JoinedGame struct {
	Code     GameCode
	JoinedID int32
	HostID   int32
	OtherIDs []int32
}

func (*JoinedGame) MsgTag() byte { return MsgJoinedGame }

// StartGame transitions the room to Started. Host-only.
type StartGame struct {
	Code GameCode
}

func (*StartGame) MsgTag() byte { return MsgStartGame }

// EndGame transitions the room to Ended. Host-only.
type EndGame struct {
	Code   GameCode
	Reason byte
}

func (*EndGame) MsgTag() byte { return MsgEndGame }

// RemoveGame tells clients a room went away.
type RemoveGame struct {
	Reason DisconnectReason
}

func (*RemoveGame) MsgTag() byte { return MsgRemoveGame }

// AlterGame flips a room property; AlterTag 1 toggles public visibility.
// Host-only.
type AlterGame struct {
	Code     GameCode
	AlterTag byte
	Value    byte
}

func (*AlterGame) MsgTag() byte { return MsgAlterGame }

// KickPlayer removes a named client from the room. Host-only.
type KickPlayer struct {
	Code     GameCode
	ClientID int32
	Banned   bool
}

func (*KickPlayer) MsgTag() byte { return MsgKickPlayer }

// GetGameListRequest filters the public room listing.
type GetGameListRequest struct {
	MapFilter    uint32
	NumImpostors uint8
	Keywords     uint32
}

func (*GetGameListRequest) MsgTag() byte { return MsgGetGameList }

// GameListing is one row of a GetGameList response.
type GameListing struct {
	IP           [4]byte
	Port         uint16
	Code         GameCode
	HostName     string
	PlayerCount  uint8
	Age          uint32
	MapID        uint8
	NumImpostors uint8
	MaxPlayers   uint8
}

// GetGameListResponse carries at most ten listings.
type GetGameListResponse struct {
	Games []GameListing
}

func (*GetGameListResponse) MsgTag() byte { return MsgGetGameList }

// GameData fans its children out to the sender's room.
type GameData struct {
	Code     GameCode
	Children []GameDataChild
}

func (*GameData) MsgTag() byte { return MsgGameData }

// GameDataTo delivers its children to exactly one room member.
type GameDataTo struct {
	Code     GameCode
	Target   int32
	Children []GameDataChild
}

func (*GameDataTo) MsgTag() byte { return MsgGameDataTo }

// ReactorHandshake acknowledges a modded Hello (clientbound).
type ReactorHandshake struct {
	Brand       string
	Version     string
	PluginCount uint32
}

func (*ReactorHandshake) MsgTag() byte { return MsgReactor }

// ModDeclaration announces one client mod (serverbound).
type ModDeclaration struct {
	NetID   uint32
	ModID   string
	Version string
	Side    NetworkSide
}

func (*ModDeclaration) MsgTag() byte { return MsgReactor }

// PluginMirror advertises a server plugin that mirrors as a mod
// (clientbound).
type PluginMirror struct {
	ID      string
	Version string
	Side    NetworkSide
}

func (*PluginMirror) MsgTag() byte { return MsgReactor }

// GameDataChild is one hazel-framed child of a GameData frame.
type GameDataChild interface {
	DataTag() byte
}

// DataMessage is a raw state sync for one net object.
type DataMessage struct {
	NetID   uint32
	Payload []byte
}

func (*DataMessage) DataTag() byte { return DataTagData }

// RpcMessage is a remote call on one net object.
type RpcMessage struct {
	NetID   uint32
	CallID  byte
	Payload []byte
}

func (*RpcMessage) DataTag() byte { return DataTagRpc }

// SpawnComponent is one networked component created by a Spawn.
type SpawnComponent struct {
	NetID   uint32
	Payload []byte
}

// SpawnMessage creates a net object and its components.
type SpawnMessage struct {
	SpawnType  uint32
	OwnerID    int32
	Flags      byte
	Components []SpawnComponent
}

func (*SpawnMessage) DataTag() byte { return DataTagSpawn }

// DespawnMessage destroys a net object.
type DespawnMessage struct {
	NetID uint32
}

func (*DespawnMessage) DataTag() byte { return DataTagDespawn }

// SceneChangeMessage reports a client loading a scene.
type SceneChangeMessage struct {
	ClientID int32
	Scene    string
}

func (*SceneChangeMessage) DataTag() byte { return DataTagSceneChange }

// ReadyMessage reports a client ready for game start.
type ReadyMessage struct {
	ClientID int32
}

func (*ReadyMessage) DataTag() byte { return DataTagReady }

// ClientInfoMessage carries platform details the core does not interpret.
type ClientInfoMessage struct {
	ClientID int32
	Payload  []byte
}

func (*ClientInfoMessage) DataTag() byte { return DataTagClientInfo }

// UnknownGameData preserves a child with an unrecognized tag so it can be
// forwarded opaquely when configured.
type UnknownGameData struct {
	RawTag  byte
	Payload []byte
}

func (u *UnknownGameData) DataTag() byte { return u.RawTag }
