// Package server wires the UDP socket, the connection and room registries,
// the mod handshake and the chat dispatcher into one relay process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ILikePlayingGames/Hindenburg/config"
	"github.com/ILikePlayingGames/Hindenburg/server/chat"
	"github.com/ILikePlayingGames/Hindenburg/server/clients"
	"github.com/ILikePlayingGames/Hindenburg/server/plugins"
	"github.com/ILikePlayingGames/Hindenburg/server/reactor"
	"github.com/ILikePlayingGames/Hindenburg/server/rooms"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version is stamped by the build; the handshake advertises it.
var Version = "dev"

var ErrNotRunning = errors.New("server: socket is not bound")

// Server is the relay process: one UDP socket, one event surface.
type Server struct {
	cfg    *config.Config
	nodeID string

	sockMu sync.RWMutex
	sock   *net.UDPConn

	Clients   *clients.Registry
	Rooms     *rooms.Registry
	Plugins   *plugins.Registry
	Chat      *chat.Registry
	Handshake *reactor.Handshake

	logger zerolog.Logger
}

// New assembles a server from configuration. The socket binds in Start.
func New(cfg *config.Config) *Server {
	logger := log.With().Str("com", "server").Logger()

	s := &Server{
		cfg:    cfg,
		nodeID: config.GenerateNodeID(),
		logger: logger,
	}
	s.Clients = clients.NewRegistry(s, logger)
	s.Rooms = rooms.NewRegistry(cfg.Rooms.GameCodes, rooms.Hooks{}, rooms.RelayOptions{
		AcceptUnknownGameData: cfg.Socket.AcceptUnknownGameData,
		DisablePerspectives:   cfg.Optimizations.DisablePerspectives,
	}, logger)
	s.Plugins = plugins.NewRegistry(logger)
	s.Chat = chat.NewRegistry(logger)
	s.Handshake = reactor.NewHandshake(cfg, s.Plugins, Version, logger)

	logger.Info().Str("node_id", s.nodeID).Msg("server assembled")
	return s
}

// NodeID returns the process's cluster identity tag.
func (s *Server) NodeID() string { return s.nodeID }

// Config exposes the active configuration.
func (s *Server) Config() *config.Config { return s.cfg }

// WriteToUDP implements clients.PacketSink against the currently bound
// socket, so a rebind does not invalidate connections. Retransmits in
// flight across a rebind are abandoned with an error.
func (s *Server) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	s.sockMu.RLock()
	sock := s.sock
	s.sockMu.RUnlock()
	if sock == nil {
		return 0, ErrNotRunning
	}
	return sock.WriteToUDP(b, addr)
}

// Start binds the socket and serves until the context is canceled.
func Start(ctx context.Context, cfg *config.Config) error {
	return New(cfg).Start(ctx)
}

// Start binds the socket and runs the read loop and the reliability ticker
// until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	addr := &net.UDPAddr{Port: s.cfg.Socket.Port}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	s.sockMu.Lock()
	s.sock = sock
	s.sockMu.Unlock()

	s.logger.Info().Int("port", s.cfg.Socket.Port).Msg("listening")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		sock.Close()
	}()

	go s.tickLoop(ctx, done)

	buf := make([]byte, 65535)
	for {
		n, remote, err := sock.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		s.handleDatagram(remote, data)
	}
}

// tickLoop drives the reliability/keepalive ticker and the empty-room
// sweep.
func (s *Server) tickLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(clients.TickInterval)
	defer ticker.Stop()
	createTimeout := time.Duration(s.cfg.Rooms.CreateTimeout) * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case now := <-ticker.C:
			for _, c := range s.Clients.List() {
				if !c.Tick(now) {
					c.Logger().Info().Msg("connection timed out")
					s.Clients.Remove(c)
				}
			}
			s.Rooms.Sweep(now, createTimeout)
		}
	}
}
