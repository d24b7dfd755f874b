package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ILikePlayingGames/Hindenburg/config"
)

func testServerConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Socket.Port = 0 // ephemeral
	return cfg
}

func TestStartStop(t *testing.T) {
	srv := New(testServerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// Give the socket a moment to bind, then shut down.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWriteBeforeBindFails(t *testing.T) {
	srv := New(testServerConfig())
	if _, err := srv.WriteToUDP([]byte{1}, nil); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}
