package mpd_test

import (
	"testing"

	"github.com/edumarques81/stellar-stream-client/internal/infra/mpd"
)

// Port 16600 is assumed to have no MPD listening.

func TestNewClient(t *testing.T) {
	client := mpd.NewClient("localhost", 6600, "")

	if client == nil {
		t.Error("NewClient should return a non-nil client")
	}
}

func TestClientConnectFailure(t *testing.T) {
	client := mpd.NewClient("localhost", 16600, "")

	err := client.Connect()
	if err == nil {
		t.Error("Connect should fail for non-existent server")
		client.Close()
	}
}

func TestClientPingWithoutConnect(t *testing.T) {
	client := mpd.NewClient("localhost", 16600, "")

	if err := client.Ping(); err == nil {
		t.Error("Ping should fail when not connected")
	}
}

func TestClientCommandsWithoutServer(t *testing.T) {
	client := mpd.NewClient("localhost", 16600, "")

	commands := map[string]func() error{
		"status":     func() error { _, err := client.Status(); return err },
		"play":       func() error { return client.Play(0) },
		"pause":      func() error { return client.Pause(true) },
		"stop":       func() error { return client.Stop() },
		"seekcur":    func() error { return client.SeekCur(12.5) },
		"setvol":     func() error { return client.SetVolume(50) },
		"clear":      func() error { return client.Clear() },
		"add":        func() error { return client.Add("http://localhost/stream") },
		"clearerror": func() error { return client.ClearError() },
	}

	for name, fn := range commands {
		t.Run(name, func(t *testing.T) {
			if err := fn(); err == nil {
				t.Errorf("%s should fail without a server", name)
			}
		})
	}
}

func TestClientCloseWithoutConnect(t *testing.T) {
	client := mpd.NewClient("localhost", 16600, "")

	if err := client.Close(); err != nil {
		t.Errorf("Close should not fail when not connected: %v", err)
	}
}
