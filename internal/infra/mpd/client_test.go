package mpd

import (
	"errors"
	"net"
	"testing"
)

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestClientConnectFailure(t *testing.T) {
	client := NewClient("127.0.0.1", closedPort(t), "")

	if err := client.Connect(); err == nil {
		t.Error("Connect should fail for non-existent server")
		client.Close()
	}
	if _, err := client.Status(); err == nil {
		t.Error("Status should fail when the server is down")
	}
	if err := client.Play(0); err == nil {
		t.Error("Play should fail when the server is down")
	}
}

func TestClientPingWithoutConnect(t *testing.T) {
	client := NewClient("127.0.0.1", closedPort(t), "")

	if err := client.Ping(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClientCommands(t *testing.T) {
	srv := newFakeServer(t, map[string]func([]string) []string{
		"status": func([]string) []string {
			return []string{"volume: 40", "state: play", "song: 0", "elapsed: 12.500"}
		},
		"addid": func([]string) []string { return []string{"Id: 7"} },
	})
	client := srv.client(t)

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status["state"] != "play" || status["elapsed"] != "12.500" {
		t.Errorf("unexpected status %v", status)
	}

	id, err := client.AddID("music/a.flac")
	if err != nil || id != 7 {
		t.Fatalf("AddID = %d, %v", id, err)
	}
	if err := client.SetVolume(150); err != nil {
		t.Fatalf("SetVolume failed: %v", err)
	}
	if err := client.Seek(42.5); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	for _, want := range []string{`addid "music/a.flac"`, "setvol 100", "seekcur"} {
		if !srv.Received(want) {
			t.Errorf("expected %q in %v", want, srv.Commands())
		}
	}
}
