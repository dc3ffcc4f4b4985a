package socketio_test

import (
	"testing"

	"github.com/edumarques81/ampcast-core/internal/domain/miniplayer"
	"github.com/edumarques81/ampcast-core/internal/transport/socketio"
)

func TestNewServer(t *testing.T) {
	server, err := socketio.NewServer(socketio.DefaultServerConfig(), nil)
	if err != nil {
		t.Fatalf("NewServer should not return error: %v", err)
	}
	if server == nil {
		t.Fatal("NewServer should return a non-nil server")
	}
	if server.Hub() == nil {
		t.Error("Hub() should not be nil")
	}
	if n := server.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d, want 0", n)
	}
	if err := server.Close(); err != nil {
		t.Errorf("Close should not error: %v", err)
	}
}

func TestServerHubIsOpener(t *testing.T) {
	server, err := socketio.NewServer(socketio.DefaultServerConfig(), nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	var opener miniplayer.Opener = server.Hub()
	if opener == nil {
		t.Error("hub should serve as a mini player opener")
	}
}
