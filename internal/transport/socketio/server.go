// Package socketio serves mini player windows and pager feeds over Socket.io.
package socketio

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Hub HubConfig
	// MaxRemoteClients caps non-loopback clients. Zero means unlimited.
	MaxRemoteClients int
	PingTimeout      time.Duration
	PingInterval     time.Duration
}

// DefaultServerConfig returns the standard settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Hub:              DefaultHubConfig(),
		MaxRemoteClients: 4,
		PingTimeout:      20 * time.Second,
		PingInterval:     25 * time.Second,
	}
}

// Server handles Socket.io connections and routes their events to a Hub.
type Server struct {
	io      *socket.Server
	hub     *Hub
	limiter *ConnectionLimiter

	mu      sync.RWMutex
	clients map[string]*socket.Socket
}

// NewServer creates a Socket.io server.
func NewServer(cfg ServerConfig, catalog Catalog) (*Server, error) {
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(cfg.PingTimeout)
	opts.SetPingInterval(cfg.PingInterval)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:      socket.NewServer(nil, opts),
		hub:     NewHub(cfg.Hub, catalog),
		limiter: NewConnectionLimiter(cfg.MaxRemoteClients),
		clients: make(map[string]*socket.Socket),
	}
	s.setupHandlers()
	return s, nil
}

// Hub returns the hub behind the server. It is the miniplayer.Opener of
// the process.
func (s *Server) Hub() *Hub { return s.hub }

// socketConn adapts a socket to conn.
type socketConn struct {
	s *socket.Socket
}

func (c socketConn) ID() string { return string(c.s.Id()) }

func (c socketConn) Origin() string {
	return handshakeOrigin(c.s.Handshake().Headers.Header())
}

// handshakeOrigin returns the page origin of a handshake. Same-origin
// polling requests carry no Origin header, only a Referer.
func handshakeOrigin(h http.Header) string {
	if origin := h.Get("Origin"); origin != "" {
		return origin
	}
	if u, err := url.Parse(h.Get("Referer")); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return ""
}

func (c socketConn) Emit(event string, args ...any) {
	c.s.Emit(event, args...)
}

func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		c := socketConn{s: client}
		clientID := c.ID()
		addr := client.Handshake().Address

		log.Info().Str("id", clientID).Str("addr", addr).Msg("Client connected")

		_, evicted := s.limiter.TryAdd(clientID, addr)

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()
		s.hub.Connect(c)

		if evicted != "" {
			s.evict(evicted)
		}

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
			s.hub.Disconnect(c)
		})

		client.On(EventAttach, func(args ...any) {
			log.Debug().Str("id", clientID).Msg(EventAttach)
			s.hub.Attach(c, args...)
		})

		client.On(EventMessage, func(args ...any) {
			s.hub.Message(c, args...)
		})

		client.On(EventPagerFetch, func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg(EventPagerFetch)
			s.hub.Fetch(c, args...)
		})

		client.On(EventPagerDisconnect, func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg(EventPagerDisconnect)
			s.hub.CloseFeed(c, args...)
		})
	})
}

func (s *Server) evict(clientID string) {
	s.mu.RLock()
	client := s.clients[clientID]
	s.mu.RUnlock()
	if client == nil {
		return
	}
	log.Info().Str("id", clientID).Msg("Evicting oldest remote client")
	client.Disconnect(true)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server and releases every feed.
func (s *Server) Close() error {
	s.hub.Close()
	s.io.Close(nil)
	return nil
}
