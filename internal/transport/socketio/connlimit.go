package socketio

import (
	"net"
	"sync"
)

// ConnectionLimiter caps concurrent remote clients. Loopback clients, which
// include mini player windows opened on the same machine, are never limited.
// When a remote client exceeds the cap the oldest remote client is evicted.
type ConnectionLimiter struct {
	mu        sync.Mutex
	maxRemote int
	remote    []string          // oldest first
	addrs     map[string]string // client id -> address
}

// NewConnectionLimiter creates a limiter allowing maxRemote remote clients.
// Zero or less means unlimited.
func NewConnectionLimiter(maxRemote int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxRemote: maxRemote,
		addrs:     make(map[string]string),
	}
}

// TryAdd registers a client and returns the id of the client it displaced,
// if any.
func (cl *ConnectionLimiter) TryAdd(clientID, addr string) (allowed bool, evictedID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, ok := cl.addrs[clientID]; ok {
		return true, ""
	}
	cl.addrs[clientID] = addr

	if isLocalIP(addr) {
		return true, ""
	}

	cl.remote = append(cl.remote, clientID)
	if cl.maxRemote > 0 && len(cl.remote) > cl.maxRemote {
		evictedID = cl.remote[0]
		cl.remote = cl.remote[1:]
		delete(cl.addrs, evictedID)
	}
	return true, evictedID
}

// Remove forgets a client.
func (cl *ConnectionLimiter) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	addr, ok := cl.addrs[clientID]
	if !ok {
		return
	}
	delete(cl.addrs, clientID)
	if isLocalIP(addr) {
		return
	}
	for i, id := range cl.remote {
		if id == clientID {
			cl.remote = append(cl.remote[:i], cl.remote[i+1:]...)
			break
		}
	}
}

// Count returns the number of tracked clients.
func (cl *ConnectionLimiter) Count() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.addrs)
}

// isLocalIP reports whether addr, with or without a port, is a loopback
// address.
func isLocalIP(addr string) bool {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}
