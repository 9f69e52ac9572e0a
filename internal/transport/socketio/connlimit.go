package socketio

import (
	"net"
	"sync"
)

// ConnectionLimiter caps concurrent remote controllers. Loopback clients,
// such as a lock-screen bridge on the same host, are never limited. When a
// new remote client exceeds the cap, the oldest remote client is evicted.
// A cap of zero disables the limit.
type ConnectionLimiter struct {
	mu        sync.Mutex
	maxRemote int
	// remote client IDs, oldest first
	remote []string
	// clientID -> loopback
	conns map[string]bool
}

// NewConnectionLimiter creates a limiter allowing up to maxRemote
// concurrent non-loopback connections.
func NewConnectionLimiter(maxRemote int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxRemote: maxRemote,
		conns:     make(map[string]bool),
	}
}

// Add registers a connection from addr ("ip" or "ip:port") and returns the
// ID of an evicted client, or "".
func (cl *ConnectionLimiter) Add(clientID, addr string) (evictedID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.conns[clientID]; exists {
		return ""
	}

	local := isLoopback(addr)
	cl.conns[clientID] = local
	if local {
		return ""
	}

	cl.remote = append(cl.remote, clientID)
	if cl.maxRemote > 0 && len(cl.remote) > cl.maxRemote {
		evictedID = cl.remote[0]
		cl.remote = cl.remote[1:]
		delete(cl.conns, evictedID)
	}
	return evictedID
}

// Remove unregisters a connection when a client disconnects.
func (cl *ConnectionLimiter) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	local, exists := cl.conns[clientID]
	if !exists {
		return
	}
	delete(cl.conns, clientID)
	if local {
		return
	}

	for i, id := range cl.remote {
		if id == clientID {
			cl.remote = append(cl.remote[:i], cl.remote[i+1:]...)
			break
		}
	}
}

// Remote returns the number of tracked remote clients.
func (cl *ConnectionLimiter) Remote() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.remote)
}

func isLoopback(addr string) bool {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
