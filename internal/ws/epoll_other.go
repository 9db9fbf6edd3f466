//go:build !linux

package ws

import (
	"net"
	"sync"
	"time"
)

// Epoll on non-Linux platforms is a goroutine-per-connection fallback that
// feeds a ready channel. It exists so the server runs unchanged on
// macOS/Windows during development; production deploys on Linux use the
// real epoll implementation.
type Epoll struct {
	mu      sync.RWMutex
	conns   map[net.Conn]struct{}
	readyCh chan net.Conn
	done    chan struct{}
}

// NewEpoll creates the fallback instance.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		conns:   make(map[net.Conn]struct{}),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add registers a connection and spawns a goroutine that signals readiness
// whenever data (or a close) arrives.
func (e *Epoll) Add(conn net.Conn) error {
	e.mu.Lock()
	e.conns[conn] = struct{}{}
	e.mu.Unlock()

	go e.monitor(conn)
	return nil
}

// monitor polls the connection into the ready channel. Without kernel
// readiness events it cannot peek without consuming, so it periodically
// offers the connection to the read path and relies on the per-connection
// processing flag plus read deadlines to make spurious wake-ups cheap. The
// goroutine exits when the connection is removed.
func (e *Epoll) monitor(conn net.Conn) {
	const pollInterval = 100 * time.Millisecond

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case e.readyCh <- conn:
		case <-e.done:
			return
		}

		select {
		case <-ticker.C:
		case <-e.done:
			return
		}

		e.mu.RLock()
		_, registered := e.conns[conn]
		e.mu.RUnlock()
		if !registered {
			return
		}
	}
}

// Remove unregisters a connection.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	delete(e.conns, conn)
	e.mu.Unlock()
	return nil
}

// Wait blocks for at least one ready connection and drains any others that
// are immediately available.
func (e *Epoll) Wait() ([]net.Conn, error) {
	first, ok := <-e.readyCh
	if !ok {
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close shuts down the fallback instance.
func (e *Epoll) Close() error {
	close(e.done)
	e.mu.Lock()
	e.conns = nil
	e.mu.Unlock()
	return nil
}

// fallbackFds assigns stable synthetic descriptors so the by-fd lookup maps
// keep working without real file descriptors.
var (
	fallbackMu  sync.Mutex
	fallbackFds = make(map[net.Conn]int)
	nextFd      = 1
)

func socketFD(conn net.Conn) int {
	fallbackMu.Lock()
	defer fallbackMu.Unlock()
	if fd, ok := fallbackFds[conn]; ok {
		return fd
	}
	fd := nextFd
	nextFd++
	fallbackFds[conn] = fd
	return fd
}
