package ws

import (
	"log"
	"time"
)

// heartbeatLoop periodically pings every connection and evicts the ones
// that have shown no traffic within the interval plus the grace timeout.
// Browsers answer protocol-level pings automatically, so any healthy client
// refreshes LastActive without application cooperation.
func (s *Server) heartbeatLoop() {
	interval := s.config.HeartbeatInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweepStale()
		}
	}
}

// sweepStale removes dead connections and pings the rest. The per-
// connection write mutex serializes the ping with application frames.
func (s *Server) sweepStale() {
	deadline := s.config.HeartbeatInterval + s.config.HeartbeatTimeout
	now := time.Now()

	for _, c := range s.conns.All() {
		if now.Sub(c.LastActive) > deadline {
			log.Printf("ws: heartbeat timeout id=%s idle=%s",
				c.ID, now.Sub(c.LastActive).Round(time.Second))
			s.RemoveConnection(c)
			continue
		}

		if err := c.WritePing(); err != nil {
			log.Printf("ws: heartbeat ping failed id=%s: %v", c.ID, err)
			s.RemoveConnection(c)
		}
	}
}
