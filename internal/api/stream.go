package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamPingEvery    = 30 * time.Second
	streamPongTimeout  = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleStream pushes every tick summary to a websocket client until either
// side goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ticks, cancel := s.runner.Subscribe()
	defer cancel()

	// the read loop only services control frames and notices disconnects
	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingEvery)
	defer ping.Stop()
	s.log.Debug("stream client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(streamWriteTimeout)); err != nil {
				return
			}
		case sum, ok := <-ticks:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(streamWriteTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(sum); err != nil {
				return
			}
		}
	}
}
