package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"lootfun/internal/bus"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	streamBuffer = 64
)

// streamer writes bus events to one websocket. Writes are serialized because
// gorilla connections allow a single concurrent writer.
type streamer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *streamer) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(s.cfg.CORSOrigins, "*") {
				return true
			}
			return slices.Contains(s.cfg.CORSOrigins, origin)
		},
	}
}

// handleFeedStream pushes every published event to the client as JSON. A
// client that cannot keep up misses events rather than stalling the bus.
func (s *Server) handleFeedStream(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("feed stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events := make(chan bus.Event, streamBuffer)
	sub := s.deps.Bus.Subscribe("ws:"+r.RemoteAddr, func(e bus.Event) {
		select {
		case events <- e:
		default:
		}
	})
	defer s.deps.Bus.Unsubscribe(sub)

	out := &streamer{conn: conn}
	done := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			_ = out.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case e := <-events:
			data, err := json.Marshal(e)
			if err != nil {
				s.log.Error("feed stream encode failed", "error", err)
				continue
			}
			if err := out.write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := out.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
