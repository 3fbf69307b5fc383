package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamHealth pushes the current health of every path over a
// WebSocket at a fixed cadence until the client disconnects.
func (h *Handlers) StreamHealth(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	h.logger.Infof("WebSocket connection established from %s", r.RemoteAddr)
	defer func() {
		h.logger.Debugf("WebSocket connection closed for %s", r.RemoteAddr)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	done := make(chan struct{})
	once := &sync.Once{}
	closeDone := func() {
		once.Do(func() {
			close(done)
		})
	}

	// Send ping to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	go func() {
		defer closeDone()
		for {
			select {
			case <-pingTicker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Read messages in background to detect connection close
	go func() {
		defer closeDone()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	updateTicker := time.NewTicker(2 * time.Second)
	defer updateTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-updateTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(h.monitor.OrderedSnapshot()); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		}
	}
}
