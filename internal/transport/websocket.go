// SPDX-License-Identifier: MIT
package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	applog "enhancer/internal/log"
)

// WebSocketTransport broadcasts status and snapshot payloads as JSON to
// every connected client. Slow consumers are dropped rather than allowed
// to stall the enhancer: Send never blocks.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	server    *http.Server
}

// NewWebSocketTransport creates the transport and starts its HTTP server
// on addr (e.g. ":8090"). Observers connect to /status.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local diagnostics endpoint, any origin is fine
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
	}

	wst.start()
	return wst
}

func (wst *WebSocketTransport) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", wst.handleWebSocket)

	wst.server = &http.Server{
		Addr:    wst.addr,
		Handler: mux,
	}

	go func() {
		applog.Infof("WebSocketTransport: status server listening on %s", wst.addr)
		if err := wst.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("WebSocketTransport: server error: %v", err)
		}
	}()

	go wst.handleBroadcasts()
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Errorf("WebSocketTransport: upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Debugf("WebSocketTransport: client connected, total: %d", total)

	// Reads only serve to detect disconnects; observers never send.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.clientsMu.Lock()
				delete(wst.clients, conn)
				wst.clientsMu.Unlock()
				conn.Close()
				applog.Debugf("WebSocketTransport: client disconnected")
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for data := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			if err := client.WriteJSON(data); err != nil {
				applog.Debugf("WebSocketTransport: dropping client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast. A full queue drops the payload; status
// traffic is periodic so the next update supersedes it anyway.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case wst.broadcast <- data:
	default:
	}
	return nil
}

// Close shuts down the server and every client connection.
func (wst *WebSocketTransport) Close() error {
	wst.clientsMu.Lock()
	for client := range wst.clients {
		client.Close()
	}
	wst.clients = make(map[*websocket.Conn]bool)
	wst.clientsMu.Unlock()

	if wst.server != nil {
		return wst.server.Close()
	}
	return nil
}

// Ensure WebSocketTransport satisfies the interface.
var _ Transport = (*WebSocketTransport)(nil)
