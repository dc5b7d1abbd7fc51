// Package stream serves composited frames to browsers over a websocket,
// for headless runs and remote previewing.
package stream

import (
	"bytes"
	"image/png"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/trxe/instant-ngp/internal/engine"
)

// Server pushes each composited frame as a binary PNG message to every
// connected client. Clients may send JSON control messages of the form
// {"quality": {"<key>": <value>}} to retune the renderer.
type Server struct {
	addr     string
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex

	// OnQuality is invoked for each key in an incoming control message.
	// May be nil.
	OnQuality func(key string, value float64)
}

func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// ListenAndServe blocks. Run it on its own goroutine.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHome)
	mux.HandleFunc("/ws", s.handleWebSocket)
	log.Printf("preview server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

func (s *Server) serveHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(previewPage))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("websocket upgrade error:", err)
		return
	}
	defer conn.Close()

	connMutex := &sync.Mutex{}
	s.mu.Lock()
	s.clients[conn] = connMutex
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		var msg struct {
			Quality map[string]float64 `json:"quality"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if s.OnQuality != nil {
			for k, v := range msg.Quality {
				s.OnQuality(k, v)
			}
		}
	}
}

// Broadcast encodes the frame once and writes it to every client; clients
// whose writes fail are dropped.
func (s *Server) Broadcast(fb *engine.FrameBuffer) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, engine.ToImage(fb)); err != nil {
		log.Println("frame encode error:", err)
		return
	}
	data := buf.Bytes()

	s.mu.RLock()
	var failed []*websocket.Conn
	for client, mutex := range s.clients {
		mutex.Lock()
		err := client.WriteMessage(websocket.BinaryMessage, data)
		mutex.Unlock()
		if err != nil {
			log.Println("websocket write error:", err)
			client.Close()
			failed = append(failed, client)
		}
	}
	s.mu.RUnlock()

	if len(failed) > 0 {
		s.mu.Lock()
		for _, client := range failed {
			delete(s.clients, client)
		}
		s.mu.Unlock()
	}
}

// ClientCount reports the number of connected preview clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

const previewPage = `<!DOCTYPE html>
<html>
<head><title>hybrid preview</title>
<style>body{background:#111;margin:0;display:flex;justify-content:center}img{image-rendering:pixelated}</style>
</head>
<body>
<img id="frame">
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.binaryType = "blob";
const img = document.getElementById("frame");
ws.onmessage = (ev) => {
  const url = URL.createObjectURL(ev.data);
  img.onload = () => URL.revokeObjectURL(url);
  img.src = url;
};
</script>
</body>
</html>
`
