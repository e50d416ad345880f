package web

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/frame"
	"github.com/cjeanneret/ArmGo/internal/logic/control"
	"github.com/gorilla/websocket"
)

const maxCommandBody = 4 << 10

// CommandSink accepts injected command frames (transport.Queue).
type CommandSink interface {
	Push(frame.Raw)
}

// StateFunc returns the latest controller snapshot.
type StateFunc func() control.Snapshot

// CommandRequest is the JSON form of a command frame for POST /command.
type CommandRequest struct {
	ID     uint16            `json:"id"`
	Joints [frame.Joints]int `json:"joints"`
	Claw   bool              `json:"claw"`
	Record bool              `json:"record"`
	Play   bool              `json:"play"`
	Enable bool              `json:"enable"`
}

// Raw converts the request to a wire frame. Joint targets are not range
// checked here: the intake clamps them, as it does for radio frames.
func (c CommandRequest) Raw() frame.Raw {
	return frame.Command{
		ID:     c.ID,
		Joints: c.Joints,
		Claw:   c.Claw,
		Record: c.Record,
		Play:   c.Play,
		Enable: c.Enable,
	}.Raw()
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	State       StateFunc
	Config      *config.Config
	Commands    CommandSink
	upgrader    websocket.Upgrader
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If commands is nil, command injection returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, state StateFunc, cfg *config.Config, commands CommandSink, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		State:       state,
		Config:      cfg,
		Commands:    commands,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 256,
			// Controllers on the local network have no Origin to match.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		staticFS: staticFS,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// HandleConfig returns the effective configuration as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Config)
}

// HandleState returns the latest controller snapshot as JSON.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if h.State == nil {
		http.Error(w, "controller not running", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.State())
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleCommand handles POST /command: a JSON frame injected into the
// command queue, as if it came from the radio.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCommandBody)
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if h.Commands == nil {
		http.Error(w, "command injection not configured", http.StatusServiceUnavailable)
		return
	}

	h.Commands.Push(req.Raw())
	debug.Verbose("web: queued command id=%d", req.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// HandleCommandWS handles GET /command/ws. Binary messages carry one
// 18-byte wire frame; text messages carry a CommandRequest.
func (h *Handlers) HandleCommandWS(w http.ResponseWriter, r *http.Request) {
	if h.Commands == nil {
		http.Error(w, "command injection not configured", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		debug.Error(fmt.Errorf("websocket upgrade: %w", err))
		return
	}
	defer conn.Close()

	debug.Info("Command websocket connected from %s", r.RemoteAddr)
	h.Broadcaster.Broadcast("info", "command link connected")
	defer h.Broadcaster.Broadcast("warn", "command link disconnected")

	conn.SetReadLimit(maxCommandBody)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				debug.Error(fmt.Errorf("command websocket: %w", err))
			}
			return
		}

		var raw frame.Raw
		switch kind {
		case websocket.BinaryMessage:
			raw, err = frame.Decode(data)
		case websocket.TextMessage:
			var req CommandRequest
			err = json.Unmarshal(data, &req)
			raw = req.Raw()
		default:
			continue
		}
		if err != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, err.Error()),
				time.Now().Add(time.Second))
			return
		}
		h.Commands.Push(raw)
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
