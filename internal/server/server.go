package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/capreel/capreel/internal/capture"
	"github.com/capreel/capreel/internal/config"
	"github.com/capreel/capreel/internal/media"
	"github.com/capreel/capreel/internal/state"
	"github.com/capreel/capreel/internal/trigger"
)

// Pipeline is the slice of the recording controller the server drives.
type Pipeline interface {
	StartRecording(area *capture.Region) error
	StopRecording() error
	TogglePause() error
	CancelRecording() error
	DeleteRecording(name string) error
	Recordings() ([]media.Item, error)
}

// Server exposes the recording pipeline over HTTP so browser UIs and
// scripts can drive it. State flows one way: commands go through the
// controller, observations come from the state store.
type Server struct {
	controller Pipeline
	store      *state.Store
	cfg        *config.Config
	port       string
	triggers   *trigger.Dispatcher
	upgrader   websocket.Upgrader
}

// commandThrottle coalesces bursts of duplicate record commands, so a
// double-clicked button produces one transition.
const commandThrottle = 300 * time.Millisecond

// StartRequest is the JSON payload accepted by the record endpoint. A
// missing area records the full display.
type StartRequest struct {
	Area *capture.Region `json:"area,omitempty"`
}

// GenericResponse is the uniform success/error envelope.
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RecordingsResponse lists finished recordings.
type RecordingsResponse struct {
	Recordings      []media.Item `json:"recordings"`
	TotalCount      int          `json:"total_count"`
	OutputDirectory string       `json:"output_directory"`
}

// New creates a control server for the given pipeline.
func New(controller Pipeline, store *state.Store, cfg *config.Config) *Server {
	return &Server{
		controller: controller,
		store:      store,
		cfg:        cfg,
		port:       cfg.Server.Port,
		triggers:   trigger.NewDispatcher(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The server binds for LAN control; same-host pages are fine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the route table without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/record/start", s.handleStart)
	mux.HandleFunc("/api/record/stop", s.handleStop)
	mux.HandleFunc("/api/record/pause", s.handlePause)
	mux.HandleFunc("/api/record/cancel", s.handleCancel)
	mux.HandleFunc("/api/recordings", s.handleRecordings)
	mux.HandleFunc("/api/recordings/", s.handleRecordingFile)
	mux.HandleFunc("/ws", s.handleStateStream)
	return mux
}

// Start binds the configured port and blocks serving requests.
func (s *Server) Start() error {
	localIP := getLocalIP()
	slog.Info("Starting control server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	return http.ListenAndServe(":"+s.port, s.Handler())
}

// handleStatus returns the current application state snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.Current())
}

// handleStart begins a recording, optionally limited to an area.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req StartRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
	}

	if req.Area != nil {
		if err := req.Area.Validate(); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	slog.Debug("Start request received", "area", req.Area)

	var startErr error
	if !s.triggers.Throttle("record", commandThrottle, func() {
		startErr = s.controller.StartRecording(req.Area)
	}) {
		s.sendSuccess(w, "Duplicate start ignored")
		return
	}
	if startErr != nil {
		s.sendError(w, http.StatusConflict, fmt.Sprintf("Failed to start recording: %v", startErr))
		return
	}

	s.sendSuccess(w, "Recording started")
}

// handleStop ends the recording and blocks through encoding, so the
// response arrives when the file is ready.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var stopErr error
	if !s.triggers.Throttle("record", commandThrottle, func() {
		stopErr = s.controller.StopRecording()
	}) {
		s.sendSuccess(w, "Duplicate stop ignored")
		return
	}
	if stopErr != nil {
		s.sendError(w, http.StatusConflict, fmt.Sprintf("Failed to stop recording: %v", stopErr))
		return
	}

	s.sendSuccess(w, "Recording stopped and saved")
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.controller.TogglePause(); err != nil {
		s.sendError(w, http.StatusConflict, fmt.Sprintf("Failed to toggle pause: %v", err))
		return
	}

	s.sendSuccess(w, "Pause toggled")
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := s.controller.CancelRecording(); err != nil {
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to cancel: %v", err))
		return
	}

	s.sendSuccess(w, "Recording cancelled")
}

// handleRecordings lists the finished recordings, newest first.
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	items, err := s.controller.Recordings()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list recordings: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RecordingsResponse{
		Recordings:      items,
		TotalCount:      len(items),
		OutputDirectory: s.cfg.Output.Directory,
	})
}

// handleRecordingFile streams or deletes one finished recording.
func (s *Server) handleRecordingFile(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimPrefix(r.URL.Path, "/api/recordings/")
	if filename == "" {
		s.sendError(w, http.StatusBadRequest, "Filename required")
		return
	}

	// Prevent path traversal.
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") {
		s.sendError(w, http.StatusBadRequest, "Invalid filename")
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.serveRecording(w, r, filename)
	case http.MethodDelete:
		if err := s.controller.DeleteRecording(filename); err != nil {
			s.sendError(w, http.StatusNotFound, err.Error())
			return
		}
		s.sendSuccess(w, fmt.Sprintf("Deleted %s", filename))
	default:
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) serveRecording(w http.ResponseWriter, r *http.Request, filename string) {
	filePath := filepath.Join(s.cfg.Output.Directory, filename)

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.sendError(w, http.StatusNotFound, "Recording not found")
		} else {
			s.sendError(w, http.StatusInternalServerError, "Error accessing recording")
		}
		return
	}

	ext := strings.ToLower(filepath.Ext(filename))
	contentType := mime.TypeByExtension(ext)
	switch ext {
	case ".gif":
		contentType = "image/gif"
	case ".webp":
		contentType = "image/webp"
	case ".mp4":
		contentType = "video/mp4"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")

	file, err := os.Open(filePath)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Error opening recording")
		return
	}
	defer file.Close()

	http.ServeContent(w, r, filename, info.ModTime(), file)
}

// handleStateStream upgrades to a websocket and pushes every state change
// to the client. A slow client sees the latest state on its next read and
// never stalls publication.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.store.Subscribe()
	defer cancel()

	// Drain client frames so pings and close messages are handled; the
	// stream is push-only.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	slog.Debug("State stream connected", "remote", r.RemoteAddr)
	for st := range updates {
		if err := conn.WriteJSON(st); err != nil {
			slog.Debug("State stream closed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

func (s *Server) sendSuccess(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GenericResponse{
		Success: true,
		Message: message,
	})
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	slog.Debug("Request rejected", "status", status, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(GenericResponse{
		Success: false,
		Error:   message,
	})
}

// getLocalIP returns the LAN address for the startup banner.
func getLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
