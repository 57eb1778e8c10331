package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"webp-converter-go/internal/config"
	"webp-converter-go/internal/converter"
	"webp-converter-go/internal/scanner"
	"webp-converter-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	worker     *converter.Worker
	fs         afero.Fs
	scanner    *scanner.Scanner
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	cancel         context.CancelFunc
	lastEvent      *converter.Event
	progress       int
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ConvertRequest struct {
	Directory string `json:"directory"`
	Quality   *int   `json:"quality,omitempty"`
}

type StatusData struct {
	Running    bool                 `json:"running"`
	JobID      string               `json:"job_id,omitempty"`
	Progress   int                  `json:"progress"`
	State      string               `json:"state"`
	Message    string               `json:"message,omitempty"`
	Statistics *statistics.Snapshot `json:"statistics,omitempty"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
	Convertible  bool   `json:"convertible"`
	Output       string `json:"output,omitempty"`
}

// DirectoryListing holds the subdirectories and convertible images of a directory.
type DirectoryListing struct {
	Path    string          `json:"path"`
	Images  int             `json:"images"`
	Entries []DirectoryInfo `json:"entries"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, worker *converter.Worker) *Server {
	fs := afero.NewOsFs()
	s := &Server{
		cfg:       cfg,
		log:       log,
		worker:    worker,
		fs:        fs,
		scanner:   scanner.New(fs),
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/convert", s.handleConvert).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.operationMutex.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	data := StatusData{Running: s.isRunning, State: "idle"}
	if s.isRunning {
		data.State = "running"
	}
	data.Progress = s.progress
	if ev := s.lastEvent; ev != nil {
		data.JobID = ev.JobID
		if ev.IsTerminal() {
			data.State = string(ev.Type)
			data.Message = ev.Message
		}
	}
	s.operationMutex.RUnlock()

	if stats := s.worker.Stats(); stats != nil {
		snap := stats.Snapshot()
		data.Statistics = &snap
	}

	s.writeJSON(w, APIResponse{Success: true, Data: data})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Directory == "" {
		s.writeError(w, "Directory is required", http.StatusBadRequest)
		return
	}

	job := converter.NewJob(req.Directory, s.cfg.Quality)
	if req.Quality != nil {
		job.Quality = *req.Quality
	}
	job.AutoOrient = s.cfg.Conversion.AutoOrient
	job.PreserveMetadata = s.cfg.Conversion.PreserveMetadata

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Conversion already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.cancel = cancel
	s.lastEvent = nil
	s.progress = 0
	s.operationMutex.Unlock()

	s.broadcastWSMessage("started", map[string]interface{}{
		"directory": job.InputDirectory,
		"quality":   job.Quality,
	})

	go s.relay(s.worker.Start(ctx, job), cancel)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Message: "Conversion started",
	})
}

// relay forwards worker events to websocket clients in emission order.
func (s *Server) relay(events <-chan converter.Event, cancel context.CancelFunc) {
	defer cancel()

	for ev := range events {
		ev := ev
		s.operationMutex.Lock()
		s.lastEvent = &ev
		if ev.Type != converter.EventError {
			s.progress = ev.Percent
		}
		if ev.IsTerminal() {
			s.isRunning = false
			s.cancel = nil
		}
		s.operationMutex.Unlock()

		s.broadcastWSMessage(string(ev.Type), ev)
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	cancel := s.cancel
	s.operationMutex.Unlock()

	if cancel == nil {
		s.writeError(w, "No conversion in progress", http.StatusConflict)
		return
	}
	cancel()

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Stop requested",
	})
}

// handleListDirectories lists a directory for the folder picker. Files the
// scanner would convert are flagged with their planned output.
func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("path")
	if dir == "" {
		dir = s.cfg.InputDirectory
	}
	if strings.Contains(dir, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}
	dir = filepath.Clean(config.ExpandPath(dir))

	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		status := http.StatusInternalServerError
		if os.IsNotExist(err) {
			status = http.StatusNotFound
		}
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), status)
		return
	}

	images, err := s.scanner.Scan(dir)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	outputs := make(map[string]string, len(images))
	for _, img := range images {
		outputs[img.Name] = img.OutputPath()
	}

	listing := DirectoryListing{Path: dir, Images: len(images), Entries: []DirectoryInfo{}}
	for _, info := range infos {
		entry := DirectoryInfo{
			Path:         filepath.Join(dir, info.Name()),
			Name:         info.Name(),
			IsDirectory:  info.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		}
		if out, ok := outputs[info.Name()]; ok {
			entry.Convertible = true
			entry.Output = out
		}
		if entry.IsDirectory || entry.Convertible {
			listing.Entries = append(listing.Entries, entry)
		}
	}

	s.writeJSON(w, APIResponse{Success: true, Data: listing})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) clientCount() int {
	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// Writes hold the exclusive lock: a websocket.Conn allows one concurrent writer.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
