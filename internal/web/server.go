package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"photo-compressor-go/internal/batch"
	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// RunnerFactory builds the runner for one batch. The returned function releases
// its resources after the batch.
type RunnerFactory func(cfg *config.Config, hooks batch.Hooks) (*batch.Runner, func() error)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex
	newRunner  RunnerFactory
	fs         afero.Fs

	// Current batch state
	operationMutex sync.RWMutex
	isRunning      bool
	cancel         context.CancelFunc
	currentStats   *statistics.Statistics
	lastResults    []compressor.CompressionResult
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CompressRequest starts a batch. Unset fields keep the server configuration.
type CompressRequest struct {
	Inputs            []string `json:"inputs"`
	Output            string   `json:"output,omitempty"`
	SameFolderAsInput *bool    `json:"same_folder_as_input,omitempty"`
	Quality           *int     `json:"quality,omitempty"`
	Format            string   `json:"format,omitempty"`
	Overwrite         string   `json:"overwrite,omitempty"`
	Suffix            *string  `json:"suffix,omitempty"`
	Recursive         *bool    `json:"recursive,omitempty"`
	KeepStructure     *bool    `json:"keep_structure,omitempty"`
	KeepDates         *bool    `json:"keep_dates,omitempty"`
	DryRun            bool     `json:"dry_run"`
}

// DirectoryInfo is one entry of a directory listing. MIME is set for files the
// scanner would pick up.
type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
	MIME         string `json:"mime,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer returns a server running batches with the default components.
func NewServer(cfg *config.Config, log *logrus.Logger) *Server {
	return NewServerWithRunner(cfg, log, func(c *config.Config, hooks batch.Hooks) (*batch.Runner, func() error) {
		return batch.NewDefaultRunner(c, log, hooks)
	})
}

// NewServerWithRunner returns a server that builds runners with newRunner.
func NewServerWithRunner(cfg *config.Config, log *logrus.Logger, newRunner RunnerFactory) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		newRunner: newRunner,
		fs:        afero.NewOsFs(),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/results", s.handleResults).Methods("GET")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
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
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop cancels a running batch and shuts the HTTP server down.
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
	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    s.status(),
	})
}

// status reports whether a batch runs and its live statistics.
func (s *Server) status() map[string]interface{} {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = stats.Snapshot()
	}
	return map[string]interface{}{
		"running":    running,
		"statistics": statsData,
	}
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Inputs) == 0 {
		s.writeError(w, "At least one input is required", http.StatusBadRequest)
		return
	}
	for _, in := range req.Inputs {
		if _, err := os.Stat(in); os.IsNotExist(err) {
			s.writeError(w, fmt.Sprintf("Input does not exist: %s", in), http.StatusBadRequest)
			return
		}
	}

	cfg := s.batchConfig(req)
	if err := cfg.Validate(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Batch already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.cancel = cancel
	s.currentStats = statistics.NewStatistics()
	s.operationMutex.Unlock()

	go s.runCompressAsync(ctx, cfg, req.Inputs)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
	})
}

// batchConfig applies the request overrides to a copy of the server config.
func (s *Server) batchConfig(req CompressRequest) *config.Config {
	cfg := *s.cfg
	if req.Output != "" {
		cfg.Output = req.Output
		cfg.SameFolderAsInput = false
	}
	if req.SameFolderAsInput != nil {
		cfg.SameFolderAsInput = *req.SameFolderAsInput
		if cfg.SameFolderAsInput {
			cfg.Output = ""
		}
	}
	if req.Quality != nil {
		cfg.Quality = *req.Quality
	}
	if req.Format != "" {
		cfg.Format = config.OutputFormat(req.Format)
	}
	if req.Overwrite != "" {
		cfg.Overwrite = config.OverwritePolicy(req.Overwrite)
	}
	if req.Suffix != nil {
		cfg.Suffix = *req.Suffix
	}
	if req.Recursive != nil {
		cfg.Recursive = *req.Recursive
	}
	if req.KeepStructure != nil {
		cfg.KeepStructure = *req.KeepStructure
	}
	if req.KeepDates != nil {
		cfg.KeepDates = *req.KeepDates
	}
	cfg.DryRun = req.DryRun
	cfg.Normalize()
	return &cfg
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.Lock()
	cancel := s.cancel
	s.operationMutex.Unlock()

	if cancel == nil {
		s.writeError(w, "No batch in progress", http.StatusConflict)
		return
	}
	cancel()

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Stop requested",
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	results := s.lastResults
	s.operationMutex.RUnlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    results,
	})
}

// handleListDirectories lists a directory so a client can pick inputs. Images
// are classified by content the same way a batch scan does.
func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	path = filepath.Clean(path)
	if slices.Contains(strings.Split(filepath.ToSlash(path), "/"), "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	infos, err := afero.ReadDir(s.fs, path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	entries := make([]DirectoryInfo, 0, len(infos))
	for _, info := range infos {
		entry := DirectoryInfo{
			Path:         filepath.Join(path, info.Name()),
			Name:         info.Name(),
			IsDirectory:  info.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		}
		if info.Mode().IsRegular() {
			if mime := scanner.Sniff(s.fs, entry.Path); scanner.IsSupportedMIME(mime) {
				entry.MIME = mime
			}
		}
		entries = append(entries, entry)
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    entries,
	})
}

// handleWebSocket registers a progress listener. The client first receives the
// current state so it can render a batch that is already running.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	err = conn.WriteJSON(WSMessage{Type: "status", Data: s.status()})
	if err == nil {
		s.wsClients[conn] = true
	}
	s.wsMutex.Unlock()
	if err != nil {
		s.log.WithError(err).Debug("WebSocket client left before greeting")
		return
	}
	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Incoming frames are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) clientCount() int {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	return len(s.wsClients)
}

func (s *Server) runCompressAsync(ctx context.Context, cfg *config.Config, inputs []string) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"inputs":  inputs,
		"dry_run": cfg.DryRun,
	})

	runner, closeFn := s.newRunner(cfg, batch.Hooks{
		Log: func(level, message string) {
			s.broadcastWSMessage("log", map[string]interface{}{
				"level":   level,
				"message": message,
			})
		},
		Progress: func(done, total int, res compressor.CompressionResult) {
			stats.Record(res)
			s.broadcastWSMessage("file_done", map[string]interface{}{
				"done":   done,
				"total":  total,
				"result": res,
			})
		},
	})
	defer func() {
		if err := closeFn(); err != nil {
			s.log.WithError(err).Warn("Failed to release batch resources")
		}
	}()

	outcome, err := runner.Run(ctx, inputs)
	stats.Finalize()

	s.operationMutex.Lock()
	s.isRunning = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if outcome != nil {
		s.lastResults = outcome.Results
	}
	s.operationMutex.Unlock()

	if err != nil {
		s.broadcastWSMessage("batch_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"statistics": stats.Snapshot(),
	})
}

// broadcastWSMessage writes to every client. Writes are serialized because a
// websocket connection supports one concurrent writer.
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
