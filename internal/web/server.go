package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Ewasince/photo-compresser/internal/config"
	"github.com/Ewasince/photo-compresser/internal/extractor"
	"github.com/Ewasince/photo-compresser/internal/organizer"
	"github.com/Ewasince/photo-compresser/internal/pipeline"
	"github.com/Ewasince/photo-compresser/internal/profile"
	"github.com/Ewasince/photo-compresser/internal/report"
	"github.com/Ewasince/photo-compresser/internal/statistics"
	"github.com/Ewasince/photo-compresser/internal/viewer"
)

// Deps are the components the server drives.
type Deps struct {
	Pipeline  *pipeline.Pipeline
	Extractor extractor.Extractor
	Profiles  *profile.LiveRegistry
	Viewer    *viewer.Viewer
	Archiver  pipeline.Archiver
}

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	deps       Deps
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	runID          string
	cancel         context.CancelFunc
	currentStats   *statistics.Statistics
	lastOutcome    *pipeline.Outcome
	runDone        chan struct{}

	progressLimiter *rate.Limiter
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type CompressRequest struct {
	InputDirectory       string `json:"input_directory"`
	OutputDirectory      string `json:"output_directory,omitempty"`
	PreserveStructure    *bool  `json:"preserve_structure,omitempty"`
	UnsupportedPolicy    string `json:"unsupported_policy,omitempty"`
	UnsupportedDirectory string `json:"unsupported_directory,omitempty"`
	Workers              int    `json:"workers,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, deps Deps) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		deps:      deps,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		progressLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/report", s.handleReport).Methods("GET")
	api.HandleFunc("/profiles", s.handleProfiles).Methods("GET")
	api.HandleFunc("/select", s.handleSelect).Methods("GET")
	api.HandleFunc("/preview", s.handlePreview).Methods("GET")
	api.HandleFunc("/cache", s.handleCache).Methods("GET")

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

// Stop cancels a running compression and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.RLock()
	cancel := s.cancel
	done := s.runDone
	s.operationMutex.RUnlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Wait blocks until the current run, if any, has finished.
func (s *Server) Wait() {
	s.operationMutex.RLock()
	done := s.runDone
	s.operationMutex.RUnlock()
	if done != nil {
		<-done
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	runID := s.runID
	stats := s.currentStats
	outcome := s.lastOutcome
	s.operationMutex.RUnlock()

	data := map[string]interface{}{
		"running": running,
		"run_id":  runID,
	}
	if stats != nil {
		data["statistics"] = stats.Snapshot()
		data["summary"] = stats.GetSummary()
	}
	if outcome != nil && !running {
		data["status"] = outcome.Status
		data["report_path"] = outcome.ReportPath
	}

	s.writeJSON(w, APIResponse{Success: true, Data: data})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	opts, err := s.runOptions(req)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := organizer.CheckInputRoot(opts.InputRoot); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if opts.OutputRoot != "" {
		if err := organizer.CheckOutputRoot(opts.OutputRoot); err != nil {
			s.writeError(w, err.Error(), http.StatusConflict)
			return
		}
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.runID = opts.RunID
	s.cancel = cancel
	s.currentStats = statistics.NewStatistics()
	s.lastOutcome = nil
	s.runDone = make(chan struct{})
	opts.Statistics = s.currentStats
	done := s.runDone
	s.operationMutex.Unlock()

	go s.runCompressAsync(ctx, opts, done)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
		Data:    map[string]string{"run_id": opts.RunID},
	})
}

func (s *Server) runOptions(req CompressRequest) (pipeline.Options, error) {
	if req.InputDirectory == "" {
		return pipeline.Options{}, errors.New("input_directory is required")
	}
	policyName := req.UnsupportedPolicy
	if policyName == "" {
		policyName = s.cfg.Unsupported.Policy
	}
	policy, err := organizer.ParsePolicy(policyName)
	if err != nil {
		return pipeline.Options{}, err
	}
	preserve := s.cfg.PreserveStructure
	if req.PreserveStructure != nil {
		preserve = *req.PreserveStructure
	}
	workers := s.cfg.Performance.Workers
	if req.Workers > 0 {
		workers = req.Workers
	}

	return pipeline.Options{
		RunID:             uuid.NewString(),
		InputRoot:         req.InputDirectory,
		OutputRoot:        req.OutputDirectory,
		PreserveStructure: preserve,
		Policy:            policy,
		UnsupportedRoot:   req.UnsupportedDirectory,
		Profiles:          s.profiles(),
		Workers:           workers,
		Archiver:          s.deps.Archiver,
	}, nil
}

func (s *Server) runCompressAsync(ctx context.Context, opts pipeline.Options, done chan struct{}) {
	defer close(done)

	s.broadcastWSMessage("run_started", map[string]interface{}{
		"run_id":           opts.RunID,
		"input_directory":  opts.InputRoot,
		"output_directory": opts.OutputRoot,
	})

	opts.Progress = func(completed, total int) {
		if completed < total && !s.progressLimiter.Allow() {
			return
		}
		s.broadcastWSMessage("progress", map[string]interface{}{
			"run_id":    opts.RunID,
			"completed": completed,
			"total":     total,
		})
	}

	outcome, err := s.deps.Pipeline.Run(ctx, opts)

	s.operationMutex.Lock()
	s.isRunning = false
	s.cancel = nil
	s.lastOutcome = outcome
	s.operationMutex.Unlock()

	if err != nil {
		s.log.WithError(err).Error("Compression run failed")
		s.broadcastWSMessage("run_error", map[string]interface{}{
			"run_id": opts.RunID,
			"error":  err.Error(),
		})
		return
	}

	s.broadcastWSMessage("run_completed", map[string]interface{}{
		"run_id":      opts.RunID,
		"status":      outcome.Status,
		"report_path": outcome.ReportPath,
		"statistics":  outcome.Stats,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	cancel := s.cancel
	s.operationMutex.RUnlock()

	if cancel == nil {
		s.writeError(w, "No operation in progress", http.StatusConflict)
		return
	}
	cancel()

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, "path is required", http.StatusBadRequest)
		return
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = report.Path(path)
	}

	rep, err := report.Read(path)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		s.writeError(w, err.Error(), status)
		return
	}

	if pairPath := r.URL.Query().Get("pair"); pairPath != "" {
		pair, ok := rep.PairFor(pairPath)
		if !ok {
			s.writeError(w, "pair not found", http.StatusNotFound)
			return
		}
		s.writeJSON(w, APIResponse{Success: true, Data: pair})
		return
	}

	s.writeJSON(w, APIResponse{Success: true, Data: rep})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{Success: true, Data: s.profiles()})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.writeError(w, "path is required", http.StatusBadRequest)
		return
	}

	if !s.deps.Extractor.SupportsFile(path) {
		s.writeError(w, "not a supported image: "+filepath.Base(path), http.StatusUnsupportedMediaType)
		return
	}

	props, err := s.deps.Extractor.Extract(path)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	// Without a match the run would attribute the image as Raw.
	sel := profile.SelectWithResults(props.Conditions(), s.profiles())
	selected := profile.RawProfileName
	if sel.Matched() {
		selected = sel.Profile.Name
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"properties": props,
			"selected":   selected,
			"results":    sel.Results,
		},
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, errW := strconv.Atoi(q.Get("w"))
	height, errH := strconv.Atoi(q.Get("h"))
	if errW != nil || errH != nil {
		s.writeError(w, "w and h must be integers", http.StatusBadRequest)
		return
	}

	var (
		data []byte
		err  error
	)
	switch {
	case q.Get("original") != "" && q.Get("compressed") != "":
		data, err = s.deps.Viewer.Combined(q.Get("original"), q.Get("compressed"), width, height)
	case q.Get("path") != "":
		data, err = s.deps.Viewer.Thumbnail(q.Get("path"), width, height)
	default:
		s.writeError(w, "path or original and compressed are required", http.StatusBadRequest)
		return
	}
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, extractor.ErrUnreadableImage) {
			status = http.StatusNotFound
		}
		s.writeError(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.log.Debugf("Failed to write preview: %v", err)
	}
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"viewer": s.deps.Viewer.CacheStats(),
	}
	if cached, ok := s.deps.Extractor.(extractor.CachedExtractor); ok {
		data["extractor"] = cached.GetCacheStats()
	}
	s.writeJSON(w, APIResponse{Success: true, Data: data})
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

	// Remove client on disconnect
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

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
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

	// Writes hold the lock: a connection allows one writer at a time.
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

func (s *Server) profiles() profile.Registry {
	if s.deps.Profiles == nil {
		return profile.Registry{}
	}
	return s.deps.Profiles.Current()
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Debugf("Failed to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
