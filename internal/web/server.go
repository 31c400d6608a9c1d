// Package web exposes the compression pipeline to the storefront admin as
// an HTTP API: synchronous image compression, asynchronous video jobs with
// websocket progress, and job polling.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"media-press-go/internal/compressor"
	"media-press-go/internal/config"
)

// maxUploadBytes bounds one multipart upload (videos come in uncompressed).
const maxUploadBytes = 200 << 20

// jobRetention is how long finished jobs and their results stay fetchable
// before a later registration sweeps them out.
const jobRetention = 30 * time.Minute

// Video job states.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

type Server struct {
	cfg    *config.Config
	log    *logrus.Logger
	images *compressor.ImageCompressor
	videos *compressor.VideoCompressor

	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]*wsClient
	wsMutex    sync.RWMutex

	jobsMutex sync.RWMutex
	jobs      map[string]*videoJob
}

type videoJob struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	MIMEType  string    `json:"mime_type,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	result []byte
}

// wsClient serializes writes to one connection; gorilla/websocket allows
// only a single concurrent writer per conn.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger,
	images *compressor.ImageCompressor, videos *compressor.VideoCompressor) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		images:    images,
		videos:    videos,
		router:    mux.NewRouter(),
		jobs:      make(map[string]*videoJob),
		wsClients: make(map[*websocket.Conn]*wsClient),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/compress/image", s.handleCompressImage).Methods("POST")
	api.HandleFunc("/compress/video", s.handleCompressVideo).Methods("POST")
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/result", s.handleGetJobResult).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting media API server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jobsMutex.RLock()
	var active int
	for _, job := range s.jobs {
		if job.Status == JobPending || job.Status == JobProcessing {
			active++
		}
	}
	total := len(s.jobs)
	s.jobsMutex.RUnlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"active_jobs": active,
			"total_jobs":  total,
		},
	})
}

// handleCompressImage compresses an uploaded image synchronously and
// responds with the compressed binary.
func (s *Server) handleCompressImage(w http.ResponseWriter, r *http.Request) {
	src, _, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	opts := compressor.ImageOptions{
		MaxWidth:     s.cfg.Image.MaxWidth,
		MaxHeight:    s.cfg.Image.MaxHeight,
		Quality:      s.cfg.Image.Quality,
		OutputFormat: s.cfg.Image.OutputFormat,
	}
	if v := r.FormValue("max_width"); v != "" {
		opts.MaxWidth, _ = strconv.Atoi(v)
	}
	if v := r.FormValue("max_height"); v != "" {
		opts.MaxHeight, _ = strconv.Atoi(v)
	}
	if v := r.FormValue("quality"); v != "" {
		opts.Quality, _ = strconv.ParseFloat(v, 64)
	}
	if v := r.FormValue("output_format"); v != "" {
		opts.OutputFormat = v
	}

	res, err := s.images.Compress(r.Context(), src, opts)
	if err != nil {
		s.writeError(w, fmt.Sprintf("compression failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", res.MIMEType)
	w.Header().Set("X-Image-Width", strconv.Itoa(res.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(res.Height))
	w.Header().Set("X-Original-Size", strconv.FormatInt(res.OriginalSize, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

// handleCompressVideo accepts an uploaded video, registers a job and
// transcodes in the background, broadcasting progress over the websocket.
func (s *Server) handleCompressVideo(w http.ResponseWriter, r *http.Request) {
	src, _, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	opts := compressor.VideoOptions{
		MaxSizeMB:    s.cfg.Video.MaxSizeMB,
		VideoBitrate: s.cfg.Video.VideoBitrate,
		MaxWidth:     s.cfg.Video.MaxWidth,
		FrameRate:    s.cfg.Video.FrameRate,
	}
	if v := r.FormValue("max_size_mb"); v != "" {
		opts.MaxSizeMB, _ = strconv.Atoi(v)
	}
	if v := r.FormValue("video_bitrate"); v != "" {
		opts.VideoBitrate, _ = strconv.Atoi(v)
	}

	job := &videoJob{
		ID:        uuid.NewString(),
		Status:    JobPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.registerJob(job)

	go s.runVideoJob(job.ID, src, opts)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Message: "Video compression started",
		Data:    map[string]string{"job_id": job.ID},
	})
}

func (s *Server) runVideoJob(jobID string, src []byte, opts compressor.VideoOptions) {
	s.updateJob(jobID, func(j *videoJob) {
		j.Status = JobProcessing
	})

	opts.OnProgress = func(percent int) {
		s.updateJob(jobID, func(j *videoJob) {
			j.Progress = percent
		})
		s.broadcastWSMessage("video_progress", map[string]interface{}{
			"job_id":  jobID,
			"percent": percent,
		})
	}

	res, err := s.videos.Compress(context.Background(), src, opts)
	if err != nil {
		s.updateJob(jobID, func(j *videoJob) {
			j.Status = JobFailed
			j.Error = err.Error()
		})
		s.broadcastWSMessage("video_failed", map[string]interface{}{
			"job_id": jobID,
			"error":  err.Error(),
		})
		if s.log != nil {
			s.log.WithField("job", jobID).WithError(err).Error("Video job failed")
		}
		return
	}

	s.updateJob(jobID, func(j *videoJob) {
		j.Status = JobCompleted
		j.Progress = 100
		j.MIMEType = res.MIMEType
		j.result = res.Data
	})
	s.broadcastWSMessage("video_completed", map[string]interface{}{
		"job_id":   jobID,
		"mime":     res.MIMEType,
		"size":     res.CompressedSize(),
		"passthru": res.PassedThrough,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	s.jobsMutex.RLock()
	job, ok := s.jobs[jobID]
	var snapshot videoJob
	if ok {
		snapshot = *job
	}
	s.jobsMutex.RUnlock()

	if !ok {
		s.writeError(w, "Job not found", http.StatusNotFound)
		return
	}
	snapshot.result = nil
	s.writeJSON(w, APIResponse{Success: true, Data: snapshot})
}

func (s *Server) handleGetJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	s.jobsMutex.RLock()
	job, ok := s.jobs[jobID]
	var status, mime string
	var data []byte
	if ok {
		status = job.Status
		mime = job.MIMEType
		data = job.result
	}
	s.jobsMutex.RUnlock()

	if !ok {
		s.writeError(w, "Job not found", http.StatusNotFound)
		return
	}
	if status != JobCompleted {
		s.writeError(w, fmt.Sprintf("Job is %s", status), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// registerJob stores a new job and evicts finished jobs past the retention
// window so a long-lived server does not accumulate result payloads.
func (s *Server) registerJob(job *videoJob) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-jobRetention)
	for id, j := range s.jobs {
		if (j.Status == JobCompleted || j.Status == JobFailed) && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
	s.jobs[job.ID] = job
}

func (s *Server) updateJob(jobID string, fn func(*videoJob)) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		fn(job)
		job.UpdatedAt = time.Now()
	}
}

// readUpload pulls the "file" part out of a multipart request.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, "Invalid multipart request", http.StatusBadRequest)
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, "Missing file field", http.StatusBadRequest)
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, "Failed to read upload", http.StatusBadRequest)
		return nil, "", false
	}
	if len(data) == 0 {
		s.writeError(w, "Empty upload", http.StatusBadRequest)
		return nil, "", false
	}
	return data, header.Filename, true
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = &wsClient{conn: conn}
	s.wsMutex.Unlock()

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		}
		return
	}

	s.wsMutex.RLock()
	clients := make([]*wsClient, 0, len(s.wsClients))
	for _, client := range s.wsClients {
		clients = append(clients, client)
	}
	s.wsMutex.RUnlock()

	for _, client := range clients {
		if err := client.write(websocket.TextMessage, msgBytes); err != nil {
			s.wsMutex.Lock()
			delete(s.wsClients, client.conn)
			s.wsMutex.Unlock()
			client.conn.Close()
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
