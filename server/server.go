package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/initya/InstaAutReel/engine"
	"github.com/initya/InstaAutReel/models"
	"github.com/initya/InstaAutReel/utils"
)

// RunStore persists job records. A nil store disables persistence.
type RunStore interface {
	SaveRun(ctx context.Context, job Job) error
	UpdateRun(ctx context.Context, job Job) error
}

// ReelRequest is the submission body for one reel run.
type ReelRequest struct {
	Audio      string                     `json:"audio"`
	Transcript []models.TranscriptSegment `json:"transcript"`
	Keywords   []string                   `json:"keywords,omitempty"`
	Seed       int64                      `json:"seed,omitempty"`
}

// ReelResponse is the submission/status envelope.
type ReelResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Message  string `json:"message,omitempty"`
	Progress int    `json:"progress"`
	VideoURL string `json:"video_url,omitempty"`
}

// Server exposes the reel pipeline over HTTP.
type Server struct {
	Config   models.ReelConfig
	Pipeline *engine.Pipeline
	Registry *Registry
	Store    RunStore
}

func New(cfg models.ReelConfig, pipeline *engine.Pipeline, store RunStore) *Server {
	return &Server{
		Config:   cfg,
		Pipeline: pipeline,
		Registry: NewRegistry(),
		Store:    store,
	}
}

// Router wires the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// API routes
	r.HandleFunc("/api/reels", s.createReelHandler).Methods("POST")
	r.HandleFunc("/api/reels", s.listReelsHandler).Methods("GET")
	r.HandleFunc("/api/reels/{jobId}", s.getReelHandler).Methods("GET")
	r.HandleFunc("/api/reels/{jobId}", s.cancelReelHandler).Methods("DELETE")

	// File upload endpoints
	r.HandleFunc("/api/upload/audio", s.uploadAudioHandler).Methods("POST")
	r.HandleFunc("/api/upload/clip", s.uploadClipHandler).Methods("POST")

	// Serve finished reels
	r.PathPrefix("/videos/").Handler(http.StripPrefix("/videos/",
		http.FileServer(http.Dir(s.Config.OutputDir))))

	// Health check
	r.HandleFunc("/health", s.healthCheckHandler).Methods("GET")

	return r
}

// jobRetention is how long finished jobs stay pollable before the
// registry drops them.
const jobRetention = 24 * time.Hour

// Run starts the HTTP server and blocks.
func (s *Server) Run(addr string) error {
	go func() {
		for range time.Tick(time.Hour) {
			if n := s.Registry.Prune(jobRetention); n > 0 {
				log.Printf("pruned %d finished jobs", n)
			}
		}
	}()

	fmt.Println("🎵 Beat-Synced Reel API Server starting...")
	fmt.Printf("📡 Server running on http://localhost%s\n", addr)
	fmt.Println("📚 API Endpoints:")
	fmt.Println("   POST /api/reels - Assemble a reel from narration + clips")
	fmt.Println("   GET  /api/reels/{jobId} - Check job status")
	fmt.Println("   GET  /api/reels - List all jobs")
	fmt.Println("   DELETE /api/reels/{jobId} - Cancel job")
	fmt.Println("   POST /api/upload/audio - Upload narration audio")
	fmt.Println("   POST /api/upload/clip - Upload a stock clip")
	fmt.Println("   GET  /videos/{filename} - Download finished reels")
	fmt.Println("   GET  /health - Health check")

	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) createReelHandler(w http.ResponseWriter, r *http.Request) {
	var req ReelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := validateReelRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job, err := s.Registry.Create(req.Audio, req.Keywords, cancel)
	if err != nil {
		cancel()
		if errors.Is(err, ErrJobAlreadyRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.saveRun(job.ID)

	// Run the pipeline in the background
	go s.runJob(ctx, cancel, job.ID, req)

	writeJSON(w, ReelResponse{
		JobID:    job.ID,
		Status:   StatusPending,
		Message:  "Reel assembly started",
		Progress: 0,
	})
}

func (s *Server) runJob(ctx context.Context, cancel context.CancelFunc, jobID string, req ReelRequest) {
	defer cancel()

	// Each run gets its own pipeline; the clip library is shared.
	pipe := engine.NewPipeline(s.Config, s.Pipeline.Library)
	pipe.OnProgress = func(p models.Progress) {
		s.Registry.Progress(jobID, p)
	}
	reel, err := pipe.Run(ctx, engine.Request{
		JobID:      jobID[:8],
		AudioPath:  req.Audio,
		Transcript: req.Transcript,
		Keywords:   req.Keywords,
		Seed:       req.Seed,
	})
	s.Registry.Complete(jobID, reel, err)
	s.updateRun(jobID)
}

func (s *Server) getReelHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job, exists := s.Registry.Get(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	response := ReelResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Stage:    job.Stage,
		Message:  job.Message,
		Progress: job.Progress,
	}
	if job.Status == StatusCompleted && job.Reel != nil {
		response.VideoURL = fmt.Sprintf("/videos/%s", filepath.Base(job.Reel.VideoPath))
	}
	if job.Status == StatusFailed {
		response.Message = job.Error
	}

	writeJSON(w, response)
}

func (s *Server) listReelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Registry.List())
}

func (s *Server) cancelReelHandler(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	if _, exists := s.Registry.Cancel(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]string{"message": "Job cancelled"})
}

func (s *Server) uploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	path, err := s.saveUpload(r, "audio", []string{".mp3", ".wav", ".aac", ".m4a", ".ogg"})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{
		"path": path,
		"type": "audio",
	})
}

// uploadClipHandler stores a stock clip and registers it under the
// optional "keyword" form field.
func (s *Server) uploadClipHandler(w http.ResponseWriter, r *http.Request) {
	path, err := s.saveUpload(r, "clips", []string{".mp4", ".mov", ".avi"})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	keyword := r.FormValue("keyword")
	clip, err := s.Pipeline.Library.Register(r.Context(), path, keyword)
	if err != nil {
		os.Remove(path)
		http.Error(w, "Unusable clip: "+err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, clip)
}

func (s *Server) saveUpload(r *http.Request, assetType string, allowedExt []string) (string, error) {
	r.ParseMultipartForm(100 << 20) // 100 MB limit

	file, handler, err := r.FormFile("file")
	if err != nil {
		return "", fmt.Errorf("error retrieving file")
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(handler.Filename))
	valid := false
	for _, allowed := range allowedExt {
		if ext == allowed {
			valid = true
			break
		}
	}
	if !valid {
		return "", fmt.Errorf("invalid file type %s", ext)
	}

	dir := filepath.Join("assets", assetType)
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("error creating asset directory")
	}

	filename := fmt.Sprintf("%s_%s", uuid.New().String()[:8],
		utils.SanitizeFilename(handler.Filename))
	path := filepath.Join(dir, filename)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating file")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("error saving file")
	}
	return path, nil
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ffmpegAvailable := true
	if _, err := exec.LookPath(s.Config.FFmpegPath); err != nil {
		ffmpegAvailable = false
	}

	writeJSON(w, map[string]interface{}{
		"status":           "healthy",
		"timestamp":        time.Now().Format(time.RFC3339),
		"ffmpeg_available": ffmpegAvailable,
		"clips_registered": s.Pipeline.Library.Size(),
		"active_jobs":      s.Registry.Active(),
	})
}

func validateReelRequest(req *ReelRequest) error {
	if req.Audio == "" {
		return fmt.Errorf("audio is required")
	}
	if !utils.FileExists(req.Audio) {
		return fmt.Errorf("audio file not found: %s", req.Audio)
	}
	for i, seg := range req.Transcript {
		if seg.End < seg.Start {
			return fmt.Errorf("transcript segment %d ends before it starts", i)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) saveRun(jobID string) {
	if s.Store == nil {
		return
	}
	job, ok := s.Registry.Get(jobID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Store.SaveRun(ctx, job); err != nil {
		log.Printf("failed to save run %s: %v", jobID, err)
	}
}

func (s *Server) updateRun(jobID string) {
	if s.Store == nil {
		return
	}
	job, ok := s.Registry.Get(jobID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Store.UpdateRun(ctx, job); err != nil {
		log.Printf("failed to update run %s: %v", jobID, err)
	}
}
