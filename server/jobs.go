package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/initya/InstaAutReel/models"
)

// ErrJobAlreadyRunning is returned when a reel for the same narration
// file is already pending or processing.
var ErrJobAlreadyRunning = errors.New("a job for this audio file is already running")

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Job tracks one reel run from submission to terminal state.
type Job struct {
	ID          string       `json:"job_id"`
	Status      string       `json:"status"`
	Stage       string       `json:"stage"`
	Progress    int          `json:"progress"`
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	AudioPath   string       `json:"audio_path"`
	Keywords    []string     `json:"keywords,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Reel        *models.Reel `json:"reel,omitempty"`

	cancel context.CancelFunc
}

func (j *Job) terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// Registry is the in-memory job table. All access goes through the
// mutex; handlers and run goroutines share it.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers a pending job, rejecting a second in-flight run for
// the same narration file.
func (r *Registry) Create(audioPath string, keywords []string, cancel context.CancelFunc) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, job := range r.jobs {
		if job.AudioPath == audioPath && !job.terminal() {
			return nil, ErrJobAlreadyRunning
		}
	}

	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Stage:     "INIT",
		AudioPath: audioPath,
		Keywords:  keywords,
		CreatedAt: time.Now(),
		cancel:    cancel,
	}
	r.jobs[job.ID] = job
	return job, nil
}

// Get returns a snapshot copy of one job.
func (r *Registry) Get(jobID string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshot copies of all jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		list = append(list, *job)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// Active counts jobs that have not reached a terminal state.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, job := range r.jobs {
		if !job.terminal() {
			count++
		}
	}
	return count
}

// Progress applies a pipeline progress event to a job.
func (r *Registry) Progress(jobID string, p models.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.terminal() {
		return
	}
	job.Status = StatusProcessing
	job.Stage = p.Stage
	job.Progress = p.Percent
	job.Message = p.Message
}

// Complete moves a job to its terminal state with either a reel or an
// error.
func (r *Registry) Complete(jobID string, reel *models.Reel, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.terminal() {
		return
	}
	now := time.Now()
	job.CompletedAt = &now
	job.Progress = 100

	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		job.Status = StatusCancelled
		job.Error = "Job cancelled by user"
	case runErr != nil:
		job.Status = StatusFailed
		job.Error = runErr.Error()
	default:
		job.Status = StatusCompleted
		job.Stage = "DONE"
		job.Reel = reel
	}
}

// Prune drops terminal jobs whose completion is older than maxAge and
// returns how many were removed. Live jobs are never pruned.
func (r *Registry) Prune(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range r.jobs {
		if job.terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// Cancel stops a running job. Terminal jobs are left untouched.
func (r *Registry) Cancel(jobID string) (Job, bool) {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return Job{}, false
	}
	cancel := job.cancel
	terminal := job.terminal()
	r.mu.Unlock()

	if !terminal && cancel != nil {
		cancel()
	}
	snapshot, _ := r.Get(jobID)
	return snapshot, true
}
