package engine

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/initya/InstaAutReel/models"
	"github.com/initya/InstaAutReel/utils"
)

// Library indexes the downloaded source clips. The pool is append-only
// during a run and clips are read-only once registered.
type Library struct {
	FFmpeg *FFmpeg

	mu        sync.Mutex
	pool      []*models.VideoClip
	byKeyword map[string][]*models.VideoClip
}

func NewLibrary(ff *FFmpeg) *Library {
	return &Library{
		FFmpeg:    ff,
		byKeyword: make(map[string][]*models.VideoClip),
	}
}

// Register validates one clip file and adds it to the pool. Unreadable
// or zero-duration files are rejected with InvalidMediaError and never
// retried.
func (l *Library) Register(ctx context.Context, path, keyword string) (*models.VideoClip, error) {
	width, height, fps, duration, err := l.FFmpeg.ProbeVideo(ctx, path)
	if err != nil {
		return nil, &InvalidMediaError{Path: path, Reason: "unreadable", Err: err}
	}
	if duration <= 0 {
		return nil, &InvalidMediaError{Path: path, Reason: "zero duration"}
	}

	clip := &models.VideoClip{
		ID:       uuid.New().String()[:8],
		Keyword:  keyword,
		Path:     path,
		Duration: duration,
		Width:    width,
		Height:   height,
		FPS:      fps,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pool = append(l.pool, clip)
	if keyword != "" {
		l.byKeyword[keyword] = append(l.byKeyword[keyword], clip)
	}
	return clip, nil
}

// RegisterDir registers every video file found in a directory under one
// keyword. Invalid files are logged and excluded; the scan keeps going.
func (l *Library) RegisterDir(ctx context.Context, dir, keyword string) (int, error) {
	files, err := utils.ListVideoFiles(dir)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, file := range files {
		if _, err := l.Register(ctx, file, keyword); err != nil {
			log.Printf("skipping clip %s: %v", file, err)
			continue
		}
		registered++
	}
	return registered, nil
}

// Pick returns up to count clips registered under a keyword, cycling
// when the keyword pool is smaller than the request. It fails with
// NotFoundError when the keyword has no clips at all; the caller falls
// back to the global pool.
func (l *Library) Pick(keyword string, count int) ([]*models.VideoClip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	clips := l.byKeyword[keyword]
	if len(clips) == 0 {
		return nil, &NotFoundError{Keyword: keyword}
	}

	picked := make([]*models.VideoClip, 0, count)
	for i := 0; i < count; i++ {
		picked = append(picked, clips[i%len(clips)])
	}
	return picked, nil
}

// Pool returns a snapshot of the global clip pool in registration
// order.
func (l *Library) Pool() []*models.VideoClip {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*models.VideoClip, len(l.pool))
	copy(out, l.pool)
	return out
}

// Size reports how many clips are registered.
func (l *Library) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pool)
}
