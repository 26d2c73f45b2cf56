package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/initya/InstaAutReel/models"
	"github.com/initya/InstaAutReel/utils"
)

// Stage names the orchestrator states. Transitions are strictly linear
// with FAILED reachable from every non-terminal state.
type Stage string

const (
	StageInit        Stage = "INIT"
	StageAnalyzing   Stage = "ANALYZING_AUDIO"
	StageSequencing  Stage = "SEQUENCING_CLIPS"
	StageCompositing Stage = "COMPOSITING"
	StageAligning    Stage = "ALIGNING_SUBTITLES"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

// Request carries the inputs of one reel run. The collaborators that
// produce them (TTS, stock search, transcription) live outside this
// module.
type Request struct {
	JobID      string
	AudioPath  string
	Transcript []models.TranscriptSegment
	Keywords   []string
	Seed       int64 // 0 derives the seed from the clock
}

// Pipeline sequences the five assembly stages, reports progress and
// persists the final artifact set. It performs no analysis itself.
type Pipeline struct {
	Config     models.ReelConfig
	FFmpeg     *FFmpeg
	Library    *Library
	Analyzer   *Analyzer
	Sequencer  *Sequencer
	Compositor *Compositor
	Aligner    *Aligner

	// OnProgress receives one event per stage transition. Single
	// writer: only the run goroutine calls it.
	OnProgress func(models.Progress)
}

// NewPipeline wires the stages around one shared ffmpeg helper and clip
// library.
func NewPipeline(cfg models.ReelConfig, library *Library) *Pipeline {
	ff := NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	if library == nil {
		library = NewLibrary(ff)
	}
	return &Pipeline{
		Config:     cfg,
		FFmpeg:     ff,
		Library:    library,
		Analyzer:   NewAnalyzer(ff, cfg),
		Sequencer:  NewSequencer(cfg),
		Compositor: NewCompositor(ff, cfg),
		Aligner:    NewAligner(ff, cfg),
	}
}

func (p *Pipeline) emit(stage Stage, percent int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] %d%% %s", stage, percent, msg)
	if p.OnProgress != nil {
		p.OnProgress(models.Progress{Stage: string(stage), Percent: percent, Message: msg})
	}
}

// fail records the offending stage and error. Partial artifacts are
// left in place for external cleanup; no automatic retry happens.
func (p *Pipeline) fail(stage Stage, err error) error {
	p.emit(StageFailed, 100, "failed during %s: %v", stage, err)
	return &PipelineError{Stage: stage, Err: err}
}

// checkCancel is the coarse-grained cancellation point between stages.
func checkCancel(ctx context.Context, stage Stage) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("cancelled before %s: %w", stage, ctx.Err())
	default:
		return nil
	}
}

// Run executes one full assembly: analyze, sequence, composite, align,
// persist. The caller gets either a duration-consistent Reel or a
// stage-tagged error.
func (p *Pipeline) Run(ctx context.Context, req Request) (*models.Reel, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, p.fail(StageInit, err)
	}
	if req.JobID == "" {
		req.JobID = uuid.New().String()[:8]
	}
	seed := req.Seed
	if seed == 0 {
		seed = p.Config.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	workDir := filepath.Join(p.Config.TempDir, req.JobID)
	if err := utils.EnsureDir(p.Config.OutputDir); err != nil {
		return nil, p.fail(StageInit, err)
	}

	p.emit(StageInit, 0, "starting reel run %s (seed %d)", req.JobID, seed)

	// Stage 1: beat detection.
	if err := checkCancel(ctx, StageAnalyzing); err != nil {
		return nil, p.fail(StageAnalyzing, err)
	}
	p.emit(StageAnalyzing, 10, "probing narration %s", filepath.Base(req.AudioPath))

	sampleRate, channels, duration, err := p.FFmpeg.ProbeAudio(ctx, req.AudioPath)
	if err != nil {
		return nil, p.fail(StageAnalyzing, err)
	}
	track := models.AudioTrack{
		Path:       req.AudioPath,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   duration,
	}

	beats, err := p.Analyzer.Analyze(ctx, track)
	if err != nil {
		return nil, p.fail(StageAnalyzing, err)
	}
	p.emit(StageAnalyzing, 25, "%d beats over %.2fs of audio", len(beats), track.Duration)

	// Stage 2: clip assignment.
	if err := checkCancel(ctx, StageSequencing); err != nil {
		return nil, p.fail(StageSequencing, err)
	}
	pool := p.clipPool(req.Keywords)
	if len(pool) == 0 {
		return nil, p.fail(StageSequencing, fmt.Errorf("no clips registered"))
	}

	timeline, err := p.Sequencer.Sequence(beats, track.Duration, pool, seed)
	if err != nil {
		return nil, p.fail(StageSequencing, err)
	}
	p.emit(StageSequencing, 40, "%d segments from %d clips", len(timeline), len(pool))

	// Stage 3: transitions and render.
	if err := checkCancel(ctx, StageCompositing); err != nil {
		return nil, p.fail(StageCompositing, err)
	}
	p.Compositor.OnSegment = func(done, total int) {
		p.emit(StageCompositing, 45+done*35/total, "rendered segment %d/%d", done, total)
	}
	selector := RandomTransitions(seed, p.Config.TransitionDuration)

	silentPath, err := p.Compositor.Compose(ctx, timeline, track.Duration, selector, workDir)
	if err != nil {
		return nil, p.fail(StageCompositing, err)
	}

	muxedPath := filepath.Join(workDir, "muxed.mp4")
	if err := p.Compositor.Mux(ctx, silentPath, req.AudioPath, muxedPath); err != nil {
		return nil, p.fail(StageCompositing, err)
	}
	p.emit(StageCompositing, 85, "narration muxed")

	// Stage 4: captions.
	if err := checkCancel(ctx, StageAligning); err != nil {
		return nil, p.fail(StageAligning, err)
	}
	reel, err := p.finishReel(ctx, req, track, muxedPath)
	if err != nil {
		return nil, p.fail(StageAligning, err)
	}

	os.RemoveAll(workDir)
	p.emit(StageDone, 100, "reel ready: %s", reel.VideoPath)
	return reel, nil
}

// finishReel aligns the cues, writes the caption file, and burns the
// captions in. A burn failure degrades to the caption file alone
// instead of discarding the video.
func (p *Pipeline) finishReel(ctx context.Context, req Request, track models.AudioTrack, muxedPath string) (*models.Reel, error) {
	base := utils.TimestampName("reel", "")
	videoPath := filepath.Join(p.Config.OutputDir, base+".mp4")
	srtPath := filepath.Join(p.Config.OutputDir, base+".srt")
	audioPath := filepath.Join(p.Config.OutputDir, base+".wav")

	cues := p.Aligner.Align(req.Transcript, track.Duration)
	if err := p.Aligner.WriteSRT(cues, srtPath); err != nil {
		return nil, err
	}
	p.emit(StageAligning, 90, "%d caption cues written", len(cues))

	burned := true
	if len(cues) == 0 {
		burned = false
		if err := utils.CopyFile(muxedPath, videoPath); err != nil {
			return nil, err
		}
	} else if err := p.Aligner.Burn(ctx, muxedPath, srtPath, videoPath); err != nil {
		var alignErr *AlignmentError
		if !errors.As(err, &alignErr) {
			return nil, err
		}
		// Keep the reel, ship the caption file unburned.
		log.Printf("caption burn failed, keeping soft subtitles only: %v", err)
		burned = false
		if copyErr := utils.CopyFile(muxedPath, videoPath); copyErr != nil {
			return nil, copyErr
		}
	}

	// The narration waveform is retained alongside the reel.
	if err := utils.CopyFile(req.AudioPath, audioPath); err != nil {
		return nil, err
	}

	return &models.Reel{
		VideoPath:      videoPath,
		CaptionPath:    srtPath,
		AudioPath:      audioPath,
		Duration:       track.Duration,
		CaptionsBurned: burned,
		CreatedAt:      time.Now(),
	}, nil
}

// clipPool builds the run's pool: keyword clips in request order, with
// the global pool as fallback when a keyword has nothing registered. A
// beat interval is never skipped for lack of keyword matches.
func (p *Pipeline) clipPool(keywords []string) []*models.VideoClip {
	seen := make(map[string]bool)
	var pool []*models.VideoClip

	for _, keyword := range keywords {
		clips, err := p.Library.Pick(keyword, 1)
		if err != nil {
			log.Printf("keyword %q has no clips, falling back to global pool", keyword)
			continue
		}
		for _, clip := range clips {
			if !seen[clip.ID] {
				seen[clip.ID] = true
				pool = append(pool, clip)
			}
		}
	}

	for _, clip := range p.Library.Pool() {
		if !seen[clip.ID] {
			seen[clip.ID] = true
			pool = append(pool, clip)
		}
	}
	return pool
}
