package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/xhad/minutemate/pkg/logger"
)

type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobPolling   JobState = "polling"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

type JobStatus struct {
	State JobState
	Text  string
	Error string
}

// Audio is one recording handed to a speech backend.
type Audio struct {
	Content  []byte
	MimeType string
	// Name is the recording's object name in the raw namespace.
	Name string
}

// SpeechService is an asynchronous speech-to-text backend.
type SpeechService interface {
	Submit(ctx context.Context, audio Audio, diarize bool) (string, error)
	Poll(ctx context.Context, jobID string) (JobStatus, error)
}

var (
	ErrTranscriptionFailed  = errors.New("transcription failed")
	ErrTranscriptionTimeout = errors.New("transcription timed out")
)

type TranscriberConfig struct {
	Diarize     bool
	PollInitial time.Duration
	PollMax     time.Duration
	MaxWait     time.Duration
	// PollTimeout bounds a single Submit or Poll call.
	PollTimeout time.Duration
}

// Transcriber drives one job at a time through
// submitted -> polling -> completed | failed.
type Transcriber struct {
	config TranscriberConfig
	svc    SpeechService
	log    *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewTranscriber(config TranscriberConfig, svc SpeechService, log *logger.Logger) *Transcriber {
	if config.PollInitial <= 0 {
		config.PollInitial = 2 * time.Second
	}
	if config.PollMax <= 0 {
		config.PollMax = 30 * time.Second
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 30 * time.Minute
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 3 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Transcriber{
		config: config,
		svc:    svc,
		log:    log.With("component", "extract.transcriber"),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func (t *Transcriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	start := t.now()
	deadline := start.Add(t.config.MaxWait)
	ctx, cancel := context.WithTimeout(ctx, t.config.MaxWait)
	defer cancel()

	jobID, err := t.submit(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("%w: submit: %v", ErrTranscriptionFailed, err)
	}
	log := t.log.With("job_id", jobID)
	log.Info("transcription submitted", "bytes", len(audio.Content), "diarize", t.config.Diarize)

	state := JobSubmitted
	delay := t.config.PollInitial
	polls := 0

	for {
		switch state {
		case JobSubmitted:
			state = JobPolling

		case JobPolling:
			if !t.now().Add(delay).Before(deadline) {
				log.Error("transcription exceeded max wait", "polls", polls, "max_wait", t.config.MaxWait)
				return "", ErrTranscriptionTimeout
			}
			if err := t.sleep(ctx, delay); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return "", ErrTranscriptionTimeout
				}
				return "", err
			}

			st, err := t.poll(ctx, jobID)
			polls++
			if err != nil {
				log.Error("transcription poll failed", "polls", polls, "error", err)
				return "", fmt.Errorf("%w: poll: %v", ErrTranscriptionFailed, err)
			}

			switch st.State {
			case JobCompleted:
				log.Info("transcription completed", "polls", polls, "elapsed", t.now().Sub(start), "chars", len(st.Text))
				return st.Text, nil
			case JobFailed:
				log.Error("transcription job failed", "polls", polls, "vendor_error", st.Error)
				return "", fmt.Errorf("%w: %s", ErrTranscriptionFailed, st.Error)
			}

			delay = nextDelay(delay, t.config.PollMax)
			log.Debug("transcription pending", "polls", polls, "next_poll", delay)
		}
	}
}

func (t *Transcriber) submit(ctx context.Context, audio Audio) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.config.PollTimeout)
	defer cancel()
	return t.svc.Submit(ctx, audio, t.config.Diarize)
}

// poll retries a transient failure once.
func (t *Transcriber) poll(ctx context.Context, jobID string) (JobStatus, error) {
	var st JobStatus
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, t.config.PollTimeout)
		st, err = t.svc.Poll(pctx, jobID)
		cancel()
		if err == nil || !isTransient(err) || ctx.Err() != nil {
			return st, err
		}
		t.log.Warn("transient poll error, retrying", "job_id", jobID, "error", err)
	}
	return st, err
}

func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
