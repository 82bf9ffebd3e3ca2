package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/pkg/gcp"
	"github.com/xhad/minutemate/pkg/logger"
)

// DefaultInlineLimit is the largest recording sent in the request body.
// Cloud Speech rejects larger inline content.
const DefaultInlineLimit = 10 << 20

var ErrAudioTooLarge = errors.New("audio too large to send inline")

// ObjectLocator resolves a stored object to a gs:// URI.
type ObjectLocator interface {
	URI(ns models.Namespace, name string) string
}

type GoogleSpeechConfig struct {
	Model        string // best or nano
	LanguageCode string
	ProjectID    string
	// Objects, when set, lets Speech read recordings straight from the
	// raw namespace of the bucket instead of the request body.
	Objects     ObjectLocator
	InlineLimit int
}

// GoogleSpeech backs SpeechService with Cloud Speech LongRunningRecognize.
// The job id is the operation name.
type GoogleSpeech struct {
	config GoogleSpeechConfig
	client *speech.Client
	log    *logger.Logger
}

func NewGoogleSpeech(ctx context.Context, config GoogleSpeechConfig, log *logger.Logger) (*GoogleSpeech, error) {
	if config.LanguageCode == "" {
		config.LanguageCode = "en-US"
	}
	if config.InlineLimit <= 0 {
		config.InlineLimit = DefaultInlineLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	c, err := speech.NewClient(ctx, gcp.ClientOptionsFromEnv(config.ProjectID)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &GoogleSpeech{config: config, client: c, log: log.With("component", "extract.speech")}, nil
}

func (g *GoogleSpeech) Submit(ctx context.Context, audio Audio, diarize bool) (string, error) {
	req, err := recognizeRequest(g.config, audio, diarize)
	if err != nil {
		return "", err
	}
	if uri, ok := req.Audio.AudioSource.(*speechpb.RecognitionAudio_Uri); ok {
		g.log.Debug("submitting stored recording", "uri", uri.Uri)
	}
	op, err := g.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("speech LongRunningRecognize: %w", err)
	}
	return op.Name(), nil
}

func (g *GoogleSpeech) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	op := g.client.LongRunningRecognizeOperation(jobID)
	resp, err := op.Poll(ctx)
	if err != nil {
		if op.Done() {
			return JobStatus{State: JobFailed, Error: err.Error()}, nil
		}
		return JobStatus{}, err
	}
	if !op.Done() {
		return JobStatus{State: JobPolling}, nil
	}
	return JobStatus{State: JobCompleted, Text: formatTranscript(resp)}, nil
}

func (g *GoogleSpeech) Close() error {
	return g.client.Close()
}

// recognizeRequest points Speech at the stored raw object when a locator is
// configured and sends the bytes inline otherwise.
func recognizeRequest(config GoogleSpeechConfig, audio Audio, diarize bool) (*speechpb.LongRunningRecognizeRequest, error) {
	req := &speechpb.LongRunningRecognizeRequest{Config: recognitionConfig(config, audio.MimeType, diarize)}
	switch {
	case config.Objects != nil && audio.Name != "":
		req.Audio = &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Uri{
			Uri: config.Objects.URI(models.NamespaceRaw, audio.Name),
		}}
	case len(audio.Content) > config.InlineLimit:
		return nil, fmt.Errorf("%w: %d bytes (limit %d); configure GCS storage for long recordings",
			ErrAudioTooLarge, len(audio.Content), config.InlineLimit)
	default:
		req.Audio = &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Content}}
	}
	return req, nil
}

func recognitionConfig(config GoogleSpeechConfig, mimeType string, diarize bool) *speechpb.RecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		LanguageCode:               config.LanguageCode,
		Encoding:                   inferSpeechEncoding(mimeType),
		EnableAutomaticPunctuation: true,
	}
	if config.Model == "nano" {
		rc.Model = "default"
	} else {
		rc.Model = "latest_long"
		rc.UseEnhanced = true
	}
	if diarize {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          2,
			MaxSpeakerCount:          10,
		}
	}
	return rc
}

func inferSpeechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3"), strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg"), strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// formatTranscript joins result transcripts. When the response carries
// speaker tags, the words of the final result (which repeats the whole
// audio) are grouped into "Speaker N: ..." turns.
func formatTranscript(resp *speechpb.LongRunningRecognizeResponse) string {
	if resp == nil || len(resp.Results) == 0 {
		return ""
	}

	if words := diarizedWords(resp); len(words) > 0 {
		return speakerTurns(words)
	}

	var parts []string
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		if t := strings.TrimSpace(r.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func diarizedWords(resp *speechpb.LongRunningRecognizeResponse) []*speechpb.WordInfo {
	last := resp.Results[len(resp.Results)-1]
	if last == nil || len(last.Alternatives) == 0 || last.Alternatives[0] == nil {
		return nil
	}
	words := last.Alternatives[0].Words
	for _, w := range words {
		if w != nil && w.SpeakerTag > 0 {
			return words
		}
	}
	return nil
}

func speakerTurns(words []*speechpb.WordInfo) string {
	var lines []string
	var buf []string
	cur := int32(-1)

	flush := func() {
		if len(buf) > 0 {
			lines = append(lines, fmt.Sprintf("Speaker %d: %s", cur, strings.Join(buf, " ")))
			buf = buf[:0]
		}
	}
	for _, w := range words {
		if w == nil || w.Word == "" {
			continue
		}
		if w.SpeakerTag != cur {
			flush()
			cur = w.SpeakerTag
		}
		buf = append(buf, w.Word)
	}
	flush()
	return strings.Join(lines, "\n")
}
