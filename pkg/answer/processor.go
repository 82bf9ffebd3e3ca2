// Package answer answers user questions from retrieved meeting context,
// gated by moderation checks on the question and on the answer.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/logger"
)

// Fixed replies.
const (
	InappropriatePrompt   = "inappropriate prompt detected"
	InappropriateResponse = "inappropriate response detected"
	CheckError            = "error generating check"
	Apology               = "I'm sorry, but I couldn't generate a response."
	InternalError         = "An error occurred while processing your request."
)

const ErrorCodeInternal = 500

type ProcessorConfig struct {
	Mode models.SearchMode
}

type PromptProcessor struct {
	config    ProcessorConfig
	moderator *Moderator
	retriever types.Retriever
	llm       types.StreamCompleter
	log       *logger.Logger
}

func NewPromptProcessor(config ProcessorConfig, moderator *Moderator, retriever types.Retriever, llm types.StreamCompleter, log *logger.Logger) *PromptProcessor {
	if config.Mode == "" {
		config.Mode = models.SearchKeyword
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PromptProcessor{
		config:    config,
		moderator: moderator,
		retriever: retriever,
		llm:       llm,
		log:       log.With("component", "answer.processor"),
	}
}

// Process answers prompt. It never returns an error; failures are encoded
// in the response text and error code.
func (p *PromptProcessor) Process(ctx context.Context, prompt string) models.PromptResponse {
	resp, _ := p.run(ctx, prompt, nil)
	return resp
}

// ProcessStream is Process with the answer delivered through onToken. Tokens
// are held back until the answer passes moderation and are dropped otherwise.
func (p *PromptProcessor) ProcessStream(ctx context.Context, prompt string, onToken func(string) error) models.PromptResponse {
	var buffered []string
	resp, approved := p.run(ctx, prompt, func(tok string) error {
		buffered = append(buffered, tok)
		return nil
	})
	if !approved {
		return resp
	}
	for _, tok := range buffered {
		if err := onToken(tok); err != nil {
			p.log.Warn("stream consumer stopped", "error", err)
			break
		}
	}
	return resp
}

// run reports approved only when a generated answer passed the post-check.
func (p *PromptProcessor) run(ctx context.Context, prompt string, onToken func(string) error) (resp models.PromptResponse, approved bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("prompt processing panicked", "panic", fmt.Sprint(r))
			resp, approved = internalError(), false
		}
	}()

	if ctx.Err() != nil {
		return internalError(), false
	}
	switch p.moderator.Check(ctx, prompt) {
	case OutcomeInappropriate:
		p.log.Info("prompt rejected by moderation")
		return reply(InappropriatePrompt, nil, nil), false
	case OutcomeError:
		if ctx.Err() != nil {
			return internalError(), false
		}
		return reply(CheckError, nil, nil), false
	case OutcomeAmbiguous:
		p.log.Info("prompt moderation ambiguous, continuing")
	}

	if ctx.Err() != nil {
		return internalError(), false
	}
	segments, keywords := p.retriever.Search(ctx, prompt, p.config.Mode)

	if ctx.Err() != nil {
		return internalError(), false
	}
	answer, err := p.generate(ctx, prompt, segments, onToken)
	if err != nil {
		if ctx.Err() != nil {
			return internalError(), false
		}
		p.log.Error("generation failed", "error", err)
		return reply(Apology, segments, keywords), false
	}

	switch p.moderator.Check(ctx, answer) {
	case OutcomeInappropriate:
		p.log.Warn("answer rejected by moderation")
		return reply(InappropriateResponse, segments, keywords), false
	case OutcomeError:
		if ctx.Err() != nil {
			return internalError(), false
		}
		return reply(CheckError, segments, keywords), false
	case OutcomeAmbiguous:
		p.log.Info("answer moderation ambiguous, returning it")
	}

	return reply(answer, segments, keywords), true
}

func (p *PromptProcessor) generate(ctx context.Context, prompt string, segments []models.ContextSegment, onToken func(string) error) (string, error) {
	system := "Use this context if relevant: " + BuildContext(segments)

	var (
		out string
		err error
	)
	if onToken != nil {
		out, err = p.llm.Stream(ctx, system, prompt, onToken)
	} else {
		out, err = p.llm.Complete(ctx, system, prompt)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("empty completion")
	}
	return out, nil
}

// BuildContext renders segments for the system message, each introduced by
// a <ContextSegmentN> tag and its meeting metadata.
func BuildContext(segments []models.ContextSegment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, fmt.Sprintf("<ContextSegment%d>\nMeeting: %s | Date: %s | File: %s | Source: %s\n%s",
			s.ChunkID, s.MeetingType, s.MeetingDate, s.FileType, s.SourceDocument, s.Content))
	}
	return strings.Join(parts, "\n")
}

func reply(text string, segments []models.ContextSegment, keywords []string) models.PromptResponse {
	if segments == nil {
		segments = []models.ContextSegment{}
	}
	if keywords == nil {
		keywords = []string{}
	}
	return models.PromptResponse{GeneratedResponse: text, ContextSegments: segments, Keywords: keywords}
}

func internalError() models.PromptResponse {
	r := reply(InternalError, nil, nil)
	r.ErrorCode = ErrorCodeInternal
	return r
}
