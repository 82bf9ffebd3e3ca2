package answer

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/logger"
)

// Outcome is the verdict of a moderation check.
type Outcome string

const (
	OutcomeAppropriate   Outcome = "appropriate"
	OutcomeInappropriate Outcome = "inappropriate"
	OutcomeAmbiguous     Outcome = "ambiguous"
	// OutcomeError means the classifier failed or replied without a label.
	OutcomeError Outcome = "error"
)

const moderationSystemPrompt = "You are a trust and safety classifier for a public question-answering service " +
	"about municipal government meetings. Classify the text you are given. " +
	"The first word of your reply must be exactly one of: appropriate, inappropriate, ambiguous. " +
	"After the label, list 3 to 5 short factors that justify your classification."

type Moderator struct {
	llm     types.Completer
	timeout time.Duration
	log     *logger.Logger
}

func NewModerator(llm types.Completer, timeout time.Duration, log *logger.Logger) *Moderator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Moderator{llm: llm, timeout: timeout, log: log.With("component", "answer.moderator")}
}

func (m *Moderator) Check(ctx context.Context, text string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	reply, err := m.llm.Complete(ctx, moderationSystemPrompt, text)
	if err != nil {
		m.log.Error("moderation call failed", "error", err)
		return OutcomeError
	}
	outcome := ParseLabel(reply)
	if outcome == OutcomeError {
		m.log.Warn("moderation reply has no label", "reply_chars", len(reply))
	}
	return outcome
}

// ParseLabel reads the classifier label from the first word of reply,
// ignoring case and any leading whitespace or punctuation.
func ParseLabel(reply string) Outcome {
	s := strings.TrimLeftFunc(reply, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end >= 0 {
		s = s[:end]
	}
	switch Outcome(strings.ToLower(s)) {
	case OutcomeAppropriate:
		return OutcomeAppropriate
	case OutcomeInappropriate:
		return OutcomeInappropriate
	case OutcomeAmbiguous:
		return OutcomeAmbiguous
	}
	return OutcomeError
}
