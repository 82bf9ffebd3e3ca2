package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xhad/minutemate/internal/types"
	"github.com/xhad/minutemate/pkg/logger"
)

// Window is a contiguous run of tokens from a larger text.
type Window struct {
	Index  int
	Tokens []int
	Text   string
}

// SplitWindows cuts text into windows of at most size tokens. Windows never
// overlap and never split a token; concatenating their token slices yields
// the original token stream.
func SplitWindows(tok types.Tokenizer, text string, size int) []Window {
	if size < 1 {
		size = 1
	}
	tokens := tok.Encode(text)
	windows := make([]Window, 0, (len(tokens)+size-1)/size)
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		w := tokens[start:end]
		windows = append(windows, Window{
			Index:  len(windows),
			Tokens: w,
			Text:   tok.Decode(w),
		})
	}
	return windows
}

type ProcessorConfig struct {
	WindowTokens int
	Concurrency  int
	// RateLimit caps completion calls per second; zero disables it.
	RateLimit float64
	Town      string
}

var ErrEmptyCleanWindow = errors.New("cleaned window is empty")

// WindowError reports which window failed during cleaning.
type WindowError struct {
	Index int
	Err   error
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("window %d: %v", e.Index, e.Err)
}

func (e *WindowError) Unwrap() error { return e.Err }

// Cleaner normalizes dirty meeting text one token window at a time.
type Cleaner struct {
	config  ProcessorConfig
	tok     types.Tokenizer
	llm     types.Completer
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewWithConfig(config ProcessorConfig, tok types.Tokenizer, llm types.Completer, log *logger.Logger) *Cleaner {
	if config.WindowTokens == 0 {
		config.WindowTokens = 250
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.Town == "" {
		config.Town = "Cramerton"
	}
	if log == nil {
		log = logger.Nop()
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Cleaner{
		config:  config,
		tok:     tok,
		llm:     llm,
		limiter: limiter,
		log:     log.With("component", "processor.cleaner"),
	}
}

func (c *Cleaner) systemPrompt() string {
	town := c.config.Town
	return fmt.Sprintf("The following text is a transcription of a municipal meeting for the town of %s. "+
		"The transcription quality may be poor, and some words, like the town's name, %s, "+
		"may not have been transcribed correctly. If you encounter words that seem out of place or incorrect, "+
		"please correct them based on this context.", town, town)
}

// Clean returns the cleaned windows joined by blank lines, in input order.
// A window that comes back empty fails the whole call.
func (c *Cleaner) Clean(ctx context.Context, dirty string) (string, error) {
	windows := SplitWindows(c.tok, dirty, c.config.WindowTokens)
	if len(windows) == 0 {
		return "", nil
	}

	c.log.Info("cleaning text", "windows", len(windows), "concurrency", c.config.Concurrency)

	cleaned := make([]string, len(windows))
	system := c.systemPrompt()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for _, w := range windows {
		w := w
		g.Go(func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(gctx); err != nil {
					return &WindowError{Index: w.Index, Err: err}
				}
			}
			if err := gctx.Err(); err != nil {
				return &WindowError{Index: w.Index, Err: err}
			}

			out, err := c.llm.Complete(gctx, system, "Clean the following text for readability and correct errors: "+w.Text)
			if err != nil {
				return &WindowError{Index: w.Index, Err: err}
			}
			out = strings.TrimSpace(out)
			if out == "" {
				return &WindowError{Index: w.Index, Err: ErrEmptyCleanWindow}
			}
			cleaned[w.Index] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.log.Error("cleaning failed", "error", err)
		return "", err
	}

	return strings.Join(cleaned, "\n\n"), nil
}
