// Package testutil holds deterministic stand-ins for the network-backed
// collaborators used across package tests.
package testutil

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
)

var wordTokenRe = regexp.MustCompile(`[^\s-]+-|[^\s-]+\s*|-|\s+`)

// WordTokenizer treats every word, with its trailing whitespace, as one
// token. A hyphenated word counts as one token per hyphen-separated part.
// Decoding a contiguous slice of tokens gives back the exact source text.
type WordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	vocab []string
}

func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{ids: map[string]int{}}
}

func (w *WordTokenizer) Encode(text string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	parts := wordTokenRe.FindAllString(text, -1)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		id, ok := w.ids[p]
		if !ok {
			id = len(w.vocab)
			w.ids[p] = id
			w.vocab = append(w.vocab, p)
		}
		out = append(out, id)
	}
	return out
}

func (w *WordTokenizer) Decode(tokens []int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var sb strings.Builder
	for _, t := range tokens {
		if t >= 0 && t < len(w.vocab) {
			sb.WriteString(w.vocab[t])
		}
	}
	return sb.String()
}

// Completer answers with Fn, or echoes the user message when Fn is nil.
type Completer struct {
	mu    sync.Mutex
	Fn    func(system, user string) (string, error)
	Calls []Call
}

type Call struct {
	System string
	User   string
}

func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.Calls = append(c.Calls, Call{System: system, User: user})
	c.mu.Unlock()
	if c.Fn == nil {
		return user, nil
	}
	return c.Fn(system, user)
}

// Stream delivers the completion word by word.
func (c *Completer) Stream(ctx context.Context, system, user string, onToken func(string) error) (string, error) {
	out, err := c.Complete(ctx, system, user)
	if err != nil {
		return "", err
	}
	for _, f := range strings.SplitAfter(out, " ") {
		if f == "" {
			continue
		}
		if err := onToken(f); err != nil {
			return "", err
		}
	}
	return out, nil
}

func (c *Completer) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Embedder derives a small vector from letter frequencies so similar texts
// land close together.
type Embedder struct {
	mu    sync.Mutex
	Err   error
	Calls int
}

func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.Calls++
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		v[0] += 0.001
		out[i] = v
	}
	return out, nil
}

func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, errors.New("no embedding")
	}
	return vecs[0], nil
}

var ErrBackend = errors.New("backend unavailable")
