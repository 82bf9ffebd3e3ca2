package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer encodes text with the BPE used by an OpenAI model.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer loads the encoding for model, e.g. "text-embedding-ada-002".
// The first call may download the BPE ranks unless TIKTOKEN_CACHE_DIR holds them.
func NewTokenizer(model string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding for %s: %w", model, err)
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
