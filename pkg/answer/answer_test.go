package answer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/minutemate/internal/models"
	"github.com/xhad/minutemate/internal/testutil"
	"github.com/xhad/minutemate/pkg/answer"
	"github.com/xhad/minutemate/pkg/retriever"
	"github.com/xhad/minutemate/pkg/store"
)

type fakeRetriever struct {
	segments []models.ContextSegment
	keywords []string
	calls    int
	panics   bool
}

func (f *fakeRetriever) Search(ctx context.Context, query string, mode models.SearchMode) ([]models.ContextSegment, []string) {
	f.calls++
	if f.panics {
		panic("index exploded")
	}
	return f.segments, f.keywords
}

func isModeration(system string) bool {
	return strings.Contains(system, "classifier")
}

// scripted replies with a fixed label to every moderation call and with
// answer to generation.
func scripted(promptLabel, answerLabel, answerText string, genErr error) *testutil.Completer {
	checks := 0
	return &testutil.Completer{Fn: func(system, user string) (string, error) {
		if isModeration(system) {
			checks++
			if checks == 1 {
				return promptLabel, nil
			}
			return answerLabel, nil
		}
		return answerText, genErr
	}}
}

func newProcessor(llm *testutil.Completer, r *fakeRetriever) *answer.PromptProcessor {
	return answer.NewPromptProcessor(answer.ProcessorConfig{}, answer.NewModerator(llm, 0, nil), r, llm, nil)
}

func sampleSegments() []models.ContextSegment {
	return []models.ContextSegment{{
		ChunkID:        3,
		Content:        "The greenway trail extension was approved.",
		MeetingDate:    "2023-08-01",
		MeetingType:    "Board of Commissioners",
		FileType:       "Minutes",
		SourceDocument: "2023_08_01_BOC_Minutes_Cleaned.txt",
	}}
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		reply string
		want  answer.Outcome
	}{
		{"appropriate\n- civic question", answer.OutcomeAppropriate},
		{"Inappropriate. Harassment, threats, slurs", answer.OutcomeInappropriate},
		{"  **AMBIGUOUS**: unclear intent", answer.OutcomeAmbiguous},
		{"\"appropriate\", factors: ...", answer.OutcomeAppropriate},
		{"I think this is appropriate", answer.OutcomeError},
		{"appropriately phrased", answer.OutcomeError},
		{"", answer.OutcomeError},
		{"...", answer.OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, answer.ParseLabel(tt.reply))
		})
	}
}

func TestModeratorCallFailure(t *testing.T) {
	llm := &testutil.Completer{Fn: func(system, user string) (string, error) {
		return "", testutil.ErrBackend
	}}
	m := answer.NewModerator(llm, 0, nil)
	assert.Equal(t, answer.OutcomeError, m.Check(context.Background(), "hello"))

	require.Len(t, llm.Calls, 1)
	assert.Contains(t, llm.Calls[0].System, "appropriate, inappropriate, ambiguous")
	assert.Equal(t, "hello", llm.Calls[0].User)
}

func TestProcessAnswersFromContext(t *testing.T) {
	llm := scripted("appropriate - civic", "appropriate - factual", "The trail was approved.", nil)
	r := &fakeRetriever{segments: sampleSegments(), keywords: []string{"greenway trail"}}

	resp := newProcessor(llm, r).Process(context.Background(), "What happened with the greenway trail?")

	assert.Equal(t, "The trail was approved.", resp.GeneratedResponse)
	assert.Equal(t, 0, resp.ErrorCode)
	assert.Equal(t, sampleSegments(), resp.ContextSegments)
	assert.Equal(t, []string{"greenway trail"}, resp.Keywords)

	require.Equal(t, 3, llm.CallCount())
	gen := llm.Calls[1]
	assert.True(t, strings.HasPrefix(gen.System, "Use this context if relevant: <ContextSegment3>\n"))
	assert.Contains(t, gen.System, "Meeting: Board of Commissioners | Date: 2023-08-01 | File: Minutes | Source: 2023_08_01_BOC_Minutes_Cleaned.txt")
	assert.Equal(t, "What happened with the greenway trail?", gen.User)
	assert.Equal(t, "The trail was approved.", llm.Calls[2].User)
}

func TestProcessRejectsInappropriatePrompt(t *testing.T) {
	llm := scripted("inappropriate: abusive", "appropriate", "never", nil)
	r := &fakeRetriever{segments: sampleSegments()}

	resp := newProcessor(llm, r).Process(context.Background(), "something hateful")

	assert.Equal(t, answer.InappropriatePrompt, resp.GeneratedResponse)
	assert.Equal(t, 0, resp.ErrorCode)
	assert.Empty(t, resp.ContextSegments)
	assert.NotNil(t, resp.ContextSegments)
	assert.Equal(t, 0, r.calls)
	assert.Equal(t, 1, llm.CallCount())
}

func TestProcessUnlabelledPreCheck(t *testing.T) {
	llm := scripted("Sure! Here is my analysis", "appropriate", "never", nil)
	r := &fakeRetriever{}

	resp := newProcessor(llm, r).Process(context.Background(), "budget?")
	assert.Equal(t, answer.CheckError, resp.GeneratedResponse)
	assert.Equal(t, 0, r.calls)
}

func TestProcessAmbiguousPromptContinues(t *testing.T) {
	llm := scripted("ambiguous - vague", "appropriate", "Here is what I found.", nil)
	resp := newProcessor(llm, &fakeRetriever{}).Process(context.Background(), "tell me stuff")
	assert.Equal(t, "Here is what I found.", resp.GeneratedResponse)
}

func TestProcessRejectsInappropriateAnswer(t *testing.T) {
	llm := scripted("appropriate", "inappropriate - leaked data", "secret", nil)
	resp := newProcessor(llm, &fakeRetriever{segments: sampleSegments()}).Process(context.Background(), "q")

	assert.Equal(t, answer.InappropriateResponse, resp.GeneratedResponse)
	assert.Equal(t, 0, resp.ErrorCode)
	assert.Equal(t, 3, llm.CallCount())
}

func TestProcessGenerationFailureApologizes(t *testing.T) {
	llm := scripted("appropriate", "appropriate", "", errors.New("model overloaded"))
	resp := newProcessor(llm, &fakeRetriever{segments: sampleSegments()}).Process(context.Background(), "q")

	assert.Equal(t, answer.Apology, resp.GeneratedResponse)
	assert.Equal(t, 0, resp.ErrorCode)
	assert.Len(t, resp.ContextSegments, 1)
}

func TestProcessPanicBecomesInternalError(t *testing.T) {
	llm := scripted("appropriate", "appropriate", "x", nil)
	resp := newProcessor(llm, &fakeRetriever{panics: true}).Process(context.Background(), "q")

	assert.Equal(t, answer.InternalError, resp.GeneratedResponse)
	assert.Equal(t, answer.ErrorCodeInternal, resp.ErrorCode)
	assert.Equal(t, []models.ContextSegment{}, resp.ContextSegments)
}

func TestProcessCancelled(t *testing.T) {
	llm := scripted("appropriate", "appropriate", "x", nil)
	r := &fakeRetriever{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := newProcessor(llm, r).Process(ctx, "q")
	assert.Equal(t, answer.ErrorCodeInternal, resp.ErrorCode)
	assert.Equal(t, 0, llm.CallCount())
	assert.Equal(t, 0, r.calls)
}

func TestProcessEmptyIndex(t *testing.T) {
	llm := scripted("appropriate", "appropriate", "I could not find anything on that.", nil)
	r := retriever.New(retriever.RetrieverConfig{}, store.NewMemoryStore(), &testutil.Embedder{}, nil)
	p := answer.NewPromptProcessor(answer.ProcessorConfig{Mode: models.SearchKeyword}, answer.NewModerator(llm, 0, nil), r, llm, nil)

	resp := p.Process(context.Background(), "Summarize the Budget Planning document")

	assert.Equal(t, "I could not find anything on that.", resp.GeneratedResponse)
	assert.Empty(t, resp.ContextSegments)
	assert.NotEmpty(t, resp.Keywords)
	require.Equal(t, 3, llm.CallCount())
	assert.Equal(t, "Use this context if relevant: ", llm.Calls[1].System)
}

func TestProcessStreamReleasesAfterPostCheck(t *testing.T) {
	llm := scripted("appropriate", "appropriate", "The trail was approved.", nil)
	var got []string
	resp := newProcessor(llm, &fakeRetriever{}).ProcessStream(context.Background(), "q", func(tok string) error {
		// the post-check must already have happened
		assert.Equal(t, 3, llm.CallCount())
		got = append(got, tok)
		return nil
	})

	assert.Equal(t, "The trail was approved.", resp.GeneratedResponse)
	assert.Equal(t, "The trail was approved.", strings.Join(got, ""))
}

func TestProcessStreamWithholdsRejectedAnswer(t *testing.T) {
	llm := scripted("appropriate", "inappropriate", "bad words here", nil)
	var got []string
	resp := newProcessor(llm, &fakeRetriever{}).ProcessStream(context.Background(), "q", func(tok string) error {
		got = append(got, tok)
		return nil
	})

	assert.Equal(t, answer.InappropriateResponse, resp.GeneratedResponse)
	assert.Empty(t, got)
}

// brokenStream emits a few tokens and then fails mid-answer.
type brokenStream struct {
	*testutil.Completer
}

func (b brokenStream) Stream(ctx context.Context, system, user string, onToken func(string) error) (string, error) {
	for _, tok := range []string{"UNCHECKED ", "partial text"} {
		if err := onToken(tok); err != nil {
			return "", err
		}
	}
	return "", testutil.ErrBackend
}

func TestProcessStreamDropsTokensOnGenerationFailure(t *testing.T) {
	moderation := scripted("appropriate", "appropriate", "", nil)
	p := answer.NewPromptProcessor(answer.ProcessorConfig{}, answer.NewModerator(moderation, 0, nil),
		&fakeRetriever{segments: sampleSegments()}, brokenStream{moderation}, nil)

	var got []string
	resp := p.ProcessStream(context.Background(), "q", func(tok string) error {
		got = append(got, tok)
		return nil
	})

	assert.Equal(t, answer.Apology, resp.GeneratedResponse)
	assert.Equal(t, 0, resp.ErrorCode)
	assert.Empty(t, got)
	assert.Equal(t, 1, moderation.CallCount())
}

func TestProcessStreamDropsTokensOnPanic(t *testing.T) {
	llm := scripted("appropriate", "appropriate", "fine", nil)
	var got []string
	resp := newProcessor(llm, &fakeRetriever{panics: true}).ProcessStream(context.Background(), "q", func(tok string) error {
		got = append(got, tok)
		return nil
	})

	assert.Equal(t, answer.ErrorCodeInternal, resp.ErrorCode)
	assert.Empty(t, got)
}

func TestBuildContext(t *testing.T) {
	segs := append(sampleSegments(), models.ContextSegment{
		ChunkID: 4, Content: "Second.", MeetingDate: models.NotAvailable, MeetingType: models.NotAvailable,
		FileType: models.NotAvailable, SourceDocument: models.NotAvailable,
	})
	want := "<ContextSegment3>\nMeeting: Board of Commissioners | Date: 2023-08-01 | File: Minutes | Source: 2023_08_01_BOC_Minutes_Cleaned.txt\nThe greenway trail extension was approved.\n" +
		"<ContextSegment4>\nMeeting: N/A | Date: N/A | File: N/A | Source: N/A\nSecond."
	assert.Equal(t, want, answer.BuildContext(segs))
	assert.Equal(t, "", answer.BuildContext(nil))
}
