package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/replyclaw/internal/extract"
	"github.com/nextlevelbuilder/replyclaw/internal/venice"
)

// scriptedCompleter returns canned responses in order and records
// every request it sees.
type scriptedCompleter struct {
	responses []string
	errs      []error
	requests  []venice.Request
}

func (s *scriptedCompleter) Complete(ctx context.Context, req venice.Request) (string, error) {
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("script exhausted")
}

var testModels = Models{Web: "web-m", Vision: "vis-m", Crafter: "craft-m"}

func TestGenerateHappyPath(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		"long analysis of the question",
		"the crafted reply",
	}}
	g := New(c, testModels, false)

	got, err := g.Generate(context.Background(), Request{
		MentionText: "@bot what is happening",
		CharLimit:   280,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "the crafted reply" {
		t.Errorf("reply = %q", got)
	}
	if len(c.requests) != 2 {
		t.Fatalf("calls = %d, want 2", len(c.requests))
	}
	if c.requests[0].Model != "web-m" {
		t.Errorf("analysis model = %q", c.requests[0].Model)
	}
	if c.requests[0].Params == nil || c.requests[0].Params.EnableWebSearch != "auto" {
		t.Error("analysis stage should enable web search")
	}
	if c.requests[1].Model != "craft-m" {
		t.Errorf("craft model = %q", c.requests[1].Model)
	}
	if c.requests[1].Params != nil && c.requests[1].Params.EnableWebSearch != "" {
		t.Error("craft stage must not search the web")
	}
}

func TestGenerateVisionRouting(t *testing.T) {
	t.Run("own image", func(t *testing.T) {
		c := &scriptedCompleter{responses: []string{"a cat photo", "nice cat"}}
		g := New(c, testModels, false)
		_, err := g.Generate(context.Background(), Request{
			MentionText: "@bot what is this",
			Context:     &extract.Context{ImageData: []byte{1, 2}, ImageMime: "image/jpeg"},
			CharLimit:   280,
		})
		if err != nil {
			t.Fatal(err)
		}
		if c.requests[0].Model != "vis-m" {
			t.Errorf("model = %q, want vision", c.requests[0].Model)
		}
		if len(c.requests[0].ImageData) == 0 {
			t.Error("image bytes not forwarded")
		}
	})

	t.Run("context image promoted", func(t *testing.T) {
		c := &scriptedCompleter{responses: []string{"a chart", "about the chart"}}
		g := New(c, testModels, false)
		_, err := g.Generate(context.Background(), Request{
			MentionText: "@bot thoughts on this",
			Context:     &extract.Context{ContextImageURL: "https://img.example/x.jpg"},
			CharLimit:   280,
		})
		if err != nil {
			t.Fatal(err)
		}
		if c.requests[0].Model != "vis-m" || c.requests[0].ImageURL == "" {
			t.Errorf("req = %+v, want vision with image url", c.requests[0])
		}
	})
}

func TestGenerateContinuingMarker(t *testing.T) {
	c := &scriptedCompleter{responses: []string{"analysis", "reply"}}
	g := New(c, testModels, false)
	_, err := g.Generate(context.Background(), Request{
		MentionText: "@bot and then?",
		Context:     &extract.Context{Text: "earlier exchange", Continuing: true},
		CharLimit:   280,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(c.requests[0].Prompt, extract.ConversationMarker) {
		t.Error("continuing conversations should carry the marker")
	}
}

func TestGenerateBannedPhraseRetry(t *testing.T) {
	t.Run("retry succeeds", func(t *testing.T) {
		c := &scriptedCompleter{responses: []string{
			"analysis",
			"Hey there! here is the answer",
			"here is the answer",
		}}
		g := New(c, testModels, false)
		got, err := g.Generate(context.Background(), Request{MentionText: "@bot q", CharLimit: 280})
		if err != nil {
			t.Fatal(err)
		}
		if got != "here is the answer" {
			t.Errorf("reply = %q", got)
		}
		if len(c.requests) != 3 {
			t.Fatalf("calls = %d, want exactly one retry", len(c.requests))
		}
		if !strings.Contains(c.requests[2].System, "IMPORTANT") {
			t.Error("retry should use the stricter system prompt")
		}
	})

	t.Run("retry fails, phrase stripped", func(t *testing.T) {
		c := &scriptedCompleter{responses: []string{
			"analysis",
			"Hello! first try",
			"Hello! the answer anyway",
		}}
		g := New(c, testModels, false)
		got, err := g.Generate(context.Background(), Request{MentionText: "@bot q", CharLimit: 280})
		if err != nil {
			t.Fatal(err)
		}
		if firstBannedPhrase(got) != "" {
			t.Errorf("banned phrase shipped: %q", got)
		}
		// no third crafting attempt
		if len(c.requests) != 3 {
			t.Errorf("calls = %d, retries must be bounded", len(c.requests))
		}
	})
}

func TestGenerateLengthEnforcement(t *testing.T) {
	long := strings.Repeat("word ", 100) // ~500 runes

	t.Run("shorten retry succeeds", func(t *testing.T) {
		c := &scriptedCompleter{responses: []string{"analysis", long, "fits now"}}
		g := New(c, testModels, false)
		got, err := g.Generate(context.Background(), Request{MentionText: "@bot q", CharLimit: 280})
		if err != nil {
			t.Fatal(err)
		}
		if got != "fits now" {
			t.Errorf("reply = %q", got)
		}
		if len(c.requests) != 3 {
			t.Errorf("calls = %d, want one shorten retry", len(c.requests))
		}
	})

	t.Run("still long, hard truncated", func(t *testing.T) {
		c := &scriptedCompleter{responses: []string{"analysis", long, long}}
		g := New(c, testModels, false)
		got, err := g.Generate(context.Background(), Request{MentionText: "@bot q", CharLimit: 280})
		if err != nil {
			t.Fatal(err)
		}
		if n := len([]rune(got)); n > 280 {
			t.Errorf("reply is %d runes, over the limit", n)
		}
		if got == "" {
			t.Error("truncation produced empty reply")
		}
		if len(c.requests) != 3 {
			t.Errorf("calls = %d, retries must be bounded", len(c.requests))
		}
	})
}

func TestGenerateAnalysisFailure(t *testing.T) {
	c := &scriptedCompleter{errs: []error{errors.New("model down")}}
	g := New(c, testModels, false)
	_, err := g.Generate(context.Background(), Request{MentionText: "@bot q", CharLimit: 280})
	if !errors.Is(err, ErrReplyFailed) {
		t.Errorf("err = %v, want ErrReplyFailed", err)
	}
}

func TestGenerateSummarization(t *testing.T) {
	longAnalysis := strings.Repeat("detail ", 1000) // > summarizeThreshold runes
	c := &scriptedCompleter{responses: []string{longAnalysis, "the gist", "reply"}}
	g := New(c, testModels, true)

	got, err := g.Generate(context.Background(), Request{MentionText: "@bot q", CharLimit: 280})
	if err != nil {
		t.Fatal(err)
	}
	if got != "reply" {
		t.Errorf("reply = %q", got)
	}
	if len(c.requests) != 3 {
		t.Fatalf("calls = %d, want summarization in the middle", len(c.requests))
	}
	if c.requests[1].System != summarizerSystem {
		t.Error("middle call should be the summarizer")
	}
	if !strings.Contains(c.requests[2].Prompt, "the gist") {
		t.Error("crafter should receive the summary, not the raw analysis")
	}
}
