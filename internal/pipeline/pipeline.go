// Package pipeline turns an extracted mention into reply text through
// three model calls: an analyst answers the question in full, an
// optional summarizer condenses long analyses, and a crafter
// compresses the result into a tweet that passes the output checks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/replyclaw/internal/extract"
	"github.com/nextlevelbuilder/replyclaw/internal/venice"
)

// ErrReplyFailed wraps any stage failure. The orchestrator leaves the
// mention unprocessed so the next poll retries it.
var ErrReplyFailed = errors.New("reply generation failed")

// summarizeThreshold is the analysis length in runes above which the
// summarization stage runs (when enabled).
const summarizeThreshold = 4000

// Completer is the completion surface the pipeline consumes.
// *venice.Client implements it; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, req venice.Request) (string, error)
}

// Models routes each stage to a model.
type Models struct {
	Web     string // analysis without an image, web search on
	Vision  string // analysis with an image
	Crafter string // final reply crafting
}

// Generator runs the reply pipeline.
type Generator struct {
	completer Completer
	models    Models
	summarize bool
	now       func() time.Time
}

// New builds a generator. summarize enables the middle stage for long
// analyses; the stock two-call pipeline leaves it off.
func New(completer Completer, models Models, summarize bool) *Generator {
	return &Generator{
		completer: completer,
		models:    models,
		summarize: summarize,
		now:       time.Now,
	}
}

// Request is one mention to answer.
type Request struct {
	MentionText string
	Context     *extract.Context
	CharLimit   int
}

// Generate produces the reply text for one mention. The returned text
// is guaranteed non-empty, within CharLimit runes, and free of banned
// phrases and invented @-mentions.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	analysis, err := g.analyze(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: analysis: %v", ErrReplyFailed, err)
	}

	if g.summarize && len([]rune(analysis)) > summarizeThreshold {
		summary, err := g.completer.Complete(ctx, venice.Request{
			Model:  g.models.Web,
			System: summarizerSystem,
			Prompt: analysis,
			Params: venice.PlainParams(),
		})
		if err != nil {
			// crafting can still work off the long analysis
			slog.Warn("summarization skipped", "error", err)
		} else {
			analysis = summary
		}
	}

	reply, err := g.craft(ctx, req, analysis)
	if err != nil {
		return "", fmt.Errorf("%w: craft: %v", ErrReplyFailed, err)
	}
	return reply, nil
}

// analyze runs the first stage, routing to the vision model when the
// mention carries or inherits an image.
func (g *Generator) analyze(ctx context.Context, req Request) (string, error) {
	var contextText string
	var urls []string
	vreq := venice.Request{
		Model:  g.models.Web,
		System: analystSystem,
		Params: venice.WebSearchParams(),
	}

	if c := req.Context; c != nil {
		contextText = filterStaleContext(c.Text, g.now())
		if c.Continuing && contextText != "" {
			contextText = extract.ConversationMarker + "\n" + contextText
		}
		urls = c.URLs

		switch {
		case c.HasOwnImage():
			vreq.Model = g.models.Vision
			vreq.ImageData = c.ImageData
			vreq.ImageMime = c.ImageMime
			vreq.Params = venice.PlainParams() // vision models do not search
		case c.ContextImageURL != "":
			vreq.Model = g.models.Vision
			vreq.ImageURL = c.ContextImageURL
			vreq.Params = venice.PlainParams()
		}
	}

	vreq.Prompt = analysisPrompt(req.MentionText, contextText, urls)
	return g.completer.Complete(ctx, vreq)
}

// craft runs the final stage with output enforcement: at most one
// stricter-prompt retry for a banned phrase and one shorten retry for
// the length budget, then hard truncation so a violation never ships.
func (g *Generator) craft(ctx context.Context, req Request, analysis string) (string, error) {
	system := crafterSystem
	prompt := craftPrompt(analysis, req.CharLimit)

	reply, err := g.craftOnce(ctx, system, prompt, req)
	if err != nil {
		return "", err
	}

	if p := firstBannedPhrase(reply); p != "" {
		slog.Debug("banned phrase in draft, retrying", "phrase", p)
		reply, err = g.craftOnce(ctx, system+crafterStrictAddendum, prompt, req)
		if err != nil {
			return "", err
		}
		if p := firstBannedPhrase(reply); p != "" {
			// the retry also failed; strip mechanically
			for _, b := range bannedPhrases {
				reply = sanitizeRemove(reply, b)
			}
		}
	}

	if len([]rune(reply)) > req.CharLimit {
		slog.Debug("draft over budget, retrying", "len", len([]rune(reply)), "limit", req.CharLimit)
		shorter, err := g.craftOnce(ctx, system, shortenPrompt(reply, req.CharLimit), req)
		if err != nil {
			return "", err
		}
		reply = shorter
		if len([]rune(reply)) > req.CharLimit {
			reply = truncateRunes(reply, req.CharLimit)
		}
	}

	if reply == "" {
		return "", errors.New("empty reply after enforcement")
	}
	return reply, nil
}

// craftOnce is one crafter call followed by the unconditional scrubs.
func (g *Generator) craftOnce(ctx context.Context, system, prompt string, req Request) (string, error) {
	out, err := g.completer.Complete(ctx, venice.Request{
		Model:  g.models.Crafter,
		System: system,
		Prompt: prompt,
		Params: venice.PlainParams(),
	})
	if err != nil {
		return "", err
	}
	out = stripCitations(out)
	out = scrubHandles(out, req.MentionText)
	return out, nil
}
