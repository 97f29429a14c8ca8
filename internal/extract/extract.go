// Package extract assembles the context a mention needs before it can
// be answered: the quoted-tweet chain, the conversation root when the
// mention continues a thread, any attached or surrounding photo, and
// the links worth following.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/replyclaw/internal/twitter"
)

// maxQuoteDepth bounds the quoted-tweet walk. Three levels covers any
// realistic quote chain; beyond that the text stops adding signal.
const maxQuoteDepth = 3

// ConversationMarker prefixes the context when the mention continues
// an existing exchange with the bot, so the model answers in-thread
// instead of greeting from scratch.
const ConversationMarker = "[CONTINUING CONVERSATION]"

// Context is everything gathered around one mention.
type Context struct {
	// Text is the surrounding conversation: quoted chain and, for
	// replies, the conversation root. Empty when the mention stands
	// alone.
	Text string
	// Continuing is set when the mention replies directly to the bot.
	Continuing bool

	// image carried by the mention itself, already sanitized
	ImageData []byte
	ImageMime string
	// photo found in the walked context, used when the mention has
	// none of its own
	ContextImageURL string

	URLs []string
}

// HasOwnImage reports whether the mention carried its own photo.
func (c *Context) HasOwnImage() bool { return len(c.ImageData) > 0 }

// Extractor walks the tweet graph around a mention.
type Extractor struct {
	api        twitter.API
	httpClient *http.Client
	botID      string
}

// New builds an extractor for the given bot account.
func New(api twitter.API, botID string) *Extractor {
	return &Extractor{
		api:        api,
		httpClient: &http.Client{Timeout: photoTimeout},
		botID:      botID,
	}
}

// Extract gathers context for one mention. inc is the includes block
// from the mentions fetch, covering the mention's own attachments and
// directly referenced tweets. Rate limit errors propagate so the poll
// loop can back off; any other fetch failure degrades to whatever
// context was already gathered.
func (e *Extractor) Extract(ctx context.Context, mention *twitter.Tweet, inc *twitter.Includes) (*Context, error) {
	out := &Context{}
	seen := map[string]struct{}{}
	out.URLs = collectURLs(mention, seen, out.URLs)

	mediaURLs := photoURLsByKey(inc)

	// the mention's own photo
	if u := firstPhotoURL(mention.MediaKeys(), mediaURLs); u != "" {
		data, mime, err := e.downloadPhoto(ctx, u)
		if err != nil {
			slog.Warn("mention photo skipped", "tweet", mention.ID, "error", err)
		} else {
			out.ImageData = data
			out.ImageMime = mime
		}
	}

	// quoted chain, depth bounded
	if err := e.walkQuotes(ctx, mention, inc, out, seen); err != nil {
		if _, ok := twitter.AsRateLimit(err); ok {
			return nil, err
		}
		slog.Warn("quote walk incomplete", "tweet", mention.ID, "error", err)
	}

	// conversation root for replies
	if err := e.fetchRoot(ctx, mention, out, seen); err != nil {
		if _, ok := twitter.AsRateLimit(err); ok {
			return nil, err
		}
		slog.Warn("conversation root unavailable", "tweet", mention.ID, "error", err)
	}

	return out, nil
}

// walkQuotes follows the quoted-tweet chain off the mention, nesting
// each level's text under the previous one.
func (e *Extractor) walkQuotes(ctx context.Context, mention *twitter.Tweet, inc *twitter.Includes, out *Context, seen map[string]struct{}) error {
	quotedID := mention.QuotedID()
	var parts []string

	for depth := 0; quotedID != "" && depth < maxQuoteDepth; depth++ {
		quoted, quotedInc, err := e.resolveTweet(ctx, quotedID, inc)
		if err != nil {
			// keep whatever levels already resolved
			if len(parts) > 0 {
				out.Text = appendSection(out.Text, nestQuotes(parts))
			}
			return err
		}

		parts = append(parts, quoted.Text)
		out.URLs = collectURLs(quoted, seen, out.URLs)
		if out.ContextImageURL == "" {
			if u := firstPhotoURL(quoted.MediaKeys(), photoURLsByKey(quotedInc)); u != "" {
				out.ContextImageURL = u
			}
		}

		quotedID = quoted.QuotedID()
		inc = quotedInc
	}

	if len(parts) > 0 {
		out.Text = appendSection(out.Text, nestQuotes(parts))
	}
	return nil
}

// fetchRoot pulls the conversation opener when the mention is a reply,
// and flags the context as continuing when the mention answers the bot
// itself.
func (e *Extractor) fetchRoot(ctx context.Context, mention *twitter.Tweet, out *Context, seen map[string]struct{}) error {
	if mention.IsConversationRoot() {
		return nil
	}
	out.Continuing = mention.InReplyToUserID == e.botID

	root, rootInc, err := e.resolveTweet(ctx, mention.ConversationID, nil)
	if err != nil {
		return fmt.Errorf("fetch conversation root: %w", err)
	}
	if root.ID == mention.ID {
		return nil
	}

	out.Text = appendSection(out.Text, "Original tweet that started this thread: "+root.Text)
	out.URLs = collectURLs(root, seen, out.URLs)
	if out.ContextImageURL == "" {
		if u := firstPhotoURL(root.MediaKeys(), photoURLsByKey(rootInc)); u != "" {
			out.ContextImageURL = u
		}
	}
	return nil
}

// resolveTweet finds id in the includes block when possible, falling
// back to a fetch. The includes carry directly referenced tweets but
// not their attachments' media objects beyond the first hop.
func (e *Extractor) resolveTweet(ctx context.Context, id string, inc *twitter.Includes) (*twitter.Tweet, *twitter.Includes, error) {
	if inc != nil {
		for i := range inc.Tweets {
			if inc.Tweets[i].ID == id {
				return &inc.Tweets[i], inc, nil
			}
		}
	}
	detail, err := e.api.GetTweet(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return detail.Tweet, detail.Includes, nil
}

// nestQuotes renders a quote chain innermost-last:
// level one, then "[Quoted tweet: level two]", and so on.
func nestQuotes(parts []string) string {
	s := parts[len(parts)-1]
	for i := len(parts) - 2; i >= 0; i-- {
		s = parts[i] + "\n\n[Quoted tweet: " + s + "]"
	}
	return s
}

func appendSection(existing, section string) string {
	if existing == "" {
		return section
	}
	return existing + "\n\n" + section
}

func photoURLsByKey(inc *twitter.Includes) map[string]string {
	if inc == nil {
		return nil
	}
	m := make(map[string]string)
	for _, md := range inc.Media {
		if md.Type == "photo" && md.URL != "" {
			m[md.MediaKey] = md.URL
		}
	}
	return m
}
