// Package bot runs the mention-reply loop: poll mentions, decide per
// mention whether a reply is owed, build context, generate, post, and
// record. Everything runs on one goroutine; pacing is blocking sleep.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/replyclaw/internal/config"
	"github.com/nextlevelbuilder/replyclaw/internal/extract"
	"github.com/nextlevelbuilder/replyclaw/internal/pipeline"
	"github.com/nextlevelbuilder/replyclaw/internal/state"
	"github.com/nextlevelbuilder/replyclaw/internal/twitter"
)

// Generator produces reply text for one mention.
// *pipeline.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (string, error)
}

// Bot is the orchestrator. Construct with New, drive with Run.
type Bot struct {
	cfg       *config.Config
	api       twitter.API
	generator Generator
	store     *state.Store
	replyLog  *state.ReplyLog // optional
	limiter   *Limiter
	schedule  *Schedule
	tracer    trace.Tracer

	self      *twitter.User
	extractor *extract.Extractor

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires the orchestrator. replyLog may be nil.
func New(cfg *config.Config, api twitter.API, gen Generator, store *state.Store, replyLog *state.ReplyLog, schedule *Schedule) *Bot {
	bc, _ := cfg.Tunables()
	return &Bot{
		cfg:       cfg,
		api:       api,
		generator: gen,
		store:     store,
		replyLog:  replyLog,
		limiter:   NewLimiter(time.Duration(bc.MinPollIntervalSec)*time.Second, bc.MaxRepliesPerHour),
		schedule:  schedule,
		tracer:    otel.Tracer("replyclaw/bot"),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run resolves the bot identity and polls until ctx is cancelled.
// State is flushed after every cycle and once more on the way out.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.resolveSelf(ctx); err != nil {
		return fmt.Errorf("resolve bot identity: %w", err)
	}
	slog.Info("bot ready", "username", b.self.Username, "id", b.self.ID)

	defer func() {
		if err := b.store.Save(); err != nil {
			slog.Error("final state flush failed", "error", err)
		}
	}()

	for {
		if err := b.limiter.WaitPoll(ctx); err != nil {
			return nil // cancelled
		}

		if !b.schedule.ActiveAt(b.now()) {
			slog.Debug("outside active window, skipping poll")
			continue
		}
		if !b.limiter.CanReply() {
			// quota exhausted: spend no API call this round
			slog.Info("hourly reply quota reached, skipping poll",
				"replies", b.limiter.RepliesThisHour())
			continue
		}

		err := b.pollOnce(ctx)
		if saveErr := b.store.Save(); saveErr != nil {
			slog.Error("state flush failed", "error", saveErr)
		}

		switch {
		case err == nil:
			b.limiter.NoteCleanPoll()
		case errors.Is(err, context.Canceled):
			return nil
		default:
			var d time.Duration
			if rle, ok := twitter.AsRateLimit(err); ok {
				d = b.limiter.ThrottleDelay(rle)
				slog.Warn("throttled, sleeping", "wait", d)
			} else {
				d = b.limiter.FailureDelay()
				slog.Error("poll failed, backing off", "error", err, "wait", d)
			}
			if err := b.sleep(ctx, d); err != nil {
				return nil
			}
		}
	}
}

// resolveSelf fetches the authenticated account, retrying once past a
// throttle wait. Anything else is fatal: a bot that does not know its
// own ID cannot filter self-mentions.
func (b *Bot) resolveSelf(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if rle, ok := twitter.AsRateLimit(err); ok {
		if serr := b.sleep(ctx, rle.Wait(b.now())); serr != nil {
			return serr
		}
		me, err = b.api.GetMe(ctx)
	}
	if err != nil {
		return err
	}
	b.self = me
	b.extractor = extract.New(b.api, me.ID)
	return nil
}

// pollOnce fetches and processes one batch of mentions. A returned
// error aborts the cycle; mentions not yet marked stay eligible for
// the next poll.
func (b *Bot) pollOnce(ctx context.Context) error {
	cycle := uuid.NewString()[:8]
	bc, _ := b.cfg.Tunables()
	maxAge := time.Duration(bc.MaxMentionAgeHours) * time.Hour

	ctx, span := b.tracer.Start(ctx, "bot.poll", trace.WithAttributes(
		attribute.String("cycle", cycle)))
	defer span.End()

	page, err := b.api.GetMentions(ctx, b.self.ID, bc.MaxMentionsPerPoll, b.now().Add(-maxAge))
	if err != nil {
		return fmt.Errorf("fetch mentions: %w", err)
	}
	if len(page.Tweets) == 0 {
		slog.Debug("no mentions", "cycle", cycle)
		return nil
	}
	slog.Info("mentions fetched", "cycle", cycle, "count", len(page.Tweets))

	users := page.Includes.UserByID()

	// the feed arrives newest-first; answer oldest-first so context
	// accumulates causally
	batch := page.Tweets
	if len(batch) > bc.MaxMentionsPerPoll {
		batch = batch[:bc.MaxMentionsPerPoll]
	}
	for i := len(batch) - 1; i >= 0; i-- {
		mention := &batch[i]

		if !b.limiter.CanReply() {
			slog.Info("hourly reply quota reached mid-cycle", "cycle", cycle)
			return nil
		}
		if err := b.processMention(ctx, mention, users, page.Includes, maxAge); err != nil {
			return err
		}
		if err := b.sleep(ctx, time.Duration(bc.MentionPauseSec)*time.Second); err != nil {
			return err
		}
	}
	return nil
}

// processMention runs the per-mention gate sequence. Terminal skips
// mark the mention processed; transient failures leave it unmarked
// and either continue (pipeline failure) or abort the cycle
// (throttling).
func (b *Bot) processMention(ctx context.Context, mention *twitter.Tweet, users map[string]twitter.User, inc *twitter.Includes, maxAge time.Duration) error {
	ctx, span := b.tracer.Start(ctx, "bot.mention", trace.WithAttributes(
		attribute.String("tweet_id", mention.ID)))
	defer span.End()

	log := slog.With("tweet", mention.ID, "author", mention.AuthorID)

	if b.store.IsProcessed(mention.ID) {
		log.Debug("already processed")
		return nil
	}

	author, ok := users[mention.AuthorID]
	if !ok || author.Protected {
		log.Info("mention skipped", "reason", "author unavailable or protected")
		b.store.MarkProcessed(mention.ID)
		return nil
	}
	if mention.AuthorID == b.self.ID {
		log.Debug("mention skipped", "reason", "self")
		b.store.MarkProcessed(mention.ID)
		return nil
	}
	if gated, ok := b.store.AllowedAuthor(mention.ConversationID); ok && gated != mention.AuthorID {
		log.Info("mention skipped", "reason", "conversation gated", "gated_author", gated)
		b.store.MarkProcessed(mention.ID)
		return nil
	}
	if age := b.now().Sub(mention.CreatedAt); age > maxAge {
		log.Info("mention skipped", "reason", "too old", "age", age)
		b.store.MarkProcessed(mention.ID)
		return nil
	}

	exCtx, err := b.extractor.Extract(ctx, mention, inc)
	if err != nil {
		// only throttling propagates out of Extract
		return err
	}

	question := stripBotMention(mention.Text, b.self.Username)
	text, err := b.generator.Generate(ctx, pipeline.Request{
		MentionText: question,
		Context:     exCtx,
		CharLimit:   b.cfg.CharLimit(),
	})
	if err != nil {
		// left unmarked for retry next poll
		log.Warn("reply generation failed", "error", err)
		return nil
	}

	posted, err := b.api.CreateThread(ctx, mention.ID, text, b.cfg.CharLimit())
	if err != nil {
		if _, ok := twitter.AsRateLimit(err); ok {
			return err
		}
		log.Warn("posting failed", "error", err)
		return nil
	}

	b.limiter.RecordReply()
	b.store.MarkProcessed(mention.ID)
	b.store.BindAuthor(mention.ConversationID, mention.AuthorID)
	log.Info("reply posted", "reply", posted[0].ID, "chunks", len(posted), "chars", len([]rune(text)))

	if b.replyLog != nil {
		if err := b.replyLog.Record(ctx, posted[0].ID, mention.ID, mention.ConversationID, text, b.now()); err != nil {
			log.Warn("reply log append failed", "error", err)
		}
	}
	return nil
}

// stripBotMention drops leading @bot tokens so the question reads
// naturally; a handle mid-sentence stays.
func stripBotMention(text, botUsername string) string {
	handle := "@" + strings.ToLower(botUsername)
	words := strings.Fields(text)
	i := 0
	for i < len(words) && strings.ToLower(words[i]) == handle {
		i++
	}
	out := strings.Join(words[i:], " ")
	if out == "" {
		return text
	}
	return out
}
