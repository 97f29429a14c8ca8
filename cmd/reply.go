package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/replyclaw/internal/config"
	"github.com/nextlevelbuilder/replyclaw/internal/extract"
	"github.com/nextlevelbuilder/replyclaw/internal/pipeline"
	"github.com/nextlevelbuilder/replyclaw/internal/state"
	"github.com/nextlevelbuilder/replyclaw/internal/twitter"
	"github.com/nextlevelbuilder/replyclaw/internal/venice"
)

func replyCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reply <tweet-url-or-id>",
		Short: "Generate and post a reply to one tweet interactively",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runReply(args[0], yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "post without the confirmation prompt")
	return cmd
}

func runReply(arg string, yes bool) {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	tweetID := parseTweetID(arg)
	if tweetID == "" {
		slog.Error("cannot parse a tweet ID", "arg", arg)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	api := twitter.NewClient(
		cfg.Twitter.APIBase,
		cfg.Twitter.BearerToken,
		cfg.Twitter.APIKey, cfg.Twitter.APISecret,
		cfg.Twitter.AccessToken, cfg.Twitter.AccessSecret,
	)
	me, err := api.GetMe(ctx)
	if err != nil {
		slog.Error("cannot resolve bot account", "error", err)
		os.Exit(1)
	}

	detail, err := api.GetTweet(ctx, tweetID)
	if err != nil {
		slog.Error("cannot fetch tweet", "id", tweetID, "error", err)
		os.Exit(1)
	}
	tweet := detail.Tweet
	fmt.Println(previewBox("Tweet "+tweet.ID, tweet.Text))

	extractor := extract.New(api, me.ID)
	exCtx, err := extractor.Extract(ctx, tweet, detail.Includes)
	if err != nil {
		slog.Error("context extraction failed", "error", err)
		os.Exit(1)
	}
	if exCtx.Text != "" {
		fmt.Println(previewBox("Context", exCtx.Text))
	}

	completer := venice.NewClient(cfg.Venice.APIBase, cfg.Venice.APIKey)
	generator := pipeline.New(completer, pipeline.Models{
		Web:     cfg.Venice.WebModel,
		Vision:  cfg.Venice.VisionModel,
		Crafter: cfg.Venice.CrafterModel,
	}, cfg.Venice.Summarize)

	slog.Info("generating reply", "model", cfg.Venice.CrafterModel)
	text, err := generator.Generate(ctx, pipeline.Request{
		MentionText: tweet.Text,
		Context:     exCtx,
		CharLimit:   cfg.CharLimit(),
	})
	if err != nil {
		slog.Error("reply generation failed", "error", err)
		os.Exit(1)
	}

	for {
		fmt.Println(previewBox(fmt.Sprintf("Draft (%d chars)", len([]rune(text))), text))
		if yes {
			break
		}

		var action string
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Post this reply?").
				Options(
					huh.NewOption("Post it", "post"),
					huh.NewOption("Edit first", "edit"),
					huh.NewOption("Cancel", "cancel"),
				).
				Value(&action),
		))
		if err := form.Run(); err != nil {
			os.Exit(1)
		}

		switch action {
		case "post":
		case "edit":
			edit := huh.NewForm(huh.NewGroup(
				huh.NewText().
					Title("Edit reply").
					CharLimit(cfg.CharLimit()).
					Value(&text),
			))
			if err := edit.Run(); err != nil {
				os.Exit(1)
			}
			continue
		default:
			fmt.Println("cancelled")
			return
		}
		break
	}

	posted, err := api.CreateThread(ctx, tweet.ID, text, cfg.CharLimit())
	if err != nil {
		slog.Error("posting failed", "error", err)
		os.Exit(1)
	}
	slog.Info("reply posted", "id", posted[0].ID, "chunks", len(posted))

	bc, _ := cfg.Tunables()
	if replyLog, err := state.OpenReplyLog(bc.ReplyLogFile); err == nil {
		defer replyLog.Close()
		if err := replyLog.Record(ctx, posted[0].ID, tweet.ID, tweet.ConversationID, text, time.Now()); err != nil {
			slog.Warn("reply log append failed", "error", err)
		}
	}
}

// parseTweetID accepts a bare numeric ID or any x.com/twitter.com
// status URL.
func parseTweetID(arg string) string {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return ""
	}
	if i := strings.Index(arg, "/status/"); i >= 0 {
		arg = arg[i+len("/status/"):]
		if j := strings.IndexAny(arg, "?/"); j >= 0 {
			arg = arg[:j]
		}
	}
	for _, c := range arg {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return arg
}

// previewBox renders text in a unicode box sized to the widest line,
// wrapping long lines at 76 cells.
func previewBox(title, text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		for runewidth.StringWidth(line) > 76 {
			cut := runewidth.Truncate(line, 76, "")
			lines = append(lines, cut)
			line = line[len(cut):]
		}
		lines = append(lines, line)
	}

	width := runewidth.StringWidth(title)
	for _, l := range lines {
		if w := runewidth.StringWidth(l); w > width {
			width = w
		}
	}

	var b strings.Builder
	b.WriteString("┌─ " + title + " " + strings.Repeat("─", width-runewidth.StringWidth(title)) + "─┐\n")
	for _, l := range lines {
		b.WriteString("│ " + l + strings.Repeat(" ", width-runewidth.StringWidth(l)) + " │\n")
	}
	b.WriteString("└" + strings.Repeat("─", width+2) + "┘")
	return b.String()
}
