package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/replyclaw/internal/config"
	"github.com/nextlevelbuilder/replyclaw/internal/state"
	"github.com/nextlevelbuilder/replyclaw/internal/twitter"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials, and state health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	failed := false
	check := func(name string, err error) {
		if err != nil {
			fmt.Printf("  ✗ %s: %v\n", name, err)
			failed = true
		} else {
			fmt.Printf("  ✓ %s\n", name)
		}
	}

	fmt.Printf("replyclaw %s doctor\n\n", Version)

	cfgPath := resolveConfigPath()
	fmt.Println("Config:")
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Printf("  - %s not found (env-only config)\n", cfgPath)
	} else {
		fmt.Printf("  - %s\n", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	check("config loads", err)
	if err != nil {
		os.Exit(1)
	}
	check("required keys present", cfg.Validate())

	fmt.Println("\nPlatform:")
	if cfg.Validate() == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		api := twitter.NewClient(
			cfg.Twitter.APIBase,
			cfg.Twitter.BearerToken,
			cfg.Twitter.APIKey, cfg.Twitter.APISecret,
			cfg.Twitter.AccessToken, cfg.Twitter.AccessSecret,
		)
		me, err := api.GetMe(ctx)
		check("credentials accepted (users/me)", err)
		if err == nil {
			fmt.Printf("  - authenticated as @%s (%s)\n", me.Username, me.ID)
		}
	} else {
		fmt.Println("  - skipped (missing credentials)")
	}

	bc, sc := cfg.Tunables()
	fmt.Println("\nState:")
	store := state.Open(bc.StateFile)
	fmt.Printf("  - %s: %d processed, %d gated conversations\n",
		bc.StateFile, store.ProcessedCount(), store.ConversationCount())

	if replyLog, err := state.OpenReplyLog(bc.ReplyLogFile); err != nil {
		fmt.Printf("  ✗ reply log: %v\n", err)
		failed = true
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		total, _ := replyLog.Count(ctx)
		hour, _ := replyLog.CountSince(ctx, time.Now().Add(-time.Hour))
		fmt.Printf("  - %s: %d replies archived, %d in the last hour\n", bc.ReplyLogFile, total, hour)
		replyLog.Close()
	}

	fmt.Println("\nTunables:")
	fmt.Printf("  - poll every %ds, max %d replies/hour, mention age cap %dh\n",
		bc.MinPollIntervalSec, bc.MaxRepliesPerHour, bc.MaxMentionAgeHours)
	limit := bc.StandardCharLimit
	if bc.Premium {
		limit = bc.PremiumCharLimit
	}
	fmt.Printf("  - char budget %d (premium=%v)\n", limit, bc.Premium)
	if sc.Active != "" {
		fmt.Printf("  - active window: %s\n", sc.Active)
	}

	if failed {
		os.Exit(1)
	}
}
