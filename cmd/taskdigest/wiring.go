package main

import (
	"context"
	"time"

	"github.com/kazz187/taskdigest/internal/clickup"
	"github.com/kazz187/taskdigest/internal/config"
	"github.com/kazz187/taskdigest/internal/delivery"
	"github.com/kazz187/taskdigest/internal/digest"
	"github.com/kazz187/taskdigest/internal/tasktree"
)

func newSyncer(env *config.Env) (*tasktree.Syncer, error) {
	client, err := clickup.NewClient(env.ClickUpEnv.Token,
		clickup.WithBaseURL(env.BaseURL),
		clickup.WithTimeout(env.ClickUpEnv.Timeout),
	)
	if err != nil {
		return nil, err
	}
	return tasktree.NewSyncer(client, tasktree.SyncOptions{
		AssignedOnly: env.AssignedOnly,
		Concurrency:  env.SyncConcurrency,
	}), nil
}

func pipelineConfig(env *config.Env) digest.Config {
	return digest.Config{
		ScheduleTag:    env.ScheduleTag,
		ScheduledTitle: env.ScheduledTitle,
		ActiveTitle:    env.ActiveTitle,
		ItemLimit:      env.ItemLimit,
		PayloadLimit:   env.PayloadLimit,
		SendInterval:   env.SendInterval,
		Location:       env.Location(),
		MentionID:      env.MentionID,
		Destination:    env.ChannelID,
	}
}

// connectDiscord opens the gateway and blocks until it reports ready.
func connectDiscord(ctx context.Context, env *config.Env, bot *delivery.DiscordBot) error {
	if err := bot.Open(ctx); err != nil {
		return err
	}
	readyCtx, cancel := context.WithTimeout(ctx, readyTimeout(env))
	defer cancel()
	if err := bot.WaitReady(readyCtx); err != nil {
		_ = bot.Close()
		return err
	}
	return nil
}

func readyTimeout(env *config.Env) time.Duration {
	if env.ReadyTimeout <= 0 {
		return 30 * time.Second
	}
	return env.ReadyTimeout
}
