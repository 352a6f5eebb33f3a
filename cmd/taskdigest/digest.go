package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kazz187/taskdigest/internal/config"
	"github.com/kazz187/taskdigest/internal/delivery"
	"github.com/kazz187/taskdigest/internal/digest"
	"github.com/kazz187/taskdigest/internal/run"
	"github.com/kazz187/taskdigest/internal/scheduler"
)

func digestOnce(env *config.Env, limit int, dryRun bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	syncer, err := newSyncer(env)
	if err != nil {
		return err
	}

	var sender digest.Sender = delivery.NewWriterSender(os.Stdout)
	if !dryRun && env.Delivery == config.DeliveryDiscord {
		bot, err := delivery.NewDiscordBot(env.DiscordEnv.Token, env.GuildID, env.MentionID)
		if err != nil {
			return err
		}
		if err := connectDiscord(ctx, env, bot); err != nil {
			return err
		}
		defer bot.Close()
		sender = bot
	}

	pipeline := digest.NewPipeline(syncer, sender, nil, pipelineConfig(env))
	res, err := pipeline.Run(ctx, digest.Request{Trigger: run.TriggerOnDemand, Limit: limit})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "run %s: %d tasks, %d/%d chunks delivered in %s\n",
		res.Run.ID, res.Run.TaskCount, res.Run.Delivered, res.Run.ChunkCount, res.Run.Duration().Round(time.Millisecond))
	return nil
}

func printNext(env *config.Env, at string) error {
	now := time.Now()
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		now = t
	}
	loc := env.Location()
	fmt.Println(scheduler.NextTrigger(now.In(loc), env.DailyHour).Format(time.RFC3339))
	return nil
}
