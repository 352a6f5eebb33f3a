package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	server "github.com/kazz187/taskdigest/internal"
	"github.com/kazz187/taskdigest/internal/config"
	"github.com/kazz187/taskdigest/internal/delivery"
	"github.com/kazz187/taskdigest/internal/digest"
	"github.com/kazz187/taskdigest/internal/eventbus"
	"github.com/kazz187/taskdigest/internal/pushnotification"
	pushsubrepo "github.com/kazz187/taskdigest/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/taskdigest/internal/run"
	"github.com/kazz187/taskdigest/internal/run/recorder"
	runrepo "github.com/kazz187/taskdigest/internal/run/repositoryimpl"
	"github.com/kazz187/taskdigest/internal/scheduler"
	"github.com/kazz187/taskdigest/pkg/storage"
)

func serve(env *config.Env) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Setup storage
	store, err := storage.Open(ctx, env.StorageOptions())
	if err != nil {
		return err
	}

	// Setup event bus and repositories
	bus := eventbus.New()
	runRepo := runrepo.NewYAMLRepository(store)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	// Setup push notification
	pushSender := pushnotification.NewSender(&env.VAPIDEnv, pushSubRepo)
	pushHandler := pushnotification.NewHandler(&env.VAPIDEnv, pushSubRepo)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	syncer, err := newSyncer(env)
	if err != nil {
		return err
	}

	var (
		sender digest.Sender
		bot    *delivery.DiscordBot
	)
	switch env.Delivery {
	case config.DeliveryDiscord:
		bot, err = delivery.NewDiscordBot(env.DiscordEnv.Token, env.GuildID, env.MentionID)
		if err != nil {
			return err
		}
		sender = bot
	default:
		sender = delivery.NewWriterSender(os.Stdout)
	}
	pipeline := digest.NewPipeline(syncer, sender, bus, pipelineConfig(env))

	if bot != nil {
		bot.HandleListTasks(func(ctx context.Context, channelID string, limit int) (*delivery.ListTasksResult, error) {
			res, err := pipeline.Run(ctx, digest.Request{
				Trigger:     run.TriggerOnDemand,
				Limit:       limit,
				Destination: channelID,
			})
			if err != nil {
				return nil, err
			}
			return &delivery.ListTasksResult{Tasks: res.Run.TaskCount, Chunks: res.Run.ChunkCount}, nil
		})
		if err := connectDiscord(ctx, env, bot); err != nil {
			return err
		}
		defer func() {
			if err := bot.Close(); err != nil {
				slog.Error("failed to close discord session", "error", err)
			}
		}()
		slog.Info("discord bot ready")
	}

	sched := scheduler.New(func(ctx context.Context, trigger time.Time) error {
		_, err := pipeline.Run(ctx, digest.Request{Trigger: run.TriggerScheduled})
		return err
	}, scheduler.Options{
		Hour:         env.DailyHour,
		Location:     env.Location(),
		WakeInterval: env.WakeInterval,
	})

	srv := server.NewServer(env, pipeline, sched, runRepo, pushHandler)
	rec := recorder.New(bus, runRepo)

	// The recorder outlives the other workers so that a run delivered during
	// shutdown is still archived.
	recCtx, recCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer recCancel()
	recWG := conc.NewWaitGroup()
	recWG.Go(func() { rec.Start(recCtx) })

	wg := conc.NewWaitGroup()
	wg.Go(func() { pushDispatcher.Start(ctx) })
	wg.Go(func() {
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("scheduler error", "error", err)
		}
	})
	wg.Go(func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	})

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	wg.Wait()
	recCancel()
	recWG.Wait()
	return nil
}
