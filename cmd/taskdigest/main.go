package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/taskdigest/internal/config"
	"github.com/kazz187/taskdigest/pkg/clog"
)

var (
	app = kingpin.New("taskdigest", "Daily ClickUp task digest for Discord")

	serveCmd = app.Command("serve", "Run the daily scheduler, the Discord bot and the HTTP API").Default()

	digestCmd    = app.Command("digest", "Build and deliver one digest right now")
	digestLimit  = digestCmd.Flag("limit", "Maximum items per section").Int()
	digestDryRun = digestCmd.Flag("dry-run", "Print the digest to stdout instead of delivering it").Bool()

	nextCmd = app.Command("next", "Print the next scheduled trigger")
	nextAt  = nextCmd.Flag("at", "Reference time in RFC3339 (defaults to now)").String()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env: %v\n", err)
		os.Exit(1)
	}
	setupLogger(env)

	switch command {
	case serveCmd.FullCommand():
		err = serve(env)
	case digestCmd.FullCommand():
		err = digestOnce(env, *digestLimit, *digestDryRun)
	case nextCmd.FullCommand():
		err = printNext(env, *nextAt)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}
