package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/kazz187/taskdigest/pkg/cerr"
	"github.com/kazz187/taskdigest/pkg/clog"
)

const (
	listTasksCommand = "list_tasks"
	limitOption      = "limit"
	maxListLimit     = 100
)

// ListTasksResult summarises an on-demand digest for the command reply.
type ListTasksResult struct {
	Tasks  int
	Chunks int
}

// ListTasksFunc runs an on-demand digest into channelID. A limit of 0 means
// the configured default.
type ListTasksFunc func(ctx context.Context, channelID string, limit int) (*ListTasksResult, error)

// DiscordBot sends digest chunks to Discord channels and serves the
// /list_tasks slash command.
type DiscordBot struct {
	session   *discordgo.Session
	guildID   string
	mentionID string
	baseCtx   context.Context

	mu        sync.Mutex
	listTasks ListTasksFunc
	command   *discordgo.ApplicationCommand

	ready     chan struct{}
	readyOnce sync.Once
}

func NewDiscordBot(token, guildID, mentionID string) (*DiscordBot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "failed to create discord session", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &DiscordBot{
		session:   session,
		guildID:   guildID,
		mentionID: mentionID,
		baseCtx:   context.Background(),
		ready:     make(chan struct{}),
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	return b, nil
}

// HandleListTasks installs the handler of the /list_tasks command.
func (b *DiscordBot) HandleListTasks(fn ListTasksFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listTasks = fn
}

// Open connects to the gateway. Slash command runs use ctx as their parent.
func (b *DiscordBot) Open(ctx context.Context) error {
	b.baseCtx = ctx
	if err := b.session.Open(); err != nil {
		return cerr.NewError(cerr.Unavailable, "failed to connect to discord", err)
	}
	return nil
}

// WaitReady blocks until the gateway session is established.
func (b *DiscordBot) WaitReady(ctx context.Context) error {
	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return cerr.NewError(cerr.DeadlineExceeded, "discord did not become ready", ctx.Err())
	}
}

func (b *DiscordBot) Close() error {
	b.mu.Lock()
	cmd := b.command
	b.mu.Unlock()
	if cmd != nil {
		if err := b.session.ApplicationCommandDelete(cmd.ApplicationID, b.guildID, cmd.ID); err != nil {
			slog.Warn("discord: failed to remove slash command", "error", err)
		}
	}
	return b.session.Close()
}

// Send posts text to channelID with link previews suppressed.
func (b *DiscordBot) Send(ctx context.Context, channelID, text string) error {
	msg := &discordgo.MessageSend{
		Content: text,
		Flags:   discordgo.MessageFlagsSuppressEmbeds,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: mentionUsers(b.mentionID),
		},
	}
	if _, err := b.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: failed to send to channel %s: %w", channelID, err)
	}
	return nil
}

func mentionUsers(id string) []string {
	if id == "" {
		return []string{}
	}
	return []string{id}
}

func (b *DiscordBot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("discord: connected", "user", r.User.Username, "guilds", len(r.Guilds))

	cmd, err := s.ApplicationCommandCreate(r.User.ID, b.guildID, listTasksDefinition())
	if err != nil {
		slog.Error("discord: failed to register slash command", "command", listTasksCommand, "error", err)
	} else {
		b.mu.Lock()
		b.command = cmd
		b.mu.Unlock()
	}
	b.readyOnce.Do(func() { close(b.ready) })
}

func listTasksDefinition() *discordgo.ApplicationCommand {
	minLimit := 1.0
	return &discordgo.ApplicationCommand{
		Name:        listTasksCommand,
		Description: "Post the current task digest to this channel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        limitOption,
				Description: "How many tasks to show per section",
				Required:    false,
				MinValue:    &minLimit,
				MaxValue:    maxListLimit,
			},
		},
	}
}

func (b *DiscordBot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != listTasksCommand {
		return
	}

	b.mu.Lock()
	fn := b.listTasks
	b.mu.Unlock()

	ctx := clog.ContextWithSlog(b.baseCtx)
	clog.AddAttributes(ctx, map[string]any{
		"interaction_id": i.ID,
		"channel_id":     i.ChannelID,
	})

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		slog.ErrorContext(ctx, "discord: failed to defer interaction", "error", err)
		return
	}

	var res *ListTasksResult
	limit, err := limitFromOptions(data.Options)
	if err == nil {
		if fn == nil {
			err = cerr.NewError(cerr.Unimplemented, "list_tasks is not available", nil)
		} else {
			res, err = fn(ctx, i.ChannelID, limit)
		}
	}
	if err != nil {
		slog.WarnContext(ctx, "discord: list_tasks failed", "error", err)
	}

	if _, ferr := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: followupText(res, err),
	}); ferr != nil {
		slog.ErrorContext(ctx, "discord: failed to send followup", "error", ferr)
	}
}

func limitFromOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) (int, error) {
	for _, opt := range opts {
		if opt.Name != limitOption {
			continue
		}
		if opt.Type != discordgo.ApplicationCommandOptionInteger {
			return 0, cerr.NewError(cerr.InvalidArgument, "limit must be an integer", nil)
		}
		v := opt.IntValue()
		if v < 1 || v > maxListLimit {
			return 0, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("limit must be between 1 and %d", maxListLimit), nil)
		}
		return int(v), nil
	}
	return 0, nil
}

func followupText(res *ListTasksResult, err error) string {
	if err != nil {
		var ce *cerr.Error
		switch {
		case cerr.IsCode(err, cerr.Aborted):
			return "A digest is already being delivered. Try again in a moment."
		case errors.As(err, &ce) && !ce.Code.IsServerFault():
			return "Could not list tasks: " + ce.Msg
		default:
			return "Could not list tasks. Check the bot logs for details."
		}
	}
	if res == nil {
		return "Done."
	}
	return fmt.Sprintf("Listed %d %s in %d %s.", res.Tasks, plural(res.Tasks, "task", "tasks"), res.Chunks, plural(res.Chunks, "message", "messages"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
