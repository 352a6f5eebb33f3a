package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/kazz187/taskdigest/pkg/cerr"
	"github.com/kazz187/taskdigest/pkg/storage"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	APIKey   string `envconfig:"API_KEY"`
}

type ClickUpEnv struct {
	Token           string        `envconfig:"CLICKUP_TOKEN" required:"true"`
	BaseURL         string        `envconfig:"CLICKUP_BASE_URL" default:"https://api.clickup.com/api/v2/"`
	AssignedOnly    bool          `envconfig:"CLICKUP_ASSIGNED_ONLY" default:"true"`
	SyncConcurrency int           `envconfig:"CLICKUP_SYNC_CONCURRENCY" default:"4"`
	Timeout         time.Duration `envconfig:"CLICKUP_TIMEOUT" default:"30s"`
}

type DigestEnv struct {
	DailyHour      int           `envconfig:"DAILY_HOUR" default:"8"`
	Timezone       string        `envconfig:"TIMEZONE" default:"Local"`
	ItemLimit      int           `envconfig:"ITEM_LIMIT" default:"20"`
	PayloadLimit   int           `envconfig:"PAYLOAD_LIMIT" default:"1950"`
	SendInterval   time.Duration `envconfig:"SEND_INTERVAL" default:"1s"`
	WakeInterval   time.Duration `envconfig:"WAKE_INTERVAL" default:"1m"`
	ScheduleTag    string        `envconfig:"SCHEDULE_TAG" default:"course"`
	ScheduledTitle string        `envconfig:"SCHEDULED_TITLE" default:"Scheduled for today"`
	ActiveTitle    string        `envconfig:"ACTIVE_TITLE" default:"In progress"`
}

type DiscordEnv struct {
	Delivery     string        `envconfig:"DELIVERY" default:"discord"`
	Token        string        `envconfig:"DISCORD_TOKEN"`
	ChannelID    string        `envconfig:"DISCORD_CHANNEL_ID"`
	MentionID    string        `envconfig:"DISCORD_MENTION_ID"`
	GuildID      string        `envconfig:"DISCORD_GUILD_ID"`
	ReadyTimeout time.Duration `envconfig:"DISCORD_READY_TIMEOUT" default:"30s"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".taskdigest/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"taskdigest/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type VAPIDEnv struct {
	PublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	Contact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type Env struct {
	BaseEnv
	ClickUpEnv
	DigestEnv
	DiscordEnv
	StorageEnv
	VAPIDEnv
}

const namespace = "TASKDIGEST"

const (
	DeliveryDiscord = "discord"
	DeliveryStdout  = "stdout"
)

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate rejects values that would make the digest pipeline misbehave.
func (e *Env) Validate() error {
	var problems []string
	if e.DailyHour < 0 || e.DailyHour > 23 {
		problems = append(problems, fmt.Sprintf("DAILY_HOUR must be within 0-23, got %d", e.DailyHour))
	}
	if e.ItemLimit <= 0 {
		problems = append(problems, "ITEM_LIMIT must be positive")
	}
	if e.PayloadLimit <= 0 {
		problems = append(problems, "PAYLOAD_LIMIT must be positive")
	}
	if e.SyncConcurrency <= 0 {
		problems = append(problems, "CLICKUP_SYNC_CONCURRENCY must be positive")
	}
	if e.WakeInterval <= 0 {
		problems = append(problems, "WAKE_INTERVAL must be positive")
	}
	if e.SendInterval < 0 {
		problems = append(problems, "SEND_INTERVAL must not be negative")
	}
	if e.ScheduleTag == "" {
		problems = append(problems, "SCHEDULE_TAG must not be empty")
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("TIMEZONE %q is unknown", e.Timezone))
	}
	switch e.Delivery {
	case DeliveryStdout:
	case DeliveryDiscord:
		if e.DiscordEnv.Token == "" || e.ChannelID == "" {
			problems = append(problems, "DISCORD_TOKEN and DISCORD_CHANNEL_ID are required for discord delivery")
		}
	default:
		problems = append(problems, fmt.Sprintf("DELIVERY must be discord or stdout, got %q", e.Delivery))
	}
	switch storage.Backend(e.Type) {
	case storage.BackendLocal:
	case storage.BackendS3:
		if e.S3Bucket == "" {
			problems = append(problems, "S3_BUCKET is required for s3 storage")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_TYPE must be local or s3, got %q", e.Type))
	}
	if len(problems) > 0 {
		return cerr.NewError(cerr.InvalidArgument, "invalid configuration", fmt.Errorf("%s", strings.Join(problems, "; ")))
	}
	return nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Location resolves TIMEZONE. "Local" and the empty string mean the host zone.
func (e *DigestEnv) Location() *time.Location {
	if e.Timezone == "" || e.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (e *StorageEnv) StorageOptions() storage.Options {
	return storage.Options{
		Backend:  storage.Backend(e.Type),
		BaseDir:  e.BaseDir,
		S3Bucket: e.S3Bucket,
		S3Prefix: e.S3Prefix,
		S3Region: e.S3Region,
	}
}
