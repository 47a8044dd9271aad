//nolint:lll // struct tags can't be split
package listkeeper

import (
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	EnvvarSetEnvPrefix = "LISTKEEPER_ENV_PREFIX"
	DefaultEnvPrefix   = "LK"

	DefaultDataFile        = "data.json"
	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 60 * time.Second

	DefaultDiscordLogLevel       = slog.LevelWarn
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultDiscordStartupMessage = "I'm here!"

	// DefaultDiscordGatewayIntent covers guild metadata, guild messages
	// (needed to see the forge bot's announcements) and members (required
	// for slash command user context).
	DefaultDiscordGatewayIntent = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers

	// DefaultMessageOpsPerSecond paces outbound channel message operations,
	// standing in for the fixed inter-operation sleep the platform expects.
	DefaultMessageOpsPerSecond = 2

	// DefaultMaxMessageLength is the per-message character budget for
	// rendered list pages. Discord's hard cap is 2000; we stay under it to
	// leave room for framing.
	DefaultMaxMessageLength = 1900

	// DefaultEphemeralViewTimeout is how long a private sorted view keeps
	// accepting re-sort button presses.
	DefaultEphemeralViewTimeout = 5 * time.Minute

	DefaultAPIListen         = "0.0.0.0:8080"
	DefaultAPILogLevel       = slog.LevelInfo
	defaultListenNetwork     = "tcp"
	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 30 * time.Second
)

// Config is the top-level configuration for the ListKeeper bot.
type Config struct {
	// DataFile is the path of the JSON document holding the item list and
	// per-channel render state.
	DataFile string `yaml:"data_file" mapstructure:"data_file" json:"data_file"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout sets a limit on the amount of time the bot has to
	// connect and perform its initial list reconciliation.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time to allow for a graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// List configures the tracked list displays, ingestion and notifications
	List *ListConfig `yaml:"list" mapstructure:"list" json:"list"`

	// API configures the health/status HTTP server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the Discord connection.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID specifies the guild ID used when registering slash commands.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. See: https://discord.com/developers/docs/topics/gateway#gateway-intents
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// If set, sent to the first configured notification channel whenever
	// the bot connects to the gateway.
	StartupMessage string `yaml:"startup_message" mapstructure:"startup_message" json:"startup_message"`

	// MessageOpsPerSecond limits the rate of outbound channel message
	// create/edit/delete operations.
	MessageOpsPerSecond float64 `yaml:"message_ops_per_second" mapstructure:"message_ops_per_second" json:"message_ops_per_second"`
}

// ListConfig configures which channels display the list, who may mutate it,
// where automated updates come from, and where notifications go.
//
//nolint:lll // can't break tags
type ListConfig struct {
	// TargetChannelIDs are the channels that carry the self-updating
	// interactive list display.
	TargetChannelIDs []string `yaml:"target_channel_ids" mapstructure:"target_channel_ids" json:"target_channel_ids"`

	// AdminUserIDs is the static allow-list of users permitted to run
	// mutating commands.
	AdminUserIDs []string `yaml:"admin_user_ids" mapstructure:"admin_user_ids" json:"admin_user_ids"`

	// ForgeBotID is the user ID of the external bot whose forge
	// announcements are ingested automatically.
	ForgeBotID string `yaml:"forge_bot_id" mapstructure:"forge_bot_id" json:"forge_bot_id"`

	// EphemeralLogChannelID, if set, receives a log line whenever a user
	// requests a private sorted view.
	EphemeralLogChannelID string `yaml:"ephemeral_log_channel_id" mapstructure:"ephemeral_log_channel_id" json:"ephemeral_log_channel_id"`

	// VersionChannelID, if set, is scanned on startup for the last
	// announced bot version; a new version is announced there.
	VersionChannelID string `yaml:"version_channel_id" mapstructure:"version_channel_id" json:"version_channel_id"`

	// MaxMessageLength is the per-message character budget for rendered pages.
	MaxMessageLength int `yaml:"max_message_length" mapstructure:"max_message_length" json:"max_message_length"`

	// EphemeralViewTimeout bounds the lifetime of a private sorted view.
	EphemeralViewTimeout time.Duration `yaml:"ephemeral_view_timeout" mapstructure:"ephemeral_view_timeout" json:"ephemeral_view_timeout"`

	// Notifications is the fan-out table for item update announcements.
	Notifications []NotificationConfig `yaml:"notifications" mapstructure:"notifications" json:"notifications"`
}

// NotificationConfig is one destination for item update announcements.
//
//nolint:lll // can't break tags
type NotificationConfig struct {
	// Destination channel ID
	ChannelID string `yaml:"channel_id" mapstructure:"channel_id" json:"channel_id"`

	// MessageFormat is a template with `{item}`, `{owner}`, `{cost}` and
	// `{role_ping}` placeholders.
	MessageFormat string `yaml:"message_format" mapstructure:"message_format" json:"message_format"`

	// RoleID, if set, is pinged via the `{role_ping}` placeholder.
	RoleID string `yaml:"role_id" mapstructure:"role_id" json:"role_id"`
}

// APIConfig configures the health/status HTTP server.
//
//nolint:lll // can't break tags
type APIConfig struct {
	// The address and port on which the server should listen (e.g., "0.0.0.0:8080").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"oneof=tcp tcp4 tcp6 unix"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Maximum duration for reading the entire request, including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`

	// Amount of time allowed to read request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`

	// Maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`

	// Maximum amount of time to wait for the next request when keep-alives are enabled.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		DataFile:        DefaultDataFile,
		LogLevel:        mainLogLevel,
		StartupTimeout:  DefaultStartupTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:      DefaultDiscordGatewayIntent,
			LogLevel:            discordLogLevel,
			DiscordGoLogLevel:   discordgoLogLevel,
			StartupMessage:      DefaultDiscordStartupMessage,
			MessageOpsPerSecond: DefaultMessageOpsPerSecond,
		},
		List: &ListConfig{
			MaxMessageLength:     DefaultMaxMessageLength,
			EphemeralViewTimeout: DefaultEphemeralViewTimeout,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ListenNetwork:     defaultListenNetwork,
			LogLevel:          apiLogLevel,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}
}
