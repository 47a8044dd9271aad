package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jdvries/listkeeper/listkeeper"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvFile(t *testing.T) {
	// Save the original environment
	originalEnv := os.Environ()
	t.Cleanup(
		func() {
			os.Clearenv()
			for _, envVar := range originalEnv {
				parts := strings.SplitN(envVar, "=", 2)
				os.Setenv(parts[0], parts[1])
			}
		},
	)

	// Clear the environment before the test
	os.Clearenv()

	tmpdir := t.TempDir()

	// Set up the test environment file
	envFile := filepath.Join(tmpdir, "test.env")

	envContent := `
# General config

LK_DATA_FILE=/home/foo/listkeeper.json
LK_LOG_LEVEL=INFO
LK_STARTUP_TIMEOUT=30s
LK_SHUTDOWN_TIMEOUT=60s

# Discord bot config

LK_DISCORD_TOKEN=your-discord-bot-token
LK_DISCORD_APPLICATION_ID=your-discord-bot-app-id
LK_DISCORD_GUILD_ID=
LK_DISCORD_LOG_LEVEL=WARN
LK_DISCORD_DISCORDGO_LOG_LEVEL=WARN
LK_DISCORD_STARTUP_MESSAGE="I'm here!"
LK_DISCORD_GATEWAY_INTENTS=3243773
LK_DISCORD_MESSAGE_OPS_PER_SECOND=2

# List config

LK_LIST_TARGET_CHANNEL_IDS=111111 222222
LK_LIST_ADMIN_USER_IDS=333333
LK_LIST_FORGE_BOT_ID=444444
LK_LIST_EPHEMERAL_LOG_CHANNEL_ID=555555
LK_LIST_VERSION_CHANNEL_ID=666666
LK_LIST_MAX_MESSAGE_LENGTH=1900
LK_LIST_EPHEMERAL_VIEW_TIMEOUT=5m

# API server

LK_API_LISTEN=127.0.0.1:5000
LK_API_LOG_LEVEL=DEBUG
LK_API_READ_TIMEOUT=5s
LK_API_READ_HEADER_TIMEOUT=5s
LK_API_WRITE_TIMEOUT=10s
LK_API_IDLE_TIMEOUT=30s
`

	err := os.WriteFile(envFile, []byte(envContent), 0644)
	assert.NoError(t, err)

	rootCmd.SetArgs([]string{fmt.Sprintf("--config=%s", envFile), "version"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "/home/foo/listkeeper.json", cfg.DataFile)
	assert.Equal(t, "/home/foo/listkeeper.json", viper.GetString("data_file"))

	assertLogLevel(t, slog.LevelInfo, viper.Get("log_level"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("startup_timeout"))
	assert.Equal(t, 60*time.Second, viper.GetDuration("shutdown_timeout"))

	assert.Equal(t, "your-discord-bot-token", viper.GetString("discord.token"))
	assert.Equal(t, "your-discord-bot-app-id", viper.GetString("discord.application_id"))
	assert.Equal(t, "", viper.GetString("discord.guild_id"))

	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.log_level"))
	assertLogLevel(t, slog.LevelWarn, viper.Get("discord.discordgo_log_level"))
	assert.Equal(t, "I'm here!", viper.GetString("discord.startup_message"))
	assert.Equal(t, 3243773, viper.GetInt("discord.gateway_intents"))
	assert.Equal(t, 2.0, viper.GetFloat64("discord.message_ops_per_second"))

	assert.Equal(
		t,
		[]string{"111111", "222222"},
		viper.GetStringSlice("list.target_channel_ids"),
	)
	assert.Equal(t, []string{"333333"}, viper.GetStringSlice("list.admin_user_ids"))
	assert.Equal(t, "444444", viper.GetString("list.forge_bot_id"))
	assert.Equal(t, "555555", viper.GetString("list.ephemeral_log_channel_id"))
	assert.Equal(t, "666666", viper.GetString("list.version_channel_id"))
	assert.Equal(t, 1900, viper.GetInt("list.max_message_length"))
	assert.Equal(t, 5*time.Minute, viper.GetDuration("list.ephemeral_view_timeout"))

	assert.Equal(t, "127.0.0.1:5000", viper.GetString("api.listen"))
	assertLogLevel(t, slog.LevelDebug, viper.Get("api.log_level"))
	assert.Equal(t, slog.LevelDebug, cfg.API.LogLevel.Level())
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_timeout"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("api.read_header_timeout"))
	assert.Equal(t, 10*time.Second, viper.GetDuration("api.write_timeout"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("api.idle_timeout"))

	// Unmarshal the configuration into a listkeeper.Config struct
	var config listkeeper.Config
	err = viper.Unmarshal(
		&config, viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
	assert.NoError(t, err)

	// Verify some key fields in the Config struct
	assert.Equal(t, "/home/foo/listkeeper.json", config.DataFile)
	assert.Equal(t, slog.LevelInfo, config.LogLevel.Level())
	assert.Equal(t, 30*time.Second, config.StartupTimeout)
	assert.Equal(t, 60*time.Second, config.ShutdownTimeout)

	assert.Equal(t, "your-discord-bot-token", config.Discord.Token)
	assert.Equal(t, "your-discord-bot-app-id", config.Discord.ApplicationID)
	assert.Equal(t, "", config.Discord.GuildID)
	assert.Equal(t, slog.LevelWarn, config.Discord.LogLevel.Level())
	assert.Equal(t, slog.LevelWarn, config.Discord.DiscordGoLogLevel.Level())
	assert.Equal(t, "I'm here!", config.Discord.StartupMessage)
	assert.Equal(t, discordgo.Intent(3243773), config.Discord.GatewayIntents)

	assert.Equal(t, []string{"111111", "222222"}, config.List.TargetChannelIDs)
	assert.Equal(t, []string{"333333"}, config.List.AdminUserIDs)
	assert.Equal(t, "444444", config.List.ForgeBotID)
	assert.Equal(t, 1900, config.List.MaxMessageLength)
	assert.Equal(t, 5*time.Minute, config.List.EphemeralViewTimeout)

	assert.Equal(t, "127.0.0.1:5000", config.API.Listen)
	assert.Equal(t, slog.LevelDebug, config.API.LogLevel.Level())
}

func assertLogLevel(t testing.TB, expected slog.Level, v any) {
	t.Helper()

	lvl, ok := v.(*slog.LevelVar)
	require.Truef(t, ok, "could not convert %#v (%T) to *slog.LevelVar", v, v)
	assert.Equal(t, expected, lvl.Level())
}
