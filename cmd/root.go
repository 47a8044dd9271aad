package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/jdvries/listkeeper/listkeeper"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = listkeeper.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "listkeeper [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("data_file", listkeeper.DefaultDataFile)
	viper.SetDefault("log_level", listkeeper.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", listkeeper.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", listkeeper.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault(
		"discord.log_level",
		listkeeper.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		listkeeper.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		listkeeper.DefaultDiscordGatewayIntent,
	)
	viper.SetDefault(
		"discord.startup_message",
		listkeeper.DefaultDiscordStartupMessage,
	)
	viper.SetDefault(
		"discord.message_ops_per_second",
		listkeeper.DefaultMessageOpsPerSecond,
	)

	// List config
	viper.SetDefault("list.target_channel_ids", []string{})
	viper.SetDefault("list.admin_user_ids", []string{})
	viper.SetDefault("list.forge_bot_id", "")
	viper.SetDefault("list.ephemeral_log_channel_id", "")
	viper.SetDefault("list.version_channel_id", "")
	viper.SetDefault("list.max_message_length", listkeeper.DefaultMaxMessageLength)
	viper.SetDefault(
		"list.ephemeral_view_timeout",
		listkeeper.DefaultEphemeralViewTimeout,
	)

	// API config
	viper.SetDefault("api.listen", listkeeper.DefaultAPIListen)
	viper.SetDefault("api.log_level", listkeeper.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", listkeeper.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		listkeeper.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", listkeeper.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", listkeeper.DefaultIdleTimeout)

	envPrefix := os.Getenv(listkeeper.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = listkeeper.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	viper.Set(
		"list.target_channel_ids",
		viper.GetStringSlice("list.target_channel_ids"),
	)
	viper.Set(
		"list.admin_user_ids",
		viper.GetStringSlice("list.admin_user_ids"),
	)

	for _, key := range []string{
		"log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
