package listkeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

// Discord manages the Discord session for ListKeeper: the gateway
// connection, slash command registration, and outbound message delivery
// (paced by a shared rate limiter).
type Discord struct {
	session           DiscordSessionHandler
	config            *DiscordConfig
	logger            *slog.Logger
	limiter           *rate.Limiter
	metricConnects    atomic.Int64
	metricDisconnects atomic.Int64
	connected         atomic.Bool
	removeHandlerFns  []func()
	lk                *ListKeeper
}

// newDiscord initializes a new Discord instance with the provided configuration
func newDiscord(config *DiscordConfig) *Discord {
	opsPerSecond := config.MessageOpsPerSecond
	if opsPerSecond <= 0 {
		opsPerSecond = DefaultMessageOpsPerSecond
	}
	return &Discord{
		config:           config,
		limiter:          rate.NewLimiter(rate.Limit(opsPerSecond), 1),
		removeHandlerFns: []func(){},
	}
}

// newSession initializes a new Discord session for the Discord struct.
func (d *Discord) newSession() (DiscordSessionHandler, error) {
	session := DiscordSession{
		logger: d.logger.With(loggerNameKey, "discord_session_handler"),
	}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.SyncEvents = true
	disc.StateEnabled = false
	disc.Identify.Intents = d.config.GatewayIntents
	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		d.logger.With(loggerNameKey, "discordgo").Handler(),
	)
	session.session = disc

	err = session.SetLogLevel(d.config.DiscordGoLogLevel.Level())
	if err != nil {
		return session, err
	}
	return session, nil
}

// pace blocks until the shared message-operation rate limiter permits
// another outbound call. Keeps reconciliation and notification bursts
// under the platform's rate limits.
func (d *Discord) pace(ctx context.Context) {
	if err := d.limiter.Wait(ctx); err != nil && ctx.Err() == nil {
		d.logger.Warn("rate limiter wait failed", tint.Err(err))
	}
}

// channelMessageSend sends the given message to the given discord channel ID
func (d *Discord) channelMessageSend(
	ctx context.Context,
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) error {
	d.pace(ctx)
	_, err := d.session.ChannelMessageSend(channelID, message, opts...)
	return err
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(s *discordgo.Session, r *discordgo.Ready) {
		d.logger.Info(
			"Ready",
			"session_id", r.SessionID,
			"user_id", r.User.ID,
			"username", r.User.Username,
		)
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	r *discordgo.Connect,
) {
	return func(s *discordgo.Session, r *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)
		d.logger.Info("Connected")

		if d.config.StartupMessage != "" && d.lk != nil {
			if channelID := d.lk.startupNotifyChannelID(); channelID != "" {
				if sendErr := d.channelMessageSend(
					context.Background(),
					channelID,
					d.config.StartupMessage,
					discordgo.WithRetryOnRatelimit(false),
					discordgo.WithRestRetries(1),
				); sendErr != nil {
					d.logger.Error("unable to send startup message", tint.Err(sendErr))
				}
			}
		}
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	r *discordgo.Disconnect,
) {
	return func(s *discordgo.Session, r *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)
		d.logger.Info("disconnected")
	}
}

// registerCommands sends the bot's commands to the discord bulk overwrite
// endpoint
func (d *Discord) registerCommands(
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	commands := []*discordgo.ApplicationCommand{
		d.appCommandList(),
	}

	created, err := d.session.ApplicationCommandBulkOverwrite(
		d.config.ApplicationID,
		d.config.GuildID,
		commands,
		options...,
	)
	if err != nil {
		d.logger.Error("error overwriting discord commands", tint.Err(err))
		return created, err
	}
	for _, c := range created {
		d.logger.Info("Created command", "command", c.Name)
	}
	return created, nil
}

// isMessageNotFound reports whether the given discord API error indicates
// the target message no longer exists.
func isMessageNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil &&
		restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusNotFound
}

// wrapNotFound translates discord not-found failures into the
// reconciler's sentinel so it can branch on them.
func wrapNotFound(err error) error {
	if err == nil {
		return nil
	}
	if isMessageNotFound(err) {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, err)
	}
	return err
}

// channelOutput adapts the discord session to the reconciler's
// ChannelOutput capability, attaching the persistent sort controls to
// messages that request them.
type channelOutput struct {
	d *Discord
}

var _ ChannelOutput = (*channelOutput)(nil)

func (c *channelOutput) SendMessage(
	ctx context.Context,
	channelID string,
	content string,
	withControls bool,
) (string, error) {
	c.d.pace(ctx)
	send := &discordgo.MessageSend{Content: content}
	if withControls {
		send.Components = c.d.persistentSortControls()
	}
	msg, err := c.d.session.ChannelMessageSendComplex(channelID, send)
	if err != nil {
		return "", wrapNotFound(err)
	}
	return msg.ID, nil
}

func (c *channelOutput) EditMessage(
	ctx context.Context,
	channelID string,
	messageID string,
	content string,
	withControls bool,
) error {
	c.d.pace(ctx)
	components := []discordgo.MessageComponent{}
	if withControls {
		components = c.d.persistentSortControls()
	}
	_, err := c.d.session.ChannelMessageEditComplex(
		&discordgo.MessageEdit{
			ID:         messageID,
			Channel:    channelID,
			Content:    &content,
			Components: &components,
		},
	)
	return wrapNotFound(err)
}

func (c *channelOutput) DeleteMessage(
	ctx context.Context,
	channelID string,
	messageID string,
) error {
	c.d.pace(ctx)
	return wrapNotFound(c.d.session.ChannelMessageDelete(channelID, messageID))
}

// DiscordSessionHandler defines the interface for handling Discord
// sessions. This is basically the subset of `discordgo.Session` methods
// used in this application, to enable testing/mocking.
type DiscordSessionHandler interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// ChannelMessageSend sends a plain message to a channel
	ChannelMessageSend(
		channelID string,
		message string,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageSendComplex sends a message with components/embeds
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageEditComplex edits an existing message in place
	ChannelMessageEditComplex(
		m *discordgo.MessageEdit,
		opts ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageDelete removes a message from a channel
	ChannelMessageDelete(
		channelID string,
		messageID string,
		opts ...discordgo.RequestOption,
	) error

	// ChannelMessages retrieves recent messages from a channel
	ChannelMessages(
		channelID string,
		limit int,
		beforeID string,
		afterID string,
		aroundID string,
		opts ...discordgo.RequestOption,
	) ([]*discordgo.Message, error)

	// InteractionRespond sends an interaction response to Discord
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error

	// InteractionResponseEdit modifies the given interaction
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// FollowupMessageCreate sends a followup message for an interaction
	FollowupMessageCreate(
		interaction *discordgo.Interaction,
		wait bool,
		data *discordgo.WebhookParams,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ApplicationCommandBulkOverwrite overwrites Discord application
	// commands in bulk
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)

	// UserGuilds returns guilds the bot user is a member of
	UserGuilds(
		limit int,
		beforeID string,
		afterID string,
		withCounts bool,
		options ...discordgo.RequestOption,
	) ([]*discordgo.UserGuild, error)

	// GuildChannels returns the channels of the given guild
	GuildChannels(
		guildID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Channel, error)

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error
}

// DiscordSession implements DiscordSessionHandler, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) Open() error {
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	return d.session.Close()
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageSend(channelID, message, opts...)
}

func (d DiscordSession) ChannelMessageSendComplex(
	channelID string,
	data *discordgo.MessageSend,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := d.session.ChannelMessageSendComplex(channelID, data, opts...)
	if err != nil {
		d.logger.Error(
			"error sending message",
			tint.Err(err),
			"channel_id", channelID,
		)
	}
	return msg, err
}

func (d DiscordSession) ChannelMessageEditComplex(
	m *discordgo.MessageEdit,
	opts ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessageEditComplex(m, opts...)
}

func (d DiscordSession) ChannelMessageDelete(
	channelID string,
	messageID string,
	opts ...discordgo.RequestOption,
) error {
	return d.session.ChannelMessageDelete(channelID, messageID, opts...)
}

func (d DiscordSession) ChannelMessages(
	channelID string,
	limit int,
	beforeID string,
	afterID string,
	aroundID string,
	opts ...discordgo.RequestOption,
) ([]*discordgo.Message, error) {
	return d.session.ChannelMessages(
		channelID, limit, beforeID, afterID, aroundID, opts...,
	)
}

func (d DiscordSession) InteractionRespond(
	interaction *discordgo.Interaction,
	resp *discordgo.InteractionResponse,
	options ...discordgo.RequestOption,
) error {
	return d.session.InteractionRespond(interaction, resp, options...)
}

func (d DiscordSession) InteractionResponseEdit(
	interaction *discordgo.Interaction,
	newresp *discordgo.WebhookEdit,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.InteractionResponseEdit(interaction, newresp, options...)
}

func (d DiscordSession) FollowupMessageCreate(
	interaction *discordgo.Interaction,
	wait bool,
	data *discordgo.WebhookParams,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.FollowupMessageCreate(interaction, wait, data, options...)
}

func (d DiscordSession) ApplicationCommandBulkOverwrite(
	appID string,
	guildID string,
	commands []*discordgo.ApplicationCommand,
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	return d.session.ApplicationCommandBulkOverwrite(
		appID,
		guildID,
		commands,
		options...,
	)
}

func (d DiscordSession) UserGuilds(
	limit int,
	beforeID string,
	afterID string,
	withCounts bool,
	options ...discordgo.RequestOption,
) ([]*discordgo.UserGuild, error) {
	return d.session.UserGuilds(limit, beforeID, afterID, withCounts, options...)
}

func (d DiscordSession) GuildChannels(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Channel, error) {
	return d.session.GuildChannels(guildID, options...)
}

func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	switch lvl.Level() {
	case slog.LevelInfo:
		d.session.LogLevel = discordgo.LogInformational
	case slog.LevelWarn:
		d.session.LogLevel = discordgo.LogWarning
	case slog.LevelDebug:
		d.session.LogLevel = discordgo.LogDebug
	case slog.LevelError:
		d.session.LogLevel = discordgo.LogError
	default:
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}
