package listkeeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

// Set via ldflags at build time.
var (
	Version   = "dev"
	CommitSHA = ""
	BuildTime = ""
)

const versionMessagePrefix = "Version: "

// versionScanLimit is how many recent messages are checked for a prior
// version announcement before posting a new one.
const versionScanLimit = 50

// ListKeeper is the top-level bot: it owns the store, the mutation and
// rendering pipeline, the Discord connection and the status API, and
// wires gateway events through them.
//
// All list mutations and display refreshes are serialized through mu, so
// the store never sees concurrent access.
type ListKeeper struct {
	config     *Config
	logger     *slog.Logger
	store      *Store
	mutator    *Mutator
	reconciler *Reconciler
	notifier   *Notifier
	discord    *Discord
	api        *apiServer
	clock      func() time.Time
	startedAt  time.Time
	mu         sync.Mutex
}

// New validates the configuration and assembles a ListKeeper. The bot
// doesn't touch the network or the data file until Run.
func New(config *Config) (*ListKeeper, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var errs []error
	if config.Discord == nil || config.Discord.Token == "" {
		errs = append(errs, errors.New("discord token is required"))
	}
	if config.Discord == nil || config.Discord.ApplicationID == "" {
		errs = append(errs, errors.New("discord application ID is required"))
	}
	if config.List == nil {
		errs = append(errs, errors.New("list configuration is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if config.List.MaxMessageLength <= 0 {
		config.List.MaxMessageLength = DefaultMaxMessageLength
	}
	if config.List.EphemeralViewTimeout <= 0 {
		config.List.EphemeralViewTimeout = DefaultEphemeralViewTimeout
	}

	logger := slog.New(
		tint.NewHandler(
			os.Stdout,
			&tint.Options{Level: config.LogLevel, AddSource: true},
		),
	).With(loggerNameKey, "listkeeper")
	slog.SetDefault(logger)

	lk := &ListKeeper{
		config: config,
		logger: logger,
		clock:  time.Now,
	}

	lk.store = NewStore(config.DataFile, logger)
	lk.mutator = NewMutator(lk.store, logger)

	lk.discord = newDiscord(config.Discord)
	lk.discord.lk = lk
	lk.discord.logger = slog.New(
		tint.NewHandler(
			os.Stdout,
			&tint.Options{Level: config.Discord.LogLevel, AddSource: true},
		),
	).With(loggerNameKey, "discord")

	lk.reconciler = NewReconciler(&channelOutput{d: lk.discord}, logger)
	lk.notifier = newNotifier(lk.discord, config.List.Notifications, logger)
	lk.api = newAPIServer(lk, config.API, logger)

	logger.Info("initialized", "config", config)
	return lk, nil
}

// Run connects to Discord, reconciles every configured channel display,
// and serves until ctx is canceled. On shutdown the session and API stop
// gracefully; the data file is already durable at every step, so nothing
// needs flushing.
func (lk *ListKeeper) Run(ctx context.Context) error {
	lk.store.Load()
	lk.startedAt = lk.clock()

	session, err := lk.discord.newSession()
	if err != nil {
		return err
	}
	lk.discord.session = session

	lk.discord.removeHandlerFns = append(
		lk.discord.removeHandlerFns,
		session.AddHandler(lk.discord.handlerReady()),
		session.AddHandler(lk.discord.handlerConnect()),
		session.AddHandler(lk.discord.handlerDisconnect()),
		session.AddHandler(lk.discord.handlerInteractionCreate()),
		session.AddHandler(lk.handlerMessageCreate()),
	)

	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, lk.config.StartupTimeout)
	defer startupCancel()

	if _, err = lk.discord.registerCommands(); err != nil {
		_ = session.Close()
		return err
	}

	// configured target channels get a display even if they've never been
	// seen in the data file
	for _, channelID := range lk.config.List.TargetChannelIDs {
		lk.store.ChannelState(channelID)
	}

	lk.mu.Lock()
	lk.refreshAllLists(startupCtx, false)
	lk.mu.Unlock()

	lk.announceVersion(startupCtx)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return lk.api.Serve(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		for _, removeHandler := range lk.discord.removeHandlerFns {
			removeHandler()
		}
		if closeErr := session.Close(); closeErr != nil {
			lk.logger.Error("error closing discord session", tint.Err(closeErr))
		}
		return nil
	})

	lk.logger.Info("running", "version", Version)
	err = group.Wait()
	lk.logger.Info("shutdown complete")
	return err
}

func (lk *ListKeeper) isAdmin(userID string) bool {
	for _, id := range lk.config.List.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// startupNotifyChannelID is where the "I'm here!" connect message goes:
// the first configured notification channel.
func (lk *ListKeeper) startupNotifyChannelID() string {
	for _, cfg := range lk.config.List.Notifications {
		if cfg.ChannelID != "" {
			return cfg.ChannelID
		}
	}
	return ""
}

// refreshAllLists re-renders and reconciles the display in every tracked
// channel, each under its own saved sort key. Channel states are saved
// once at the end if any message IDs changed. Callers must hold mu.
func (lk *ListKeeper) refreshAllLists(ctx context.Context, forceNew bool) {
	entries := lk.store.Entries()
	now := lk.clock()
	stateChanged := false

	for _, channelID := range lk.store.ChannelIDs() {
		state := lk.store.ChannelState(channelID)
		pages := RenderPages(
			entries,
			state.DefaultSortKey,
			now,
			lk.config.List.MaxMessageLength,
		)
		placed, changed := lk.reconciler.Sync(
			ctx, channelID, state.MessageIDs, pages, forceNew,
		)
		if changed {
			state.MessageIDs = placed
			stateChanged = true
		}
	}

	if stateChanged {
		if err := lk.store.Save(); err != nil {
			lk.logger.Error("error saving channel states", tint.Err(err))
		}
	}
}

// closeAllLists deletes every tracked display message and forgets the
// tracked IDs. Callers must hold mu.
func (lk *ListKeeper) closeAllLists(ctx context.Context) {
	for _, channelID := range lk.store.ChannelIDs() {
		state := lk.store.ChannelState(channelID)
		lk.reconciler.Clear(ctx, channelID, state.MessageIDs)
		state.MessageIDs = []string{}
	}
	if err := lk.store.Save(); err != nil {
		lk.logger.Error("error saving channel states", tint.Err(err))
	}
}

// handlerMessageCreate watches for the forge bot's announcements and
// ingests them as automated item updates.
func (lk *ListKeeper) handlerMessageCreate() func(
	s *discordgo.Session,
	m *discordgo.MessageCreate,
) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil ||
			lk.config.List.ForgeBotID == "" ||
			m.Author.ID != lk.config.List.ForgeBotID {
			return
		}
		item, owner, ok := parseForgeMessage(m.Content)
		if !ok {
			return
		}
		lk.logger.Info(
			"ingesting forge announcement",
			"item", item,
			"owner", owner,
			"channel_id", m.ChannelID,
		)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		lk.mu.Lock()
		result := lk.mutator.UpsertAuto(item, owner)
		lk.refreshAllLists(ctx, false)
		lk.mu.Unlock()

		lk.notifier.Announce(ctx, LastChange{
			Item:  result.Item,
			Owner: result.Owner,
			Cost:  result.Cost,
		})
	}
}

// announceVersion posts the running version to the version channel as an
// embed, unless the most recent version announcement there already
// matches.
func (lk *ListKeeper) announceVersion(ctx context.Context) {
	channelID := lk.config.List.VersionChannelID
	if channelID == "" {
		return
	}

	messages, err := lk.discord.session.ChannelMessages(
		channelID, versionScanLimit, "", "", "",
	)
	if err != nil {
		lk.logger.Error("error scanning version channel", tint.Err(err))
		return
	}
	announcement := versionMessagePrefix + Version
	if lastAnnouncedVersion(messages, lk.config.Discord.ApplicationID) == announcement {
		return
	}

	lk.discord.pace(ctx)
	_, err = lk.discord.session.ChannelMessageSendComplex(
		channelID,
		&discordgo.MessageSend{
			Content: "@everyone",
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Bot Updated",
					Description: announcement,
				},
			},
		},
	)
	if err != nil {
		lk.logger.Error("error announcing version", tint.Err(err))
	}
}

// lastAnnouncedVersion returns the description of the most recent version
// embed posted by the bot, or "".
func lastAnnouncedVersion(messages []*discordgo.Message, appID string) string {
	for _, m := range messages {
		if m.Author == nil || m.Author.ID != appID {
			continue
		}
		for _, embed := range m.Embeds {
			if strings.HasPrefix(embed.Description, versionMessagePrefix) {
				return embed.Description
			}
		}
	}
	return ""
}

// rawListJSON serializes the current entry list as indented JSON.
func (lk *ListKeeper) rawListJSON() (string, error) {
	data, err := json.MarshalIndent(lk.store.Entries(), "", "    ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// renderEphemeralPage renders the first page of the list under the given
// policy for a private view. Private views are single-message, so a
// multi-page result gets a trailing note instead of extra messages.
func (lk *ListKeeper) renderEphemeralPage(key SortKey) string {
	lk.mu.Lock()
	entries := lk.store.Entries()
	lk.mu.Unlock()

	pages := RenderPages(entries, key, lk.clock(), lk.config.List.MaxMessageLength)
	if len(pages) > 1 {
		return pages[0] + "\n-# Showing page 1 of " +
			fmt.Sprintf("%d", len(pages)) + ". The full list stays in the channel display."
	}
	return pages[0]
}

func (lk *ListKeeper) cmdRestart(ctx context.Context) string {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	lk.refreshAllLists(ctx, true)
	return "List displays rebuilt."
}

func (lk *ListKeeper) cmdClose(ctx context.Context) string {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	lk.closeAllLists(ctx)
	return "List displays removed."
}

func (lk *ListKeeper) cmdAdd(
	ctx context.Context,
	item string,
	owner string,
	explicitCost *int,
) string {
	item = strings.TrimSpace(item)
	owner = strings.TrimSpace(owner)
	if item == "" || owner == "" {
		return "Item and owner can't be empty."
	}

	lk.mu.Lock()
	result := lk.mutator.UpsertAdmin(item, owner, explicitCost)
	lk.refreshAllLists(ctx, false)
	lk.mu.Unlock()

	lk.notifier.Announce(ctx, LastChange{
		Item:  result.Item,
		Owner: result.Owner,
		Cost:  result.Cost,
	})
	if result.Created {
		return fmt.Sprintf("Added **%s** (owner: %s, cost: %s).",
			result.Item, result.Owner, result.Cost)
	}
	return fmt.Sprintf("Updated **%s** (owner: %s, cost: %s).",
		result.Item, result.Owner, result.Cost)
}

func (lk *ListKeeper) cmdDelete(ctx context.Context, item string) string {
	item = strings.TrimSpace(item)

	lk.mu.Lock()
	removed := lk.mutator.Delete(item)
	if removed {
		lk.refreshAllLists(ctx, false)
	}
	lk.mu.Unlock()

	if !removed {
		return fmt.Sprintf("**%s** isn't on the list.", item)
	}
	return fmt.Sprintf("Removed **%s**.", item)
}

func (lk *ListKeeper) cmdAnnounce(ctx context.Context) string {
	change, ok := lk.mutator.ReannounceLast()
	if !ok {
		return messageNothingToSay
	}
	lk.notifier.Announce(ctx, change)
	return fmt.Sprintf("Re-announced **%s** (owner: %s).", change.Item, change.Owner)
}

func (lk *ListKeeper) cmdAnnounceSpecific(
	ctx context.Context,
	item string,
	owner string,
	cost string,
) string {
	lk.notifier.Announce(ctx, LastChange{Item: item, Owner: owner, Cost: cost})
	return fmt.Sprintf("Announced **%s** (owner: %s, cost: %s).", item, owner, cost)
}

func (lk *ListKeeper) cmdSay(ctx context.Context, message string) string {
	sent := lk.notifier.Broadcast(ctx, message)
	return fmt.Sprintf("Sent to %d notification channel(s).", sent)
}

// cmdMessage sends the text to one best-guess channel in every server the
// bot can see: the first text channel of each guild.
func (lk *ListKeeper) cmdMessage(ctx context.Context, message string) string {
	guilds, err := lk.discord.session.UserGuilds(100, "", "", false)
	if err != nil {
		lk.logger.Error("error listing guilds", tint.Err(err))
		return "Error listing servers."
	}

	sent := 0
	for _, guild := range guilds {
		channels, chanErr := lk.discord.session.GuildChannels(guild.ID)
		if chanErr != nil {
			lk.logger.Warn(
				"error listing guild channels",
				tint.Err(chanErr),
				"guild_id", guild.ID,
			)
			continue
		}
		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			if sendErr := lk.discord.channelMessageSend(ctx, ch.ID, message); sendErr != nil {
				lk.logger.Warn(
					"error messaging guild",
					tint.Err(sendErr),
					"guild_id", guild.ID,
					"channel_id", ch.ID,
				)
			} else {
				sent++
			}
			break
		}
	}
	return fmt.Sprintf("Sent to %d server(s).", sent)
}

func (lk *ListKeeper) cmdImport(ctx context.Context, rawJSON string) string {
	lk.mu.Lock()
	report, err := lk.mutator.BulkReplace(rawJSON)
	if err == nil {
		// a wholesale replacement invalidates any pagination the old
		// displays had; repost from scratch
		lk.refreshAllLists(ctx, true)
	}
	lk.mu.Unlock()

	if err != nil {
		return fmt.Sprintf("Import failed: %s. The list was not changed.", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Imported %d entries.", report.Entries)
	if !report.Changed() {
		b.WriteString(" No ownership changes.")
		return b.String()
	}
	if len(report.Transferred) > 0 {
		b.WriteString("\nTransfers:\n")
		b.WriteString(strings.Join(report.Transferred, "\n"))
	}
	if len(report.CountChanges) > 0 {
		b.WriteString("\nCount changes:\n")
		b.WriteString(strings.Join(report.CountChanges, "\n"))
	}
	reply := b.String()
	if len(reply) > lk.config.List.MaxMessageLength {
		reply = truncate(reply, lk.config.List.MaxMessageLength-25) + "\n... (truncated)"
	}
	return reply
}
