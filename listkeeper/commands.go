package listkeeper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	// custom ID prefixes for the two button flavors: the persistent sort
	// controls under the channel display, and the re-sort controls inside a
	// private view.
	persistentButtonPrefix = "persist_btn_"
	ephemeralButtonPrefix  = "ephem_btn_"

	// rawChunkReserve leaves room for code fences and followup framing when
	// splitting the raw JSON dump across messages.
	rawChunkReserve = 150

	messageNoPermission   = "You don't have permission to use this command."
	messageViewExpired    = "This view has expired. Press a sort button under the list to open a new one."
	messageNothingToSay   = "No change to announce."
	messageUnknownCommand = "Unknown command."
)

// minCostOption is the lower bound Discord enforces on the `/list add`
// cost option.
var minCostOption = float64(1)

// appCommandList defines the `/list` command and its subcommands. All of
// these are admin-gated at execution time; the sort buttons are the only
// surface open to everyone.
func (*Discord) appCommandList() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "list",
		Description: "Manage the unique item list",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "restart",
				Description: "Delete and repost every list display",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "close",
				Description: "Remove every list display",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Add an item, or transfer it to a new owner",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "item",
						Description: "Item name",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "owner",
						Description: "New owner",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "cost",
						Description: "Explicit cost (defaults to previous cost + 1)",
						MinValue:    &minCostOption,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "delete",
				Description: "Remove an item from the list",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "item",
						Description: "Item name",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "announce",
				Description: "Re-announce the most recent item update",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "announce_specific",
				Description: "Announce an arbitrary item update without changing the list",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "item",
						Description: "Item name",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "owner",
						Description: "Owner name",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "cost",
						Description: "Cost to announce",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "say",
				Description: "Send a message to every notification channel",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "message",
						Description: "Message to send",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "message",
				Description: "Send a message to one channel in every known server",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "message",
						Description: "Message to send",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "raw",
				Description: "Dump the raw list data as JSON",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "importjson",
				Description: "Replace the entire list from a JSON array",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "json",
						Description: "JSON array of [item, owner, cost] rows",
						Required:    true,
					},
				},
			},
		},
	}
}

// persistentSortControls is the button row attached to page 0 of every
// channel display. Pressing one opens a private, per-user sorted view.
func (d *Discord) persistentSortControls() []discordgo.MessageComponent {
	buttons := make([]discordgo.MessageComponent, 0, len(AllSortKeys()))
	for _, key := range AllSortKeys() {
		buttons = append(
			buttons,
			discordgo.Button{
				Label:    key.Policy().ButtonLabel,
				Style:    discordgo.PrimaryButton,
				CustomID: persistentButtonPrefix + string(key),
			},
		)
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: buttons},
	}
}

// ephemeralSortControls is the button row inside a private view, used to
// re-sort it in place. The active policy's button is highlighted and
// disabled.
func ephemeralSortControls(active SortKey) []discordgo.MessageComponent {
	buttons := make([]discordgo.MessageComponent, 0, len(AllSortKeys()))
	for _, key := range AllSortKeys() {
		style := discordgo.SecondaryButton
		if key == active {
			style = discordgo.SuccessButton
		}
		buttons = append(
			buttons,
			discordgo.Button{
				Label:    key.Policy().ButtonLabel,
				Style:    style,
				CustomID: ephemeralButtonPrefix + string(key),
				Disabled: key == active,
			},
		)
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: buttons},
	}
}

func (d *Discord) handlerInteractionCreate() func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		ctx, cancel := context.WithTimeout(
			context.Background(),
			time.Minute,
		)
		defer cancel()

		logger := d.logger.With(interactionLogAttrs(*i)...)
		ctx = WithLogger(ctx, logger)

		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			d.handleApplicationCommand(ctx, i)
		case discordgo.InteractionMessageComponent:
			d.handleMessageComponent(ctx, i)
		default:
			logger.Warn("unhandled interaction type", "type", i.Type.String())
		}
	}
}

func (d *Discord) handleApplicationCommand(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	logger, ok := ContextLogger(ctx)
	if !ok || logger == nil {
		logger = d.logger
	}
	data := i.ApplicationCommandData()
	if data.Name != "list" || len(data.Options) == 0 {
		d.respondEphemeral(ctx, i, messageUnknownCommand)
		return
	}
	sub := data.Options[0]
	user := getDiscordUser(i)
	logger = logger.With("subcommand", sub.Name)
	if user != nil {
		logger = logger.With("user_id", user.ID, "username", user.Username)
	}
	ctx = WithLogger(ctx, logger)
	logger.Info("received command")

	if user == nil || !d.lk.isAdmin(user.ID) {
		d.respondEphemeral(ctx, i, messageNoPermission)
		return
	}

	// acknowledge immediately; every subcommand edits this deferred
	// response with its outcome
	err := d.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
			},
		},
	)
	if err != nil {
		logger.Error("error acknowledging interaction", tint.Err(err))
		return
	}

	options := discordInteractionOptions(sub.Options)

	var reply string
	switch sub.Name {
	case "restart":
		reply = d.lk.cmdRestart(ctx)
	case "close":
		reply = d.lk.cmdClose(ctx)
	case "add":
		var explicitCost *int
		if opt, found := options["cost"]; found {
			cost := int(opt.IntValue())
			explicitCost = &cost
		}
		reply = d.lk.cmdAdd(
			ctx,
			options["item"].StringValue(),
			options["owner"].StringValue(),
			explicitCost,
		)
	case "delete":
		reply = d.lk.cmdDelete(ctx, options["item"].StringValue())
	case "announce":
		reply = d.lk.cmdAnnounce(ctx)
	case "announce_specific":
		reply = d.lk.cmdAnnounceSpecific(
			ctx,
			options["item"].StringValue(),
			options["owner"].StringValue(),
			options["cost"].StringValue(),
		)
	case "say":
		reply = d.lk.cmdSay(ctx, options["message"].StringValue())
	case "message":
		reply = d.lk.cmdMessage(ctx, options["message"].StringValue())
	case "raw":
		reply = d.cmdRaw(ctx, i)
	case "importjson":
		reply = d.lk.cmdImport(ctx, options["json"].StringValue())
	default:
		reply = messageUnknownCommand
	}

	if reply == "" {
		return
	}
	if _, err = d.session.InteractionResponseEdit(
		i.Interaction,
		&discordgo.WebhookEdit{Content: &reply},
	); err != nil {
		logger.Error("error editing interaction response", tint.Err(err))
	}
}

// cmdRaw dumps the serialized list as JSON. The first chunk replaces the
// deferred response; any remaining chunks follow as extra ephemeral
// messages.
func (d *Discord) cmdRaw(ctx context.Context, i *discordgo.InteractionCreate) string {
	logger, _ := ContextLogger(ctx)
	if logger == nil {
		logger = d.logger
	}
	raw, err := d.lk.rawListJSON()
	if err != nil {
		logger.Error("error serializing list", tint.Err(err))
		return "Error serializing the list."
	}

	maxLen := d.lk.config.List.MaxMessageLength - rawChunkReserve
	chunks := chunkString(raw, maxLen)
	for _, chunk := range chunks[1:] {
		d.pace(ctx)
		_, followErr := d.session.FollowupMessageCreate(
			i.Interaction,
			true,
			&discordgo.WebhookParams{
				Content: fmt.Sprintf("```json\n%s\n```", chunk),
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		)
		if followErr != nil {
			logger.Error("error sending raw data followup", tint.Err(followErr))
			break
		}
	}
	return fmt.Sprintf("```json\n%s\n```", chunks[0])
}

func (d *Discord) handleMessageComponent(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	logger, ok := ContextLogger(ctx)
	if !ok || logger == nil {
		logger = d.logger
	}
	customID := i.MessageComponentData().CustomID
	user := getDiscordUser(i)
	logger = logger.With("custom_id", customID)
	if user != nil {
		logger = logger.With("user_id", user.ID, "username", user.Username)
	}
	ctx = WithLogger(ctx, logger)

	switch {
	case strings.HasPrefix(customID, persistentButtonPrefix):
		key := SortKey(strings.TrimPrefix(customID, persistentButtonPrefix))
		if !key.Valid() {
			logger.Warn("unknown sort button")
			return
		}
		d.openEphemeralView(ctx, i, key)
	case strings.HasPrefix(customID, ephemeralButtonPrefix):
		key := SortKey(strings.TrimPrefix(customID, ephemeralButtonPrefix))
		if !key.Valid() {
			logger.Warn("unknown sort button")
			return
		}
		d.resortEphemeralView(ctx, i, key)
	default:
		logger.Warn("unhandled component interaction")
	}
}

// openEphemeralView responds to a persistent sort button with a private
// view of the list under the chosen policy, carrying its own re-sort
// controls. The shared channel display is untouched.
func (d *Discord) openEphemeralView(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	key SortKey,
) {
	logger, _ := ContextLogger(ctx)
	if logger == nil {
		logger = d.logger
	}
	content := d.lk.renderEphemeralPage(key)

	err := d.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    content,
				Flags:      discordgo.MessageFlagsEphemeral,
				Components: ephemeralSortControls(key),
			},
		},
	)
	if err != nil {
		logger.Error("error opening private view", tint.Err(err))
		return
	}
	logger.Info("opened private view", "sort_key", string(key))

	if logChannelID := d.lk.config.List.EphemeralLogChannelID; logChannelID != "" {
		username := "unknown"
		if user := getDiscordUser(i); user != nil {
			username = user.Username
		}
		line := fmt.Sprintf(
			"%s requested a private view (%s)",
			username, key.Policy().Label,
		)
		if sendErr := d.channelMessageSend(ctx, logChannelID, line); sendErr != nil {
			logger.Warn("error logging private view", tint.Err(sendErr))
		}
	}
}

// resortEphemeralView re-renders an existing private view under a new
// policy, in place. Views older than the configured timeout refuse the
// press and tell the user to open a fresh one.
func (d *Discord) resortEphemeralView(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	key SortKey,
) {
	logger, _ := ContextLogger(ctx)
	if logger == nil {
		logger = d.logger
	}

	content := d.lk.renderEphemeralPage(key)
	components := ephemeralSortControls(key)
	if i.Message != nil &&
		time.Since(i.Message.Timestamp) > d.lk.config.List.EphemeralViewTimeout {
		content = messageViewExpired
		components = []discordgo.MessageComponent{}
	}

	err := d.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Content:    content,
				Flags:      discordgo.MessageFlagsEphemeral,
				Components: components,
			},
		},
	)
	if err != nil {
		logger.Error("error re-sorting private view", tint.Err(err))
	}
}

// respondEphemeral sends an immediate, private interaction response.
func (d *Discord) respondEphemeral(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	content string,
) {
	logger, _ := ContextLogger(ctx)
	if logger == nil {
		logger = d.logger
	}
	err := d.session.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: content,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
	)
	if err != nil {
		logger.Error("error responding to interaction", tint.Err(err))
	}
}
