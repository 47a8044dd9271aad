package listkeeper

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

var templatePlaceholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// templatePlaceholders are the tokens Announce substitutes. Any other
// {name} token in a template marks it as misconfigured.
var templatePlaceholders = map[string]bool{
	"item":      true,
	"owner":     true,
	"cost":      true,
	"role_ping": true,
}

// unknownPlaceholder returns the first {name} token in the template that
// Announce doesn't substitute, or "" when every token is recognized.
// Braces in substituted values don't count; only the template is checked.
func unknownPlaceholder(template string) string {
	for _, match := range templatePlaceholderPattern.FindAllStringSubmatch(template, -1) {
		if !templatePlaceholders[match[1]] {
			return match[0]
		}
	}
	return ""
}

// Notifier fans an item update out to every configured notification
// channel, expanding each destination's message template. Delivery is
// best-effort per destination: one failure never blocks the others.
type Notifier struct {
	d       *Discord
	configs []NotificationConfig
	logger  *slog.Logger
}

func newNotifier(d *Discord, configs []NotificationConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		d:       d,
		configs: configs,
		logger:  logger.With(loggerNameKey, "notifier"),
	}
}

// Announce expands each destination's template with the given change and
// sends the result. Destinations whose template carries a placeholder
// Announce doesn't recognize are skipped and logged. Mentions are
// restricted to the destination's configured role.
func (n *Notifier) Announce(ctx context.Context, change LastChange) {
	for _, cfg := range n.configs {
		if cfg.ChannelID == "" || cfg.MessageFormat == "" {
			continue
		}
		if token := unknownPlaceholder(cfg.MessageFormat); token != "" {
			n.logger.Warn(
				"notification template has an unknown placeholder, skipping",
				"channel_id", cfg.ChannelID,
				"message_format", cfg.MessageFormat,
				"placeholder", token,
			)
			continue
		}
		rolePing := ""
		if cfg.RoleID != "" {
			rolePing = "<@&" + cfg.RoleID + ">"
		}
		content := strings.NewReplacer(
			"{item}", change.Item,
			"{owner}", change.Owner,
			"{cost}", change.Cost,
			"{role_ping}", rolePing,
		).Replace(cfg.MessageFormat)

		n.d.pace(ctx)
		send := &discordgo.MessageSend{
			Content: content,
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Parse: []discordgo.AllowedMentionType{},
			},
		}
		if cfg.RoleID != "" {
			send.AllowedMentions.Roles = []string{cfg.RoleID}
		}
		if _, err := n.d.session.ChannelMessageSendComplex(cfg.ChannelID, send); err != nil {
			n.logger.Error(
				"error sending notification",
				tint.Err(err),
				"channel_id", cfg.ChannelID,
			)
		}
	}
}

// Broadcast sends the given text verbatim to every notification channel.
func (n *Notifier) Broadcast(ctx context.Context, message string) int {
	sent := 0
	for _, cfg := range n.configs {
		if cfg.ChannelID == "" {
			continue
		}
		if err := n.d.channelMessageSend(ctx, cfg.ChannelID, message); err != nil {
			n.logger.Error(
				"error broadcasting message",
				tint.Err(err),
				"channel_id", cfg.ChannelID,
			)
			continue
		}
		sent++
	}
	return sent
}
