package listkeeper

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/lmittmann/tint"
)

// ErrMessageNotFound indicates the target message no longer exists in the
// channel. ChannelOutput implementations wrap their platform's not-found
// failures with this sentinel so the reconciler can branch on it
// (recreate) rather than treating it as any other delivery error (skip).
var ErrMessageNotFound = errors.New("message not found")

// ChannelOutput is the capability the reconciler uses to place rendered
// pages into a channel. withControls indicates the message should carry
// the interactive sort controls (only ever true for page 0).
type ChannelOutput interface {
	// SendMessage creates a new message and returns its ID.
	SendMessage(
		ctx context.Context,
		channelID string,
		content string,
		withControls bool,
	) (string, error)

	// EditMessage replaces the content (and control set) of an existing
	// message in place. Returns an error wrapping ErrMessageNotFound if
	// the message no longer exists.
	EditMessage(
		ctx context.Context,
		channelID string,
		messageID string,
		content string,
		withControls bool,
	) error

	// DeleteMessage removes a message. Deleting an already-missing message
	// returns an error wrapping ErrMessageNotFound.
	DeleteMessage(ctx context.Context, channelID string, messageID string) error
}

// Reconciler makes a channel's visible messages match a freshly rendered
// page sequence with the smallest number of operations: pages are edited
// in place when the page count is unchanged, and the channel is fully
// rebuilt on structural changes or when forced.
type Reconciler struct {
	out    ChannelOutput
	logger *slog.Logger
}

// NewReconciler returns a Reconciler delivering through the given output.
func NewReconciler(out ChannelOutput, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		out:    out,
		logger: logger.With(loggerNameKey, "reconciler"),
	}
}

// Sync reconciles the channel against the new page sequence and returns
// the message IDs now displaying the pages, in page order, along with
// whether the tracked IDs changed (so the caller knows to persist).
//
// A failure on an individual page is logged and that page skipped; it
// never aborts the rest of the pass.
func (r *Reconciler) Sync(
	ctx context.Context,
	channelID string,
	previousMessageIDs []string,
	pages []string,
	forceNew bool,
) ([]string, bool) {
	logger := r.logger.With("channel_id", channelID)
	changed := false

	msgIDs := previousMessageIDs

	// a page count mismatch means the tracked IDs have drifted from
	// what's visible, so recover by rebuilding from scratch
	if forceNew || len(msgIDs) != len(pages) {
		if len(msgIDs) > 0 || forceNew {
			changed = true
		}
		for _, id := range msgIDs {
			r.deleteBestEffort(ctx, logger, channelID, id)
		}
		msgIDs = nil
	}

	var placed []string
	for i, content := range pages {
		if i < len(msgIDs) {
			err := r.out.EditMessage(ctx, channelID, msgIDs[i], content, i == 0)
			if err == nil {
				placed = append(placed, msgIDs[i])
				continue
			}
			changed = true
			if !errors.Is(err, ErrMessageNotFound) {
				logger.Error(
					"error editing page, recreating",
					tint.Err(err),
					"page", i,
					"message_id", msgIDs[i],
				)
			}
			// controls attach only if nothing has claimed page 0 yet
			id, sendErr := r.out.SendMessage(
				ctx, channelID, content, i == 0 && len(placed) == 0,
			)
			if sendErr != nil {
				logger.Error("error recreating page", tint.Err(sendErr), "page", i)
				continue
			}
			placed = append(placed, id)
		} else {
			changed = true
			id, err := r.out.SendMessage(
				ctx, channelID, content, i == 0 && len(msgIDs) == 0,
			)
			if err != nil {
				logger.Error("error creating page", tint.Err(err), "page", i)
				continue
			}
			placed = append(placed, id)
		}
	}

	// the list shrank: drop trailing messages
	if len(msgIDs) > len(pages) {
		for _, id := range msgIDs[len(pages):] {
			changed = true
			r.deleteBestEffort(ctx, logger, channelID, id)
		}
	}

	if !slices.Equal(previousMessageIDs, placed) {
		changed = true
	}
	return placed, changed
}

// Clear deletes every tracked message for the channel, best-effort.
func (r *Reconciler) Clear(
	ctx context.Context,
	channelID string,
	messageIDs []string,
) {
	logger := r.logger.With("channel_id", channelID)
	for _, id := range messageIDs {
		if id == "" {
			continue
		}
		r.deleteBestEffort(ctx, logger, channelID, id)
	}
}

func (r *Reconciler) deleteBestEffort(
	ctx context.Context,
	logger *slog.Logger,
	channelID string,
	messageID string,
) {
	err := r.out.DeleteMessage(ctx, channelID, messageID)
	if err != nil && !errors.Is(err, ErrMessageNotFound) {
		logger.Warn(
			"error deleting tracked message",
			tint.Err(err),
			"message_id", messageID,
		)
	}
}
