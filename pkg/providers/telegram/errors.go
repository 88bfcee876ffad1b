package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/tgerr"

	"teledrive/pkg/models"
)

// mapError translates MTProto failures onto the retry taxonomy
func mapError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &models.RateLimitedError{RetryAfter: d, Err: err}
	}

	switch {
	case tgerr.Is(err, "MESSAGE_ID_INVALID", "FILE_ID_INVALID", "MEDIA_EMPTY", "CHANNEL_PRIVATE"):
		return fmt.Errorf("%w: %w", models.ErrItemGone, err)
	case tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "SESSION_EXPIRED", "USER_DEACTIVATED"):
		return fmt.Errorf("%w: %w", models.ErrAuthUnavailable, err)
	}
	return fmt.Errorf("%w: %w", models.ErrSourceUnavailable, err)
}
