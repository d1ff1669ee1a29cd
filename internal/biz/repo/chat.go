package repo

import (
	"context"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
)

// ChatRepo is the marketplace chat transport
type ChatRepo interface {
	// PollConversations returns the current chat list. A transport failure
	// surfaces as an error and is treated as an empty cycle by the caller.
	PollConversations(ctx context.Context) ([]domain.ChatSnapshot, error)

	// Send delivers text to a conversation node, prepending the watermark
	// selected by kind. It reports success and never panics; transport
	// errors are logged by the implementation.
	Send(ctx context.Context, node, text string, kind domain.WatermarkKind) bool
}
