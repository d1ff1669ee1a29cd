package repo

import (
	"context"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
)

// OracleRepo is the external FAQ/AI collaborator
type OracleRepo interface {
	// Answer returns a reply for the question, or "" when the oracle has
	// nothing to say. History is the user's transcript, oldest first.
	Answer(ctx context.Context, question, userName string, history []domain.ChatMessage) (string, error)

	// Chunk splits a long answer into transport-safe pieces
	Chunk(text string) []string
}
