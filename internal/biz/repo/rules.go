package repo

import (
	"context"

	"github.com/trihan96/FunPayServer/internal/biz/domain"
)

// RuleRepo stores the auto-response configuration
type RuleRepo interface {
	// LoadRules returns the response rule table in table order
	LoadRules(ctx context.Context) ([]domain.ResponseRule, error)

	// EchoPhrases returns the canned-reply fragments used for self-echo detection
	EchoPhrases(ctx context.Context) ([]string, error)

	// FAQEntries returns the knowledge entries handed to the oracle
	FAQEntries(ctx context.Context) ([]domain.FAQEntry, error)

	// IsGreeted reports whether the user already received the greeting
	IsGreeted(ctx context.Context, userName string) (bool, error)

	// MarkGreeted records that the user received the greeting
	MarkGreeted(ctx context.Context, userName string) error

	Close() error
}
