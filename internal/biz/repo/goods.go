package repo

import (
	"context"
	"errors"
)

var (
	// ErrGoodNotFound means the requested good is not in the delivery list
	ErrGoodNotFound = errors.New("good not found")
	// ErrOutOfStock means the good exists but has no items left
	ErrOutOfStock = errors.New("good out of stock")
)

// GoodsRepo is the auto-delivery stock
type GoodsRepo interface {
	// IssueGood pops one item for the named good and returns its content
	IssueGood(ctx context.Context, goodName string) (string, error)
}
