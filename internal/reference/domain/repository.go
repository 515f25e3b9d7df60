package domain

import "context"

type Repository interface {
	ListCurrencies(ctx context.Context) ([]Currency, error)
	EnsureCurrencies(ctx context.Context) error
}
