package repository

import (
	"context"

	"magnet-playlets/internal/domain"
)

// PlayletRepository persists playlet definitions.
type PlayletRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, p *domain.Playlet) error
	Update(ctx context.Context, p *domain.Playlet) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Playlet, error)
	List(ctx context.Context) ([]domain.Playlet, error)
}
