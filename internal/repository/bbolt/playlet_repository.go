package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/repository"
)

type PlayletRepository struct {
	db *bolt.DB
}

func NewPlayletRepository(db *bolt.DB) repository.PlayletRepository {
	return &PlayletRepository{db: db}
}

func (r *PlayletRepository) Init(_ context.Context) error {
	if err := ensureBucket(r.db, playletsBucket); err != nil {
		return fmt.Errorf("create playlets bucket: %w", err)
	}
	return nil
}

func (r *PlayletRepository) Create(_ context.Context, p *domain.Playlet) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(playletsBucket)
		if b.Get([]byte(p.ID)) != nil {
			return fmt.Errorf("playlet %s already exists", p.ID)
		}
		return putJSON(b, []byte(p.ID), p)
	})
}

func (r *PlayletRepository) Update(_ context.Context, p *domain.Playlet) error {
	p.UpdatedAt = time.Now().UTC()
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(playletsBucket)
		if b.Get([]byte(p.ID)) == nil {
			return repository.ErrNotFound
		}
		return putJSON(b, []byte(p.ID), p)
	})
}

func (r *PlayletRepository) Delete(_ context.Context, id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(playletsBucket)
		if b.Get([]byte(id)) == nil {
			return repository.ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

func (r *PlayletRepository) Get(_ context.Context, id string) (*domain.Playlet, error) {
	var out *domain.Playlet
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(playletsBucket).Get([]byte(id))
		if v == nil {
			return repository.ErrNotFound
		}
		var p domain.Playlet
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("decode playlet: %w", err)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *PlayletRepository) List(_ context.Context) ([]domain.Playlet, error) {
	var playlets []domain.Playlet
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(playletsBucket).ForEach(func(_, v []byte) error {
			var p domain.Playlet
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode playlet: %w", err)
			}
			playlets = append(playlets, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(playlets, func(i, j int) bool {
		return playlets[i].CreatedAt.Before(playlets[j].CreatedAt)
	})
	return playlets, nil
}
