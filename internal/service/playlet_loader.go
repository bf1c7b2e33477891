package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/engine"
)

type playletFile struct {
	Playlets []domain.Playlet `yaml:"playlets"`
}

// LoadPlaylets seeds playlets from a YAML file. Playlets whose id already
// exists are left untouched. It returns how many were created.
func LoadPlaylets(ctx context.Context, svc PlayletService, path string, logger *logrus.Logger) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read playlets file: %w", err)
	}
	var doc playletFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse playlets file: %w", err)
	}

	created := 0
	for i := range doc.Playlets {
		p := doc.Playlets[i]
		if p.ID != "" {
			_, err := svc.Get(ctx, p.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, engine.ErrPlayletNotFound) {
				return created, err
			}
		}
		if _, err := svc.Create(ctx, &p); err != nil {
			return created, fmt.Errorf("playlet %q: %w", p.Name, err)
		}
		created++
	}
	if logger != nil {
		logger.Infof("seeded %d playlet(s) from %s", created, path)
	}
	return created, nil
}
