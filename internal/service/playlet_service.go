package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/engine"
	"magnet-playlets/internal/executor"
	"magnet-playlets/internal/matcher"
	"magnet-playlets/internal/repository"
)

// ErrInvalidPlaylet wraps every validation failure.
var ErrInvalidPlaylet = errors.New("invalid playlet")

// PlayletService manages playlet definitions. Get and List also serve as
// the engine's playlet source.
type PlayletService interface {
	Create(ctx context.Context, p *domain.Playlet) (*domain.Playlet, error)
	Update(ctx context.Context, p *domain.Playlet) (*domain.Playlet, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Playlet, error)
	List(ctx context.Context) ([]domain.Playlet, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (*domain.Playlet, error)
	Duplicate(ctx context.Context, id string) (*domain.Playlet, error)
}

type playletService struct {
	playlets repository.PlayletRepository
	now      func() time.Time
}

func NewPlayletService(playlets repository.PlayletRepository) PlayletService {
	return &playletService{
		playlets: playlets,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *playletService) Create(ctx context.Context, p *domain.Playlet) (*domain.Playlet, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidPlaylet)
	}
	pl := normalize(*p)
	if pl.ID == "" {
		pl.ID = uuid.NewString()
	}
	if err := Validate(&pl); err != nil {
		return nil, err
	}
	pl.CreatedAt = s.now()
	pl.UpdatedAt = pl.CreatedAt

	if err := s.playlets.Create(ctx, &pl); err != nil {
		return nil, fmt.Errorf("create playlet: %w", err)
	}
	return &pl, nil
}

func (s *playletService) Update(ctx context.Context, p *domain.Playlet) (*domain.Playlet, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidPlaylet)
	}
	existing, err := s.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	pl := normalize(*p)
	if err := Validate(&pl); err != nil {
		return nil, err
	}
	pl.CreatedAt = existing.CreatedAt
	pl.UpdatedAt = s.now()

	if err := s.playlets.Update(ctx, &pl); err != nil {
		return nil, mapNotFound(err)
	}
	return &pl, nil
}

func (s *playletService) Delete(ctx context.Context, id string) error {
	if err := s.playlets.Delete(ctx, id); err != nil {
		return mapNotFound(err)
	}
	return nil
}

func (s *playletService) Get(ctx context.Context, id string) (*domain.Playlet, error) {
	p, err := s.playlets.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return p, nil
}

func (s *playletService) List(ctx context.Context) ([]domain.Playlet, error) {
	return s.playlets.List(ctx)
}

func (s *playletService) SetEnabled(ctx context.Context, id string, enabled bool) (*domain.Playlet, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Enabled = enabled
	p.UpdatedAt = s.now()
	if err := s.playlets.Update(ctx, p); err != nil {
		return nil, mapNotFound(err)
	}
	return p, nil
}

// Duplicate stores a copy with fresh playlet and action ids.
func (s *playletService) Duplicate(ctx context.Context, id string) (*domain.Playlet, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cp := *src
	cp.ID = uuid.NewString()
	cp.Name = src.Name + " (copy)"
	cp.Conditions = slices.Clone(src.Conditions)
	if src.FileFilter != nil {
		ff := *src.FileFilter
		ff.Extensions = slices.Clone(src.FileFilter.Extensions)
		cp.FileFilter = &ff
	}
	cp.Actions = make([]domain.Action, len(src.Actions))
	for i, a := range src.Actions {
		a.ID = uuid.NewString()
		cp.Actions[i] = a
	}
	cp.CreatedAt = s.now()
	cp.UpdatedAt = cp.CreatedAt

	if err := s.playlets.Create(ctx, &cp); err != nil {
		return nil, fmt.Errorf("create playlet: %w", err)
	}
	return &cp, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return engine.ErrPlayletNotFound
	}
	return err
}

// normalize trims names, defaults the condition logic and assigns ids to
// actions that have none.
func normalize(p domain.Playlet) domain.Playlet {
	p.Name = strings.TrimSpace(p.Name)
	if p.ConditionLogic == "" {
		p.ConditionLogic = domain.LogicAnd
	}
	if p.Conditions == nil {
		p.Conditions = []domain.Condition{}
	}
	actions := make([]domain.Action, len(p.Actions))
	for i, a := range p.Actions {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		actions[i] = a
	}
	p.Actions = actions
	return p
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPlaylet, fmt.Sprintf(format, args...))
}

// Validate checks a playlet definition.
func Validate(p *domain.Playlet) error {
	if p.Name == "" {
		return invalid("name is required")
	}
	if err := validateTrigger(p.Trigger); err != nil {
		return err
	}
	switch p.ConditionLogic {
	case "", domain.LogicAnd, domain.LogicOr:
	default:
		return invalid("unknown condition logic %q", p.ConditionLogic)
	}
	for i, c := range p.Conditions {
		if err := validateCondition(c); err != nil {
			return fmt.Errorf("condition %d: %w", i+1, err)
		}
	}
	if p.FileFilter != nil {
		if err := validateFileFilter(*p.FileFilter); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(p.Actions))
	for i, a := range p.Actions {
		if _, dup := seen[a.ID]; dup {
			return invalid("duplicate action id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
		if err := validateAction(a); err != nil {
			return fmt.Errorf("action %d: %w", i+1, err)
		}
	}
	return nil
}

func validateTrigger(t domain.Trigger) error {
	switch t.Kind {
	case domain.TriggerTorrentAdded, domain.TriggerDownloadComplete, domain.TriggerMetadataReceived:
	case domain.TriggerSeedingRatio:
		if t.Ratio <= 0 {
			return invalid("seeding ratio must be positive")
		}
	case domain.TriggerFolderWatch:
		if t.Path == "" || !filepath.IsAbs(t.Path) {
			return invalid("folder watch needs an absolute path")
		}
	default:
		return invalid("unknown trigger %q", t.Kind)
	}
	return nil
}

func validateCondition(c domain.Condition) error {
	if !matcher.ValidOperator(c.Field, c.Operator) {
		return invalid("operator %q is not valid for field %q", c.Operator, c.Field)
	}
	if c.Field == domain.FieldName {
		if c.Operator == domain.OpRegex {
			if _, err := regexp.Compile(c.Value); err != nil {
				return invalid("bad pattern: %v", err)
			}
		}
		return nil
	}
	if _, err := strconv.ParseFloat(c.Value, 64); err != nil {
		return invalid("value %q is not a number", c.Value)
	}
	if c.Operator == domain.OpBetween {
		if _, err := strconv.ParseFloat(c.Value2, 64); err != nil {
			return invalid("upper bound %q is not a number", c.Value2)
		}
	}
	return nil
}

func validateFileFilter(f domain.FileFilter) error {
	switch f.Category {
	case "", domain.CategoryAll, domain.CategoryVideo, domain.CategoryAudio, domain.CategorySubtitle:
	case domain.CategoryCustom:
		if len(f.Extensions) == 0 {
			return invalid("custom file filter needs extensions")
		}
	default:
		return invalid("unknown file category %q", f.Category)
	}
	if f.MinSizeMB < 0 {
		return invalid("minimum size must not be negative")
	}
	return nil
}

func validateAction(a domain.Action) error {
	if !slices.Contains(domain.ActionTypes, a.Type) {
		return invalid("unknown action type %q", a.Type)
	}
	switch a.Type {
	case domain.ActionAutomation:
		if a.Automation == nil {
			return invalid("automation options are required")
		}
		switch a.Automation.Method {
		case domain.AutomationShell, domain.AutomationAppleScript, domain.AutomationShortcut:
		default:
			return invalid("unknown automation method %q", a.Automation.Method)
		}
	case domain.ActionDelay:
		if a.Delay == nil {
			return invalid("delay options are required")
		}
		if _, err := executor.DelayDuration(*a.Delay); err != nil {
			return invalid("%v", err)
		}
	case domain.ActionWebhook:
		if a.Webhook == nil {
			return invalid("webhook options are required")
		}
		u, err := url.Parse(a.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("webhook url must be an http(s) address")
		}
	case domain.ActionMove:
		if a.Move != nil && strings.HasPrefix(a.Move.Destination, "s3://") {
			if _, _, err := executor.ParseS3Location(a.Move.Destination); err != nil {
				return invalid("%v", err)
			}
		}
	}
	return nil
}

var _ engine.Playlets = (*playletService)(nil)
