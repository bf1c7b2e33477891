package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magnet-playlets/internal/domain"
)

func TestRegistry_RegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	var got domain.Action
	r.Register(domain.ActionNotify, Func(func(_ context.Context, a domain.Action, _ Input) error {
		got = a
		return nil
	}))

	action := domain.Action{ID: "a1", Type: domain.ActionNotify}
	require.NoError(t, r.Execute(context.Background(), action, Input{}))
	assert.Equal(t, action, got)
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()
	err := r.Execute(context.Background(), domain.Action{Type: "teleport"}, Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action type")
	_, skipped := SkipReason(err)
	assert.False(t, skipped)
}

func TestRegistry_AvailableAndValidate(t *testing.T) {
	r := NewRegistry()
	noop := Func(func(context.Context, domain.Action, Input) error { return nil })
	r.Register(domain.ActionWebhook, noop)
	r.Register(domain.ActionCast, noop)
	r.Register(domain.ActionCast, noop)

	assert.Equal(t, []domain.ActionType{domain.ActionCast, domain.ActionWebhook}, r.Available())

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "move")

	for _, at := range domain.ActionTypes {
		r.Register(at, noop)
	}
	assert.NoError(t, r.Validate())
}

func TestNewDefaultRegistry_CoversEveryType(t *testing.T) {
	r, err := NewDefaultRegistry(Deps{
		Torrents: &fakeTorrents{},
		Caster:   &fakeCaster{},
		Notifier: &fakeNotifier{},
	})
	require.NoError(t, err)
	assert.Len(t, r.Available(), len(domain.ActionTypes))

	_, err = NewDefaultRegistry(Deps{})
	assert.Error(t, err)
}

func TestSkipReason(t *testing.T) {
	reason, ok := SkipReason(Skipf("no %s", "device"))
	assert.True(t, ok)
	assert.Equal(t, "no device", reason)

	wrapped := fmt.Errorf("cast: %w", Skipf("later"))
	reason, ok = SkipReason(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "later", reason)

	_, ok = SkipReason(errors.New("boom"))
	assert.False(t, ok)
	_, ok = SkipReason(nil)
	assert.False(t, ok)
}
