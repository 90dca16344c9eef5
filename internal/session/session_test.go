package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/models"
)

type mapKV struct {
	data   map[string]string
	getErr error
}

func newMapKV() *mapKV {
	return &mapKV{data: map[string]string{}}
}

func (m *mapKV) Get(_ context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapKV) Set(_ context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mapKV) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestSession_TokenMissing(t *testing.T) {
	s := New(newMapKV())

	_, err := s.Token(context.Background())
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestSession_EmailShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"nested login payload", `{"userData":{"NOM":"Ben","PRENOM":"Ali","EMAIL":"ali@etud.tn"}}`, "ali@etud.tn"},
		{"flat profile", `{"EMAIL":"flat@etud.tn"}`, "flat@etud.tn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newMapKV()
			kv.data[models.KeyUserData] = tt.raw

			email, err := New(kv).Email(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, email)
		})
	}
}

func TestSession_EmailCorrupt(t *testing.T) {
	kv := newMapKV()
	kv.data[models.KeyUserData] = "{not json"

	_, err := New(kv).Email(context.Background())
	assert.ErrorIs(t, err, apperr.ErrPersistence)
}

func TestSession_SaveAndClear(t *testing.T) {
	kv := newMapKV()
	s := New(kv)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "tok-123", models.UserProfile{Email: "a@b.tn", LastName: "B"}))

	token, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	email, err := s.Email(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@b.tn", email)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Token(ctx)
	assert.ErrorIs(t, err, apperr.ErrAuth)
}

func TestSession_StorageError(t *testing.T) {
	kv := newMapKV()
	kv.getErr = errors.New("disk gone")

	_, err := New(kv).Token(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrAuth)
}
