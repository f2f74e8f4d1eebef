package contact

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightvendors/portfolyze/internal/contact/domain"
	"github.com/rightvendors/portfolyze/internal/contact/repository"
)

type stubRelay struct {
	err  error
	sent []*domain.Message
}

func (s *stubRelay) Send(_ context.Context, m *domain.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func TestService_SubmitRelays(t *testing.T) {
	repo := repository.NewMemoryRepository()
	relay := &stubRelay{}
	s := NewService(repo, relay, nil, nil, nil)

	m := &domain.Message{Name: " Asha ", Email: "ASHA@example.com", Message: "Hi there"}
	require.NoError(t, s.Submit(context.Background(), m))
	require.NotEmpty(t, m.ID)
	assert.True(t, m.Relayed)
	require.Len(t, relay.sent, 1)
	assert.Equal(t, "asha@example.com", relay.sent[0].Email)

	stored, ok := repo.Get(m.ID)
	require.True(t, ok)
	assert.True(t, stored.Relayed)
	assert.Equal(t, "Asha", stored.Name)
}

func TestService_SubmitWithoutRelayStillAccepts(t *testing.T) {
	repo := repository.NewMemoryRepository()
	for _, relay := range []Relay{nil, NewEmailJSRelay("", "", "", "", ""), &stubRelay{err: errors.New("boom")}} {
		s := NewService(repo, relay, nil, nil, nil)
		m := &domain.Message{Name: "Asha", Email: "asha@example.com", Message: "Hi"}
		require.NoError(t, s.Submit(context.Background(), m))
		stored, ok := repo.Get(m.ID)
		require.True(t, ok)
		assert.False(t, stored.Relayed)
	}
}

func TestService_SubmitInvalid(t *testing.T) {
	repo := repository.NewMemoryRepository()
	relay := &stubRelay{}
	s := NewService(repo, relay, nil, nil, nil)

	err := s.Submit(context.Background(), &domain.Message{Name: "Asha", Email: "nope", Message: "Hi"})
	require.ErrorIs(t, err, ErrInvalidMessage)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "Email")
	assert.Empty(t, relay.sent)
}
