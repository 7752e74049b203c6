package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateReturnsUniqueIDs(t *testing.T) {
	s := NewStore()
	a := s.Create()
	b := s.Create()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestSetAndGet(t *testing.T) {
	s := NewStore()
	id := s.Create()
	s.Set(id, "user", "alice")
	require.Equal(t, "alice", s.Get(id)["user"])
}

func TestSetCreatesUnknownSession(t *testing.T) {
	s := NewStore()
	s.Set("ghost", "k", "v")
	require.Equal(t, "v", s.Get("ghost")["k"])
}

func TestDeleteRemovesSession(t *testing.T) {
	s := NewStore()
	id := s.Create()
	s.Delete(id)
	require.Nil(t, s.Get(id))
}
