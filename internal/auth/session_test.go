package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	s, err := NewSigner(time.Hour)
	require.NoError(t, err)

	token, err := s.CreateJWT("alice")
	require.NoError(t, err)

	sub, err := s.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestJWTFromOtherSignerRejected(t *testing.T) {
	a, err := NewSigner(0)
	require.NoError(t, err)
	b, err := NewSigner(0)
	require.NoError(t, err)

	token, err := a.CreateJWT("alice")
	require.NoError(t, err)

	_, err = b.AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	s, err := NewSigner(time.Nanosecond)
	require.NoError(t, err)
	token, err := s.CreateJWT("bob")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = s.AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestCreateJWTNeedsUsername(t *testing.T) {
	s, err := NewSigner(0)
	require.NoError(t, err)
	_, err = s.CreateJWT("")
	assert.Error(t, err)
}
