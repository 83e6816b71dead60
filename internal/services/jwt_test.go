package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	s := NewJWTService("secret", time.Hour)

	token, err := s.GenerateToken("42", "alice")
	require.NoError(t, err)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "alice", claims.UserName)
	assert.Equal(t, "42", claims.Subject)
}

func TestJWTRejects(t *testing.T) {
	s := NewJWTService("secret", time.Hour)
	token, err := s.GenerateToken("42", "alice")
	require.NoError(t, err)

	_, err = NewJWTService("other", time.Hour).ValidateToken(token)
	assert.Error(t, err, "wrong secret")

	_, err = s.ValidateToken(token[:len(token)-2] + "xx")
	assert.Error(t, err, "tampered signature")

	expired := &JWTService{secret: []byte("secret"), ttl: -time.Minute}
	old, err := expired.GenerateToken("42", "alice")
	require.NoError(t, err)
	_, err = s.ValidateToken(old)
	assert.Error(t, err, "expired")

	_, err = s.GenerateToken("", "nobody")
	assert.Error(t, err)
}
