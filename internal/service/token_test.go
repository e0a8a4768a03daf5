package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"iat": exp.Add(-2 * time.Hour).Unix(),
		"exp": exp.Unix(),
	}).SignedString([]byte("unused"))
	require.NoError(t, err)

	info := InspectToken(raw)
	assert.True(t, info.JWT)
	assert.Equal(t, "42", info.Subject)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(exp.Add(time.Minute)))
}

func TestInspectToken_Opaque(t *testing.T) {
	info := InspectToken("12|Zm9vYmFy")
	assert.False(t, info.JWT)
	assert.True(t, info.ExpiresAt.IsZero())
	assert.False(t, info.Expired(time.Now()))
}
