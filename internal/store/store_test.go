package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetDelete(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get(KeyTenantID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(KeyTenantID, "shop-42"))
	value, ok, err := s.Get(KeyTenantID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "shop-42", value)

	require.NoError(t, s.Set(KeyTenantID, "shop-43"))
	value, _, _ = s.Get(KeyTenantID)
	assert.Equal(t, "shop-43", value)

	require.NoError(t, s.Delete(KeyTenantID))
	_, ok, err = s.Get(KeyTenantID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOrAndGetBool(t *testing.T) {
	s := openTestStore(t)

	assert.Equal(t, "fallback", s.GetOr(KeyEnvironment, "fallback"))
	require.NoError(t, s.Set(KeyEnvironment, "development"))
	assert.Equal(t, "development", s.GetOr(KeyEnvironment, "fallback"))

	assert.True(t, s.GetBool(KeyAutoRegister, true))
	require.NoError(t, s.Set(KeyAutoRegister, "false"))
	assert.False(t, s.GetBool(KeyAutoRegister, true))
	require.NoError(t, s.Set(KeyAutoRegister, "not-a-bool"))
	assert.True(t, s.GetBool(KeyAutoRegister, true))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "client-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func TestTokenExpiry(t *testing.T) {
	s := openTestStore(t)

	_, err := s.TokenExpiry()
	require.ErrorIs(t, err, ErrTokenMissing)
	assert.True(t, s.TokenExpired(time.Now()))

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, s.Set(KeyToken, signedToken(t, exp)))

	got, err := s.TokenExpiry()
	require.NoError(t, err)
	assert.Equal(t, exp.Unix(), got.Unix())
	assert.False(t, s.TokenExpired(time.Now()))
	assert.True(t, s.TokenExpired(time.Now().Add(2*time.Hour)))

	require.NoError(t, s.Set(KeyToken, "garbage"))
	assert.True(t, s.TokenExpired(time.Now()))
}
