package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-32-characters-long!!"

func TestManager(t *testing.T) {
	m := NewManager(testSecret, "homematch", 15*time.Minute, 7*24*time.Hour)

	t.Run("签发并验证令牌对", func(t *testing.T) {
		pair, err := m.GenerateTokenPair("user-1", "buyer@mail.example")
		require.NoError(t, err)
		assert.Equal(t, int64(900), pair.ExpiresIn)

		claims, err := m.ValidateToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "buyer@mail.example", claims.Email)
		assert.Equal(t, "homematch", claims.Issuer)
	})

	t.Run("过期令牌被拒绝", func(t *testing.T) {
		expired := NewManager(testSecret, "homematch", -time.Minute, time.Hour)
		pair, err := expired.GenerateTokenPair("user-1", "a@b.c")
		require.NoError(t, err)

		_, err = m.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("错误密钥签发的令牌被拒绝", func(t *testing.T) {
		other := NewManager("another-secret-key-32-characters!!!!", "homematch", time.Minute, time.Hour)
		pair, err := other.GenerateTokenPair("user-1", "a@b.c")
		require.NoError(t, err)

		_, err = m.ValidateToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("畸形令牌被拒绝", func(t *testing.T) {
		_, err := m.ValidateToken("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("刷新令牌签发新访问令牌", func(t *testing.T) {
		pair, err := m.GenerateTokenPair("user-2", "c@d.e")
		require.NoError(t, err)

		access, err := m.RefreshAccessToken(pair.RefreshToken)
		require.NoError(t, err)

		claims, err := m.ValidateToken(access)
		require.NoError(t, err)
		assert.Equal(t, "user-2", claims.UserID)
	})
}
