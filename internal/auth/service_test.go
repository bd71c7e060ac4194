package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"homematch/backend/internal/auth/jwt"
	"homematch/backend/internal/config"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/monitoring"
	"homematch/backend/internal/storage/memory"
)

var testMetrics = monitoring.NewMetrics()

// captureSender 记录最近一次发送的验证码。
type captureSender struct {
	lastEmail string
	lastCode  string
	fail      bool
}

func (c *captureSender) SendLoginCode(toEmail, code string, _ time.Duration) error {
	if c.fail {
		return errors.New("smtp unavailable")
	}
	c.lastEmail = toEmail
	c.lastCode = code
	return nil
}

func newTestService(t *testing.T) (*Service, *memory.Store, *captureSender) {
	t.Helper()
	store := memory.NewStore()
	sender := &captureSender{}
	manager := jwt.NewManager("test-secret-key-32-characters-long!!", "homematch", 15*time.Minute, 7*24*time.Hour)
	svc := NewService(store, store, memory.NewCache(), manager, sender, config.OTPConfig{
		Length:      6,
		TTL:         10 * time.Minute,
		MaxAttempts: 5,
		SendPerHour: 3,
	}, testMetrics, zap.NewNop())
	return svc, store, sender
}

func TestService_RequestCode(t *testing.T) {
	t.Run("发送六位数字验证码", func(t *testing.T) {
		svc, _, sender := newTestService(t)

		require.NoError(t, svc.RequestCode("Buyer@Mail.Example"))
		assert.Equal(t, "buyer@mail.example", sender.lastEmail)
		assert.Len(t, sender.lastCode, 6)
		for _, r := range sender.lastCode {
			assert.True(t, r >= '0' && r <= '9')
		}
	})

	t.Run("非法邮箱被拒绝", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		assert.ErrorIs(t, svc.RequestCode("not-an-email"), ErrInvalidEmail)
	})

	t.Run("每小时请求次数受限", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, svc.RequestCode("a@b.example"))
		}
		assert.ErrorIs(t, svc.RequestCode("a@b.example"), ErrTooManyRequests)
	})

	t.Run("发送失败时验证码作废", func(t *testing.T) {
		svc, _, sender := newTestService(t)
		sender.fail = true

		err := svc.RequestCode("a@b.example")
		assert.Error(t, err)

		sender.fail = false
		_, _, err = svc.VerifyCode("a@b.example", "123456")
		assert.ErrorIs(t, err, ErrCodeExpired)
	})
}

func TestService_VerifyCode(t *testing.T) {
	t.Run("首次验证自动注册并签发令牌", func(t *testing.T) {
		svc, _, sender := newTestService(t)
		require.NoError(t, svc.RequestCode("new@user.example"))

		user, pair, err := svc.VerifyCode("new@user.example", sender.lastCode)
		require.NoError(t, err)
		assert.Equal(t, "new@user.example", user.Email)
		assert.True(t, user.IsEmailVerified)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
	})

	t.Run("验证码一次性使用", func(t *testing.T) {
		svc, _, sender := newTestService(t)
		require.NoError(t, svc.RequestCode("once@user.example"))

		_, _, err := svc.VerifyCode("once@user.example", sender.lastCode)
		require.NoError(t, err)

		_, _, err = svc.VerifyCode("once@user.example", sender.lastCode)
		assert.ErrorIs(t, err, ErrCodeExpired)
	})

	t.Run("错误验证码累计后封禁", func(t *testing.T) {
		svc, _, sender := newTestService(t)
		require.NoError(t, svc.RequestCode("brute@user.example"))

		for i := 0; i < 4; i++ {
			_, _, err := svc.VerifyCode("brute@user.example", "000000")
			assert.ErrorIs(t, err, ErrInvalidCode)
		}
		// 第五次失败达到上限
		_, _, err := svc.VerifyCode("brute@user.example", "000000")
		assert.ErrorIs(t, err, ErrTooManyAttempts)

		// 正确验证码也已作废
		_, _, err = svc.VerifyCode("brute@user.example", sender.lastCode)
		assert.ErrorIs(t, err, ErrCodeExpired)
	})

	t.Run("注册时归属游客融资申请", func(t *testing.T) {
		svc, store, sender := newTestService(t)
		require.NoError(t, store.SaveFinancingRequest(&domain.FinancingRequest{
			ID:    "fr-1",
			Email: "guest@user.example",
		}))

		require.NoError(t, svc.RequestCode("guest@user.example"))
		user, _, err := svc.VerifyCode("guest@user.example", sender.lastCode)
		require.NoError(t, err)

		request, err := store.GetFinancingRequest("fr-1")
		require.NoError(t, err)
		require.NotNil(t, request.UserID)
		assert.Equal(t, user.ID, *request.UserID)
	})

	t.Run("被禁用用户不能登录", func(t *testing.T) {
		svc, store, sender := newTestService(t)
		require.NoError(t, store.CreateUser(&domain.User{
			ID:       "u-1",
			Email:    "banned@user.example",
			IsActive: false,
		}))

		require.NoError(t, svc.RequestCode("banned@user.example"))
		_, _, err := svc.VerifyCode("banned@user.example", sender.lastCode)
		assert.ErrorIs(t, err, ErrUserInactive)
	})
}

func TestService_Refresh(t *testing.T) {
	svc, _, sender := newTestService(t)
	require.NoError(t, svc.RequestCode("r@user.example"))
	_, pair, err := svc.VerifyCode("r@user.example", sender.lastCode)
	require.NoError(t, err)

	t.Run("刷新令牌换取新访问令牌", func(t *testing.T) {
		access, err := svc.Refresh(pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, access)
	})

	t.Run("伪造令牌刷新失败", func(t *testing.T) {
		_, err := svc.Refresh("garbage.token.value")
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})
}

func TestService_UpdateProfile(t *testing.T) {
	svc, _, sender := newTestService(t)
	require.NoError(t, svc.RequestCode("p@user.example"))
	user, _, err := svc.VerifyCode("p@user.example", sender.lastCode)
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(user.ID, "Bo", "Chen", "+4915112345678")
	require.NoError(t, err)
	assert.Equal(t, "Bo Chen", updated.FullName())

	_, err = svc.UpdateProfile("missing", "A", "B", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
