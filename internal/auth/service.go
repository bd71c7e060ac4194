package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"homematch/backend/internal/auth/jwt"
	"homematch/backend/internal/config"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/monitoring"
	"homematch/backend/internal/storage"
)

var (
	// ErrInvalidEmail 无效的邮箱格式
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrCodeExpired 验证码不存在或已过期
	ErrCodeExpired = errors.New("code expired or not requested")
	// ErrInvalidCode 验证码错误
	ErrInvalidCode = errors.New("invalid code")
	// ErrTooManyAttempts 验证码尝试次数超限
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrTooManyRequests 验证码请求过于频繁
	ErrTooManyRequests = errors.New("too many code requests")
	// ErrUserInactive 用户已被禁用
	ErrUserInactive = errors.New("user is inactive")
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
)

// CodeSender 负责把登录验证码投递到用户邮箱。
type CodeSender interface {
	SendLoginCode(toEmail, code string, ttl time.Duration) error
}

// Service 实现免密码的邮箱验证码登录。
//
// 验证码只保存 bcrypt 哈希，带 TTL 写入缓存；校验失败累计计数，
// 达到上限后该验证码作废。首次验证成功即自动注册用户，并把
// 注册前以同一邮箱提交的融资申请归属到新用户。
type Service struct {
	users    storage.UserRepository
	requests storage.FinancingRequestRepository
	cache    storage.Cache
	tokens   *jwt.Manager
	sender   CodeSender
	cfg      config.OTPConfig
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewService 创建认证服务。
func NewService(
	users storage.UserRepository,
	requests storage.FinancingRequestRepository,
	cache storage.Cache,
	tokens *jwt.Manager,
	sender CodeSender,
	cfg config.OTPConfig,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Service {
	return &Service{
		users:    users,
		requests: requests,
		cache:    cache,
		tokens:   tokens,
		sender:   sender,
		cfg:      cfg,
		metrics:  metrics,
		log:      log,
	}
}

// RequestCode 为邮箱生成并发送登录验证码。
//
// 同一邮箱重复请求会覆盖旧验证码。每小时的请求次数受限，
// 超限返回 ErrTooManyRequests。
func (s *Service) RequestCode(email string) error {
	email = domain.NormalizeEmail(email)
	if err := domain.ValidateEmail(email); err != nil {
		return ErrInvalidEmail
	}

	if s.cfg.SendPerHour > 0 {
		count, err := s.cache.IncrementRateLimit("otp-send:"+email, time.Hour)
		if err != nil {
			return fmt.Errorf("failed to check rate limit: %w", err)
		}
		if count > int64(s.cfg.SendPerHour) {
			return ErrTooManyRequests
		}
	}

	code, err := generateCode(s.cfg.Length)
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	if err := s.cache.SaveOTPCode(email, string(hash), s.cfg.TTL); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}

	if err := s.sender.SendLoginCode(email, code, s.cfg.TTL); err != nil {
		// 发不出去的验证码没有意义，立即作废
		_ = s.cache.DeleteOTPCode(email)
		return fmt.Errorf("failed to send login code: %w", err)
	}

	s.metrics.OTPCodesIssued.Inc()
	s.log.Info("login code sent", zap.String("email", email))
	return nil
}

// VerifyCode 校验验证码并签发令牌对。
//
// 用户不存在时自动注册（邮箱视为已验证），并归属该邮箱名下的
// 游客融资申请。
func (s *Service) VerifyCode(email, code string) (*domain.User, *jwt.TokenPair, error) {
	email = domain.NormalizeEmail(email)

	record, err := s.cache.GetOTPCode(email)
	if err != nil {
		if errors.Is(err, storage.ErrOTPNotFound) {
			s.metrics.OTPVerifications.WithLabelValues("expired").Inc()
			return nil, nil, ErrCodeExpired
		}
		return nil, nil, fmt.Errorf("failed to load code: %w", err)
	}

	if record.Attempts >= int64(s.cfg.MaxAttempts) {
		_ = s.cache.DeleteOTPCode(email)
		s.metrics.OTPVerifications.WithLabelValues("locked").Inc()
		return nil, nil, ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)) != nil {
		attempts, incErr := s.cache.IncrementOTPAttempts(email)
		if incErr == nil && attempts >= int64(s.cfg.MaxAttempts) {
			_ = s.cache.DeleteOTPCode(email)
			s.metrics.OTPVerifications.WithLabelValues("locked").Inc()
			return nil, nil, ErrTooManyAttempts
		}
		s.metrics.OTPVerifications.WithLabelValues("invalid").Inc()
		return nil, nil, ErrInvalidCode
	}

	// 一次性使用
	_ = s.cache.DeleteOTPCode(email)

	user, err := s.findOrRegister(email)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	_ = s.users.UpdateLastLogin(user.ID)

	pair, err := s.tokens.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue tokens: %w", err)
	}
	s.metrics.OTPVerifications.WithLabelValues("success").Inc()
	return user, pair, nil
}

// Refresh 使用刷新令牌换取新的访问令牌。
func (s *Service) Refresh(refreshToken string) (string, error) {
	return s.tokens.RefreshAccessToken(refreshToken)
}

// GetUserByID 根据 ID 获取用户。
func (s *Service) GetUserByID(userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile 更新用户资料。
func (s *Service) UpdateProfile(userID, firstName, lastName, phone string) (*domain.User, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	user.FirstName = firstName
	user.LastName = lastName
	user.Phone = phone
	if err := s.users.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

func (s *Service) findOrRegister(email string) (*domain.User, error) {
	user, err := s.users.GetUserByEmail(email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := time.Now()
	user = &domain.User{
		ID:              uuid.NewString(),
		Email:           email,
		IsActive:        true,
		IsEmailVerified: true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.CreateUser(user); err != nil {
		// 并发注册时另一请求可能抢先创建
		if errors.Is(err, storage.ErrEmailExists) {
			return s.users.GetUserByEmail(email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if claimed, err := s.requests.ClaimFinancingRequests(email, user.ID); err != nil {
		s.log.Warn("failed to claim financing requests",
			zap.String("email", email),
			zap.Error(err),
		)
	} else if claimed > 0 {
		s.log.Info("claimed guest financing requests",
			zap.String("user_id", user.ID),
			zap.Int("count", claimed),
		)
	}

	return user, nil
}

// generateCode 生成指定位数的十进制验证码。
func generateCode(length int) (string, error) {
	const digits = "0123456789"
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = digits[int(b)%len(digits)]
	}
	return string(buf), nil
}
