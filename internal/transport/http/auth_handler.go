package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homematch/backend/internal/auth"
	jwtpkg "homematch/backend/internal/auth/jwt"
	"homematch/backend/internal/domain"
)

// AuthHandler 处理验证码登录相关的 HTTP 请求
type AuthHandler struct {
	authService *auth.Service
	log         *zap.Logger
}

// NewAuthHandler 创建认证处理器。
func NewAuthHandler(authService *auth.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

type requestCodeRequest struct {
	Email string `json:"email" binding:"required"`
}

type verifyCodeRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type authResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

type userResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	Phone           string `json:"phone,omitempty"`
	IsActive        bool   `json:"isActive"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

func toUserResponse(user *domain.User) userResponse {
	return userResponse{
		ID:              user.ID,
		Email:           user.Email,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		Phone:           user.Phone,
		IsActive:        user.IsActive,
		IsEmailVerified: user.IsEmailVerified,
	}
}

// RequestCode 发送登录验证码
// @Summary 请求登录验证码
// @Description 向指定邮箱发送一次性登录验证码，无需预先注册
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body requestCodeRequest true "邮箱"
// @Success 200 {object} Response "验证码已发送"
// @Failure 400 {object} Response "邮箱格式无效"
// @Failure 429 {object} Response "请求过于频繁"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/auth/request-code [post]
func (h *AuthHandler) RequestCode(c *gin.Context) {
	var req requestCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	if err := h.authService.RequestCode(req.Email); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidEmail):
			BadRequest(c, GetErrorMessage(err))
		case errors.Is(err, auth.ErrTooManyRequests):
			TooManyRequests(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to send login code", zap.Error(err))
			InternalError(c, MsgCodeSendFailed)
		}
		return
	}

	SuccessWithMsg(c, "验证码已发送", nil)
}

// Verify 校验验证码并登录
// @Summary 验证码登录
// @Description 校验邮箱验证码，首次登录自动注册，返回用户信息和令牌
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body verifyCodeRequest true "邮箱和验证码"
// @Success 200 {object} authResponse "登录成功"
// @Failure 400 {object} Response "验证码错误或已过期"
// @Failure 403 {object} Response "账户已被禁用"
// @Failure 429 {object} Response "验证失败次数过多"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/auth/verify [post]
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, tokens, err := h.authService.VerifyCode(req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidEmail),
			errors.Is(err, auth.ErrCodeExpired),
			errors.Is(err, auth.ErrInvalidCode):
			BadRequest(c, GetErrorMessage(err))
		case errors.Is(err, auth.ErrTooManyAttempts):
			TooManyRequests(c, GetErrorMessage(err))
		case errors.Is(err, auth.ErrUserInactive):
			Forbidden(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to verify login code", zap.Error(err))
			InternalError(c, MsgLoginFailed)
		}
		return
	}

	Success(c, authResponse{
		User:         toUserResponse(user),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	})
}

// Refresh 刷新访问令牌
// @Summary 刷新访问令牌
// @Description 使用刷新令牌获取新的访问令牌，避免重新登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body refreshRequest true "刷新令牌"
// @Success 200 {object} object{accessToken=string} "新的访问令牌"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "刷新令牌无效或已过期"
// @Router /v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, jwtpkg.ErrExpiredToken):
			Unauthorized(c, MsgTokenExpired)
		default:
			Unauthorized(c, MsgTokenInvalid)
		}
		return
	}

	Success(c, gin.H{"accessToken": accessToken})
}

// Me 获取当前用户信息
// @Summary 获取当前用户信息
// @Description 获取已认证用户的详细信息
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} userResponse "用户信息"
// @Failure 401 {object} Response "未认证或令牌无效"
// @Failure 404 {object} Response "用户不存在"
// @Router /v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	user, err := h.authService.GetUserByID(userID.(string))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			NotFound(c, GetErrorMessage(err))
			return
		}
		h.log.Error("failed to get user", zap.Error(err))
		InternalError(c, MsgUserGetFailed)
		return
	}

	Success(c, toUserResponse(user))
}

type updateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
}

// UpdateProfile 更新个人资料
// @Summary 更新个人资料
// @Description 更新当前用户的姓名和电话
// @Tags 认证
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body updateProfileRequest true "资料"
// @Success 200 {object} userResponse "更新后的用户信息"
// @Failure 401 {object} Response "未认证"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/auth/profile [patch]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.UpdateProfile(userID.(string), req.FirstName, req.LastName, req.Phone)
	if err != nil {
		h.log.Error("failed to update profile", zap.Error(err))
		InternalError(c, MsgProfileUpdateFailed)
		return
	}

	Success(c, toUserResponse(user))
}
