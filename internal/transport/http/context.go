package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homematch/backend/internal/auth"
	"homematch/backend/internal/domain"
)

// currentUser 从 JWT 中间件注入的上下文加载当前用户。
// 失败时已写好响应，调用方直接 return 即可。
func currentUser(c *gin.Context, authService *auth.Service, log *zap.Logger) (*domain.User, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		Unauthorized(c, MsgAuthRequired)
		return nil, false
	}

	user, err := authService.GetUserByID(userID.(string))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			Unauthorized(c, MsgTokenInvalid)
			return nil, false
		}
		log.Error("failed to load current user", zap.Error(err))
		InternalError(c, MsgUserGetFailed)
		return nil, false
	}
	return user, true
}
