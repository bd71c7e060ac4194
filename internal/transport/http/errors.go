package httptransport

import (
	"homematch/backend/internal/auth"
	"homematch/backend/internal/service"
	"homematch/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 认证错误
	auth.ErrInvalidEmail:    "邮箱格式无效",
	auth.ErrCodeExpired:     "验证码已过期，请重新获取",
	auth.ErrInvalidCode:     "验证码错误",
	auth.ErrTooManyAttempts: "验证失败次数过多，请重新获取验证码",
	auth.ErrTooManyRequests: "验证码请求过于频繁，请稍后再试",
	auth.ErrUserInactive:    "账户已被禁用",
	auth.ErrUserNotFound:    "用户不存在",

	// 融资申请错误
	service.ErrInvalidContact:    "联系邮箱格式无效",
	service.ErrInvalidLoanAmount: "贷款金额必须为正数",

	// 会话错误
	service.ErrEmptyMessage:   "消息内容不能为空",
	service.ErrMessageTooLong: "消息长度超出上限",
	service.ErrNotParticipant: "您不是该会话的参与方",

	// 入站回复错误
	service.ErrAddressUnrecognized: "无法识别的回信地址",
	service.ErrSenderNotAuthorized: "发件人不是该会话的参与方",

	// 存储错误
	storage.ErrUserNotFound:             "用户不存在",
	storage.ErrLenderNotFound:           "贷款方不存在",
	storage.ErrListingNotFound:          "房源不存在",
	storage.ErrFinancingRequestNotFound: "融资申请不存在",
	storage.ErrConversationNotFound:     "会话不存在",
	storage.ErrMessageNotFound:          "消息不存在",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	return err.Error()
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgAuthRequired   = "需要登录认证"
	MsgTokenExpired   = "登录已过期，请重新登录"
	MsgTokenInvalid   = "无效的访问令牌"
	MsgInternalError  = "服务器内部错误，请稍后重试"

	MsgCodeSendFailed      = "发送验证码失败，请稍后重试"
	MsgLoginFailed         = "登录失败，请稍后重试"
	MsgUserGetFailed       = "获取用户信息失败"
	MsgProfileUpdateFailed = "更新个人资料失败"

	MsgFinancingSubmitFailed = "提交融资申请失败"
	MsgFinancingListFailed   = "获取融资申请列表失败"
	MsgListingListFailed     = "获取房源列表失败"
	MsgLenderListFailed      = "获取贷款方列表失败"

	MsgConversationStartFailed = "开启会话失败"
	MsgConversationListFailed  = "获取会话列表失败"
	MsgMessageListFailed       = "获取消息列表失败"
	MsgMessageSendFailed       = "发送消息失败"
	MsgMarkReadFailed          = "标记已读失败"

	MsgInboundProcessFailed = "处理入站邮件失败"
)
