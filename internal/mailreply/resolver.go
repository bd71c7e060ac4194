package mailreply

import (
	"fmt"
	"strings"

	"homematch/backend/internal/domain"
)

// Directory 提供发送方身份解析所需的最小数据读取能力。
// 由存储层实现；解析器本身不关心数据来自哪种存储。
type Directory interface {
	GetConversation(id int64) (*domain.Conversation, error)
	GetLender(id string) (*domain.Lender, error)
	GetUserByID(id string) (*domain.User, error)
	GetFinancingRequest(id string) (*domain.FinancingRequest, error)
}

// Resolution 是一次发送方解析的结果值对象。
//
// Type 为 SenderTypeUnknown 时表示发件地址与会话双方都不匹配，
// 调用方必须按授权失败处理并且不得持久化消息。
type Resolution struct {
	Type           domain.SenderType
	SenderID       string
	SenderName     string
	RecipientType  domain.SenderType
	RecipientID    string
	RecipientEmail string
	RecipientName  string
}

// Unknown 报告解析结果是否为"非会话参与方"。
func (r *Resolution) Unknown() bool {
	return r.Type == domain.SenderTypeUnknown
}

// Resolve 判定 candidateEmail 属于会话的哪一方。
//
// 固定顺序检查，先命中先生效：
//  1. 会话贷款方的邮箱 → lender，通知对象为买家侧；
//  2. 融资申请关联注册用户的邮箱 → buyer，通知对象为贷款方；
//  3. 融资申请的游客联系邮箱（覆盖注册前提交的买家）→ buyer，通知对象为贷款方。
//
// 邮箱比较一律大小写不敏感；不做空白归一化——带有首尾空格的地址
// 会判为不匹配，这是已知并被接受的假阴性。
// 存储读取失败时返回错误（上游按服务端错误处理）；单纯不匹配不是错误。
func Resolve(dir Directory, conversationID int64, candidateEmail string) (*Resolution, error) {
	conv, err := dir.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %d: %w", conversationID, err)
	}

	lender, err := dir.GetLender(conv.LenderID)
	if err != nil {
		return nil, fmt.Errorf("load lender %s: %w", conv.LenderID, err)
	}

	fr, err := dir.GetFinancingRequest(conv.FinancingRequestID)
	if err != nil {
		return nil, fmt.Errorf("load financing request %s: %w", conv.FinancingRequestID, err)
	}

	// 第一层：贷款方
	if strings.EqualFold(lender.Email, candidateEmail) {
		res := &Resolution{
			Type:          domain.SenderTypeLender,
			SenderID:      lender.ID,
			SenderName:    lender.DisplayName,
			RecipientType: domain.SenderTypeBuyer,
		}
		// 买家侧优先取注册用户；融资申请不保证引用完整，
		// 取不到时回退到申请上的联系邮箱。
		if fr.UserID != nil {
			if user, err := dir.GetUserByID(*fr.UserID); err == nil {
				res.RecipientID = user.ID
				res.RecipientEmail = user.Email
				res.RecipientName = user.FullName()
				return res, nil
			}
		}
		res.RecipientID = fr.Email
		res.RecipientEmail = fr.Email
		res.RecipientName = fr.Email
		return res, nil
	}

	// 第二层：注册用户买家
	if fr.UserID != nil {
		user, err := dir.GetUserByID(*fr.UserID)
		if err == nil && strings.EqualFold(user.Email, candidateEmail) {
			return &Resolution{
				Type:           domain.SenderTypeBuyer,
				SenderID:       user.ID,
				SenderName:     user.FullName(),
				RecipientType:  domain.SenderTypeLender,
				RecipientID:    lender.ID,
				RecipientEmail: lender.Email,
				RecipientName:  lender.DisplayName,
			}, nil
		}
	}

	// 第三层：游客买家（注册前提交的融资申请只有联系邮箱）
	if fr.Email != "" && strings.EqualFold(fr.Email, candidateEmail) {
		return &Resolution{
			Type:           domain.SenderTypeBuyer,
			SenderID:       fr.Email,
			SenderName:     fr.Email,
			RecipientType:  domain.SenderTypeLender,
			RecipientID:    lender.ID,
			RecipientEmail: lender.Email,
			RecipientName:  lender.DisplayName,
		}, nil
	}

	return &Resolution{Type: domain.SenderTypeUnknown}, nil
}
