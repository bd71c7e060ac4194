package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homematch/backend/internal/auth"
	"homematch/backend/internal/domain"
	"homematch/backend/internal/service"
	"homematch/backend/internal/storage"
)

// FinancingHandler 处理融资申请和房源、贷款方目录的 HTTP 请求
type FinancingHandler struct {
	financing *service.FinancingService
	auth      *auth.Service
	store     storage.Store
	log       *zap.Logger
}

// NewFinancingHandler 创建融资申请处理器。
func NewFinancingHandler(
	financing *service.FinancingService,
	authService *auth.Service,
	store storage.Store,
	log *zap.Logger,
) *FinancingHandler {
	return &FinancingHandler{
		financing: financing,
		auth:      authService,
		store:     store,
		log:       log,
	}
}

type submitFinancingRequest struct {
	ListingID    string `json:"listingId"`
	Email        string `json:"email" binding:"required"`
	Phone        string `json:"phone"`
	PropertyType string `json:"propertyType"`
	LoanAmount   int64  `json:"loanAmount" binding:"required"`
}

// Submit 提交融资申请
// @Summary 提交融资申请
// @Description 游客或登录用户针对房源提交融资申请，游客只需留联系邮箱
// @Tags 融资申请
// @Accept json
// @Produce json
// @Param request body submitFinancingRequest true "申请内容"
// @Success 201 {object} domain.FinancingRequest
// @Failure 400 {object} Response "参数错误"
// @Failure 404 {object} Response "房源不存在"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/financing-requests [post]
func (h *FinancingHandler) Submit(c *gin.Context) {
	var req submitFinancingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	// 已登录用户自动关联，游客为 nil
	var userID *string
	if v, exists := c.Get("userID"); exists {
		if uid, ok := v.(string); ok {
			userID = &uid
		}
	}

	request, err := h.financing.Submit(service.SubmitInput{
		ListingID:    req.ListingID,
		UserID:       userID,
		Email:        req.Email,
		Phone:        req.Phone,
		PropertyType: req.PropertyType,
		LoanAmount:   req.LoanAmount,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidContact), errors.Is(err, service.ErrInvalidLoanAmount):
			BadRequest(c, GetErrorMessage(err))
		case errors.Is(err, storage.ErrListingNotFound):
			NotFound(c, GetErrorMessage(err))
		default:
			h.log.Error("failed to submit financing request", zap.Error(err))
			InternalError(c, MsgFinancingSubmitFailed)
		}
		return
	}

	Created(c, request)
}

// ListMine 列出当前用户的融资申请
// @Summary 我的融资申请
// @Description 列出当前用户名下的全部融资申请，含注册前以同邮箱提交的
// @Tags 融资申请
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{items=[]domain.FinancingRequest,count=int}
// @Failure 401 {object} Response "未认证"
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/financing-requests/mine [get]
func (h *FinancingHandler) ListMine(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	requests, err := h.financing.ListForUser(user)
	if err != nil {
		h.log.Error("failed to list financing requests", zap.Error(err))
		InternalError(c, MsgFinancingListFailed)
		return
	}

	Success(c, gin.H{
		"items": requests,
		"count": len(requests),
	})
}

// ListListings 列出房源
// @Summary 房源列表
// @Description 返回可发起融资申请的房源列表
// @Tags 房源
// @Produce json
// @Success 200 {object} object{items=[]domain.Listing,count=int}
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/listings [get]
func (h *FinancingHandler) ListListings(c *gin.Context) {
	listings, err := h.store.ListListings()
	if err != nil {
		h.log.Error("failed to list listings", zap.Error(err))
		InternalError(c, MsgListingListFailed)
		return
	}

	Success(c, gin.H{
		"items": listings,
		"count": len(listings),
	})
}

// GetListing 房源详情
// @Summary 房源详情
// @Description 返回单个房源信息
// @Tags 房源
// @Produce json
// @Param id path string true "房源ID"
// @Success 200 {object} domain.Listing
// @Failure 404 {object} Response "房源不存在"
// @Router /v1/listings/{id} [get]
func (h *FinancingHandler) GetListing(c *gin.Context) {
	listing, err := h.store.GetListing(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrListingNotFound) {
			NotFound(c, GetErrorMessage(err))
			return
		}
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, listing)
}

// ListLenders 列出在营贷款方
// @Summary 贷款方列表
// @Description 返回当前可开启会话的贷款机构顾问
// @Tags 贷款方
// @Produce json
// @Success 200 {object} object{items=[]domain.Lender,count=int}
// @Failure 500 {object} Response "服务器内部错误"
// @Router /v1/lenders [get]
func (h *FinancingHandler) ListLenders(c *gin.Context) {
	lenders, err := h.store.ListActiveLenders()
	if err != nil {
		h.log.Error("failed to list lenders", zap.Error(err))
		InternalError(c, MsgLenderListFailed)
		return
	}

	Success(c, gin.H{
		"items": lenders,
		"count": len(lenders),
	})
}

func (h *FinancingHandler) currentUser(c *gin.Context) (*domain.User, bool) {
	return currentUser(c, h.auth, h.log)
}
