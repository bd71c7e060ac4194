package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"homematch/backend/internal/domain"
	"homematch/backend/internal/storage"
)

var (
	// ErrInvalidLoanAmount 贷款金额非法
	ErrInvalidLoanAmount = errors.New("invalid loan amount")
	// ErrInvalidContact 联系方式非法
	ErrInvalidContact = errors.New("invalid contact email")
)

// FinancingService 封装融资申请相关业务操作。
type FinancingService struct {
	requests storage.FinancingRequestRepository
	listings storage.ListingRepository
	log      *zap.Logger
}

// NewFinancingService 创建融资申请服务。
func NewFinancingService(
	requests storage.FinancingRequestRepository,
	listings storage.ListingRepository,
	log *zap.Logger,
) *FinancingService {
	return &FinancingService{requests: requests, listings: listings, log: log}
}

// SubmitInput 定义提交融资申请的输入。
// UserID 为空表示游客提交，注册后通过邮箱归属。
type SubmitInput struct {
	ListingID    string
	UserID       *string
	Email        string
	Phone        string
	PropertyType string
	LoanAmount   int64
}

// Submit 提交一条融资申请。
func (s *FinancingService) Submit(input SubmitInput) (*domain.FinancingRequest, error) {
	email := domain.NormalizeEmail(input.Email)
	if err := domain.ValidateEmail(email); err != nil {
		return nil, ErrInvalidContact
	}
	if input.LoanAmount <= 0 {
		return nil, ErrInvalidLoanAmount
	}

	propertyType := input.PropertyType
	if input.ListingID != "" {
		listing, err := s.listings.GetListing(input.ListingID)
		if err != nil {
			if errors.Is(err, storage.ErrListingNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load listing: %w", err)
		}
		// 房源上的类型优先于表单填写
		if listing.PropertyType != "" {
			propertyType = listing.PropertyType
		}
	}

	now := time.Now()
	request := &domain.FinancingRequest{
		ID:           uuid.NewString(),
		ListingID:    input.ListingID,
		UserID:       input.UserID,
		Email:        email,
		Phone:        input.Phone,
		PropertyType: propertyType,
		LoanAmount:   input.LoanAmount,
		Status:       domain.FinancingStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.requests.SaveFinancingRequest(request); err != nil {
		return nil, fmt.Errorf("save financing request: %w", err)
	}

	s.log.Info("financing request submitted",
		zap.String("request_id", request.ID),
		zap.String("listing_id", request.ListingID),
		zap.Int64("loan_amount", request.LoanAmount),
	)
	return request, nil
}

// Get 获取一条融资申请。
func (s *FinancingService) Get(id string) (*domain.FinancingRequest, error) {
	return s.requests.GetFinancingRequest(id)
}

// ListForUser 返回用户名下的全部申请（含注册前以同邮箱提交的）。
func (s *FinancingService) ListForUser(user *domain.User) ([]domain.FinancingRequest, error) {
	return s.requests.ListFinancingRequestsByEmail(user.Email)
}

// UpdateStatus 更新申请状态。
func (s *FinancingService) UpdateStatus(id string, status domain.FinancingStatus) error {
	return s.requests.UpdateFinancingRequestStatus(id, status)
}
