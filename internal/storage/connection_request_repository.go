package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"devconnect/internal/models"
)

// ConnectionRequestRepository defines the interface for connection
// request data operations.
type ConnectionRequestRepository interface {
	Create(ctx context.Context, request *models.ConnectionRequest) error
	GetByID(ctx context.Context, requestID uint) (*models.ConnectionRequest, error)
	// FindPendingFromSender looks for a pending request in the exact
	// direction sender -> receiver.
	FindPendingFromSender(ctx context.Context, senderID, receiverID uint) (*models.ConnectionRequest, error)
	// FindPendingForPair looks for a pending request in either direction.
	FindPendingForPair(ctx context.Context, profileID1, profileID2 uint) (*models.ConnectionRequest, error)
	UpdateStatus(ctx context.Context, requestID uint, status models.ConnectionRequestStatus) error
	// DeleteBySender physically removes a request, guarded by sender
	// identity. Returns the number of rows removed so callers can tell
	// an unauthorized attempt (0 rows) from a successful withdrawal.
	DeleteBySender(ctx context.Context, requestID, senderID uint) (int64, error)
	// DeleteAllForPair physically removes every request row between the
	// two profiles, in both directions and regardless of status. Used by
	// the connect self-heal path to clear stale records.
	DeleteAllForPair(ctx context.Context, profileID1, profileID2 uint) error
	ListPendingForReceiver(ctx context.Context, receiverID uint) ([]models.ConnectionRequest, error)
	ListPendingForSender(ctx context.Context, senderID uint) ([]models.ConnectionRequest, error)
}

type gormConnectionRequestRepository struct {
	db *gorm.DB
}

func NewGormConnectionRequestRepository(db *gorm.DB) ConnectionRequestRepository {
	return &gormConnectionRequestRepository{db: db}
}

func (r *gormConnectionRequestRepository) Create(ctx context.Context, request *models.ConnectionRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *gormConnectionRequestRepository) GetByID(ctx context.Context, requestID uint) (*models.ConnectionRequest, error) {
	var request models.ConnectionRequest
	err := r.db.WithContext(ctx).First(&request, requestID).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindPendingFromSender checks for a pending request from senderID to receiverID.
func (r *gormConnectionRequestRepository) FindPendingFromSender(ctx context.Context, senderID, receiverID uint) (*models.ConnectionRequest, error) {
	var request models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND receiver_id = ?", senderID, receiverID).
		Where("status = ?", models.ConnectionRequestStatusPending).
		First(&request).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // No pending request found is not an error in this context
		}
		return nil, err
	}
	return &request, nil
}

// FindPendingForPair checks if there is an existing pending request
// between two profiles (in either direction).
func (r *gormConnectionRequestRepository) FindPendingForPair(ctx context.Context, profileID1, profileID2 uint) (*models.ConnectionRequest, error) {
	var request models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			profileID1, profileID2, profileID2, profileID1).
		Where("status = ?", models.ConnectionRequestStatusPending).
		First(&request).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *gormConnectionRequestRepository) UpdateStatus(ctx context.Context, requestID uint, status models.ConnectionRequestStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.ConnectionRequest{}).
		Where("id = ?", requestID).
		Update("status", status).Error
}

// DeleteBySender 物理删除请求。软删除会让 (sender_id, receiver_id)
// 唯一索引永久占用该配对，因此请求的删除一律使用 Unscoped。
func (r *gormConnectionRequestRepository) DeleteBySender(ctx context.Context, requestID, senderID uint) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().
		Where("id = ? AND sender_id = ?", requestID, senderID).
		Delete(&models.ConnectionRequest{})
	return result.RowsAffected, result.Error
}

func (r *gormConnectionRequestRepository) DeleteAllForPair(ctx context.Context, profileID1, profileID2 uint) error {
	return r.db.WithContext(ctx).Unscoped().
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			profileID1, profileID2, profileID2, profileID1).
		Delete(&models.ConnectionRequest{}).Error
}

func (r *gormConnectionRequestRepository) ListPendingForReceiver(ctx context.Context, receiverID uint) ([]models.ConnectionRequest, error) {
	var requests []models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", receiverID, models.ConnectionRequestStatusPending).
		Find(&requests).Error
	return requests, err
}

func (r *gormConnectionRequestRepository) ListPendingForSender(ctx context.Context, senderID uint) ([]models.ConnectionRequest, error) {
	var requests []models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND status = ?", senderID, models.ConnectionRequestStatusPending).
		Find(&requests).Error
	return requests, err
}
