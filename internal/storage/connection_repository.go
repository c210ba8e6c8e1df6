package storage

import (
	"context"

	"gorm.io/gorm"

	"devconnect/internal/models"
)

// ConnectionRepository defines the interface for connection data
// operations. Remember that one logical relationship is two directed
// rows; queries that ask "are these two connected" must look in both
// directions.
type ConnectionRepository interface {
	// CreatePair inserts both directed halves of a relationship.
	CreatePair(ctx context.Context, profileID1, profileID2 uint) ([]models.Connection, error)
	GetByID(ctx context.Context, connectionID uint) (*models.Connection, error)
	AreConnected(ctx context.Context, profileID1, profileID2 uint) (bool, error)
	// DeletePair removes every row matching either ordering of the pair
	// in a single statement.
	DeletePair(ctx context.Context, profileID1, profileID2 uint) error
	ListForOwner(ctx context.Context, ownerID uint) ([]models.Connection, error)
}

type gormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GORM-based ConnectionRepository.
func NewGormConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &gormConnectionRepository{db: db}
}

// CreatePair 同时创建 A→B 和 B→A 两行。没有包事务：物化消费者在
// 重投递时会先检查 AreConnected，所以这里只需要保证两行同批插入。
func (r *gormConnectionRepository) CreatePair(ctx context.Context, profileID1, profileID2 uint) ([]models.Connection, error) {
	rows := []models.Connection{
		{OwnerID: profileID1, CounterpartID: profileID2},
		{OwnerID: profileID2, CounterpartID: profileID1},
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *gormConnectionRepository) GetByID(ctx context.Context, connectionID uint) (*models.Connection, error) {
	var connection models.Connection
	err := r.db.WithContext(ctx).First(&connection, connectionID).Error
	if err != nil {
		return nil, err
	}
	return &connection, nil
}

// AreConnected checks whether any connection row links the two
// profiles, in either direction.
func (r *gormConnectionRepository) AreConnected(ctx context.Context, profileID1, profileID2 uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Connection{}).
		Where("(owner_id = ? AND counterpart_id = ?) OR (owner_id = ? AND counterpart_id = ?)",
			profileID1, profileID2, profileID2, profileID1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormConnectionRepository) DeletePair(ctx context.Context, profileID1, profileID2 uint) error {
	return r.db.WithContext(ctx).Unscoped().
		Where("(owner_id = ? AND counterpart_id = ?) OR (owner_id = ? AND counterpart_id = ?)",
			profileID1, profileID2, profileID2, profileID1).
		Delete(&models.Connection{}).Error
}

// ListForOwner retrieves the connections owned by the given profile
// (its half-rows only).
func (r *gormConnectionRepository) ListForOwner(ctx context.Context, ownerID uint) ([]models.Connection, error) {
	var connections []models.Connection
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Find(&connections).Error
	return connections, err
}
