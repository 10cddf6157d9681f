package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// Directory is the persistent user collection.
type Directory interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	UpdatePreferences(ctx context.Context, userID string, prefs models.MatchingPreferences) error
	UpdateLocation(ctx context.Context, userID string, loc models.Coordinates) error
}

// RoomArchive keeps a durable row per chat room.
type RoomArchive interface {
	SaveRoom(ctx context.Context, room *models.RoomRecord) error
	CloseRoom(ctx context.Context, roomID string) error
	GetActiveRoomIDs(ctx context.Context) ([]string, error)
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate creates the tables owned by this service.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.RoomRecord{},
	)
}

// Remote returns the realtime tree backed by the same Redis client.
func (s *Service) Remote() *RedisStore {
	return NewRedisStore(s.Redis)
}

// Local returns the per-owner key-value cache backed by the same Redis client.
func (s *Service) Local() *LocalCache {
	return NewLocalCache(s.Redis)
}

func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		logger.Error("Failed to get user", "user_id", userID, "error", err)
		return nil, err
	}
	return &user, nil
}

// ListUsers returns every registered user in table order.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Find(&users).Error; err != nil {
		logger.Error("Failed to list users", "error", err)
		return nil, err
	}
	return users, nil
}

func (s *Service) SaveUser(ctx context.Context, user *models.User) error {
	return s.DB.WithContext(ctx).Save(user).Error
}

func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs models.MatchingPreferences) error {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"pref_max_search_distance": prefs.MaxSearchDistance,
			"pref_genders":             prefs.Genders,
			"pref_privacy":             prefs.Privacy,
		})
	if result.Error != nil {
		return fmt.Errorf("updating preferences: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) UpdateLocation(ctx context.Context, userID string, loc models.Coordinates) error {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"loc_latitude":  loc.Latitude,
			"loc_longitude": loc.Longitude,
		})
	if result.Error != nil {
		return fmt.Errorf("updating location: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SaveRoom upserts the archived room row.
func (s *Service) SaveRoom(ctx context.Context, room *models.RoomRecord) error {
	return s.DB.WithContext(ctx).Save(room).Error
}

// CloseRoom marks the archived room inactive and stamps EndedAt.
func (s *Service) CloseRoom(ctx context.Context, roomID string) error {
	return s.DB.WithContext(ctx).Model(&models.RoomRecord{}).
		Where("room_id = ?", roomID).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  time.Now(),
		}).Error
}

// GetActiveRoomIDs lists the ids of rooms still marked active.
func (s *Service) GetActiveRoomIDs(ctx context.Context) ([]string, error) {
	var roomIDs []string
	if err := s.DB.WithContext(ctx).Model(&models.RoomRecord{}).
		Where("is_active = ?", true).
		Pluck("room_id", &roomIDs).Error; err != nil {
		logger.Error("Failed to retrieve active room ids", "error", err)
		return nil, err
	}
	return roomIDs, nil
}
