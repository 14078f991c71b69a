package directory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRole grants one approval role to one user.
type UserRole struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:128;not null;uniqueIndex:idx_user_role"`
	Role      string `gorm:"size:64;not null;uniqueIndex:idx_user_role"`
	CreatedAt time.Time
}

func (UserRole) TableName() string {
	return "approval_user_roles"
}

// OpenPostgres connects to the role database, retrying while it starts up,
// and migrates the user-role table.
func OpenPostgres(dsn string, attempts int, logger *zap.Logger) (*gorm.DB, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 1; i <= attempts; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to role database",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
		if i < attempts {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to role database after %d attempts: %w", attempts, err)
	}

	if err := db.AutoMigrate(&UserRole{}); err != nil {
		return nil, fmt.Errorf("failed to migrate role table: %w", err)
	}

	logger.Info("Role database connected")
	return db, nil
}

// GormDirectory reads roles from the approval_user_roles table.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) RolesOf(ctx context.Context, userID string) ([]string, error) {
	roles := []string{}
	err := d.db.WithContext(ctx).
		Model(&UserRole{}).
		Where("user_id = ?", userID).
		Order("role").
		Pluck("role", &roles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load roles of %s: %w", userID, err)
	}
	return roles, nil
}

// Grant adds roles to a user; grants that already exist are skipped.
func (d *GormDirectory) Grant(ctx context.Context, userID string, roles ...string) error {
	rows := make([]UserRole, 0, len(roles))
	for _, r := range normalize(roles) {
		rows = append(rows, UserRole{UserID: userID, Role: r})
	}
	if len(rows) == 0 {
		return nil
	}

	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to grant roles to %s: %w", userID, err)
	}
	return nil
}

// Seed grants every configured user its roles.
func (d *GormDirectory) Seed(ctx context.Context, users map[string][]string) error {
	for user, roles := range users {
		if err := d.Grant(ctx, user, roles...); err != nil {
			return err
		}
	}
	return nil
}
