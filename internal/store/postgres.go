package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/teams-notifier/activity-api/internal/models"
)

// PostgresStore implements Store on the shared Postgres schema.
type PostgresStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// PostgresConfig configures a PostgresStore.
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	Logger       zerolog.Logger
}

// messageRow maps the message table, the one table this service writes.
type messageRow struct {
	MessageID               uuid.UUID `gorm:"column:message_id;primaryKey"`
	ConversationTokenID     int64     `gorm:"column:conversation_token_id"`
	ConversationReferenceID int64     `gorm:"column:conversation_reference_id"`
	ActivityID              string    `gorm:"column:activity_id"`
	CreatedAt               time.Time `gorm:"column:created_at"`
	UpdatedAt               time.Time `gorm:"column:updated_at"`
	// Plain pointer rather than gorm.DeletedAt: soft-deleted rows must stay
	// readable so the delete policy can tell "deleted" from "never existed".
	DeletedAt *time.Time `gorm:"column:deleted_at"`
}

// TableName implements the gorm tabler interface.
func (messageRow) TableName() string { return "message" }

// NewPostgres opens the database and validates connectivity.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	// Validates resolution and credentials at startup.
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: cfg.Logger.With().Str("component", "store").Logger(),
	}, nil
}

// ResolveConversation looks up the token in the sibling-owned tables.
func (s *PostgresStore) ResolveConversation(ctx context.Context, token uuid.UUID) (*models.ConversationReference, error) {
	var row struct {
		ConversationTokenID     int64
		ConversationReferenceID int64
		ConversationTeamsID     string
		ServiceURL              string
		BotID                   string
		UserID                  string
		TenantID                string
	}

	err := s.db.WithContext(ctx).
		Table("conversation_token AS ct").
		Select("ct.conversation_token_id, cr.conversation_reference_id, cr.conversation_teams_id, cr.service_url, cr.bot_id, cr.user_id, cr.tenant_id").
		Joins("JOIN conversation_reference cr USING (conversation_reference_id)").
		Where("ct.conversation_token = ?", token).
		Where("ct.expires_at IS NULL OR ct.expires_at > NOW()").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrUnknownConversation
		}
		return nil, fmt.Errorf("resolve conversation: %w: %v", models.ErrStorage, err)
	}

	return &models.ConversationReference{
		ID:             row.ConversationReferenceID,
		TokenID:        row.ConversationTokenID,
		ConversationID: row.ConversationTeamsID,
		ServiceURL:     row.ServiceURL,
		BotID:          row.BotID,
		UserID:         row.UserID,
		TenantID:       row.TenantID,
	}, nil
}

// CreateMessage inserts a new message row under a freshly generated UUIDv7.
func (s *PostgresStore) CreateMessage(ctx context.Context, ref *models.ConversationReference, activityID string) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate message id: %w: %v", models.ErrStorage, err)
	}

	now := time.Now().UTC()
	row := messageRow{
		MessageID:               id,
		ConversationTokenID:     ref.TokenID,
		ConversationReferenceID: ref.ID,
		ActivityID:              activityID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, fmt.Errorf("insert message: %w: %v", models.ErrStorage, err)
	}
	return id, nil
}

// GetMessage fetches a record with its conversation reference joined in.
func (s *PostgresStore) GetMessage(ctx context.Context, id uuid.UUID) (*models.MessageRecord, error) {
	var row struct {
		MessageID               uuid.UUID
		ConversationTokenID     int64
		ConversationReferenceID int64
		ActivityID              string
		CreatedAt               time.Time
		UpdatedAt               time.Time
		DeletedAt               *time.Time
		ConversationTeamsID     string
		ServiceURL              string
		BotID                   string
		UserID                  string
		TenantID                string
	}

	err := s.db.WithContext(ctx).
		Table("message AS m").
		Select("m.message_id, m.conversation_token_id, m.conversation_reference_id, m.activity_id, m.created_at, m.updated_at, m.deleted_at, cr.conversation_teams_id, cr.service_url, cr.bot_id, cr.user_id, cr.tenant_id").
		Joins("JOIN conversation_reference cr USING (conversation_reference_id)").
		Where("m.message_id = ?", id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w: %v", models.ErrStorage, err)
	}

	if row.DeletedAt != nil {
		return nil, models.ErrMessageDeleted
	}

	return &models.MessageRecord{
		ID:         row.MessageID,
		ActivityID: row.ActivityID,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		Ref: models.ConversationReference{
			ID:             row.ConversationReferenceID,
			TokenID:        row.ConversationTokenID,
			ConversationID: row.ConversationTeamsID,
			ServiceURL:     row.ServiceURL,
			BotID:          row.BotID,
			UserID:         row.UserID,
			TenantID:       row.TenantID,
		},
	}, nil
}

// TouchMessage bumps updated_at on a live record.
func (s *PostgresStore) TouchMessage(ctx context.Context, id uuid.UUID) (time.Time, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&messageRow{}).
		Where("message_id = ? AND deleted_at IS NULL", id).
		UpdateColumn("updated_at", now)
	if res.Error != nil {
		return time.Time{}, fmt.Errorf("touch message: %w: %v", models.ErrStorage, res.Error)
	}
	if res.RowsAffected == 0 {
		return time.Time{}, s.missingOrDeleted(ctx, id)
	}
	return now, nil
}

// MarkDeleted soft-deletes a record with a single conditional update so a
// concurrent double delete cannot both win.
func (s *PostgresStore) MarkDeleted(ctx context.Context, id uuid.UUID) (time.Time, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&messageRow{}).
		Where("message_id = ? AND deleted_at IS NULL", id).
		UpdateColumn("deleted_at", now)
	if res.Error != nil {
		return time.Time{}, fmt.Errorf("mark deleted: %w: %v", models.ErrStorage, res.Error)
	}
	if res.RowsAffected == 0 {
		return time.Time{}, s.missingOrDeleted(ctx, id)
	}
	return now, nil
}

// missingOrDeleted distinguishes why a conditional update affected no rows.
func (s *PostgresStore) missingOrDeleted(ctx context.Context, id uuid.UUID) error {
	var row messageRow
	err := s.db.WithContext(ctx).
		Select("message_id", "deleted_at").
		Where("message_id = ?", id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrMessageNotFound
		}
		return fmt.Errorf("inspect message: %w: %v", models.ErrStorage, err)
	}
	return models.ErrMessageDeleted
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
