package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	bulkopdomain "github.com/parcelcraft/shipledger/internal/bulkop/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p ServiceParam) bulkopdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("bulkop.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, kind bulkopdomain.Kind, total int, metadata map[string]any) (*bulkopdomain.BulkOperation, error) {
	now := time.Now().UTC()
	op := bulkopdomain.BulkOperation{
		ID:         s.genID.Generate(),
		Kind:       kind,
		Status:     bulkopdomain.StatusPending,
		TotalCount: total,
		Metadata:   datatypes.JSONMap(metadata),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*bulkopdomain.BulkOperation, error) {
	var op bulkopdomain.BulkOperation
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&op).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

func (s *Service) Start(ctx context.Context, id snowflake.ID) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&bulkopdomain.BulkOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     bulkopdomain.StatusProcessing,
			"started_at": now,
			"updated_at": now,
		}).Error
}

func (s *Service) AddProgress(ctx context.Context, id snowflake.ID, processed, success, failed int) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE bulk_operations
		 SET processed = processed + ?, success = success + ?, failed = failed + ?, updated_at = ?
		 WHERE id = ?`,
		processed, success, failed, time.Now().UTC(), id,
	).Error
}

func (s *Service) Finish(ctx context.Context, id snowflake.ID) error {
	op, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if op == nil {
		return gorm.ErrRecordNotFound
	}

	status := bulkopdomain.StatusCompleted
	if op.Failed > 0 {
		status = bulkopdomain.StatusCompletedWithErrors
	}

	now := time.Now().UTC()
	s.log.Info("bulk operation finished",
		zap.Int64("id", int64(op.ID)),
		zap.String("kind", string(op.Kind)),
		zap.String("status", string(status)),
		zap.Int("processed", op.Processed),
		zap.Int("failed", op.Failed),
	)
	return s.db.WithContext(ctx).
		Model(&bulkopdomain.BulkOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      status,
			"finished_at": now,
			"updated_at":  now,
		}).Error
}

func (s *Service) Fail(ctx context.Context, id snowflake.ID, reason string) error {
	now := time.Now().UTC()
	s.log.Warn("bulk operation failed", zap.Int64("id", int64(id)), zap.String("reason", reason))
	return s.db.WithContext(ctx).
		Model(&bulkopdomain.BulkOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        bulkopdomain.StatusFailed,
			"error_message": reason,
			"finished_at":   now,
			"updated_at":    now,
		}).Error
}
