package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
)

// GormStreamRepository implements StreamRepository using GORM.
type GormStreamRepository struct {
	db *gorm.DB
}

// NewGormStreamRepository creates a new GORM-based stream repository.
func NewGormStreamRepository(db *gorm.DB) *GormStreamRepository {
	return &GormStreamRepository{db: db}
}

// GetByID retrieves a stream by ID.
func (r *GormStreamRepository) GetByID(ctx context.Context, id string) (*domain.Stream, error) {
	l := log.Ctx(ctx)

	var model domain.StreamModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrStreamNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to get stream by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// List retrieves every stream ordered by id.
func (r *GormStreamRepository) List(ctx context.Context) ([]domain.Stream, error) {
	l := log.Ctx(ctx)

	var models []domain.StreamModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list streams from db")
		return nil, err
	}

	streams := make([]domain.Stream, len(models))
	for i, model := range models {
		streams[i] = *model.ToDomain()
	}
	return streams, nil
}

// SetLive records the live flag and broadcaster of a stream.
func (r *GormStreamRepository) SetLive(ctx context.Context, id string, live bool, broadcasterID string) error {
	l := log.Ctx(ctx)

	if !live {
		broadcasterID = ""
	}

	result := r.db.WithContext(ctx).Model(&domain.StreamModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_live":        live,
			"broadcaster_id": broadcasterID,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to update stream status in db")
		return result.Error
	}

	// Some drivers report zero rows when nothing changed, so confirm the row exists.
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.StreamModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrStreamNotFound
		}
	}

	l.Debug().Str(log.FieldRoomID, id).Bool("is_live", live).Msg("stream status updated in db")
	return nil
}

// ClearLive resets streams left live by an instance that exited without
// sending them offline.
func (r *GormStreamRepository) ClearLive(ctx context.Context) ([]string, error) {
	l := log.Ctx(ctx)

	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.StreamModel{}).Where("is_live = ?", true).Order("id ASC").Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&domain.StreamModel{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"is_live":        false,
				"broadcaster_id": "",
			}).Error
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to clear live streams")
		return nil, err
	}
	return ids, nil
}

// Seed inserts streams into an empty table.
func (r *GormStreamRepository) Seed(ctx context.Context, streams []domain.Stream) (int, error) {
	l := log.Ctx(ctx)

	var inserted int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.StreamModel{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		models := make([]*domain.StreamModel, len(streams))
		for i := range streams {
			models[i] = domain.StreamToModel(&streams[i])
		}
		if len(models) == 0 {
			return nil
		}
		if err := tx.Create(&models).Error; err != nil {
			return err
		}
		inserted = len(models)
		return nil
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to seed streams")
		return 0, err
	}

	if inserted > 0 {
		l.Info().Int("count", inserted).Msg("seeded streams")
	}
	return inserted, nil
}
