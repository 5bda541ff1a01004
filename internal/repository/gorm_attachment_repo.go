package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/pkg/log"
)

// CreateAttachment inserts an unbound attachment.
func (r *GormRepository) CreateAttachment(ctx context.Context, a *domain.Attachment) error {
	if err := r.conn(ctx).Create(domain.AttachmentToModel(a)).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldAttachmentID, a.ID).Msg("failed to create attachment in db")
		return translate(err)
	}
	return nil
}

// GetAttachment retrieves an attachment by ID.
func (r *GormRepository) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	var model domain.AttachmentModel
	if err := r.conn(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// GetAttachments retrieves attachments by ID. Unknown IDs are skipped.
func (r *GormRepository) GetAttachments(ctx context.Context, ids []string) ([]domain.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []domain.AttachmentModel
	if err := r.conn(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}

	attachments := make([]domain.Attachment, len(models))
	for i := range models {
		attachments[i] = *models[i].ToDomain()
	}
	return attachments, nil
}

// BindAttachments binds with a single conditional update. If another send
// claimed any of the ids first, the row count falls short and the
// transaction rolls back.
func (r *GormRepository) BindAttachments(ctx context.Context, messageID, uploaderID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.AttachmentModel{}).
			Where("id IN ? AND uploader_id = ? AND message_id IS NULL", ids, uploaderID).
			Update("message_id", messageID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(ids)) {
			return ErrConflict
		}
		return nil
	})
}

// ListAttachmentsByMessages groups the attachments bound to messageIDs by message.
func (r *GormRepository) ListAttachmentsByMessages(ctx context.Context, messageIDs []string) (map[string][]domain.Attachment, error) {
	grouped := make(map[string][]domain.Attachment, len(messageIDs))
	if len(messageIDs) == 0 {
		return grouped, nil
	}

	var models []domain.AttachmentModel
	err := r.conn(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	for i := range models {
		a := models[i].ToDomain()
		grouped[a.MessageID] = append(grouped[a.MessageID], *a)
	}
	return grouped, nil
}

// DeleteAttachmentsByMessage removes the attachments bound to messageID and returns them.
func (r *GormRepository) DeleteAttachmentsByMessage(ctx context.Context, messageID string) ([]domain.Attachment, error) {
	var models []domain.AttachmentModel

	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Find(&models).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Where("message_id = ?", messageID).Delete(&domain.AttachmentModel{}).Error
	})
	if err != nil {
		return nil, err
	}

	attachments := make([]domain.Attachment, len(models))
	for i := range models {
		attachments[i] = *models[i].ToDomain()
	}
	return attachments, nil
}

// DeleteUnboundBefore deletes row by row with the unbound condition repeated,
// so an attachment bound after the scan is left alone.
func (r *GormRepository) DeleteUnboundBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Attachment, error) {
	var removed []domain.Attachment

	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []domain.AttachmentModel
		err := tx.Where("message_id IS NULL AND created_at < ?", cutoff).
			Order("created_at ASC").
			Limit(limit).
			Find(&candidates).Error
		if err != nil {
			return err
		}

		for i := range candidates {
			result := tx.Where("id = ? AND message_id IS NULL", candidates[i].ID).
				Delete(&domain.AttachmentModel{})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 1 {
				removed = append(removed, *candidates[i].ToDomain())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
