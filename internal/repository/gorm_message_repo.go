package repository

import (
	"context"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/pkg/log"
)

// CreateMessage inserts a message.
func (r *GormRepository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if err := r.conn(ctx).Create(domain.MessageToModel(msg)).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to create message in db")
		return translate(err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (r *GormRepository) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	if err := r.conn(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// DeleteMessage removes a message row.
func (r *GormRepository) DeleteMessage(ctx context.Context, id string) error {
	result := r.conn(ctx).Where("id = ?", id).Delete(&domain.MessageModel{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMessagesBefore pages on (created_at, id) descending so messages that
// share a timestamp are neither skipped nor repeated.
func (r *GormRepository) ListMessagesBefore(ctx context.Context, conversationID string, before *domain.Message, limit int) ([]domain.Message, error) {
	query := r.conn(ctx).Where("conversation_id = ?", conversationID)
	if before != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)",
			before.CreatedAt, before.CreatedAt, before.ID)
	}

	var models []domain.MessageModel
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}

	messages := make([]domain.Message, len(models))
	for i := range models {
		messages[i] = *models[i].ToDomain()
	}
	return messages, nil
}
