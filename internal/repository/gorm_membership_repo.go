package repository

import (
	"context"
	"time"

	"github.com/rusikfsk/unichat/internal/domain"
)

// GetMembership retrieves the membership of userID in conversationID.
func (r *GormRepository) GetMembership(ctx context.Context, conversationID, userID string) (*domain.Membership, error) {
	var model domain.MembershipModel
	err := r.conn(ctx).
		First(&model, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
	if err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// ListMembers lists the memberships of a conversation in join order.
func (r *GormRepository) ListMembers(ctx context.Context, conversationID string) ([]domain.Membership, error) {
	var models []domain.MembershipModel
	err := r.conn(ctx).
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC, user_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	members := make([]domain.Membership, len(models))
	for i := range models {
		members[i] = *models[i].ToDomain()
	}
	return members, nil
}

// AddMembership inserts a membership. An existing pair yields ErrConflict.
func (r *GormRepository) AddMembership(ctx context.Context, m *domain.Membership) error {
	return translate(r.conn(ctx).Create(domain.MembershipToModel(m)).Error)
}

// UpdateMembership sets role and permission bits of an existing membership.
func (r *GormRepository) UpdateMembership(ctx context.Context, conversationID, userID string, role domain.Role, perms domain.Permission) error {
	result := r.conn(ctx).Model(&domain.MembershipModel{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]interface{}{
			"role":        int(role),
			"permissions": int(perms),
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMembership removes a membership.
func (r *GormRepository) DeleteMembership(ctx context.Context, conversationID, userID string) error {
	result := r.conn(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&domain.MembershipModel{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceLastRead is a conditional update, so concurrent calls never move
// the cursor backwards.
func (r *GormRepository) AdvanceLastRead(ctx context.Context, conversationID, userID string, at time.Time) (time.Time, error) {
	err := r.conn(ctx).Model(&domain.MembershipModel{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Where("last_read_at IS NULL OR last_read_at < ?", at).
		Update("last_read_at", at).Error
	if err != nil {
		return time.Time{}, translate(err)
	}

	m, err := r.GetMembership(ctx, conversationID, userID)
	if err != nil {
		return time.Time{}, err
	}
	if m.LastReadAt == nil {
		return at, nil
	}
	return *m.LastReadAt, nil
}

// CountUnread counts messages from other senders newer than lastReadAt.
func (r *GormRepository) CountUnread(ctx context.Context, conversationID, userID string, lastReadAt *time.Time) (int64, error) {
	query := r.conn(ctx).Model(&domain.MessageModel{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, userID)
	if lastReadAt != nil {
		query = query.Where("created_at > ?", *lastReadAt)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
