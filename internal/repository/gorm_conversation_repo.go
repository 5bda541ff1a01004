package repository

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/pkg/log"
)

// CreateConversation inserts the conversation and its members in one transaction.
func (r *GormRepository) CreateConversation(ctx context.Context, conv *domain.Conversation, directKey string, members []domain.Membership) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(domain.ConversationToModel(conv, directKey)).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		models := make([]*domain.MembershipModel, len(members))
		for i := range members {
			models[i] = domain.MembershipToModel(&members[i])
		}
		return tx.Create(models).Error
	})
	if err != nil {
		err = translate(err)
		if err != ErrConflict {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldConversationID, conv.ID).Msg("failed to create conversation in db")
		}
		return err
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (r *GormRepository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	if err := r.conn(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// FindDirectConversation retrieves the direct conversation with the given pair key.
func (r *GormRepository) FindDirectConversation(ctx context.Context, directKey string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	if err := r.conn(ctx).First(&model, "direct_key = ?", directKey).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// SetConversationOwner updates the owner of a conversation.
func (r *GormRepository) SetConversationOwner(ctx context.Context, id, ownerID string) error {
	result := r.conn(ctx).Model(&domain.ConversationModel{}).
		Where("id = ?", id).
		Update("owner_id", ownerID)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteConversation cascades attachments, messages and memberships.
func (r *GormRepository) DeleteConversation(ctx context.Context, id string) ([]domain.Attachment, error) {
	var removed []domain.Attachment

	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		messageIDs := tx.Model(&domain.MessageModel{}).Select("id").Where("conversation_id = ?", id)

		var attachments []domain.AttachmentModel
		if err := tx.Where("message_id IN (?)", messageIDs).Find(&attachments).Error; err != nil {
			return err
		}
		if len(attachments) > 0 {
			if err := tx.Where("message_id IN (?)", messageIDs).Delete(&domain.AttachmentModel{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.MessageModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.MembershipModel{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&domain.ConversationModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		removed = make([]domain.Attachment, len(attachments))
		for i := range attachments {
			removed[i] = *attachments[i].ToDomain()
		}
		return nil
	})
	if err != nil {
		err = translate(err)
		if err != ErrNotFound {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldConversationID, id).Msg("failed to delete conversation in db")
		}
		return nil, err
	}
	return removed, nil
}

// ListConversationSummaries lists the conversations userID belongs to,
// most recently active first.
func (r *GormRepository) ListConversationSummaries(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	db := r.conn(ctx)

	var memberships []domain.MembershipModel
	if err := db.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return []domain.ConversationSummary{}, nil
	}

	ids := make([]string, len(memberships))
	for i := range memberships {
		ids[i] = memberships[i].ConversationID
	}

	var convs []domain.ConversationModel
	if err := db.Where("id IN ?", ids).Find(&convs).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.ConversationModel, len(convs))
	for i := range convs {
		byID[convs[i].ID] = &convs[i]
	}

	type memberCount struct {
		ConversationID string
		Count          int
	}
	var counts []memberCount
	if err := db.Model(&domain.MembershipModel{}).
		Select("conversation_id, COUNT(*) AS count").
		Where("conversation_id IN ?", ids).
		Group("conversation_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	countByID := make(map[string]int, len(counts))
	for _, c := range counts {
		countByID[c.ConversationID] = c.Count
	}

	summaries := make([]domain.ConversationSummary, 0, len(memberships))
	for i := range memberships {
		m := memberships[i].ToDomain()
		conv, ok := byID[m.ConversationID]
		if !ok {
			continue
		}

		summary := domain.ConversationSummary{
			Conversation: *conv.ToDomain(),
			Role:         m.Role,
			Permissions:  m.Permissions,
			MemberCount:  countByID[m.ConversationID],
		}

		var last domain.MessageModel
		err := db.Where("conversation_id = ?", m.ConversationID).
			Order("created_at DESC, id DESC").
			Limit(1).
			Find(&last).Error
		if err != nil {
			return nil, err
		}
		if last.ID != "" {
			at := last.CreatedAt
			summary.LastMessageText = last.Text
			summary.LastMessageAt = &at
		}

		unread, err := r.CountUnread(ctx, m.ConversationID, userID, m.LastReadAt)
		if err != nil {
			return nil, err
		}
		summary.UnreadCount = unread

		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return activity(&summaries[i]).After(activity(&summaries[j]))
	})
	return summaries, nil
}

func activity(s *domain.ConversationSummary) time.Time {
	if s.LastMessageAt != nil && s.LastMessageAt.After(s.CreatedAt) {
		return *s.LastMessageAt
	}
	return s.CreatedAt
}
