package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rusikfsk/unichat/internal/audit"
	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/repository"
	"github.com/rusikfsk/unichat/pkg/log"
)

// SendMessage validates, authorizes and persists a message, then emits it
// followed by the sender's read cursor.
func (s *chatServiceImpl) SendMessage(ctx context.Context, userID, conversationID string, req *domain.SendMessageRequest) (*domain.MessageView, error) {
	text := strings.TrimSpace(req.Text)
	attachmentIDs, err := attachmentIDs(req.AttachmentIDs)
	if err != nil {
		return nil, err
	}
	if text == "" && len(attachmentIDs) == 0 {
		return nil, domain.Validationf("message must have text or attachments")
	}
	if utf8.RuneCountInString(text) > s.maxText {
		return nil, domain.Validationf("message text exceeds %d characters", s.maxText)
	}

	if _, err := s.authority.AuthorizeWrite(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	reply, err := s.resolveReply(ctx, conversationID, req.ReplyToID)
	if err != nil {
		return nil, err
	}

	attachments, err := s.checkAttachments(ctx, userID, attachmentIDs)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:             s.messageIDs.NewID(),
		ConversationID: conversationID,
		SenderID:       userID,
		Text:           text,
		CreatedAt:      s.now(),
		Reply:          reply,
	}
	if reply != nil {
		msg.ReplyToID = reply.MessageID
	}

	readAt := msg.CreatedAt
	err = s.repo.Transaction(ctx, func(tx repository.Repository) error {
		if err := tx.CreateMessage(ctx, msg); err != nil {
			return err
		}
		if len(attachmentIDs) > 0 {
			if err := tx.BindAttachments(ctx, msg.ID, userID, attachmentIDs); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return domain.Conflictf("attachment is already bound to a message")
				}
				return err
			}
		}
		at, err := tx.AdvanceLastRead(ctx, conversationID, userID, msg.CreatedAt)
		if err != nil {
			return notFound(err, "membership")
		}
		readAt = at
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range attachments {
		attachments[i].MessageID = msg.ID
	}
	view := domain.NewMessageView(msg, s.lookupUser(ctx, userID), attachments)

	s.events.Publish(ctx, conversationID, domain.NewMessageEvent(view))
	s.events.Publish(ctx, conversationID, domain.NewReadEvent(conversationID, userID, readAt))
	s.produce(ctx, conversationID, domain.NewMessageEvent(view))

	audit.LogTarget(ctx, audit.ActionSendMessage, userID, conversationID, msg.ID, "message sent")
	return view, nil
}

// attachmentIDs rejects empty and duplicate ids.
func attachmentIDs(ids []string) ([]string, error) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, domain.Validationf("attachment id is empty")
		}
		if seen[id] {
			return nil, domain.Validationf("attachment %s is listed more than once", id)
		}
		seen[id] = true
	}
	return ids, nil
}

func (s *chatServiceImpl) resolveReply(ctx context.Context, conversationID, replyToID string) (*domain.ReplyPreview, error) {
	if replyToID == "" {
		return nil, nil
	}

	target, err := s.repo.GetMessage(ctx, replyToID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Validationf("reply target does not exist")
		}
		return nil, err
	}
	if target.ConversationID != conversationID {
		return nil, domain.Validationf("reply target belongs to another conversation")
	}

	preview := &domain.ReplyPreview{
		MessageID: target.ID,
		SenderID:  target.SenderID,
		Text:      target.Text,
		CreatedAt: target.CreatedAt,
	}
	if u := s.lookupUser(ctx, target.SenderID); u != nil {
		preview.SenderName = u.Name()
	}
	return preview, nil
}

// checkAttachments loads ids in request order and verifies each one can be
// bound by uploaderID.
func (s *chatServiceImpl) checkAttachments(ctx context.Context, uploaderID string, ids []string) ([]domain.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found, err := s.repo.GetAttachments(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Attachment, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}

	out := make([]domain.Attachment, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, domain.NotFoundf("attachment %s not found", id)
		}
		if a.UploaderID != uploaderID {
			return nil, domain.Forbiddenf("attachment %s was uploaded by another user", id)
		}
		if a.Bound() {
			return nil, domain.Conflictf("attachment %s is already bound to a message", id)
		}
		out = append(out, a)
	}
	return out, nil
}

// DeleteMessage removes a message and its attachments. Allowed for the
// sender and for members holding the delete_messages permission.
func (s *chatServiceImpl) DeleteMessage(ctx context.Context, userID, messageID string) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return notFound(err, "message")
	}

	grant, err := s.authority.Authorize(ctx, userID, msg.ConversationID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID && !grant.Membership.HasPermission(domain.PermDeleteMessages) {
		return domain.Forbiddenf("cannot delete another user's message")
	}

	var removed []domain.Attachment
	err = s.repo.Transaction(ctx, func(tx repository.Repository) error {
		var err error
		if removed, err = tx.DeleteAttachmentsByMessage(ctx, msg.ID); err != nil {
			return err
		}
		return notFound(tx.DeleteMessage(ctx, msg.ID), "message")
	})
	if err != nil {
		return err
	}

	s.deleteBlobs(ctx, removed)

	ev := domain.NewMessageDeletedEvent(msg.ConversationID, msg.ID)
	s.events.Publish(ctx, msg.ConversationID, ev)
	s.produce(ctx, msg.ConversationID, ev)

	audit.LogTarget(ctx, audit.ActionDeleteMessage, userID, msg.ConversationID, msg.ID, "message deleted")
	return nil
}

// MarkRead advances the caller's read cursor to the given message, or to
// now. The cursor never moves backwards.
func (s *chatServiceImpl) MarkRead(ctx context.Context, userID, conversationID string, req *domain.MarkReadRequest) (*domain.ReadResponse, error) {
	if _, err := s.authority.Authorize(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	at := s.now()
	if req != nil && req.MessageID != "" {
		msg, err := s.repo.GetMessage(ctx, req.MessageID)
		if err != nil {
			return nil, notFound(err, "message")
		}
		if msg.ConversationID != conversationID {
			return nil, domain.Validationf("message belongs to another conversation")
		}
		at = msg.CreatedAt
	}

	readAt, err := s.repo.AdvanceLastRead(ctx, conversationID, userID, at)
	if err != nil {
		return nil, notFound(err, "membership")
	}

	s.events.Publish(ctx, conversationID, domain.NewReadEvent(conversationID, userID, readAt))
	return &domain.ReadResponse{ConversationID: conversationID, ReadAt: readAt}, nil
}

// GetHistory returns one page of messages older than q.BeforeMessageID in
// ascending order. Reading the newest page marks it as read.
func (s *chatServiceImpl) GetHistory(ctx context.Context, userID, conversationID string, q *domain.HistoryQuery) (*domain.MessagePage, error) {
	grant, err := s.authority.Authorize(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if q == nil {
		q = &domain.HistoryQuery{}
	}

	take := s.historyTake
	if q.Take != nil {
		take = min(max(*q.Take, 1), s.historyMax)
	}

	var before *domain.Message
	if q.BeforeMessageID != "" {
		before, err = s.repo.GetMessage(ctx, q.BeforeMessageID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, domain.Validationf("before_message_id does not exist")
			}
			return nil, err
		}
		if before.ConversationID != conversationID {
			return nil, domain.Validationf("before_message_id belongs to another conversation")
		}
	}

	msgs, err := s.repo.ListMessagesBefore(ctx, conversationID, before, take+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(msgs) > take
	if hasMore {
		msgs = msgs[:take]
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	views, err := s.materialize(ctx, msgs)
	if err != nil {
		return nil, err
	}

	if before == nil && len(msgs) > 0 {
		s.readThrough(ctx, grant.Membership, msgs[len(msgs)-1].CreatedAt)
	}

	return &domain.MessagePage{Messages: views, HasMore: hasMore}, nil
}

// readThrough advances m's cursor to newest when the viewer has not seen it
// yet. Errors are logged; the page is still returned.
func (s *chatServiceImpl) readThrough(ctx context.Context, m *domain.Membership, newest time.Time) {
	if m.LastReadAt != nil && !m.LastReadAt.Before(newest) {
		return
	}

	readAt, err := s.repo.AdvanceLastRead(ctx, m.ConversationID, m.UserID, newest)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).
			Str(log.FieldConversationID, m.ConversationID).
			Str(log.FieldUserID, m.UserID).
			Msg("failed to advance read cursor")
		return
	}
	s.events.Publish(ctx, m.ConversationID, domain.NewReadEvent(m.ConversationID, m.UserID, readAt))
}
