package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rusikfsk/unichat/internal/audit"
	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/pkg/log"
	"github.com/rusikfsk/unichat/pkg/storage"
)

// ErrAttachmentTooLarge is returned for uploads above the configured limit.
var ErrAttachmentTooLarge = domain.Validationf("attachment exceeds the size limit")

const defaultContentType = "application/octet-stream"

// AttachmentKey is the blob key for an attachment uploaded on day.
func AttachmentKey(day, id, fileName string) string {
	return fmt.Sprintf("attachments/%s/%s%s", day, id, strings.ToLower(filepath.Ext(fileName)))
}

// UploadAttachment stores the file and records it as unbound. No row is
// written when the blob cannot be stored.
func (s *chatServiceImpl) UploadAttachment(ctx context.Context, uploaderID string, file *Upload) (*domain.AttachmentView, error) {
	if s.storage == nil {
		return nil, errors.New("attachment storage is not configured")
	}
	if file == nil || file.Body == nil || file.Size <= 0 {
		return nil, domain.Validationf("file is empty")
	}
	if file.Size > s.maxUpload {
		return nil, ErrAttachmentTooLarge
	}

	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(file.FileName), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	now := s.now()
	a := &domain.Attachment{
		ID:          s.entityIDs.NewID(),
		UploaderID:  uploaderID,
		FileName:    name,
		ContentType: contentType,
		Size:        file.Size,
		CreatedAt:   now,
	}
	a.StorageKey = AttachmentKey(now.Format("2006-01-02"), a.ID, name)

	if err := s.storage.Put(ctx, a.StorageKey, io.LimitReader(file.Body, file.Size), file.Size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}

	if err := s.repo.CreateAttachment(ctx, a); err != nil {
		s.deleteBlobs(ctx, []domain.Attachment{*a})
		return nil, err
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldAttachmentID, a.ID).Int64("size", a.Size).Msg("attachment uploaded")
	audit.LogWithDetail(ctx, audit.ActionUploadAttachment, uploaderID, a.ID, "attachment uploaded")

	view := domain.NewAttachmentView(a)
	return &view, nil
}

// OpenAttachment serves an attachment to its uploader or to members of the
// conversation its message belongs to. Anything else reads as not found.
func (s *chatServiceImpl) OpenAttachment(ctx context.Context, userID, attachmentID string) (*domain.Attachment, io.ReadCloser, error) {
	a, err := s.visibleAttachment(ctx, userID, attachmentID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.storage.Get(ctx, a.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, domain.NotFoundf("attachment content not found")
		}
		return nil, nil, err
	}
	return a, rc, nil
}

// AttachmentURL returns a short-lived location of the attachment content in
// the blob store, under the same visibility rules as OpenAttachment.
func (s *chatServiceImpl) AttachmentURL(ctx context.Context, userID, attachmentID string) (string, error) {
	a, err := s.visibleAttachment(ctx, userID, attachmentID)
	if err != nil {
		return "", err
	}

	url, err := s.storage.URL(ctx, a.StorageKey, s.urlTTL)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", domain.NotFoundf("attachment content not found")
		}
		return "", err
	}
	return url, nil
}

func (s *chatServiceImpl) visibleAttachment(ctx context.Context, userID, attachmentID string) (*domain.Attachment, error) {
	if s.storage == nil {
		return nil, errors.New("attachment storage is not configured")
	}

	a, err := s.repo.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, notFound(err, "attachment")
	}
	if a.UploaderID == userID {
		return a, nil
	}

	if !a.Bound() {
		return nil, domain.NotFoundf("attachment not found")
	}
	msg, err := s.repo.GetMessage(ctx, a.MessageID)
	if err != nil {
		return nil, notFound(err, "attachment")
	}
	if _, err := s.authority.Authorize(ctx, userID, msg.ConversationID); err != nil {
		if errors.Is(err, domain.ErrForbidden) || errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("attachment not found")
		}
		return nil, err
	}
	return a, nil
}
