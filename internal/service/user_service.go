package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/repository"
	"github.com/rusikfsk/unichat/pkg/log"
)

const maxDisplayNameLength = 128

// EnsureUser returns the caller's profile, creating it from the identity
// claims on first sight.
func (s *chatServiceImpl) EnsureUser(ctx context.Context, userID, username string) (*domain.User, error) {
	if userID == "" {
		return nil, domain.Validationf("user id is required")
	}

	u, err := s.users.GetUser(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !isMissing(err) {
		return nil, err
	}

	if username == "" {
		username = userID
	}
	u = &domain.User{
		ID:        userID,
		Username:  username,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, err
		}
		// Either a concurrent first request created this user, or the
		// username belongs to someone else.
		existing, gerr := s.repo.GetUser(ctx, userID)
		if gerr != nil {
			return nil, domain.Conflictf("username %q is taken", username)
		}
		return existing, nil
	}

	l := log.Ctx(ctx)
	l.Info().Str(log.FieldUserID, userID).Str(log.FieldUsername, username).Msg("user profile created")
	return u, nil
}

// UpdateProfile upserts the caller's display name and email.
func (s *chatServiceImpl) UpdateProfile(ctx context.Context, userID, username string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	email := strings.TrimSpace(req.Email)
	if len([]rune(displayName)) > maxDisplayNameLength {
		return nil, domain.Validationf("display name exceeds %d characters", maxDisplayNameLength)
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, domain.Validationf("invalid email address")
		}
	}

	if _, err := s.EnsureUser(ctx, userID, username); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateUserProfile(ctx, userID, displayName, email); err != nil {
		return nil, notFound(err, "user")
	}
	if err := s.users.Invalidate(ctx, userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to invalidate user cache")
	}

	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}
