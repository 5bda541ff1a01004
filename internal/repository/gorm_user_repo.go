package repository

import (
	"context"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/pkg/log"
)

// CreateUser inserts a user. A taken username yields ErrConflict.
func (r *GormRepository) CreateUser(ctx context.Context, user *domain.User) error {
	if err := r.conn(ctx).Create(domain.UserToModel(user)).Error; err != nil {
		err = translate(err)
		if err != ErrConflict {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to create user in db")
		}
		return err
	}
	return nil
}

// UpdateUserProfile sets the display name and email of a user.
func (r *GormRepository) UpdateUserProfile(ctx context.Context, id, displayName, email string) error {
	result := r.conn(ctx).Model(&domain.UserModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"display_name": displayName,
			"email":        email,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUser retrieves a user by ID.
func (r *GormRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var model domain.UserModel
	if err := r.conn(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToDomain(), nil
}

// GetUsers retrieves the users with the given IDs, keyed by ID. Unknown IDs are skipped.
func (r *GormRepository) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	users := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var models []domain.UserModel
	if err := r.conn(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for i := range models {
		users[models[i].ID] = models[i].ToDomain()
	}
	return users, nil
}
