package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ssq-labs/commentpilot/app/models"
)

type personaRepository struct {
	db *gorm.DB
}

func NewPersonaRepository(db *gorm.DB) PersonaRepository {
	return &personaRepository{db: db}
}

func (r *personaRepository) Create(ctx context.Context, persona *models.Persona) error {
	return r.db.WithContext(ctx).Create(persona).Error
}

// GetActiveByUserID returns the most recently updated persona of the user.
func (r *personaRepository) GetActiveByUserID(ctx context.Context, userID uint) (*models.Persona, error) {
	var persona models.Persona
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Order("id DESC").
		First(&persona).Error
	if err != nil {
		return nil, err
	}
	return &persona, nil
}
