package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ssq-labs/commentpilot/app/models"
)

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) GetByPostID(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Where("post_id = ?", postID).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// GetOrCreate registers unknown posts with engagement disabled so the owner
// can opt in later.
func (r *postRepository) GetOrCreate(ctx context.Context, postID string, integrationID uint) (*models.Post, error) {
	post := &models.Post{PostID: postID, IntegrationID: integrationID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}},
		DoNothing: true,
	}).Create(post).Error
	if err != nil {
		return nil, err
	}
	return r.GetByPostID(ctx, postID)
}
