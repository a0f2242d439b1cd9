package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fitclass-api/internal/models"
)

// TrainerRepository reads trainers owned by the identity service.
type TrainerRepository struct {
	db *sqlx.DB
}

// NewTrainerRepository creates a new trainer repository.
func NewTrainerRepository(db *sqlx.DB) *TrainerRepository {
	return &TrainerRepository{db: db}
}

// FindByID loads a trainer by id. Missing rows and malformed ids surface as
// sql.ErrNoRows.
func (r *TrainerRepository) FindByID(ctx context.Context, id string) (*models.Trainer, error) {
	const query = `SELECT id, email, full_name, created_at FROM trainers WHERE id = $1`
	var trainer models.Trainer
	if err := r.db.GetContext(ctx, &trainer, query, id); err != nil {
		return nil, noRowsOnMalformedID(err)
	}
	return &trainer, nil
}

// TraineeRepository reads trainees owned by the identity service.
type TraineeRepository struct {
	db *sqlx.DB
}

// NewTraineeRepository creates a new trainee repository.
func NewTraineeRepository(db *sqlx.DB) *TraineeRepository {
	return &TraineeRepository{db: db}
}

// ExistsByEmail reports whether a trainee with the email exists.
func (r *TraineeRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM trainees WHERE LOWER(email) = LOWER($1))`, email); err != nil {
		return false, fmt.Errorf("check trainee email: %w", err)
	}
	return exists, nil
}
