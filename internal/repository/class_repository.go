package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-portal-api/internal/models"
)

// ClassRepository handles persistence of classes and their course fee rows.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, course_id, name, start_date, end_date, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FeeContext resolves the fee information for a class in a single query:
// the course fee and plan type joined with the class start date.
func (r *ClassRepository) FeeContext(ctx context.Context, classID string) (*models.FeeContext, error) {
	const query = `SELECT cl.id AS class_id, co.id AS course_id, co.base_fee, co.plan_type, cl.start_date
        FROM classes cl
        JOIN courses co ON co.id = cl.course_id
        WHERE cl.id = $1`
	var fc models.FeeContext
	if err := r.db.GetContext(ctx, &fc, query, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("resolve fee context: %w", err)
	}
	return &fc, nil
}
