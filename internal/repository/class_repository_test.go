package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-portal-api/internal/models"
)

func TestClassRepositoryFeeContext(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"class_id", "course_id", "base_fee", "plan_type", "start_date"}).
		AddRow("class-1", "course-1", "50000.00", models.PlanBlock, start)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN courses co ON co.id = cl.course_id")).
		WithArgs("class-1").
		WillReturnRows(rows)

	fc, err := repo.FeeContext(context.Background(), "class-1")
	require.NoError(t, err)
	require.True(t, fc.BaseFee.Equal(decimal.NewFromInt(50000)))
	require.Equal(t, models.PlanBlock, fc.PlanType)
	require.Equal(t, start, fc.StartDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryFeeContextUnknownClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN courses co ON co.id = cl.course_id")).
		WithArgs("class-x").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FeeContext(context.Background(), "class-x")
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}
