package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/scolara-dev/admission-api/internal/models"
)

func newSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSessionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO admission_sessions")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := &models.AdmissionSession{
		SchoolID:     "school-1",
		WorkflowType: models.WorkflowStandard,
		Name:         "2026/2027 Intake",
		StartDate:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		IsActive:     true,
	}
	err := repo.Create(context.Background(), session)
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.False(t, session.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryList(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	active := true
	rows := sqlmock.NewRows([]string{"id", "school_id", "workflow_type", "name", "start_date", "end_date", "is_active", "created_at"}).
		AddRow("s1", "school-1", models.WorkflowStandard, "Intake", time.Now(), nil, true, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM admission_sessions WHERE school_id = $1 AND is_active = $2 ORDER BY start_date DESC")).
		WithArgs("school-1", true).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM admission_sessions WHERE school_id = $1 AND is_active = $2")).
		WithArgs("school-1", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sessions, total, err := repo.List(context.Background(), models.SessionFilter{SchoolID: "school-1", Active: &active})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryClose(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	endDate := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE admission_sessions SET is_active = FALSE, end_date = $2 WHERE id = $1")).
		WithArgs("s1", endDate).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Close(context.Background(), "s1", endDate)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageRepositoryListForSchool(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewStageRepository(db)

	rows := sqlmock.NewRows([]string{"key", "label", "stage_order", "is_terminal"}).
		AddRow("NEW", "New", 0, false).
		AddRow("DONE", "Done", 1, true)
	mock.ExpectQuery(regexp.QuoteMeta("FROM stage_definitions WHERE school_id = $1 AND workflow_type = $2 ORDER BY stage_order ASC")).
		WithArgs("school-1", models.WorkflowSimple).
		WillReturnRows(rows)

	stages, err := repo.ListForSchool(context.Background(), "school-1", models.WorkflowSimple)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	require.Equal(t, 1, stages[1].Order)
	require.True(t, stages[1].IsTerminal)
	require.NoError(t, mock.ExpectationsWereMet())
}
