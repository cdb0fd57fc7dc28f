package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/models"
)

func newMockRepo(t *testing.T) (*GormRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return NewGormRepository(gdb), mock
}

func jobRow(id uuid.UUID, version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "client_id", "service", "status", "version"}).
		AddRow(id.String(), uuid.NewString(), "Plumbing", string(models.JobPending), version)
}

func TestGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM "job_requests" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJob(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "job_requests"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
	mock.ExpectCommit()

	job := &models.JobRequest{ClientID: uuid.New(), Service: "Plumbing", Status: models.JobPending, Schedule: time.Now().Add(time.Hour)}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.Equal(t, id, job.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "job_requests" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(jobRow(id, 0))
	mock.ExpectRollback()

	boom := errors.New("boom")
	_, err := repo.Mutate(context.Background(), id, func(_ Tx, job *models.JobRequest) error {
		assert.Equal(t, id, job.ID)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateStaleVersionIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "job_requests" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(jobRow(id, 3))
	mock.ExpectExec(`UPDATE "job_requests" SET .* WHERE \(?id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Mutate(context.Background(), id, func(_ Tx, job *models.JobRequest) error {
		job.Status = models.JobCancelled
		job.Version++
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMutateMissingJob(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "job_requests" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.Mutate(context.Background(), uuid.New(), func(Tx, *models.JobRequest) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpireAttempts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "payment_attempts" SET .* WHERE \(?status = \$\d+ AND created_at < \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.ExpireAttempts(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
