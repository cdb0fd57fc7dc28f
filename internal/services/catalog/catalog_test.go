package catalog

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/logging"
	"github.com/JAY4T/kaakazini/internal/models"
)

func newMock(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return NewService(gdb, logging.Discard()), mock
}

func TestCreateServiceValidatesName(t *testing.T) {
	svc, mock := newMock(t)
	ctx := context.Background()

	_, err := svc.CreateService(ctx, uuid.New(), ServiceInput{ServiceName: "Juggling"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.CreateService(ctx, uuid.New(), ServiceInput{ServiceName: "other"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "services"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectCommit()

	out, err := svc.CreateService(ctx, uuid.New(), ServiceInput{ServiceName: "other", CustomServiceName: " Basket weaving "})
	require.NoError(t, err)
	assert.Equal(t, "Basket weaving", out.CustomServiceName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteServiceNotOwned(t *testing.T) {
	svc, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "services" WHERE \(?id = \$1 AND craftsman_id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := svc.DeleteService(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductNeedsPrice(t *testing.T) {
	svc, mock := newMock(t)

	_, err := svc.CreateProduct(context.Background(), uuid.New(), ProductInput{Name: "Stool"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModerateProduct(t *testing.T) {
	svc, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "products" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status", "is_approved"}).
			AddRow(id.String(), "Stool", models.ModerationPending, false))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "products" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := svc.ModerateProduct(context.Background(), id, true)
	require.NoError(t, err)
	assert.True(t, p.IsApproved)
	assert.Equal(t, models.ModerationApproved, p.Status)

	mock.ExpectQuery(`SELECT \* FROM "products" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = svc.ModerateProduct(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReview(t *testing.T) {
	svc, mock := newMock(t)
	ctx := context.Background()
	reviewer := &models.User{ID: uuid.New(), FullName: "Jane"}
	craftsmanID := uuid.New()

	for _, rating := range []int{0, 6} {
		_, err := svc.CreateReview(ctx, reviewer, ReviewInput{CraftsmanID: craftsmanID, Rating: rating})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}

	mock.ExpectQuery(`SELECT "id" FROM "craftsman_profiles" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(craftsmanID.String()))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "reviews"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectCommit()

	r, err := svc.CreateReview(ctx, reviewer, ReviewInput{CraftsmanID: craftsmanID, Rating: 5, Comment: " Great work "})
	require.NoError(t, err)
	assert.Equal(t, "Jane", r.Reviewer)
	assert.Equal(t, "Great work", r.Comment)
	assert.Equal(t, reviewer.ID, *r.ReviewerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewOfSomeoneElsesJob(t *testing.T) {
	svc, mock := newMock(t)
	reviewer := &models.User{ID: uuid.New(), FullName: "Jane"}
	craftsmanID, jobID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT "id" FROM "craftsman_profiles" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(craftsmanID.String()))
	mock.ExpectQuery(`SELECT "id","client_id","craftsman_id" FROM "job_requests" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "craftsman_id"}).
			AddRow(jobID.String(), uuid.NewString(), craftsmanID.String()))

	_, err := svc.CreateReview(context.Background(), reviewer, ReviewInput{CraftsmanID: craftsmanID, JobID: &jobID, Rating: 4})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}
