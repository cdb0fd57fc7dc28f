package db

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/JAY4T/kaakazini/internal/logging"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	return gdb, mock
}

func TestSeedAdminSkipsWithoutPassword(t *testing.T) {
	gdb, mock := newMockDB(t)

	require.NoError(t, SeedAdmin(gdb, "admin@kaakazini.local", "", logging.Discard()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedAdminExisting(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role"}).
			AddRow(uuid.NewString(), "admin@kaakazini.local", "admin"))

	require.NoError(t, SeedAdmin(gdb, "admin@kaakazini.local", "pw", logging.Discard()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedAdminCreates(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectCommit()

	require.NoError(t, SeedAdmin(gdb, "admin@kaakazini.local", "pw", logging.Discard()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
