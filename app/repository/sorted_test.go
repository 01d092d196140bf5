package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	return db, mock
}

func TestClassifySortError(t *testing.T) {
	err := classifySortError(&mysqldriver.MySQLError{Number: 1038, Message: "Out of sort memory"})
	assert.ErrorIs(t, err, ErrSortUnavailable)

	other := &mysqldriver.MySQLError{Number: 1064, Message: "syntax"}
	assert.Same(t, error(other), classifySortError(other))
	assert.False(t, errors.Is(classifySortError(errors.New("boom")), ErrSortUnavailable))
}

func TestEarningList_FallsBackToLocalSortOnOutOfSortMemory(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)

	mock.ExpectQuery("SELECT \\* FROM `earnings` WHERE `vendor_id` = \\? ORDER BY created_at DESC").
		WillReturnError(&mysqldriver.MySQLError{Number: 1038, Message: "Out of sort memory, consider increasing server sort buffer size"})

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "vendor_id", "total_amount", "created_at"}).
		AddRow("e-1", "v-1", "10.00", base).
		AddRow("e-3", "v-1", "30.00", base.Add(2*time.Hour)).
		AddRow("e-2", "v-1", "20.00", base.Add(time.Hour))
	mock.ExpectQuery("SELECT \\* FROM `earnings` WHERE `vendor_id` = \\?$").
		WillReturnRows(rows)

	list, err := repos.Earning.List(context.Background(), EarningFilter{VendorID: "v-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e-3", list[0].ID)
	assert.Equal(t, "e-2", list[1].ID)
	assert.Equal(t, "30", list[0].TotalAmount.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEarningList_OtherErrorsAreReturned(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db)

	mock.ExpectQuery("SELECT \\* FROM `earnings`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1146, Message: "Table doesn't exist"})

	_, err := repos.Earning.List(context.Background(), EarningFilter{VendorID: "v-1"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSortUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEarningList_ServerSortDisabledSkipsOrderBy(t *testing.T) {
	db, mock := newMockDB(t)
	repos := NewRepositories(db, WithServerSort(false))

	mock.ExpectQuery("SELECT \\* FROM `earnings` WHERE `vendor_id` = \\?$").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("old", time.Unix(100, 0)).
			AddRow("new", time.Unix(200, 0)))

	list, err := repos.Earning.List(context.Background(), EarningFilter{VendorID: "v-1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
