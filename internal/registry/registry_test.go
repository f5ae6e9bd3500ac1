package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/veloramarket/push-engine/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockedStore(t *testing.T) (*GormTokenStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	return NewGormTokenStore(db), mock
}

func TestGormTokenStoreSetValidation(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	testCases := []struct {
		name   string
		userID string
		token  string
	}{
		{name: "empty user", userID: "  ", token: "token-1"},
		{name: "empty token", userID: "user-1", token: "  "},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := store.Set(context.Background(), tc.userID, tc.token)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Set() error = %v, want ErrValidation", err)
			}
		})
	}

	// Rejected input never reaches the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database activity: %v", err)
	}
}

func TestGormTokenStoreSetOverwritesOnReRegistration(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	// Registration is an unconditional upsert: a second Set for the same
	// user updates the existing row in place with the newer token.
	upsert := `INSERT INTO "device_tokens" .+ ON CONFLICT \("user_id"\) DO UPDATE SET "token"=.+"updated_at"=.+`
	mock.ExpectExec(upsert).
		WithArgs("user-1", "token-old", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsert).
		WithArgs("user-1", "token-new", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Set(context.Background(), "user-1", "token-old"); err != nil {
		t.Fatalf("first Set() error = %v", err)
	}
	if err := store.Set(context.Background(), "user-1", "token-new"); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("upsert expectations not met: %v", err)
	}
}

func TestGormTokenStoreGetMapsAbsenceToNoToken(t *testing.T) {
	t.Parallel()

	store, mock := newMockedStore(t)

	mock.ExpectQuery(`SELECT .+ FROM "device_tokens"`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "token", "updated_at"}))

	if _, err := store.Get(context.Background(), "ghost"); !errors.Is(err, domain.ErrNoToken) {
		t.Fatalf("Get(missing) error = %v, want ErrNoToken", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("query expectations not met: %v", err)
	}
}
