package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"registry-backend/internal/database"
	"registry-backend/internal/models"
	"registry-backend/internal/testutil"
)

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.MinCost)
	return string(b), err
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := database.Open("mysql", "", zap.NewNop())
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	testCases := []struct {
		name    string
		pingErr error
	}{
		{"healthy", nil},
		{"unreachable", errors.New("connection refused")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer sqlDB.Close()

			db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
				DisableAutomaticPing: true,
			})
			require.NoError(t, err)

			mock.ExpectPing().WillReturnError(tc.pingErr)

			err = database.Ping(context.Background(), db)
			if tc.pingErr != nil {
				assert.ErrorIs(t, err, tc.pingErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, database.Seed(ctx, db, plainHasher{}, "first-password", zap.NewNop()))
	require.NoError(t, database.Seed(ctx, db, plainHasher{}, "second-password", zap.NewNop()))

	var townships, branches, users int64
	db.Model(&models.Township{}).Count(&townships)
	db.Model(&models.Branch{}).Count(&branches)
	db.Model(&models.User{}).Count(&users)
	assert.EqualValues(t, 1, townships)
	assert.EqualValues(t, 1, branches)
	assert.EqualValues(t, 1, users)

	var admin models.User
	require.NoError(t, db.Preload("Branch").Where("user_name = ?", database.SeedAdminName).First(&admin).Error)
	assert.True(t, admin.MustChangePassword)
	require.NotNil(t, admin.Branch)
	assert.Equal(t, database.SeedBranchName, admin.Branch.Name)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.Password), []byte("first-password")))
}

func TestForeignKeysAreEnforced(t *testing.T) {
	db := testutil.NewDB(t)

	err := db.Create(&models.Branch{Name: "Orphan", TownshipID: 42}).Error
	assert.Error(t, err)
}
