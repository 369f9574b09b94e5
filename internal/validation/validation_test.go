package validation_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registry-backend/internal/apperror"
	"registry-backend/internal/models"
	"registry-backend/internal/testutil"
	"registry-backend/internal/validation"
)

type sample struct {
	Name       string `json:"name" validate:"required,max=5"`
	TownshipID uint   `json:"township_id" validate:"required"`
}

type account struct {
	UserName string `json:"user_name" validate:"required,nomarkup"`
	Password string `json:"password" validate:"omitempty,maxbytes=72"`
}

func fieldsOf(t *testing.T, err error) map[string][]string {
	t.Helper()
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr), "expected apperror, got %v", err)
	require.Equal(t, apperror.KindValidation, appErr.Kind)
	return appErr.Fields
}

func TestStruct(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validation.Struct(sample{Name: "Bago", TownshipID: 1}))

	fields := fieldsOf(t, validation.Struct(sample{}))
	assert.Equal(t, []string{"The name field is required."}, fields["name"])
	assert.Equal(t, []string{"The township id field is required."}, fields["township_id"])

	fields = fieldsOf(t, validation.Struct(sample{Name: "Too long", TownshipID: 1}))
	assert.Equal(t, []string{"The name field must not be greater than 5 characters."}, fields["name"])
	assert.NotContains(t, fields, "township_id")
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"  Yangon ":                   "Yangon",
		"<b>North</b> Dagon":          "North Dagon",
		"Tom & Jerry":                 "Tom & Jerry",
		"<script>alert(1)</script>Ok": "Ok",
	}
	for in, want := range testCases {
		assert.Equal(t, want, validation.CleanText(in), in)
	}
}

func TestNoMarkup(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"admin", "  Tom & Jerry ", "Mg Aung"} {
		assert.NoError(t, validation.Struct(account{UserName: name}), name)
	}
	for _, name := range []string{"Mg<A", "Hlaing<Tharyar", "A<B Branch", "<b>North</b> Dagon"} {
		fields := fieldsOf(t, validation.Struct(account{UserName: name}))
		assert.Equal(t, []string{"The user name field must not contain markup."}, fields["user_name"], name)
	}
}

func TestMaxBytes(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validation.Struct(account{UserName: "admin", Password: strings.Repeat("a", 72)}))
	assert.NoError(t, validation.Struct(account{UserName: "admin", Password: strings.Repeat("é", 36)}))

	fields := fieldsOf(t, validation.Struct(account{UserName: "admin", Password: strings.Repeat("é", 40)}))
	assert.Equal(t, []string{"The password field must not be greater than 72 bytes."}, fields["password"])
}

func TestParseExpand(t *testing.T) {
	t.Parallel()

	exp, err := validation.ParseExpand("", "branch")
	require.NoError(t, err)
	assert.Empty(t, exp)

	exp, err = validation.ParseExpand(" township , users,", "township", "users")
	require.NoError(t, err)
	assert.True(t, exp.Has("township"))
	assert.True(t, exp.Has("users"))
	assert.False(t, exp.Has("branch"))

	_, err = validation.ParseExpand("township,password", "township")
	fields := fieldsOf(t, err)
	require.Len(t, fields["expand"], 1)
	assert.Contains(t, fields["expand"][0], "password")
	assert.Contains(t, fields["expand"][0], "Allowed: township.")
}

func TestIsTakenAndExists(t *testing.T) {
	db := testutil.NewDB(t)

	yangon := models.Township{Name: "Yangon"}
	mandalay := models.Township{Name: "Mandalay"}
	require.NoError(t, db.Create(&yangon).Error)
	require.NoError(t, db.Create(&mandalay).Error)

	taken, err := validation.IsTaken(db, &models.Township{}, "name", "Yangon", 0)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = validation.IsTaken(db, &models.Township{}, "name", "Yangon", yangon.ID)
	require.NoError(t, err)
	assert.False(t, taken, "a record keeps its own name")

	taken, err = validation.IsTaken(db, &models.Township{}, "name", "Yangon", mandalay.ID)
	require.NoError(t, err)
	assert.True(t, taken)

	// Uniqueness is per table: a branch may share a township's name.
	taken, err = validation.IsTaken(db, &models.Branch{}, "name", "Yangon", 0)
	require.NoError(t, err)
	assert.False(t, taken)

	ok, err := validation.Exists(db, &models.Township{}, yangon.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = validation.Exists(db, &models.Township{}, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = validation.Exists(db, &models.Township{}, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}
