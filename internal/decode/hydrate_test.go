package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowmap/internal/errs"
)

type user struct {
	UserID   int    `rowmap:"userId"`
	LastName string // matched as lastName
	Email    *string
	Active   bool
	Balance  float32
	Secret   string `rowmap:"-"`
	internal string
}

// newUser is never called by the hydrator.
func newUser() user {
	return user{LastName: "default", internal: "constructed"}
}

func TestStructHydrator(t *testing.T) {
	h := StructHydrator[user]()

	email := "b@x"
	u, err := h(Record{
		"userId":   int64(7),
		"lastName": "Baumann",
		"email":    email,
		"active":   true,
		"balance":  2.5,
		"secret":   "ignored",
		"unknown":  1,
	})
	require.NoError(t, err)
	assert.Equal(t, user{UserID: 7, LastName: "Baumann", Email: &email, Active: true, Balance: 2.5}, u)
	assert.Empty(t, u.internal)
	assert.NotEqual(t, newUser(), u)
}

func TestStructHydrator_Nil(t *testing.T) {
	u, err := StructHydrator[user]()(Record{"email": nil, "lastName": nil})
	require.NoError(t, err)
	assert.Nil(t, u.Email)
	assert.Empty(t, u.LastName)
}

func TestStructHydrator_Pointer(t *testing.T) {
	u, err := StructHydrator[*user]()(Record{"lastName": "Baumann"})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Baumann", u.LastName)
}

func TestStructHydrator_Mismatch(t *testing.T) {
	_, err := StructHydrator[user]()(Record{"lastName": int64(3)})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeInvalidValue))

	_, err = StructHydrator[int]()(Record{})
	assert.Error(t, err)
}

func TestAsRecord(t *testing.T) {
	r, err := AsRecord(Record{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, Record{"a": 1}, r)
}
