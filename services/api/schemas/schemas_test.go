package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemas(t *testing.T) {
	v := MustValidator()
	for _, id := range []string{UserCreate, UserUpdate, Login, Register, ResetPassword} {
		assert.True(t, v.HasSchema(id), id)
	}

	assert.NoError(t, v.ValidateString(`{"email":"me@example.com","password":"12345678","name":"Chase"}`, UserCreate))
	assert.Error(t, v.ValidateString(`{"email":"me@example.com","password":"short"}`, UserCreate))
	assert.Error(t, v.ValidateString(`{"email":"me@example.com","password":"12345678","admin":true}`, UserCreate))
	assert.Error(t, v.ValidateString(`{"email":"not-an-email","password":"12345678"}`, Register))

	assert.NoError(t, v.ValidateString(`{"name":"Chase","birthdate":"1992-07-23T00:00:00Z"}`, UserUpdate))
	assert.Error(t, v.ValidateString(`{"email":"other@example.com"}`, UserUpdate))
	assert.Error(t, v.ValidateString(`{"roles":["root"]}`, UserUpdate))
	assert.Error(t, v.ValidateString(`{"birthdate":"yesterday"}`, UserUpdate))

	assert.NoError(t, v.ValidateString(`{"password":"12345678","resetPasswordToken":"1234567"}`, ResetPassword))
	assert.Error(t, v.ValidateString(`{"password":"12345678","resetPasswordToken":"12"}`, ResetPassword))
}
