package auth_test

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-chassis-auth"
)

func fieldNames(t *testing.T, err error) []string {
	t.Helper()

	verrs, ok := goerrors.GetValidationErrors(err)
	require.True(t, ok, "expected a validation error, got %v", err)

	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fe.Field)
	}
	return names
}

func TestRegisterRequestValidate(t *testing.T) {
	valid := auth.RegisterRequest{Username: "alice", Email: "a@x", Password: "Passw0rd@"}
	require.NoError(t, valid.Validate(true))

	tests := []struct {
		name     string
		req      auth.RegisterRequest
		strength bool
		fields   []string
	}{
		{
			name:   "everything missing",
			req:    auth.RegisterRequest{},
			fields: []string{"email", "password", "username"},
		},
		{
			name:   "short username",
			req:    auth.RegisterRequest{Username: "al", Email: "a@x", Password: "p"},
			fields: []string{"username"},
		},
		{
			name:   "markup in name",
			req:    auth.RegisterRequest{Username: "alice", Email: "a@x", Password: "p", Name: "<b>Al</b>"},
			fields: []string{"name"},
		},
		{
			name:   "bad phone",
			req:    auth.RegisterRequest{Username: "alice", Email: "a@x", Password: "p", Phone: "12"},
			fields: []string{"phone"},
		},
		{
			name:     "weak password",
			req:      auth.RegisterRequest{Username: "alice", Email: "a@x", Password: "password"},
			strength: true,
			fields:   []string{"password"},
		},
		{
			name:     "password with spaces",
			req:      auth.RegisterRequest{Username: "alice", Email: "a@x", Password: "Pass word1@"},
			strength: true,
			fields:   []string{"password"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(tt.strength)
			require.Error(t, err)
			assert.Equal(t, tt.fields, fieldNames(t, err))
			assert.Equal(t, auth.TextCodeParamsValidation, auth.TextCode(err))
			assert.Equal(t, 400, auth.HTTPStatus(err))
		})
	}
}

func TestWeakPasswordAcceptedWithoutStrength(t *testing.T) {
	req := auth.RegisterRequest{Username: "alice", Email: "a@x", Password: "password"}
	assert.NoError(t, req.Validate(false))
}

func TestNormalizePhone(t *testing.T) {
	phone, err := auth.NormalizePhone("612 34 56 78", "ES")
	require.NoError(t, err)
	assert.Equal(t, "+34612345678", phone)

	phone, err = auth.NormalizePhone("+1 650-253-0000", "ES")
	require.NoError(t, err)
	assert.Equal(t, "+16502530000", phone)

	phone, err = auth.NormalizePhone("  ", "ES")
	require.NoError(t, err)
	assert.Empty(t, phone)

	_, err = auth.NormalizePhone("not a phone", "ES")
	assert.Equal(t, auth.TextCodeInvalidPhone, auth.TextCode(err))
}

func TestLoginAndBanRequestValidate(t *testing.T) {
	err := auth.LoginRequest{}.Validate()
	require.Error(t, err)
	assert.Equal(t, []string{"password", "username"}, fieldNames(t, err))

	assert.NoError(t, auth.BanRequest{}.Validate())
	assert.Error(t, auth.BanRequest{Reason: "<script>"}.Validate())
}

func TestValidationErrorNestedFields(t *testing.T) {
	err := auth.ValidationError(validation.Errors{
		"address": validation.Errors{"city": errors.New("cannot be blank")},
		"name":    nil,
	})
	assert.Equal(t, []string{"address.city"}, fieldNames(t, err))
}
