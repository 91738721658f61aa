package users_test

import (
	"testing"

	users "github.com/goliatone/go-users"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		email    string
		wantErr  bool
	}{
		{name: "strong password", password: "correct-horse-battery", email: "jane@example.com"},
		{name: "too short", password: "a1b2c3", email: "jane@example.com", wantErr: true},
		{name: "numeric", password: "8675309123", email: "jane@example.com", wantErr: true},
		{name: "common", password: "Password123", email: "jane@example.com", wantErr: true},
		{name: "similar to email", password: "janedoe1", email: "janedoe@example.com", wantErr: true},
		{name: "empty", password: "", email: "jane@example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := users.ValidatePassword(tt.password, tt.email)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, users.TextCodeValidation, richErr.TextCode)
			assert.Contains(t, richErr.Metadata, "password")
		})
	}
}
