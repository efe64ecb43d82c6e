package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInitJWTKey(t *testing.T) {
	InitJWTKey([]byte("test-secret-key-for-jwt-tests"))

	token, _, err := GenerateToken("alice", "Alice")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestGenerateToken(t *testing.T) {
	InitJWTKey([]byte("test-secret-key-for-jwt-tests"))

	tests := []struct {
		name     string
		userID   string
		username string
		wantErr  bool
	}{
		{
			name:     "valid user",
			userID:   "alice",
			username: "Alice",
			wantErr:  false,
		},
		{
			name:     "missing user ID",
			userID:   "",
			username: "Alice",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, expiry, err := GenerateToken(tt.userID, tt.username)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Empty(t, token)
			} else {
				assert.NoError(t, err)
				assert.NotEmpty(t, token)

				assert.True(t, expiry.After(time.Now()))

				claims, err := ValidateToken(token)
				assert.NoError(t, err)
				assert.NotNil(t, claims)
				assert.Equal(t, tt.userID, claims.UserID)
				assert.Equal(t, tt.username, claims.Username)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	InitJWTKey([]byte("test-secret-key-for-jwt-tests"))

	validToken, _, err := GenerateToken("alice", "Alice")
	assert.NoError(t, err)

	tests := []struct {
		name        string
		tokenString string
		wantErr     bool
	}{
		{
			name:        "valid token",
			tokenString: validToken,
			wantErr:     false,
		},
		{
			name:        "empty token",
			tokenString: "",
			wantErr:     true,
		},
		{
			name:        "invalid token format",
			tokenString: "not.a.valid.jwt.token",
			wantErr:     true,
		},
		{
			name:        "tampered token",
			tokenString: validToken + "tampered",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.tokenString)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, claims)
				assert.Equal(t, "alice", claims.UserID)
				assert.Equal(t, "Alice", claims.Username)
			}
		})
	}
}

func TestValidateTokenWrongKey(t *testing.T) {
	InitJWTKey([]byte("key-one"))
	token, _, err := GenerateToken("alice", "Alice")
	assert.NoError(t, err)

	InitJWTKey([]byte("key-two"))
	_, err = ValidateToken(token)
	assert.Error(t, err)
}
