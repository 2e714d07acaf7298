package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordService_Hash(t *testing.T) {
	p := NewPasswordServiceForTest(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{name: "ascii", password: "operator-password"},
		{name: "unicode", password: "пароль-密码"},
		{name: "exactly at the byte limit", password: strings.Repeat("a", maxPasswordBytes)},
		{name: "over the byte limit", password: strings.Repeat("a", maxPasswordBytes+1), wantErr: "limit is 72"},
		{name: "empty", password: "", wantErr: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := p.Hash(tt.password)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Empty(t, hash)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, "$2a$04$"), "cost is encoded in the hash: %s", hash)
			assert.NoError(t, p.Verify(hash, tt.password))
		})
	}
}

func TestPasswordService_HashIsSalted(t *testing.T) {
	p := NewPasswordServiceForTest(bcrypt.MinCost)

	h1, err := p.Hash("same-password")
	require.NoError(t, err)
	h2, err := p.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestPasswordService_Verify(t *testing.T) {
	p := NewPasswordServiceForTest(bcrypt.MinCost)
	hash, err := p.Hash("the-real-password")
	require.NoError(t, err)

	assert.NoError(t, p.Verify(hash, "the-real-password"))
	assert.ErrorIs(t, p.Verify(hash, "the-wrong-password"), ErrPasswordMismatch)
	assert.ErrorIs(t, p.Verify(hash, ""), ErrPasswordMismatch)

	err = p.Verify("not-a-bcrypt-hash", "the-real-password")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPasswordMismatch, "a broken hash is not a wrong password")
}

func TestPasswordService_CheckHash(t *testing.T) {
	p := NewPasswordServiceForTest(bcrypt.MinCost)
	hash, err := p.Hash("operator-password")
	require.NoError(t, err)

	assert.NoError(t, p.CheckHash(hash))
	assert.Error(t, p.CheckHash("plain-text-password"))
	assert.Error(t, p.CheckHash(""))
}
