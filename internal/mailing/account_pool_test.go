package mailing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/bulksender/internal/domain"
)

func testAccount(name string) domain.MailAccount {
	return domain.MailAccount{
		Name:     name,
		Host:     "smtp.example.com",
		Port:     587,
		Username: name + "@example.com",
		Password: "secret",
		Security: domain.SecurityTLS,
	}
}

func TestAccountPoolRoundRobin(t *testing.T) {
	pool, err := NewAccountPool([]domain.MailAccount{
		testAccount("alpha"),
		testAccount("beta"),
		testAccount("gamma"),
	})
	require.NoError(t, err)
	require.Equal(t, 3, pool.Len())

	var order []string
	for i := 0; i < 7; i++ {
		order = append(order, pool.Next().Name)
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma", "alpha", "beta", "gamma", "alpha"}, order)
}

func TestAccountPoolExcludesInvalid(t *testing.T) {
	bad := testAccount("broken")
	bad.Host = ""

	pool, err := NewAccountPool([]domain.MailAccount{
		testAccount("alpha"),
		bad,
		testAccount("beta"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, pool.Len())
	require.Len(t, pool.Warnings(), 1)
	assert.Contains(t, pool.Warnings()[0], "broken")

	// Rotation only covers usable accounts.
	assert.Equal(t, "alpha", pool.Next().Name)
	assert.Equal(t, "beta", pool.Next().Name)
	assert.Equal(t, "alpha", pool.Next().Name)
}

func TestAccountPoolNoUsableAccounts(t *testing.T) {
	tests := []struct {
		name     string
		accounts []domain.MailAccount
	}{
		{name: "empty input", accounts: nil},
		{name: "all invalid", accounts: []domain.MailAccount{
			{Name: "no-host", Port: 587, Username: "u", Password: "p"},
			{Name: "no-password", Host: "smtp.example.com", Port: 587, Username: "u"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewAccountPool(tt.accounts)
			assert.Nil(t, pool)
			assert.ErrorIs(t, err, ErrNoUsableAccounts)
		})
	}
}

func TestAccountPoolSingleAccount(t *testing.T) {
	pool, err := NewAccountPool([]domain.MailAccount{testAccount("solo")})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.Equal(t, "solo", pool.Next().Name)
	}
}
