package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCheckPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := CheckPassword(string(hash), "hunter2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(string(hash), "hunter3")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = CheckPassword("", "hunter2")
	assert.ErrorIs(t, err, ErrLoginDisabled)

	_, err = CheckPassword("not-a-hash", "hunter2")
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	ok, err := CheckPassword(hash, "correct horse")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestLoginLimiter(t *testing.T) {
	now := time.Now()
	l := NewLoginLimiter(LimiterConfig{})
	l.now = func() time.Time { return now }

	for i := range DefaultLoginAttempts {
		ok, _ := l.Allow("198.51.100.1")
		assert.True(t, ok, "attempt %d", i+1)
	}
	ok, retry := l.Allow("198.51.100.1")
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, DefaultLoginWindow/DefaultLoginAttempts)

	// Other clients have their own bucket.
	ok, _ = l.Allow("198.51.100.2")
	assert.True(t, ok)

	// Rejected attempts do not consume tokens; one refill allows one attempt.
	now = now.Add(DefaultLoginWindow / DefaultLoginAttempts)
	ok, _ = l.Allow("198.51.100.1")
	assert.True(t, ok)
	ok, _ = l.Allow("198.51.100.1")
	assert.False(t, ok)
}

func TestLoginLimiter_Prune(t *testing.T) {
	now := time.Now()
	l := NewLoginLimiter(LimiterConfig{Attempts: 2, Window: time.Minute})
	l.now = func() time.Time { return now }

	for i := range 3 {
		l.Allow(fmt.Sprint("client-", i))
	}
	assert.Equal(t, 3, l.Len())

	now = now.Add(2 * time.Minute)
	l.Allow("client-fresh")
	l.Prune()
	assert.Equal(t, 1, l.Len())
}
