package websession

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T) *CookieCodec {
	t.Helper()
	codec, err := NewCookieCodec(CookieConfig{Secret: testSecret, MaxAge: time.Hour})
	require.NoError(t, err)
	return codec
}

// requestWithCookies copies the Set-Cookie headers from rec onto a new request.
func requestWithCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestNewID(t *testing.T) {
	a, err := NewID()
	require.NoError(t, err)
	b, err := NewID()
	require.NoError(t, err)
	assert.Len(t, a, sessionIDBytes*2)
	assert.NotEqual(t, a, b)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Create(ctx, &Session{ID: "a", ExpiresAt: now.Add(time.Minute)}))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)

	now = now.Add(2 * time.Minute)
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Cleanup(ctx))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_TouchExtends(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Create(ctx, &Session{ID: "a", ExpiresAt: now.Add(time.Minute)}))
	now = now.Add(50 * time.Second)
	require.NoError(t, s.Touch(ctx, "a"))
	now = now.Add(50 * time.Second)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, got)

	require.NoError(t, s.Touch(ctx, "missing"))
}

func TestMemoryStore_CleanupRoutine(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	s.StartCleanupRoutine(time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, NewMemoryStore(time.Minute).Close())
}

func TestCookieCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	value, err := codec.Encode("sid-1", time.Now())
	require.NoError(t, err)

	id, err := codec.Decode(value)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", id)
}

func TestCookieCodec_RejectsTampering(t *testing.T) {
	codec := newTestCodec(t)
	value, err := codec.Encode("sid-1", time.Now())
	require.NoError(t, err)

	parts := strings.Split(value, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = codec.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidCookie)

	other, err := NewCookieCodec(CookieConfig{Secret: []byte("another-secret")})
	require.NoError(t, err)
	foreign, err := other.Encode("sid-1", time.Now())
	require.NoError(t, err)
	_, err = codec.Decode(foreign)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestCookieCodec_RejectsNoneAlg(t *testing.T) {
	codec := newTestCodec(t)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sid": "sid-1", "iss": cookieIssuer,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Decode(unsigned)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestCookieCodec_Expired(t *testing.T) {
	codec := newTestCodec(t)
	value, err := codec.Encode("sid-1", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = codec.Decode(value)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestCookieCodec_RequiresSecret(t *testing.T) {
	_, err := NewCookieCodec(CookieConfig{})
	assert.Error(t, err)
}

func TestCookieCodec_WriteAttributes(t *testing.T) {
	codec, err := NewCookieCodec(CookieConfig{Secret: testSecret, Secure: true})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, codec.Write(rec, "sid-1", time.Now()))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, DefaultCookieName, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestManager_AuthenticateRegeneratesID(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	m := NewManager(store, newTestCodec(t), time.Hour)

	first := httptest.NewRecorder()
	s1, err := m.Authenticate(first, httptest.NewRequest(http.MethodPost, "/auth/login", nil), "admin")
	require.NoError(t, err)

	second := httptest.NewRecorder()
	s2, err := m.Authenticate(second, requestWithCookies(first), "admin")
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
	old, err := store.Get(context.Background(), s1.ID)
	require.NoError(t, err)
	assert.Nil(t, old, "previous session is discarded")

	cur, err := m.Current(requestWithCookies(second))
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.True(t, cur.Authenticated)
	assert.Equal(t, "admin", cur.Subject)
}

func TestManager_CurrentWithoutCookie(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), newTestCodec(t), 0)
	sess, err := m.Current(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestManager_Logout(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	m := NewManager(store, newTestCodec(t), time.Hour)

	login := httptest.NewRecorder()
	_, err := m.Authenticate(login, httptest.NewRequest(http.MethodPost, "/", nil), "admin")
	require.NoError(t, err)

	logout := httptest.NewRecorder()
	require.NoError(t, m.Logout(logout, requestWithCookies(login)))
	assert.Equal(t, 0, store.Len())

	cookies := logout.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
