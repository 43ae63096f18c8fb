package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator(t *testing.T, opts Options) (*Authenticator, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewAuthenticator(store, slog.Default(), opts), store
}

func query(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func TestAuthenticate_Success(t *testing.T) {
	req := require.New(t)
	a, store := newTestAuthenticator(t, Options{})
	store.Set("PHPREDIS_SESSION:abc", []byte(`user_id|i:42;name|s:5:"Alice";`))

	sess, err := a.Authenticate(context.Background(), query("PHPSESSID", "abc"))
	req.NoError(err)
	req.Equal("abc", sess.ID)
	req.Equal(UserID(42), sess.UserID)
	req.Equal("Alice", sess.Values["name"])
}

func TestAuthenticate_NumericStringIdentity(t *testing.T) {
	a, store := newTestAuthenticator(t, Options{})
	store.Set("PHPREDIS_SESSION:s1", []byte(`user_id|s:2:"17";`))

	sess, err := a.Authenticate(context.Background(), query("PHPSESSID", "s1"))
	require.NoError(t, err)
	assert.Equal(t, UserID(17), sess.UserID)
}

func TestAuthenticate_CustomOptions(t *testing.T) {
	a, store := newTestAuthenticator(t, Options{
		QueryParam:   "sid",
		KeyNamespace: "APP",
		UserField:    "uid",
	})
	store.Set("APP:xyz", []byte(`{"uid": 5}`))

	sess, err := a.Authenticate(context.Background(), query("sid", "xyz"))
	require.NoError(t, err)
	assert.Equal(t, UserID(5), sess.UserID)
	assert.Equal(t, "APP:xyz", a.Key("xyz"))
	assert.Equal(t, "sid", a.QueryParam())
}

func TestAuthenticate_PublicFields(t *testing.T) {
	a, store := newTestAuthenticator(t, Options{PublicFields: []string{"name"}})
	store.Set("PHPREDIS_SESSION:abc", []byte(`user_id|i:3;name|s:3:"Bob";csrf|s:4:"xxxx";`))

	sess, err := a.Authenticate(context.Background(), query("PHPSESSID", "abc"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Bob"}, sess.Values)

	data, err := json.Marshal(sess)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Bob","user_id":3}`, string(data))
}

func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		query   url.Values
		blob    string
		storeOK bool
		want    error
	}{
		{name: "missing token", query: url.Values{}, storeOK: true, want: ErrMissingToken},
		{name: "blank token", query: query("PHPSESSID", "  "), storeOK: true, want: ErrMissingToken},
		{name: "not found", query: query("PHPSESSID", "nope"), storeOK: true, want: ErrSessionNotFound},
		{name: "store down", query: query("PHPSESSID", "abc"), storeOK: false, want: ErrStoreUnavailable},
		{name: "malformed", query: query("PHPSESSID", "abc"), blob: "garbage", storeOK: true, want: ErrMalformedSession},
		{name: "no user field", query: query("PHPSESSID", "abc"), blob: `name|s:1:"x";`, storeOK: true, want: ErrNoIdentity},
		{name: "zero user", query: query("PHPSESSID", "abc"), blob: `user_id|i:0;`, storeOK: true, want: ErrNoIdentity},
		{name: "non-numeric user", query: query("PHPSESSID", "abc"), blob: `user_id|s:3:"abc";`, storeOK: true, want: ErrNoIdentity},
		{name: "bool user", query: query("PHPSESSID", "abc"), blob: `user_id|b:1;`, storeOK: true, want: ErrNoIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, store := newTestAuthenticator(t, Options{})
			if tt.blob != "" {
				store.Set("PHPREDIS_SESSION:abc", []byte(tt.blob))
			}
			if !tt.storeOK {
				store.FailWith(errors.New("connection refused"))
			}

			sess, err := a.Authenticate(context.Background(), tt.query)
			assert.Nil(t, sess)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSessionMarshal_AlwaysCarriesUserID(t *testing.T) {
	sess := &Session{ID: "secret", UserID: 8, Values: map[string]any{"user_id": "8", "name": "Zoe"}}
	data, err := json.Marshal(sess)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":8,"name":"Zoe"}`, string(data))
	assert.NotContains(t, string(data), "secret")
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("abc")
	assert.Len(t, a, 12)
	assert.Equal(t, a, Fingerprint("abc"))
	assert.NotEqual(t, a, Fingerprint("abd"))
}

func TestParseUserID(t *testing.T) {
	id, err := ParseUserID(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, UserID(12), id)

	_, err = ParseUserID("-1")
	assert.Error(t, err)
	_, err = ParseUserID("x")
	assert.Error(t, err)
}
