package googleauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestVerifyIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id_token") {
		case "good":
			_, _ = w.Write([]byte(`{"aud":"cid","email":"Jane@Example.com","email_verified":"true","name":"Jane"}`))
		case "other-aud":
			_, _ = w.Write([]byte(`{"aud":"someone-else","email":"x@example.com","email_verified":"true"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
		}
	}))
	defer srv.Close()

	g := New("cid", "secret", "http://localhost/cb")
	g.TokenInfoURL = srv.URL

	id, err := g.VerifyIDToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", id.Email)
	assert.Equal(t, "Jane", id.Name)

	for _, tok := range []string{"", "bad", "other-aud"} {
		_, err := g.VerifyIDToken(context.Background(), tok)
		assert.ErrorIs(t, err, ErrInvalidToken, tok)
	}
}

func TestExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"email":"a@b.co","verified_email":true,"name":"A B"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := New("cid", "secret", "http://localhost/cb")
	g.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	g.UserInfoURL = srv.URL + "/userinfo"

	id, err := g.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, &Identity{Email: "a@b.co", Name: "A B"}, id)
}

func TestAuthCodeURL(t *testing.T) {
	g := New("cid", "secret", "http://localhost/cb")
	u, err := url.Parse(g.AuthCodeURL("st"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "st", u.Query().Get("state"))
	assert.Equal(t, "cid", u.Query().Get("client_id"))
	assert.Equal(t, "offline", u.Query().Get("access_type"))
}
