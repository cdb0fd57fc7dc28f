package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	tokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	userInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
)

var ErrInvalidToken = errors.New("invalid google token")

// Identity is the verified Google account behind a login.
type Identity struct {
	Email string
	Name  string
}

type Client struct {
	HTTP         *http.Client
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenInfoURL string
	UserInfoURL  string
	Endpoint     oauth2.Endpoint
}

func New(clientID, secret, redirect string) *Client {
	return &Client{
		HTTP:         &http.Client{Timeout: 10 * time.Second},
		ClientID:     clientID,
		ClientSecret: secret,
		RedirectURL:  redirect,
		TokenInfoURL: tokenInfoURL,
		UserInfoURL:  userInfoURL,
		Endpoint:     google.Endpoint,
	}
}

func (g *Client) oauthCfg() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  g.RedirectURL,
		Endpoint:     g.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

func (g *Client) AuthCodeURL(state string) string {
	return g.oauthCfg().AuthCodeURL(state, oauth2.AccessTypeOffline)
}

type tokenInfo struct {
	Aud           string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Name          string `json:"name"`
	Exp           string `json:"exp"`
}

// VerifyIDToken checks an ID token from the browser sign-in button against
// Google's tokeninfo endpoint and our client id.
func (g *Client) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.TokenInfoURL+"?id_token="+url.QueryEscape(idToken), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrInvalidToken
	}
	var ti tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&ti); err != nil {
		return nil, ErrInvalidToken
	}
	if ti.Aud != g.ClientID || ti.Email == "" || ti.EmailVerified == "false" {
		return nil, ErrInvalidToken
	}
	return &Identity{Email: strings.ToLower(strings.TrimSpace(ti.Email)), Name: strings.TrimSpace(ti.Name)}, nil
}

type userInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// Exchange finishes the OAuth code flow and returns the account's profile.
func (g *Client) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := g.oauthCfg().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	resp, err := g.oauthCfg().Client(ctx, tok).Get(g.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	var gu userInfo
	if err := json.NewDecoder(resp.Body).Decode(&gu); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	email := strings.ToLower(strings.TrimSpace(gu.Email))
	if email == "" {
		return nil, errors.New("email not found from google")
	}
	return &Identity{Email: email, Name: strings.TrimSpace(gu.Name)}, nil
}
