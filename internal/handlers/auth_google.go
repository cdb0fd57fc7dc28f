package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/services/googleauth"
	"github.com/JAY4T/kaakazini/internal/utils"
)

// GoogleVerifier checks Google identities for the button sign-in and the
// redirect code flow.
type GoogleVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*googleauth.Identity, error)
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*googleauth.Identity, error)
}

func invalidGoogleToken(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid Google token"})
}

type googleLoginReq struct {
	Token string `json:"token"`
}

// GoogleLogin verifies an ID token from the browser and logs the account
// in, creating a client account on first use.
func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	var req googleLoginReq
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		return invalidGoogleToken(c)
	}
	id, err := h.Google.VerifyIDToken(c.UserContext(), req.Token)
	if err != nil {
		h.Log.WithError(err).Warn("google token rejected")
		return invalidGoogleToken(c)
	}
	u, err := h.googleUser(c.UserContext(), id)
	if err != nil {
		return utils.Fail(c, err)
	}
	if !u.IsActive {
		return utils.Fail(c, apperr.Forbidden("account is disabled"))
	}
	return h.issue(c, fiber.StatusOK, u, false)
}

// googleUser finds the account by email or creates a client with an
// unusable password.
func (h *AuthHandler) googleUser(ctx context.Context, id *googleauth.Identity) (*models.User, error) {
	db := h.DB.WithContext(ctx)
	var u models.User
	err := db.Where("email = ?", id.Email).First(&u).Error
	if err == nil {
		if u.FullName == "" && id.Name != "" {
			u.FullName = id.Name
			if err := db.Model(&models.User{}).Where("id = ?", u.ID).Update("full_name", u.FullName).Error; err != nil {
				return nil, err
			}
		}
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := utils.HashPassword(utils.RandomToken(24))
	if err != nil {
		return nil, err
	}
	name := id.Name
	if name == "" {
		name = strings.Split(id.Email, "@")[0]
	}
	u = models.User{
		FullName: name,
		Email:    id.Email,
		Password: hash,
		Role:     models.RoleClient,
		IsActive: true,
	}
	if err := db.Omit("CraftsmanProfile").Create(&u).Error; err != nil {
		return nil, err
	}
	h.Log.WithField("user_id", u.ID).Info("user created via google")
	return &u, nil
}

func (h *AuthHandler) tempCookie(c *fiber.Ctx, name, value string, maxAge int) {
	ck := &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   maxAge,
	}
	if maxAge < 0 {
		ck.MaxAge = 0
		ck.Expires = time.Unix(0, 0)
	}
	c.Cookie(ck)
}

// GoogleStart begins the redirect flow. State and the return path live in
// short-lived cookies.
func (h *AuthHandler) GoogleStart(c *fiber.Ctx) error {
	next := c.Query("next", "/")
	st := utils.RandomToken(32)

	h.tempCookie(c, "oauth_state", st, 10*60)
	h.tempCookie(c, "oauth_next", next, 10*60)

	return c.Redirect(h.Google.AuthCodeURL(st), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return utils.Fail(c, apperr.Validation("missing code or state"))
	}

	stCookie := c.Cookies("oauth_state")
	next := c.Cookies("oauth_next")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/"
	}
	if stCookie == "" || stCookie != state {
		return utils.Fail(c, apperr.Validation("invalid state"))
	}
	h.tempCookie(c, "oauth_state", "", -1)
	h.tempCookie(c, "oauth_next", "", -1)

	id, err := h.Google.Exchange(c.UserContext(), code)
	if err != nil {
		h.Log.WithError(err).Warn("google code exchange failed")
		return invalidGoogleToken(c)
	}
	u, err := h.googleUser(c.UserContext(), id)
	if err != nil {
		return utils.Fail(c, err)
	}

	base := strings.TrimRight(h.Cfg.FrontendBaseURL, "/")
	if !u.IsActive {
		return c.Redirect(base+"/login?err="+url.QueryEscape("Account is disabled"), http.StatusTemporaryRedirect)
	}
	pair, err := h.tokens(u, false)
	if err != nil {
		return utils.Fail(c, err)
	}
	h.setCookies(c, pair)
	return c.Redirect(base+next, http.StatusTemporaryRedirect)
}
