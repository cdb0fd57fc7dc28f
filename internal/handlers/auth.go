package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/middleware"
	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/services/craftsman"
	"github.com/JAY4T/kaakazini/internal/services/notify"
	"github.com/JAY4T/kaakazini/internal/services/reset"
	"github.com/JAY4T/kaakazini/internal/utils"
)

const RefreshCookie = "refresh_token"

type AuthConfig struct {
	JWTSecret       string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RememberTTL     time.Duration
	CookieSecure    bool
	FrontendBaseURL string
}

type AuthHandler struct {
	DB       *gorm.DB
	Cfg      AuthConfig
	Notifier notify.Publisher
	Reset    *reset.Service
	Google   GoogleVerifier
	Log      *logrus.Logger
}

func NewAuthHandler(db *gorm.DB, cfg AuthConfig, notifier notify.Publisher, rs *reset.Service, google GoogleVerifier, log *logrus.Logger) *AuthHandler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &AuthHandler{DB: db, Cfg: cfg, Notifier: notifier, Reset: rs, Google: google, Log: log}
}

// Routes registers the public auth endpoints. limit guards the
// credential-taking ones; authMiddleware protects /me.
func (h *AuthHandler) Routes(r fiber.Router, limit, authMiddleware fiber.Handler) {
	r.Post("/signup", limit, h.Signup)
	r.Post("/client-signup", limit, h.ClientSignup)
	r.Post("/login", limit, h.Login)
	r.Post("/client-login", limit, h.ClientLogin)
	r.Post("/admin-login", limit, h.AdminLogin)
	r.Post("/google-login", limit, h.GoogleLogin)
	r.Get("/auth/google/start", h.GoogleStart)
	r.Get("/auth/google/callback", h.GoogleCallback)
	r.Post("/token/refresh", h.Refresh)
	r.Post("/logout", h.Logout)
	r.Post("/password-reset", limit, h.RequestPasswordReset)
	r.Post("/password-reset/:uid/:token", limit, h.ConfirmPasswordReset)
	r.Get("/me", authMiddleware, h.Me)
}

type SignupReq struct {
	FullName    string `json:"full_name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,min=9,max=20"`
	Location    string `json:"location" validate:"max=100"`
	Role        string `json:"role" validate:"omitempty,oneof=client craftsman"`
}

type LoginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=client craftsman admin"`
	Remember bool   `json:"remember"`
}

// ---------- signup ----------

func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	return h.signup(c, models.RoleCraftsman)
}

func (h *AuthHandler) ClientSignup(c *fiber.Ctx) error {
	return h.signup(c, models.RoleClient)
}

func (h *AuthHandler) signup(c *fiber.Ctx, defaultRole models.Role) error {
	var req SignupReq
	if err := bind(c, &req); err != nil {
		return utils.Fail(c, err)
	}
	role := defaultRole
	if req.Role != "" && defaultRole == models.RoleCraftsman {
		role = models.Role(req.Role)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var count int64
	if err := h.DB.WithContext(c.UserContext()).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return utils.Fail(c, err)
	}
	if count > 0 {
		return utils.Fail(c, apperr.Validation("a user with this email already exists"))
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Fail(c, err)
	}
	u := &models.User{
		FullName:    strings.TrimSpace(req.FullName),
		Email:       email,
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Location:    strings.TrimSpace(req.Location),
		Password:    hash,
		Role:        role,
		IsActive:    true,
	}

	err = h.DB.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("CraftsmanProfile").Create(u).Error; err != nil {
			return err
		}
		if role != models.RoleCraftsman {
			return nil
		}
		profile := craftsman.NewProfile(u)
		if err := tx.Omit("User", "Services", "Gallery", "Reviews").Create(profile).Error; err != nil {
			return err
		}
		u.CraftsmanProfile = profile
		return nil
	})
	if err != nil {
		h.Log.WithError(err).WithField("email", email).Error("signup failed")
		return utils.Fail(c, err)
	}
	h.Log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Info("user signed up")

	h.publish(c.UserContext(), notify.Event{
		Type:  notify.TypeWelcome,
		Name:  u.FullName,
		Email: u.Email,
		Phone: u.PhoneNumber,
		Data:  map[string]string{"role": string(u.Role)},
	})
	return h.issue(c, fiber.StatusCreated, u, false)
}

// ---------- login ----------

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginReq
	if err := bind(c, &req); err != nil {
		return utils.Fail(c, err)
	}
	u, err := h.authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return utils.Fail(c, err)
	}
	if req.Role != "" && u.Role != models.Role(req.Role) {
		return utils.Fail(c, apperr.Forbidden("this account is not a %s account", req.Role))
	}
	return h.issue(c, fiber.StatusOK, u, req.Remember)
}

func (h *AuthHandler) ClientLogin(c *fiber.Ctx) error {
	var req LoginReq
	if err := bind(c, &req); err != nil {
		return utils.Fail(c, err)
	}
	u, err := h.authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return utils.Fail(c, err)
	}
	if u.Role != models.RoleClient {
		return utils.Fail(c, apperr.Forbidden("this account is not a client account"))
	}
	return h.issue(c, fiber.StatusOK, u, req.Remember)
}

// AdminLogin accepts staff accounts only. A staff user whose role is not
// admin yet is promoted on the way in.
func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	var req LoginReq
	if err := bind(c, &req); err != nil {
		return utils.Fail(c, err)
	}
	u, err := h.authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return utils.Fail(c, err)
	}
	if !u.IsStaff {
		return utils.Fail(c, apperr.Forbidden("admin access only"))
	}
	if u.Role != models.RoleAdmin {
		if err := h.DB.WithContext(c.UserContext()).Model(&models.User{}).Where("id = ?", u.ID).
			Update("role", models.RoleAdmin).Error; err != nil {
			return utils.Fail(c, err)
		}
		u.Role = models.RoleAdmin
		h.Log.WithField("user_id", u.ID).Info("staff user promoted to admin")
	}
	return h.issue(c, fiber.StatusOK, u, req.Remember)
}

func (h *AuthHandler) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var u models.User
	err := h.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(u.Password, password) {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	if !u.IsActive {
		return nil, apperr.Forbidden("account is disabled")
	}
	return &u, nil
}

// ---------- tokens ----------

func (h *AuthHandler) tokens(u *models.User, remember bool) (utils.TokenPair, error) {
	refreshTTL := h.Cfg.RefreshTTL
	if remember && h.Cfg.RememberTTL > 0 {
		refreshTTL = h.Cfg.RememberTTL
	}
	return utils.SignPair(h.Cfg.JWTSecret, u.ID.String(), string(u.Role), h.Cfg.AccessTTL, refreshTTL)
}

func (h *AuthHandler) setCookies(c *fiber.Ctx, pair utils.TokenPair) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.AccessCookie,
		Value:    pair.Access,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   int(pair.AccessTTL.Seconds()),
	})
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookie,
		Value:    pair.Refresh,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.Cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		MaxAge:   int(pair.RefreshTTL.Seconds()),
	})
}

func (h *AuthHandler) clearCookies(c *fiber.Ctx) {
	for _, name := range []string{middleware.AccessCookie, RefreshCookie} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HTTPOnly: true,
			Secure:   h.Cfg.CookieSecure,
			SameSite: fiber.CookieSameSiteLaxMode,
			Expires:  time.Unix(0, 0),
		})
	}
}

// issue signs a token pair, sets both cookies and writes the login body.
func (h *AuthHandler) issue(c *fiber.Ctx, status int, u *models.User, remember bool) error {
	pair, err := h.tokens(u, remember)
	if err != nil {
		return utils.Fail(c, err)
	}
	h.setCookies(c, pair)
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":    u,
			"access":  pair.Access,
			"refresh": pair.Refresh,
		},
	})
}

type refreshReq struct {
	Refresh string `json:"refresh"`
}

// Refresh trades a refresh token (body or cookie) for a new pair. The role
// is re-read from the user row.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req refreshReq
	if err := bindOptional(c, &req); err != nil {
		return utils.Fail(c, err)
	}
	tok := req.Refresh
	if tok == "" {
		tok = c.Cookies(RefreshCookie)
	}
	if tok == "" {
		return utils.Fail(c, apperr.Unauthorized("refresh token missing"))
	}
	claims, err := utils.ParseJWT(h.Cfg.JWTSecret, tok, utils.TokenRefresh)
	if err != nil {
		return utils.Fail(c, apperr.Unauthorized("invalid or expired refresh token"))
	}

	var u models.User
	if err := h.DB.WithContext(c.UserContext()).First(&u, "id = ?", claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Fail(c, apperr.Unauthorized("user not found"))
		}
		return utils.Fail(c, err)
	}
	if !u.IsActive {
		return utils.Fail(c, apperr.Forbidden("account is disabled"))
	}
	return h.issue(c, fiber.StatusOK, &u, false)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.clearCookies(c)
	return c.JSON(fiber.Map{"success": true, "message": "Logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	var u models.User
	err := h.DB.WithContext(c.UserContext()).Preload("CraftsmanProfile").First(&u, "id = ?", middleware.UserID(c)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Fail(c, apperr.Unauthorized("user not found"))
	}
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, u)
}

// ---------- password reset ----------

type resetRequestReq struct {
	Email string `json:"email" validate:"required,email"`
}

type resetConfirmReq struct {
	Password string `json:"password" validate:"required,min=8"`
}

const resetRequestedMessage = "If an account exists for this email, a reset link has been sent."

// RequestPasswordReset answers the same way whether or not the email is
// registered.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req resetRequestReq
	if err := bind(c, &req); err != nil {
		return utils.Fail(c, err)
	}
	ctx := c.UserContext()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.Reset.Throttle(ctx, "reset-request", email, reset.RequestLimit); err != nil {
		return utils.Fail(c, err)
	}

	var u models.User
	err := h.DB.WithContext(ctx).Where("email = ? AND is_active = ?", email, true).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		h.Log.WithError(err).Error("password reset lookup")
	default:
		token, err := h.Reset.Issue(ctx, u.ID)
		if err != nil {
			h.Log.WithError(err).WithField("user_id", u.ID).Error("issue reset token")
			break
		}
		link := strings.TrimRight(h.Cfg.FrontendBaseURL, "/") + "/reset-password/" + u.ID.String() + "/" + token
		h.publish(ctx, notify.Event{
			Type:  notify.TypePasswordReset,
			Name:  u.FullName,
			Email: u.Email,
			Data:  map[string]string{"link": link},
		})
	}
	return c.JSON(fiber.Map{"success": true, "message": resetRequestedMessage})
}

func (h *AuthHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	uid, err := uuid.Parse(c.Params("uid"))
	if err != nil {
		return utils.Fail(c, apperr.Validation("invalid or expired token"))
	}
	var req resetConfirmReq
	if err := bind(c, &req); err != nil {
		return utils.Fail(c, err)
	}
	ctx := c.UserContext()
	if err := h.Reset.Throttle(ctx, "reset-confirm", uid.String(), reset.ConfirmLimit); err != nil {
		return utils.Fail(c, err)
	}
	if err := h.Reset.Consume(ctx, uid, c.Params("token")); err != nil {
		return utils.Fail(c, err)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Fail(c, err)
	}
	res := h.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Update("password", hash)
	if res.Error != nil {
		return utils.Fail(c, res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.Fail(c, apperr.Validation("invalid or expired token"))
	}
	h.Log.WithField("user_id", uid).Info("password reset")
	return c.JSON(fiber.Map{"success": true, "message": "Password has been reset."})
}

func (h *AuthHandler) publish(ctx context.Context, ev notify.Event) {
	if err := h.Notifier.Publish(ctx, ev); err != nil {
		h.Log.WithError(err).WithField("type", ev.Type).Error("queue notification")
	}
}
