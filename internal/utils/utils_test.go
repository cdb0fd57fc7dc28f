package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/JAY4T/kaakazini/internal/apperr"
)

func TestSignAndParseJWT(t *testing.T) {
	pair, err := SignPair("secret", "u-1", "craftsman", time.Minute, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT("secret", pair.Access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "craftsman", claims.Role)

	_, err = ParseJWT("secret", pair.Refresh, TokenAccess)
	assert.ErrorIs(t, err, ErrTokenType)

	_, err = ParseJWT("other", pair.Access, TokenAccess)
	assert.Error(t, err)
}

func TestParseJWTExpired(t *testing.T) {
	tok, err := SignJWT("secret", "u-1", "client", TokenAccess, -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT("secret", tok, TokenAccess)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret!"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestRandomToken(t *testing.T) {
	a, b := RandomToken(16), RandomToken(16)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 22)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{" 0712 345-678 ", "254712345678"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in, "254"), tt.in)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("job"), 404},
		{gorm.ErrRecordNotFound, 404},
		{apperr.Forbidden("nope"), 403},
		{apperr.Validation("bad"), 400},
		{apperr.Conflict("stale"), 409},
		{fmt.Errorf("wrap: %w", apperr.ErrUnauthorized), 401},
		{apperr.ErrRateLimited, 429},
		{fiber.NewError(418, "teapot"), 418},
		{&apperr.Upstream{Provider: "mpesa", Rejected: true}, 400},
		{&apperr.Upstream{Provider: "mpesa"}, 500},
		{io.EOF, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}

func TestFailBodies(t *testing.T) {
	app := fiber.New()
	app.Get("/conflict", func(c *fiber.Ctx) error { return Fail(c, apperr.Conflict("job is Paid")) })
	app.Get("/boom", func(c *fiber.Ctx) error { return Fail(c, io.ErrUnexpectedEOF) })
	app.Get("/pay", func(c *fiber.Ctx) error {
		return Fail(c, &apperr.Upstream{
			Provider: "mpesa", Rejected: true, Message: "Payment initiation failed",
			Detail: "insufficient balance", Response: json.RawMessage(`{"status":"failed"}`),
		})
	})

	body := func(path string) (int, map[string]interface{}) {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		var m map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
		return resp.StatusCode, m
	}

	code, m := body("/conflict")
	assert.Equal(t, 409, code)
	assert.Equal(t, false, m["success"])
	assert.Contains(t, m["error"], "job is Paid")

	code, m = body("/boom")
	assert.Equal(t, 500, code)
	assert.Equal(t, "internal server error", m["error"])

	code, m = body("/pay")
	assert.Equal(t, 400, code)
	assert.Equal(t, "Payment initiation failed", m["error"])
	assert.Equal(t, "insufficient balance", m["detail"])
	assert.Equal(t, map[string]interface{}{"status": "failed"}, m["response"])
}

func TestValidate(t *testing.T) {
	type req struct {
		Email  string `validate:"required,email"`
		Rating int    `validate:"min=1,max=5"`
	}

	assert.NoError(t, Validate(req{Email: "a@b.co", Rating: 3}))

	err := Validate(req{Email: "nope", Rating: 9})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "field 'email' failed on the 'email' tag")
	assert.Contains(t, err.Error(), "field 'rating' failed on the 'max' tag (value: 5)")
}
