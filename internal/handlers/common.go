package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/jobflow"
	"github.com/JAY4T/kaakazini/internal/middleware"
	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/services/storage"
	"github.com/JAY4T/kaakazini/internal/utils"
)

// Profiles looks up the craftsman profile behind a user, if any.
type Profiles interface {
	ForUser(ctx context.Context, userID uuid.UUID) (*models.CraftsmanProfile, error)
}

// Uploader stores files in object storage.
type Uploader interface {
	Put(ctx context.Context, folder, filename string, body io.Reader, size int64, contentType string) (storage.Object, error)
	Remove(ctx context.Context, key string) error
}

// bind parses the body into v and runs its validate tags.
func bind(c *fiber.Ctx, v interface{}) error {
	if err := c.BodyParser(v); err != nil {
		return apperr.Validation("invalid body")
	}
	return utils.Validate(v)
}

// bindOptional is bind for endpoints whose body may be empty.
func bindOptional(c *fiber.Ctx, v interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return bind(c, v)
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// actor resolves the caller for lifecycle guards. ?role= may narrow a
// craftsman to the client view.
func actor(c *fiber.Ctx, profiles Profiles) (jobflow.Actor, error) {
	uid := middleware.UserID(c)
	role := middleware.Role(c)
	var profile *models.CraftsmanProfile
	if role == models.RoleCraftsman {
		p, err := profiles.ForUser(c.UserContext(), uid)
		if err != nil {
			return jobflow.Actor{}, err
		}
		profile = p
	}
	return jobflow.NewActor(uid, role, profile, c.Query("role")), nil
}

// approvedCraftsman returns the caller's profile, failing unless it is approved.
func approvedCraftsman(c *fiber.Ctx, profiles Profiles) (*models.CraftsmanProfile, error) {
	if middleware.Role(c) != models.RoleCraftsman {
		return nil, apperr.Forbidden("only craftsmen can do this")
	}
	p, err := profiles.ForUser(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return nil, err
	}
	if p == nil || !p.IsApproved {
		return nil, apperr.Forbidden("your craftsman profile is not approved yet")
	}
	return p, nil
}

// craftsmanProfile returns the caller's profile whatever its approval state.
func craftsmanProfile(c *fiber.Ctx, profiles Profiles) (*models.CraftsmanProfile, error) {
	if middleware.Role(c) != models.RoleCraftsman {
		return nil, apperr.Forbidden("only craftsmen can do this")
	}
	p, err := profiles.ForUser(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("craftsman profile")
	}
	return p, nil
}

// putFile uploads one multipart file under folder.
func putFile(ctx context.Context, up Uploader, folder string, fh *multipart.FileHeader, maxBytes int64) (storage.Object, error) {
	if up == nil {
		return storage.Object{}, apperr.Validation("file uploads are not configured")
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return storage.Object{}, apperr.Validation("file %s is too large", fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return storage.Object{}, apperr.Validation("unreadable file %s", fh.Filename)
	}
	defer f.Close()
	return up.Put(ctx, folder, fh.Filename, f, fh.Size, fh.Header.Get(fiber.HeaderContentType))
}

// optionalFile uploads the named form file when the request is multipart
// and carries one. An empty Object means no file was sent.
func optionalFile(c *fiber.Ctx, up Uploader, field, folder string, maxBytes int64) (storage.Object, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return storage.Object{}, nil
	}
	fh, err := c.FormFile(field)
	if err != nil {
		return storage.Object{}, nil
	}
	return putFile(c.UserContext(), up, folder, fh, maxBytes)
}
