package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/middleware"
	"github.com/JAY4T/kaakazini/internal/utils"
)

type UploadHandler struct {
	Store    Uploader
	MaxBytes int64
	Log      *logrus.Logger
}

func NewUploadHandler(store Uploader, maxBytes int64, log *logrus.Logger) *UploadHandler {
	return &UploadHandler{Store: store, MaxBytes: maxBytes, Log: log}
}

func (h *UploadHandler) Routes(r fiber.Router, auth fiber.Handler) {
	r.Post("/upload", auth, h.Upload)
}

// Upload stores a multipart "file" under the optional "folder" and returns
// its public URL and key.
func (h *UploadHandler) Upload(c *fiber.Ctx) error {
	if h.Store == nil {
		return utils.Fail(c, apperr.Validation("file uploads are not configured"))
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return utils.Fail(c, apperr.Validation("file is required"))
	}
	folder := c.FormValue("folder", "uploads")

	obj, err := putFile(c.UserContext(), h.Store, folder, fh, h.MaxBytes)
	if err != nil {
		h.Log.WithError(err).WithField("user_id", middleware.UserID(c)).Error("upload failed")
		return utils.Fail(c, err)
	}
	return utils.Created(c, obj)
}
