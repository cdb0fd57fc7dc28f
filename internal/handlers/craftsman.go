package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/JAY4T/kaakazini/internal/middleware"
	"github.com/JAY4T/kaakazini/internal/services/craftsman"
	"github.com/JAY4T/kaakazini/internal/utils"
)

type CraftsmanHandler struct {
	Svc      *craftsman.Service
	Store    Uploader
	MaxBytes int64
	Log      *logrus.Logger
}

func NewCraftsmanHandler(svc *craftsman.Service, store Uploader, maxBytes int64, log *logrus.Logger) *CraftsmanHandler {
	return &CraftsmanHandler{Svc: svc, Store: store, MaxBytes: maxBytes, Log: log}
}

func (h *CraftsmanHandler) Routes(r fiber.Router, auth, admin fiber.Handler) {
	r.Get("/public-craftsman", h.PublicList)
	r.Get("/public-craftsman/:slug", h.PublicDetail)

	r.Get("/craftsman", auth, h.Get)
	r.Patch("/craftsman", auth, h.Update)
	r.Put("/craftsman", auth, h.Update)

	g := r.Group("/admin/craftsman", auth, admin)
	g.Get("/", h.AdminList)
	g.Get("/:id", h.AdminGet)
	g.Patch("/:id", h.AdminUpdate)
	g.Post("/:id/approve", h.Approve)
	g.Post("/:id/reject", h.Reject)
	g.Post("/:id/toggle-active", h.ToggleActive)
}

// Get returns the caller's profile, creating an empty pending one for
// craftsman accounts on first visit.
func (h *CraftsmanHandler) Get(c *fiber.Ctx) error {
	u, err := h.Svc.User(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return utils.Fail(c, err)
	}
	p, err := h.Svc.Ensure(c.UserContext(), u)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, p)
}

// Update edits the caller's profile. Multipart requests may carry
// "profile", "service_image" and "video_file" uploads.
func (h *CraftsmanHandler) Update(c *fiber.Ctx) error {
	var in craftsman.ProfileInput
	if err := bind(c, &in); err != nil {
		return utils.Fail(c, err)
	}
	uploads := []struct {
		field, folder string
		dst           **string
	}{
		{"profile", "craftsman/profile", &in.ProfileURL},
		{"service_image", "craftsman/services", &in.ServiceImageURL},
		{"video_file", "craftsman/videos", &in.VideoURL},
	}
	for _, up := range uploads {
		obj, err := optionalFile(c, h.Store, up.field, up.folder, h.MaxBytes)
		if err != nil {
			return utils.Fail(c, err)
		}
		if obj.URL != "" {
			url := obj.URL
			*up.dst = &url
		}
	}

	u, err := h.Svc.User(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return utils.Fail(c, err)
	}
	p, err := h.Svc.UpdateProfile(c.UserContext(), u, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, p)
}

func (h *CraftsmanHandler) PublicList(c *fiber.Ctx) error {
	out, err := h.Svc.Public(c.UserContext())
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *CraftsmanHandler) PublicDetail(c *fiber.Ctx) error {
	p, err := h.Svc.PublicBySlug(c.UserContext(), c.Params("slug"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, p)
}

// ---------- admin ----------

func (h *CraftsmanHandler) AdminList(c *fiber.Ctx) error {
	f := craftsman.AdminFilter{Search: c.Query("search")}
	if v := c.Query("is_approved"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.IsApproved = &b
		}
	}
	out, err := h.Svc.AdminList(c.UserContext(), f)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *CraftsmanHandler) AdminGet(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	p, err := h.Svc.Get(c.UserContext(), id)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, p)
}

func (h *CraftsmanHandler) AdminUpdate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	var patch craftsman.AdminPatch
	if err := bind(c, &patch); err != nil {
		return utils.Fail(c, err)
	}
	p, err := h.Svc.AdminUpdate(c.UserContext(), id, patch)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, p)
}

func (h *CraftsmanHandler) Approve(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	p, err := h.Svc.Approve(c.UserContext(), id)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Craftsman approved", "data": p})
}

func (h *CraftsmanHandler) Reject(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	p, err := h.Svc.Reject(c.UserContext(), id)
	if err != nil {
		return utils.Fail(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Craftsman rejected", "data": p})
}

func (h *CraftsmanHandler) ToggleActive(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	p, err := h.Svc.ToggleActive(c.UserContext(), id)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, p)
}
