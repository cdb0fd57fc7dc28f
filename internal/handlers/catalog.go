package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/middleware"
	"github.com/JAY4T/kaakazini/internal/models"
	"github.com/JAY4T/kaakazini/internal/services/catalog"
	"github.com/JAY4T/kaakazini/internal/utils"
)

// Users loads the account behind a token.
type Users interface {
	User(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type CatalogHandler struct {
	Svc      *catalog.Service
	Profiles Profiles
	Users    Users
	Store    Uploader
	MaxBytes int64
	Log      *logrus.Logger
}

func NewCatalogHandler(svc *catalog.Service, profiles Profiles, users Users, store Uploader, maxBytes int64, log *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{Svc: svc, Profiles: profiles, Users: users, Store: store, MaxBytes: maxBytes, Log: log}
}

func (h *CatalogHandler) Routes(r fiber.Router, auth, admin fiber.Handler) {
	r.Get("/services", auth, h.ListServices)
	r.Post("/services", auth, h.CreateService)
	r.Post("/services/add", auth, h.CreateService)
	r.Patch("/services/:id", auth, h.UpdateService)
	r.Put("/services/:id", auth, h.UpdateService)
	r.Delete("/services/:id", auth, h.DeleteService)

	r.Get("/products", auth, h.ListProducts)
	r.Post("/products", auth, h.CreateProduct)
	r.Get("/products/:id", auth, h.GetProduct)
	r.Patch("/products/:id", auth, h.UpdateProduct)
	r.Put("/products/:id", auth, h.UpdateProduct)
	r.Delete("/products/:id", auth, h.DeleteProduct)

	r.Get("/craftsman/gallery", auth, h.ListGallery)
	r.Post("/craftsman/gallery", auth, h.AddGalleryImage)
	r.Delete("/craftsman/gallery/:id", auth, h.DeleteGalleryImage)

	r.Get("/reviews", h.ListReviews)
	r.Get("/reviews/public", h.PublicReviews)
	r.Post("/reviews", auth, h.CreateReview)
	r.Get("/craftsman/:id/reviews", h.CraftsmanReviews)

	r.Post("/contact", h.CreateContact)

	g := r.Group("/admin", auth, admin)
	g.Get("/products", h.AdminProducts)
	g.Post("/products/:id/approve", h.ApproveProduct)
	g.Post("/products/:id/reject", h.RejectProduct)
	g.Get("/contact", h.ListContacts)
}

// ---------- services ----------

// ListServices shows a craftsman their own services and everybody else
// the approved catalog.
func (h *CatalogHandler) ListServices(c *fiber.Ctx) error {
	var owner *uuid.UUID
	if middleware.Role(c) == models.RoleCraftsman {
		p, err := h.Profiles.ForUser(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return utils.Fail(c, err)
		}
		if p != nil {
			owner = &p.ID
		}
	}
	out, err := h.Svc.ListServices(c.UserContext(), owner)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *CatalogHandler) CreateService(c *fiber.Ctx) error {
	p, err := approvedCraftsman(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	var in catalog.ServiceInput
	if err := bind(c, &in); err != nil {
		return utils.Fail(c, err)
	}
	obj, err := optionalFile(c, h.Store, "image", "services", h.MaxBytes)
	if err != nil {
		return utils.Fail(c, err)
	}
	if obj.URL != "" {
		in.ImageURL = obj.URL
	}
	svc, err := h.Svc.CreateService(c.UserContext(), p.ID, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.Created(c, svc)
}

func (h *CatalogHandler) UpdateService(c *fiber.Ctx) error {
	p, err := approvedCraftsman(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	var in catalog.ServiceInput
	if err := c.BodyParser(&in); err != nil {
		return utils.Fail(c, apperr.Validation("invalid body"))
	}
	obj, err := optionalFile(c, h.Store, "image", "services", h.MaxBytes)
	if err != nil {
		return utils.Fail(c, err)
	}
	if obj.URL != "" {
		in.ImageURL = obj.URL
	}
	svc, err := h.Svc.UpdateService(c.UserContext(), p.ID, id, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, svc)
}

func (h *CatalogHandler) DeleteService(c *fiber.Ctx) error {
	p, err := approvedCraftsman(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	if err := h.Svc.DeleteService(c.UserContext(), p.ID, id); err != nil {
		return utils.Fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ---------- products ----------

func (h *CatalogHandler) ListProducts(c *fiber.Ctx) error {
	p, err := craftsmanProfile(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	out, err := h.Svc.ListProducts(c.UserContext(), p.ID)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *CatalogHandler) productInput(c *fiber.Ctx) (catalog.ProductInput, error) {
	var in catalog.ProductInput
	if err := bind(c, &in); err != nil {
		return in, err
	}
	obj, err := optionalFile(c, h.Store, "image", "products", h.MaxBytes)
	if err != nil {
		return in, err
	}
	if obj.URL != "" {
		in.ImageURL = obj.URL
	}
	return in, nil
}

func (h *CatalogHandler) CreateProduct(c *fiber.Ctx) error {
	p, err := craftsmanProfile(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	in, err := h.productInput(c)
	if err != nil {
		return utils.Fail(c, err)
	}
	prod, err := h.Svc.CreateProduct(c.UserContext(), p.ID, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.Created(c, prod)
}

func (h *CatalogHandler) GetProduct(c *fiber.Ctx) error {
	p, err := craftsmanProfile(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	prod, err := h.Svc.GetProduct(c.UserContext(), p.ID, id)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, prod)
}

func (h *CatalogHandler) UpdateProduct(c *fiber.Ctx) error {
	p, err := craftsmanProfile(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	in, err := h.productInput(c)
	if err != nil {
		return utils.Fail(c, err)
	}
	prod, err := h.Svc.UpdateProduct(c.UserContext(), p.ID, id, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, prod)
}

func (h *CatalogHandler) DeleteProduct(c *fiber.Ctx) error {
	p, err := craftsmanProfile(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	if err := h.Svc.DeleteProduct(c.UserContext(), p.ID, id); err != nil {
		return utils.Fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CatalogHandler) AdminProducts(c *fiber.Ctx) error {
	out, err := h.Svc.AdminProducts(c.UserContext(), c.Query("status"))
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *CatalogHandler) ApproveProduct(c *fiber.Ctx) error { return h.moderate(c, true) }

func (h *CatalogHandler) RejectProduct(c *fiber.Ctx) error { return h.moderate(c, false) }

func (h *CatalogHandler) moderate(c *fiber.Ctx, approve bool) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	prod, err := h.Svc.ModerateProduct(c.UserContext(), id, approve)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, prod)
}

// ---------- gallery ----------

func (h *CatalogHandler) ListGallery(c *fiber.Ctx) error {
	p, err := craftsmanProfile(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	out, err := h.Svc.ListGallery(c.UserContext(), p.ID)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *CatalogHandler) AddGalleryImage(c *fiber.Ctx) error {
	p, err := craftsmanProfile(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	obj, err := optionalFile(c, h.Store, "image", "gallery", h.MaxBytes)
	if err != nil {
		return utils.Fail(c, err)
	}
	if obj.URL == "" {
		return utils.Fail(c, apperr.Validation("image is required"))
	}
	img, err := h.Svc.AddGalleryImage(c.UserContext(), p.ID, obj.URL, obj.Path)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.Created(c, img)
}

func (h *CatalogHandler) DeleteGalleryImage(c *fiber.Ctx) error {
	p, err := craftsmanProfile(c, h.Profiles)
	if err != nil {
		return utils.Fail(c, err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	key, err := h.Svc.DeleteGalleryImage(c.UserContext(), p.ID, id)
	if err != nil {
		return utils.Fail(c, err)
	}
	if h.Store != nil {
		if err := h.Store.Remove(c.UserContext(), key); err != nil {
			h.Log.WithError(err).WithField("key", key).Warn("remove gallery object")
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ---------- reviews ----------

func (h *CatalogHandler) ListReviews(c *fiber.Ctx) error {
	var cid *uuid.UUID
	if v := c.Query("craftsman"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return utils.Fail(c, apperr.Validation("invalid craftsman"))
		}
		cid = &id
	}
	out, err := h.Svc.ListReviews(c.UserContext(), cid, 0)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *CatalogHandler) PublicReviews(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := h.Svc.ListReviews(c.UserContext(), nil, limit)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *CatalogHandler) CraftsmanReviews(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return utils.Fail(c, err)
	}
	out, err := h.Svc.ListReviews(c.UserContext(), &id, 0)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}

func (h *CatalogHandler) CreateReview(c *fiber.Ctx) error {
	var in catalog.ReviewInput
	if err := bind(c, &in); err != nil {
		return utils.Fail(c, err)
	}
	u, err := h.Users.User(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return utils.Fail(c, err)
	}
	r, err := h.Svc.CreateReview(c.UserContext(), u, in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.Created(c, r)
}

// ---------- contact ----------

func (h *CatalogHandler) CreateContact(c *fiber.Ctx) error {
	var in catalog.ContactInput
	if err := bind(c, &in); err != nil {
		return utils.Fail(c, err)
	}
	m, err := h.Svc.CreateContact(c.UserContext(), in)
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.Created(c, m)
}

func (h *CatalogHandler) ListContacts(c *fiber.Ctx) error {
	out, err := h.Svc.ListContacts(c.UserContext())
	if err != nil {
		return utils.Fail(c, err)
	}
	return utils.OK(c, out)
}
