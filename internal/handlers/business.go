package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/bazaardial/internal/apperr"
	"github.com/example/bazaardial/internal/middleware"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/services"
	"github.com/example/bazaardial/internal/utils"
)

// BusinessHandler serves listing endpoints.
type BusinessHandler struct {
	listings *services.ListingService
	uploads  *Uploader
	auth     *AuthHandler
}

// NewBusinessHandler constructs BusinessHandler. auth sets the refresh cookie
// after the role change on create.
func NewBusinessHandler(listings *services.ListingService, uploads *Uploader, auth *AuthHandler) *BusinessHandler {
	return &BusinessHandler{listings: listings, uploads: uploads, auth: auth}
}

func session(c *fiber.Ctx) (*middleware.Session, error) {
	s, ok := middleware.GetSession(c)
	if !ok {
		return nil, apperr.Unauthorized("Authentication required.")
	}
	return s, nil
}

// List returns public listings, newest first.
func (h *BusinessHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	items, err := h.listings.List(c.UserContext(), repository.ListFilter{
		Query:    c.Query("q"),
		Category: c.Query("category"),
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(items)
}

// Get returns a single public listing.
func (h *BusinessHandler) Get(c *fiber.Ctx) error {
	biz, err := h.listings.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(biz)
}

// Mine returns the caller's listing.
func (h *BusinessHandler) Mine(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	biz, err := h.listings.Mine(c.UserContext(), s.UID)
	if err != nil {
		return err
	}
	return c.JSON(biz)
}

// Create registers the caller's listing and promotes them to owner.
func (h *BusinessHandler) Create(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	fields, files, err := h.uploads.ListingForm(c)
	if err != nil {
		return err
	}

	res, err := h.listings.Create(c.UserContext(), s.UID, fields, files)
	if err != nil {
		return err
	}

	h.auth.setRefreshCookie(c, res.Tokens.RefreshToken)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":     "Business created",
		"business":    res.Business,
		"accessToken": res.Tokens.AccessToken,
	})
}

// Update applies a partial update to the caller's listing.
func (h *BusinessHandler) Update(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	fields, files, err := h.uploads.ListingForm(c)
	if err != nil {
		return err
	}

	biz, err := h.listings.Update(c.UserContext(), s.UID, c.Params("id"), fields, files)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Business updated", "business": biz})
}

// Delete removes the caller's listing and returns a demoted access token.
func (h *BusinessHandler) Delete(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	token, err := h.listings.Delete(c.UserContext(), s.UID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Business deleted", "token": token})
}
