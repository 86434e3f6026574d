package http

import (
	"github.com/gin-gonic/gin"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
)

// CreateClientRequest is the body of POST /api/clients
type CreateClientRequest struct {
	Name                            string        `json:"name" binding:"required"`
	DiscountStandard                *decimalInput `json:"discount_standard"`
	DiscountFine                    *decimalInput `json:"discount_fine"`
	NegativeLinesExcludedFromWeight *bool         `json:"negative_lines_excluded_from_weight"`
	NotifyChatID                    string        `json:"notify_chat_id"`
}

// CreateCategoryRequest is the body of POST /api/categories
type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

// ListClients handles GET /api/clients
func (h *Handlers) ListClients(c *gin.Context) {
	clients, err := h.services.Catalog.ListClients(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, clients)
}

// CreateClient handles POST /api/clients
func (h *Handlers) CreateClient(c *gin.Context) {
	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	policy := entity.DefaultClientPolicy()
	if req.DiscountStandard != nil {
		policy.DiscountStandard = req.DiscountStandard.Decimal
	}
	if req.DiscountFine != nil {
		policy.DiscountFine = req.DiscountFine.Decimal
	}
	if req.NegativeLinesExcludedFromWeight != nil {
		policy.NegativeLinesExcludedFromWeight = *req.NegativeLinesExcludedFromWeight
	}

	client, err := h.services.Catalog.CreateClient(c.Request.Context(), req.Name, policy, req.NotifyChatID)
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, client)
}

// ListCategories handles GET /api/categories
func (h *Handlers) ListCategories(c *gin.Context) {
	categories, err := h.services.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, categories)
}

// CreateCategory handles POST /api/categories
func (h *Handlers) CreateCategory(c *gin.Context) {
	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	category, err := h.services.Catalog.CreateCategory(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, category)
}
