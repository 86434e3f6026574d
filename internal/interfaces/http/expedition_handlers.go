package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expedition-settlement/internal/application/service"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/infrastructure/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExpeditionRequest is the body of POST and PUT /api/expeditions
type ExpeditionRequest struct {
	Name             string        `json:"name" binding:"required"`
	DefaultUnitPrice *decimalInput `json:"default_unit_price"`
	InsuranceLimit   *decimalInput `json:"insurance_limit"`
}

func (r ExpeditionRequest) toInput() service.ExpeditionInput {
	return service.ExpeditionInput{
		Name:             r.Name,
		DefaultUnitPrice: r.DefaultUnitPrice.ptr(),
		InsuranceLimit:   r.InsuranceLimit.ptr(),
	}
}

// ListExpeditions handles GET /api/expeditions
func (h *Handlers) ListExpeditions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	exps, err := h.services.Expeditions.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"expeditions": exps, "limit": limit, "offset": offset})
}

// CreateExpedition handles POST /api/expeditions
func (h *Handlers) CreateExpedition(c *gin.Context) {
	var req ExpeditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	exp, err := h.services.Expeditions.Create(c.Request.Context(), req.toInput())
	if err != nil {
		h.fail(c, err)
		return
	}
	created(c, exp)
}

// GetExpedition handles GET /api/expeditions/:id
func (h *Handlers) GetExpedition(c *gin.Context) {
	exp, err := h.services.Expeditions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, exp)
}

// UpdateExpedition handles PUT /api/expeditions/:id
func (h *Handlers) UpdateExpedition(c *gin.Context) {
	var req ExpeditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	exp, err := h.services.Expeditions.Update(c.Request.Context(), c.GetString(actorKey), c.Param("id"), req.toInput())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, exp)
}

// DeleteExpedition handles DELETE /api/expeditions/:id
func (h *Handlers) DeleteExpedition(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Expeditions.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("Expedition deleted", "expedition_id", id, "actor", c.GetString(actorKey))
	ok(c, gin.H{"deleted": id})
}

// ExpeditionSummary handles GET /api/expeditions/:id/summary
func (h *Handlers) ExpeditionSummary(c *gin.Context) {
	summary, err := h.services.Expeditions.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, summary)
}

// ExpeditionReferencePrice handles GET /api/expeditions/:id/reference-price
func (h *Handlers) ExpeditionReferencePrice(c *gin.Context) {
	ref, err := h.services.Expeditions.ReferencePrice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, ref)
}

// ExportExpedition handles GET /api/expeditions/:id/export
func (h *Handlers) ExportExpedition(c *gin.Context) {
	ctx := c.Request.Context()

	exp, err := h.services.Expeditions.Get(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	summary, err := h.services.Expeditions.Summary(ctx, exp.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	clients, err := h.services.Catalog.ListClients(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	byID := make(map[string]*entity.Client, len(clients))
	for _, cl := range clients {
		byID[cl.ID] = cl
	}

	var buf bytes.Buffer
	if err := h.workbook.Write(exp, summary, byID, &buf); err != nil {
		h.fail(c, err)
		return
	}

	fileName := fmt.Sprintf("expedicion-%s.xlsx", storage.SanitizeName(exp.Name))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
