package http

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expedition-settlement/internal/application/service"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/pkg/utils"
)

// CreatePackageRequest is the body of POST /api/packages
type CreatePackageRequest struct {
	ExpeditionID    string        `json:"expedition_id" binding:"required"`
	ClientID        string        `json:"client_id" binding:"required"`
	CategoryID      string        `json:"category_id" binding:"required"`
	Number          string        `json:"number" binding:"required"`
	DiscountPercent *decimalInput `json:"discount_percent"`
	TaxPercent      *decimalInput `json:"tax_percent"`
	UnitPriceFine   *decimalInput `json:"unit_price_fine"`
}

// EditPackageRequest is the body of PATCH /api/packages/:id. Absent fields are unchanged.
type EditPackageRequest struct {
	DiscountPercent *decimalInput `json:"discount_percent"`
	TaxPercent      *decimalInput `json:"tax_percent"`
	Number          *string       `json:"number"`
}

// AddLineRequest is the body of POST /api/packages/:id/lines
type AddLineRequest struct {
	Bruto *decimalInput `json:"bruto" binding:"required"`
	Ley   *decimalInput `json:"ley" binding:"required"`
}

// PriceRequest sets or clears (null) a price
type PriceRequest struct {
	Price *decimalInput `json:"price"`
}

// StatusRequest is the body of the status endpoints
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CommentRequest is the body of POST /api/packages/:id/comments
type CommentRequest struct {
	Text string `json:"text" binding:"required"`
}

func actor(c *gin.Context) string {
	return c.GetString(actorKey)
}

// respondPackage reloads pkg with its derived figures
func (h *Handlers) respondPackage(c *gin.Context, status int, pkg *entity.Package) {
	view, err := h.services.Packages.Get(c.Request.Context(), pkg.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, Response{Success: true, Data: view})
}

// mutate runs a package mutation and answers with the updated view
func (h *Handlers) mutate(c *gin.Context, fn func() (*entity.Package, error)) {
	pkg, err := fn()
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondPackage(c, http.StatusOK, pkg)
}

// CreatePackage handles POST /api/packages
func (h *Handlers) CreatePackage(c *gin.Context) {
	var req CreatePackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	in := service.CreatePackageInput{
		ExpeditionID:    req.ExpeditionID,
		ClientID:        req.ClientID,
		CategoryID:      req.CategoryID,
		Number:          req.Number,
		DiscountPercent: req.DiscountPercent.ptr(),
		UnitPriceFine:   req.UnitPriceFine.ptr(),
	}
	if req.TaxPercent != nil {
		in.TaxPercent = req.TaxPercent.Decimal
	}

	pkg, err := h.services.Packages.Create(c.Request.Context(), actor(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondPackage(c, http.StatusCreated, pkg)
}

// GetPackage handles GET /api/packages/:id
func (h *Handlers) GetPackage(c *gin.Context) {
	view, err := h.services.Packages.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, view)
}

// EditPackage handles PATCH /api/packages/:id
func (h *Handlers) EditPackage(c *gin.Context) {
	var req EditPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.EditData(c.Request.Context(), actor(c), c.Param("id"), service.EditDataInput{
			DiscountPercent: req.DiscountPercent.ptr(),
			TaxPercent:      req.TaxPercent.ptr(),
			Number:          req.Number,
		})
	})
}

// DeletePackage handles DELETE /api/packages/:id
func (h *Handlers) DeletePackage(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.Packages.Delete(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, gin.H{"deleted": id})
}

// PackageHistory handles GET /api/packages/:id/history
func (h *Handlers) PackageHistory(c *gin.Context) {
	entries, err := h.services.Packages.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, entries)
}

// AddLine handles POST /api/packages/:id/lines
func (h *Handlers) AddLine(c *gin.Context) {
	var req AddLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.AddLine(c.Request.Context(), actor(c), c.Param("id"), req.Bruto.Decimal, req.Ley.Decimal)
	})
}

// RemoveLine handles DELETE /api/packages/:id/lines/:lineId
func (h *Handlers) RemoveLine(c *gin.Context) {
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.RemoveLine(c.Request.Context(), actor(c), c.Param("id"), c.Param("lineId"))
	})
}

// SetUnitPrice handles PUT /api/packages/:id/unit-price
func (h *Handlers) SetUnitPrice(c *gin.Context) {
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.SetUnitPrice(c.Request.Context(), actor(c), c.Param("id"), req.Price.ptr())
	})
}

// SetCounterpartyClose handles PUT /api/packages/:id/counterparty-close
func (h *Handlers) SetCounterpartyClose(c *gin.Context) {
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.SetCounterpartyClose(c.Request.Context(), actor(c), c.Param("id"), req.Price.ptr())
	})
}

// SetStatus handles PUT /api/packages/:id/status
func (h *Handlers) SetStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.SetStatus(c.Request.Context(), actor(c), c.Param("id"), req.Status)
	})
}

// SetPaymentStatus handles PUT /api/packages/:id/payment-status
func (h *Handlers) SetPaymentStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.SetPaymentStatus(c.Request.Context(), actor(c), c.Param("id"), req.Status)
	})
}

// AddComment handles POST /api/packages/:id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.AddComment(c.Request.Context(), actor(c), c.Param("id"), utils.SanitizeString(req.Text))
	})
}

// RemoveComment handles DELETE /api/packages/:id/comments/:commentId
func (h *Handlers) RemoveComment(c *gin.Context) {
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.RemoveComment(c.Request.Context(), actor(c), c.Param("id"), c.Param("commentId"))
	})
}

// UploadInvoice handles POST /api/packages/:id/invoice (multipart field "file")
func (h *Handlers) UploadInvoice(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file field")
		return
	}
	if err := utils.ValidateFileName(fh.Filename); err != nil {
		badRequest(c, err.Error())
		return
	}
	if h.maxUploadSize > 0 && fh.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Success: false,
			Error:   fmt.Sprintf("file exceeds %d bytes", h.maxUploadSize),
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Verification.UploadInvoice(c.Request.Context(), actor(c), c.Param("id"), fh.Filename, content)
	})
}

// DeleteInvoice handles DELETE /api/packages/:id/invoice
func (h *Handlers) DeleteInvoice(c *gin.Context) {
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Verification.DeleteInvoice(c.Request.Context(), actor(c), c.Param("id"))
	})
}

// Verify handles POST /api/packages/:id/verify
func (h *Handlers) Verify(c *gin.Context) {
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Verification.Verify(c.Request.Context(), actor(c), c.Param("id"))
	})
}

// ClearVerification handles DELETE /api/packages/:id/verification
func (h *Handlers) ClearVerification(c *gin.Context) {
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.ClearVerification(c.Request.Context(), actor(c), c.Param("id"))
	})
}

// Validate handles POST /api/packages/:id/validate
func (h *Handlers) Validate(c *gin.Context) {
	h.mutate(c, func() (*entity.Package, error) {
		return h.services.Packages.Validate(c.Request.Context(), actor(c), c.Param("id"))
	})
}
