package http

import (
	"errors"
	"net/http"

	"github.com/GriffinCanCode/scribe/backend/internal/functions"
	"github.com/GriffinCanCode/scribe/backend/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PutFunctionRequest is the body of PUT /functions/:name
type PutFunctionRequest struct {
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
}

// ListFunctions lists stored dynamic functions
func (h *Handlers) ListFunctions(c *gin.Context) {
	fns, err := h.store.List(c.Request.Context())
	if err != nil {
		errorResponse(c, storeStatus(err), err)
		return
	}
	if fns == nil {
		fns = []functions.Function{}
	}
	c.JSON(http.StatusOK, gin.H{
		"functions": fns,
		"count":     len(fns),
		"backend":   h.backend,
	})
}

// GetFunction returns one stored function
func (h *Handlers) GetFunction(c *gin.Context) {
	name := c.Param("name")
	if err := functions.Validate(name); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	fn, err := h.store.Get(c.Request.Context(), name)
	if err != nil {
		errorResponse(c, storeStatus(err), err)
		return
	}

	etag := `"` + utils.ShortHash(fn.Checksum()) + `"`
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, fn)
}

// PutFunction creates or replaces a stored function
func (h *Handlers) PutFunction(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestSize)

	name := c.Param("name")
	var req PutFunctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	fn := functions.Function{Name: name, Code: req.Code, Description: req.Description}
	if err := functions.ValidateFunction(fn); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	if err := h.store.Put(ctx, fn); err != nil {
		errorResponse(c, storeStatus(err), err)
		return
	}
	h.logger.Info("Function stored", zap.String("function", name), zap.String("backend", h.backend))

	stored, err := h.store.Get(ctx, name)
	if err != nil {
		errorResponse(c, storeStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// DeleteFunction removes a stored function
func (h *Handlers) DeleteFunction(c *gin.Context) {
	name := c.Param("name")
	if err := functions.Validate(name); err != nil {
		errorResponse(c, http.StatusBadRequest, err)
		return
	}

	if err := h.store.Delete(c.Request.Context(), name); err != nil {
		errorResponse(c, storeStatus(err), err)
		return
	}
	h.logger.Info("Function deleted", zap.String("function", name), zap.String("backend", h.backend))
	c.JSON(http.StatusOK, gin.H{"deleted": true, "name": name})
}

func storeStatus(err error) int {
	switch {
	case errors.Is(err, functions.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, functions.ErrReadOnly):
		return http.StatusMethodNotAllowed
	default:
		return http.StatusBadGateway
	}
}
