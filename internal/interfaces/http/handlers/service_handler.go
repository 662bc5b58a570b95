package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"keyguard.backend/internal/domain/entities"
	domainerrors "keyguard.backend/internal/domain/errors"
	"keyguard.backend/internal/interfaces/http/middleware"
	"keyguard.backend/internal/interfaces/http/response"
	"keyguard.backend/internal/usecases"
	"keyguard.backend/pkg/utils"
)

// ServiceHandler handles the owner's service record
type ServiceHandler struct {
	lifecycle *usecases.LifecycleUsecase
	audit     *usecases.AuditUsecase
}

func NewServiceHandler(lifecycle *usecases.LifecycleUsecase, audit *usecases.AuditUsecase) *ServiceHandler {
	return &ServiceHandler{lifecycle: lifecycle, audit: audit}
}

// InitService registers the caller's service
// POST /api/v1/service
func (h *ServiceHandler) InitService(c *gin.Context) {
	owner, ok := middleware.GetOwnerID(c)
	if !ok {
		response.Error(c, domainerrors.ErrUnauthorized)
		return
	}

	var input entities.InitServiceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	svc, err := h.lifecycle.InitService(c.Request.Context(), owner, &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"service": svc})
}

// GetService returns the caller's service
// GET /api/v1/service
func (h *ServiceHandler) GetService(c *gin.Context) {
	owner, ok := middleware.GetOwnerID(c)
	if !ok {
		response.Error(c, domainerrors.ErrUnauthorized)
		return
	}

	svc, err := h.lifecycle.GetService(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"service": svc})
}

// UpdateService changes the caller's service configuration. Omitted fields
// are left as they are.
// PATCH /api/v1/service
func (h *ServiceHandler) UpdateService(c *gin.Context) {
	owner, ok := middleware.GetOwnerID(c)
	if !ok {
		response.Error(c, domainerrors.ErrUnauthorized)
		return
	}

	var input entities.UpdateServiceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	svc, err := h.lifecycle.UpdateService(c.Request.Context(), owner, &input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"service": svc})
}

// ListEvents returns the caller's audit trail, newest first
// GET /api/v1/service/events?page=1&limit=50
func (h *ServiceHandler) ListEvents(c *gin.Context) {
	owner, ok := middleware.GetOwnerID(c)
	if !ok {
		response.Error(c, domainerrors.ErrUnauthorized)
		return
	}

	pagination, err := utils.ParsePagination(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	events, meta, err := h.audit.ListEvents(c.Request.Context(), owner, pagination)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"events": events,
		"meta":   meta,
	})
}
