package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"keyguard.backend/internal/domain/entities"
	domainerrors "keyguard.backend/internal/domain/errors"
	"keyguard.backend/internal/interfaces/http/middleware"
	"keyguard.backend/internal/interfaces/http/response"
	"keyguard.backend/internal/usecases"
	"keyguard.backend/pkg/crypto"
)

var generateApiKey = crypto.GenerateApiKey

type ApiKeyHandler struct {
	lifecycle *usecases.LifecycleUsecase
}

func NewApiKeyHandler(lifecycle *usecases.LifecycleUsecase) *ApiKeyHandler {
	return &ApiKeyHandler{lifecycle: lifecycle}
}

// createKeyRequest accepts either a client-side hash or nothing, in which
// case a secret is generated and returned once.
type createKeyRequest struct {
	KeyHash     string      `json:"keyHash"`
	Label       string      `json:"label"`
	Permissions []string    `json:"permissions"`
	RateLimit   null.Uint32 `json:"rateLimit"`
	ExpiresAt   null.Int64  `json:"expiresAt"`
}

type updateKeyRequest struct {
	// nil leaves permissions unchanged; an empty list clears them
	Permissions []string    `json:"permissions"`
	RateLimit   null.Uint32 `json:"rateLimit"`
	ExpiresAt   null.Int64  `json:"expiresAt"`
}

type rotateKeyRequest struct {
	NewKeyHash string      `json:"newKeyHash"`
	NewLabel   null.String `json:"newLabel"`
}

type checkPermissionRequest struct {
	Required []string `json:"required"`
}

// CreateKey registers a new key on the caller's service
// POST /api/v1/keys
func (h *ApiKeyHandler) CreateKey(c *gin.Context) {
	owner, ok := middleware.GetOwnerID(c)
	if !ok {
		response.Error(c, domainerrors.ErrUnauthorized)
		return
	}

	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	perms, err := entities.ParsePermissions(req.Permissions)
	if err != nil {
		response.Error(c, err)
		return
	}

	hash, secret, err := resolveKeyHash(req.KeyHash)
	if err != nil {
		response.Error(c, err)
		return
	}

	key, err := h.lifecycle.CreateKey(c.Request.Context(), owner, &entities.CreateKeyInput{
		KeyHash:     hash,
		Label:       req.Label,
		Permissions: perms,
		RateLimit:   req.RateLimit,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, entities.CreateKeyResponse{ApiKey: key, Secret: secret})
}

// ListKeys lists the caller's keys, revoked ones included
// GET /api/v1/keys
func (h *ApiKeyHandler) ListKeys(c *gin.Context) {
	owner, ok := middleware.GetOwnerID(c)
	if !ok {
		response.Error(c, domainerrors.ErrUnauthorized)
		return
	}

	keys, err := h.lifecycle.ListKeys(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"keys": keys})
}

// GetKey returns one of the caller's keys
// GET /api/v1/keys/:hash
func (h *ApiKeyHandler) GetKey(c *gin.Context) {
	owner, hash, ok := ownerAndHash(c)
	if !ok {
		return
	}

	key, err := h.lifecycle.GetKey(c.Request.Context(), owner, hash)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"key": key})
}

// UpdateKey changes permissions, rate limit or expiry. An explicit
// expiresAt of 0 clears the expiry.
// PATCH /api/v1/keys/:hash
func (h *ApiKeyHandler) UpdateKey(c *gin.Context) {
	owner, hash, ok := ownerAndHash(c)
	if !ok {
		return
	}

	var req updateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	input := &entities.UpdateKeyInput{RateLimit: req.RateLimit, ExpiresAt: req.ExpiresAt}
	if req.Permissions != nil {
		perms, err := entities.ParsePermissions(req.Permissions)
		if err != nil {
			response.Error(c, err)
			return
		}
		input.Permissions = null.Uint16From(uint16(perms))
	}

	key, err := h.lifecycle.UpdateKey(c.Request.Context(), owner, hash, input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"key": key})
}

// RevokeKey permanently disables a key and frees its slot
// POST /api/v1/keys/:hash/revoke
func (h *ApiKeyHandler) RevokeKey(c *gin.Context) {
	owner, hash, ok := ownerAndHash(c)
	if !ok {
		return
	}

	key, err := h.lifecycle.RevokeKey(c.Request.Context(), owner, hash)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"key": key})
}

// RotateKey revokes a key and issues its successor in one step
// POST /api/v1/keys/:hash/rotate
func (h *ApiKeyHandler) RotateKey(c *gin.Context) {
	owner, hash, ok := ownerAndHash(c)
	if !ok {
		return
	}

	var req rotateKeyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, domainerrors.BadRequest(err.Error()))
			return
		}
	}

	newHash, secret, err := resolveKeyHash(req.NewKeyHash)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.lifecycle.RotateKey(c.Request.Context(), owner, &entities.RotateKeyInput{
		OldKeyHash: hash,
		NewKeyHash: newHash,
		NewLabel:   req.NewLabel,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"revoked": result.Revoked,
		"key":     result.Created,
		"secret":  secret,
	})
}

// CloseKey deletes a key record and refunds its deposit
// DELETE /api/v1/keys/:hash
func (h *ApiKeyHandler) CloseKey(c *gin.Context) {
	owner, hash, ok := ownerAndHash(c)
	if !ok {
		return
	}

	result, err := h.lifecycle.CloseKey(c.Request.Context(), owner, hash)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// RecordUsage meters one use of a key
// POST /api/v1/keys/:hash/usage
func (h *ApiKeyHandler) RecordUsage(c *gin.Context) {
	owner, hash, ok := ownerAndHash(c)
	if !ok {
		return
	}

	status, err := h.lifecycle.RecordUsage(c.Request.Context(), owner, hash)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": status})
}

// ValidateKey reports whether the presented key is live and within its
// rate window, without consuming quota
// POST /api/v1/services/:serviceId/validate
func (h *ApiKeyHandler) ValidateKey(c *gin.Context) {
	serviceID, hash, ok := serviceAndPresentedKey(c)
	if !ok {
		return
	}

	status, err := h.lifecycle.ValidateKey(c.Request.Context(), serviceID, hash)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"valid": true, "status": status})
}

// CheckPermission reports whether the presented key holds every required
// permission
// POST /api/v1/services/:serviceId/check-permission
func (h *ApiKeyHandler) CheckPermission(c *gin.Context) {
	serviceID, hash, ok := serviceAndPresentedKey(c)
	if !ok {
		return
	}

	var req checkPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	required, err := entities.ParsePermissions(req.Required)
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.lifecycle.CheckPermission(c.Request.Context(), serviceID, hash, required); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"granted": true, "required": required.Names()})
}

func resolveKeyHash(raw string) (entities.KeyHash, string, error) {
	if raw != "" {
		hash, err := entities.ParseKeyHash(raw)
		return hash, "", err
	}
	secret, err := generateApiKey()
	if err != nil {
		return entities.KeyHash{}, "", err
	}
	return entities.HashSecret(secret), secret, nil
}

func ownerAndHash(c *gin.Context) (uuid.UUID, entities.KeyHash, bool) {
	owner, ok := middleware.GetOwnerID(c)
	if !ok {
		response.Error(c, domainerrors.ErrUnauthorized)
		return uuid.Nil, entities.KeyHash{}, false
	}
	hash, err := entities.ParseKeyHash(c.Param("hash"))
	if err != nil {
		response.Error(c, err)
		return uuid.Nil, entities.KeyHash{}, false
	}
	return owner, hash, true
}

func serviceAndPresentedKey(c *gin.Context) (uuid.UUID, entities.KeyHash, bool) {
	serviceID, err := uuid.Parse(c.Param("serviceId"))
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid service ID"))
		return uuid.Nil, entities.KeyHash{}, false
	}
	raw, ok := middleware.RawApiKey(c)
	if !ok {
		response.ErrorWithStatus(c, http.StatusUnauthorized, "UNAUTHORIZED", "API key is required")
		return uuid.Nil, entities.KeyHash{}, false
	}
	return serviceID, entities.HashSecret(raw), true
}
