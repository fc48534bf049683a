package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/plansync-backend/internal/http/response"
	"github.com/yungbote/plansync-backend/internal/pkg/httpx"
	"github.com/yungbote/plansync-backend/internal/record"
	"github.com/yungbote/plansync-backend/internal/services"
)

const maxPlanBody = 1 << 20

type PlanHandler struct {
	planService services.PlanService
}

func NewPlanHandler(planService services.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

func readRecord(c *gin.Context) (record.Value, error) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPlanBody+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxPlanBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxPlanBody)
	}
	return record.Parse(raw)
}

// POST /plan
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	body, err := readRecord(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_shape", err)
		return
	}
	res, err := h.planService.Create(c.Request.Context(), body)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Header("ETag", httpx.FormatETag(res.Fingerprint))
	c.JSON(http.StatusCreated, gin.H{"message": "Plan created", "objectId": res.ObjectID})
}

// GET /plan/:id
func (h *PlanHandler) GetPlan(c *gin.Context) {
	res, err := h.planService.Read(c.Request.Context(), c.Param("id"), c.GetHeader("If-None-Match"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Header("ETag", httpx.FormatETag(res.Fingerprint))
	if res.NotModified {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, res.Record)
}

// PATCH /plan/:id
// Requires If-Match with the current ETag.
func (h *PlanHandler) PatchPlan(c *gin.Context) {
	ifMatch := c.GetHeader("If-Match")
	if ifMatch == "" {
		response.RespondServiceError(c, services.ErrPreconditionMissing)
		return
	}
	patch, err := readRecord(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_shape", err)
		return
	}
	res, err := h.planService.Update(c.Request.Context(), c.Param("id"), ifMatch, patch)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Header("ETag", httpx.FormatETag(res.Fingerprint))
	c.JSON(http.StatusOK, res.Record)
}

// DELETE /plan/:id
func (h *PlanHandler) DeletePlan(c *gin.Context) {
	if err := h.planService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Plan deleted"})
}
