package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"maintenance-scheduler/internal/model"
	"maintenance-scheduler/internal/parse"
	"maintenance-scheduler/internal/schedule"
	"maintenance-scheduler/internal/scheduling"
)

const defaultPreviewSize = 10

// occurrenceResponse is the wire form of a schedule occurrence.
type occurrenceResponse struct {
	ID                 string     `json:"id"`
	PlanID             *string    `json:"plan_id"`
	ParentOccurrenceID *string    `json:"parent_occurrence_id"`
	EquipmentID        string     `json:"equipment_id"`
	CompanyID          *string    `json:"company_id,omitempty"`
	AssignedUserID     *string    `json:"assigned_user_id,omitempty"`
	ScheduledDate      string     `json:"scheduled_date"`
	Status             string     `json:"status"`
	Priority           string     `json:"priority"`
	EstimatedCost      float64    `json:"estimated_cost"`
	ActualCost         *float64   `json:"actual_cost,omitempty"`
	Observations       string     `json:"observations,omitempty"`
	CancelReason       string     `json:"cancel_reason,omitempty"`
	SequenceCode       *string    `json:"sequence_code"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toResponse(o *model.ScheduleOccurrence) occurrenceResponse {
	return occurrenceResponse{
		ID:                 o.ID,
		PlanID:             o.PlanID,
		ParentOccurrenceID: o.ParentOccurrenceID,
		EquipmentID:        o.EquipmentID,
		CompanyID:          o.CompanyID,
		AssignedUserID:     o.AssignedUserID,
		ScheduledDate:      schedule.Day(o.ScheduledDate).Format(time.DateOnly),
		Status:             string(o.Status),
		Priority:           string(o.Priority),
		EstimatedCost:      o.EstimatedCost,
		ActualCost:         o.ActualCost,
		Observations:       o.Observations,
		CancelReason:       o.CancelReason,
		SequenceCode:       o.SequenceCode,
		CompletedAt:        o.CompletedAt,
		CancelledAt:        o.CancelledAt,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}

// CreatePlanOccurrence handles POST /api/plans/:plan_id/occurrences.
func (h *Handler) CreatePlanOccurrence(c *gin.Context) {
	occ, err := h.scheduler.CreateOccurrence(c.Request.Context(), c.Param("plan_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(occ))
}

// PreviewPlan handles GET /api/plans/:plan_id/preview?n=10.
func (h *Handler) PreviewPlan(c *gin.Context) {
	n := defaultPreviewSize
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid preview size"})
			return
		}
		n = v
	}

	dates, err := h.scheduler.PreviewPlan(c.Request.Context(), c.Param("plan_id"), n)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(time.DateOnly)
	}
	c.JSON(http.StatusOK, gin.H{"plan_id": c.Param("plan_id"), "dates": out})
}

type createAdHocRequest struct {
	EquipmentID    string  `json:"equipment_id" binding:"required"`
	CompanyID      *string `json:"company_id"`
	AssignedUserID *string `json:"assigned_user_id"`
	ScheduledDate  string  `json:"scheduled_date" binding:"required"`
	Priority       string  `json:"priority"`
	EstimatedCost  float64 `json:"estimated_cost"`
	Observations   string  `json:"observations"`
}

// CreateAdHocOccurrence handles POST /api/occurrences.
func (h *Handler) CreateAdHocOccurrence(c *gin.Context) {
	var req createAdHocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse(time.DateOnly, req.ScheduledDate)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'scheduled_date' format. Use YYYY-MM-DD."})
		return
	}

	occ, err := h.scheduler.CreateAdHocOccurrence(c.Request.Context(), scheduling.AdHocSpec{
		EquipmentID:    req.EquipmentID,
		CompanyID:      req.CompanyID,
		AssignedUserID: req.AssignedUserID,
		ScheduledDate:  date,
		Priority:       model.Priority(req.Priority),
		EstimatedCost:  req.EstimatedCost,
		Observations:   req.Observations,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toResponse(occ))
}

// ListOccurrences handles GET /api/occurrences. A work-order code may be
// given in any casing through ?code=.
func (h *Handler) ListOccurrences(c *gin.Context) {
	f := scheduling.ListFilter{
		PlanID:      c.Query("plan_id"),
		EquipmentID: c.Query("equipment_id"),
		Status:      model.Status(c.Query("status")),
	}
	var err error
	if raw := c.Query("code"); raw != "" {
		code, err := parse.ParseWorkOrderCode(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.SequenceCode = code.String()
	}
	if f.Limit, err = intQuery(c, "limit"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit'"})
		return
	}
	if f.Offset, err = intQuery(c, "offset"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'offset'"})
		return
	}
	if f.From, err = dateQuery(c, "from"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date. Use YYYY-MM-DD."})
		return
	}
	if f.To, err = dateQuery(c, "to"); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date. Use YYYY-MM-DD."})
		return
	}

	occurrences, err := h.scheduler.ListOccurrences(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, err)
		return
	}
	response := make([]occurrenceResponse, 0, len(occurrences))
	for i := range occurrences {
		response = append(response, toResponse(&occurrences[i]))
	}
	c.JSON(http.StatusOK, response)
}

// GetOccurrence handles GET /api/occurrences/:id.
func (h *Handler) GetOccurrence(c *gin.Context) {
	occ, err := h.scheduler.GetOccurrence(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(occ))
}

// StartOccurrence handles POST /api/occurrences/:id/start.
func (h *Handler) StartOccurrence(c *gin.Context) {
	occ, err := h.scheduler.StartOccurrence(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(occ))
}

type completeRequest struct {
	ActualCost   *float64 `json:"actual_cost"`
	Observations string   `json:"observations"`
}

// CompleteOccurrence handles POST /api/occurrences/:id/complete.
func (h *Handler) CompleteOccurrence(c *gin.Context) {
	var req completeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	res, err := h.scheduler.CompleteOccurrence(c.Request.Context(), c.Param("id"), req.ActualCost, req.Observations)
	if err != nil {
		abortWithError(c, err)
		return
	}
	body := gin.H{
		"occurrence":  toResponse(res.Occurrence),
		"chain_ended": res.ChainEnded,
	}
	if res.Next != nil {
		body["next"] = toResponse(res.Next)
	}
	c.JSON(http.StatusOK, body)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelOccurrence handles POST /api/occurrences/:id/cancel.
func (h *Handler) CancelOccurrence(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	cancelled, err := h.scheduler.CancelOccurrence(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		abortWithError(c, err)
		return
	}
	response := make([]occurrenceResponse, len(cancelled))
	for i, occ := range cancelled {
		response[i] = toResponse(occ)
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": response})
}

// AllocateWorkOrderCode handles POST /api/occurrences/:id/work-order-code.
func (h *Handler) AllocateWorkOrderCode(c *gin.Context) {
	code, err := h.scheduler.AllocateWorkOrderCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"occurrence_id": c.Param("id"), "sequence_code": code})
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func dateQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
