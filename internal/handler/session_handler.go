package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/service"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/pagination"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

type sessionService interface {
	List(ctx context.Context, filter models.SessionFilter, opts pagination.Options) ([]models.ClassSession, *models.Pagination, error)
	ListForTrainer(ctx context.Context, trainerID string) ([]models.ClassSession, error)
	Create(ctx context.Context, req models.CreateSessionRequest) (*models.ClassSession, error)
	Update(ctx context.Context, id string, req models.UpdateSessionRequest) (*models.ClassSession, error)
	AssignTrainer(ctx context.Context, id string, req models.AssignTrainerRequest) (*models.ClassSession, error)
	Delete(ctx context.Context, id string) (*models.ClassSession, error)
	ExportTrainerSchedule(ctx context.Context, trainerID, format string) (*service.ExportFile, error)
}

// SessionHandler manages class session endpoints.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// List godoc
// @Summary List class sessions
// @Tags Sessions
// @Produce json
// @Param date query string false "Session date (YYYY-MM-DD)"
// @Param start_time query string false "Start time (hh:mm AM)"
// @Param trainer_id query string false "Filter by trainer"
// @Param search_term query string false "Matches date or start time"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param sort_by query string false "created_at, date, start_time or seat_count"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	filter := models.SessionFilter{
		Date:       strings.TrimSpace(c.Query("date")),
		TrainerID:  strings.TrimSpace(c.Query("trainer_id")),
		SearchTerm: c.Query("search_term"),
	}
	if raw := strings.TrimSpace(c.Query("start_time")); raw != "" {
		start, err := service.ParseClock(raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.StartTime = &start
	}
	opts := pagination.ParseOptions(c.Query("page"), c.Query("limit"), c.Query("sort_by"), c.Query("sort_order"))

	sessions, page, err := h.service.List(c.Request.Context(), filter, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, page)
}

// Create godoc
// @Summary Schedule a class session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body models.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Update godoc
// @Summary Update a class session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.UpdateSessionRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	var req models.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// AssignTrainer godoc
// @Summary Assign a trainer to a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.AssignTrainerRequest true "Trainer"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/trainer [put]
func (h *SessionHandler) AssignTrainer(c *gin.Context) {
	var req models.AssignTrainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.service.AssignTrainer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// Delete godoc
// @Summary Delete a session without bookings
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	session, err := h.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// ListForTrainer godoc
// @Summary List a trainer's sessions
// @Tags Trainers
// @Produce json
// @Param id path string true "Trainer ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /trainers/{id}/sessions [get]
func (h *SessionHandler) ListForTrainer(c *gin.Context) {
	sessions, err := h.service.ListForTrainer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sessions)
}

// ExportTrainerSchedule godoc
// @Summary Download a trainer's schedule
// @Tags Trainers
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Trainer ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /trainers/{id}/sessions/export [get]
func (h *SessionHandler) ExportTrainerSchedule(c *gin.Context) {
	file, err := h.service.ExportTrainerSchedule(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}
