package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fitclass-api/internal/models"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/response"
)

type bookingService interface {
	Book(ctx context.Context, req models.BookSessionRequest, traineeEmail string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID, traineeEmail string) (*models.Booking, error)
	ListForTrainee(ctx context.Context, traineeEmail string) ([]models.BookingDetail, error)
}

// BookingHandler manages trainee booking endpoints.
type BookingHandler struct {
	service bookingService
}

// NewBookingHandler constructs handler.
func NewBookingHandler(svc bookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// Book godoc
// @Summary Book a seat in a session
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body models.BookSessionRequest true "Session to book"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Book(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.BookSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	booking, err := h.service.Book(c.Request.Context(), req, claims.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}

// Cancel godoc
// @Summary Cancel a booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bookings/{id} [delete]
func (h *BookingHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	booking, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, booking)
}

// ListMine godoc
// @Summary List the caller's bookings
// @Tags Bookings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /bookings/me [get]
func (h *BookingHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	bookings, err := h.service.ListForTrainee(c.Request.Context(), claims.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, bookings)
}
