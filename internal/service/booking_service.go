package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/repository"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
)

type seatRepository interface {
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
	ListBookedByTrainee(ctx context.Context, exec sqlx.ExtContext, traineeEmail, date, excludeID string) ([]models.ClassSession, error)
	IncrementSeats(ctx context.Context, exec sqlx.ExtContext, id string, maxSeats int) (bool, error)
	DecrementSeats(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type bookingRepository interface {
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Booking, error)
	Create(ctx context.Context, exec sqlx.ExtContext, booking *models.Booking) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListByTrainee(ctx context.Context, traineeEmail string) ([]models.BookingDetail, error)
}

type traineeReader interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// BookingService reserves and releases seats. Every booking and cancellation
// changes the session seat count in the same transaction.
type BookingService struct {
	tx        transactor
	sessions  seatRepository
	bookings  bookingRepository
	trainees  traineeReader
	cache     *CacheService
	metrics   *MetricsService
	policy    scheduling.Policy
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBookingService instantiates BookingService.
func NewBookingService(tx transactor, sessions seatRepository, bookings bookingRepository, trainees traineeReader, cache *CacheService, metrics *MetricsService, policy scheduling.Policy, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		tx:        tx,
		sessions:  sessions,
		bookings:  bookings,
		trainees:  trainees,
		cache:     cache,
		metrics:   metrics,
		policy:    policy.Normalize(),
		validator: validate,
		logger:    logger,
	}
}

// Book reserves one seat of the session for the trainee. The trainee must not
// hold a booking for an overlapping session, including this one.
func (s *BookingService) Book(ctx context.Context, req models.BookSessionRequest, traineeEmail string) (*models.Booking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	traineeEmail = normalizeEmail(traineeEmail)
	if traineeEmail == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "trainee email is required")
	}

	booking := &models.Booking{SessionID: req.SessionID, TraineeEmail: traineeEmail}
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		session, err := s.sessions.LockByID(ctx, exec, req.SessionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "session not found")
			}
			return appErrors.Internal(err, "failed to load session")
		}
		if !s.policy.CanAcceptBooking(session.SeatCount) {
			return appErrors.Clone(appErrors.ErrCapacityExceeded, "session is fully booked")
		}

		if err := s.tx.Lock(ctx, exec, repository.LockTrainee, traineeEmail); err != nil {
			return appErrors.Internal(err, "failed to lock trainee")
		}
		booked, err := s.sessions.ListBookedByTrainee(ctx, exec, traineeEmail, session.Date, "")
		if err != nil {
			return appErrors.Internal(err, "failed to load trainee bookings")
		}
		if hit, ok := scheduling.FindOverlap(session.Interval(), intervalsOf(booked)); ok {
			s.metrics.ScheduleConflict(models.ConflictTrainee)
			return conflictError(hit, models.ConflictTrainee, traineeEmail, "trainee already has a booking in this time slot")
		}

		if err := s.bookings.Create(ctx, exec, booking); err != nil {
			if errors.Is(err, repository.ErrDuplicateBooking) {
				s.metrics.ScheduleConflict(models.ConflictTrainee)
				return conflictError(session.Interval(), models.ConflictTrainee, traineeEmail, "trainee already booked this session")
			}
			return appErrors.Internal(err, "failed to create booking")
		}
		taken, err := s.sessions.IncrementSeats(ctx, exec, session.ID, s.policy.MaxSeats)
		if err != nil {
			return appErrors.Internal(err, "failed to reserve seat")
		}
		if !taken {
			return appErrors.Clone(appErrors.ErrCapacityExceeded, "session is fully booked")
		}
		return nil
	})
	s.metrics.BookingAttempt(bookingOutcome(err))
	if err != nil {
		return nil, err
	}

	s.invalidateListings(ctx)
	s.logger.Info("session booked", zap.String("booking_id", booking.ID), zap.String("session_id", booking.SessionID), zap.String("trainee", traineeEmail))
	return booking, nil
}

// Cancel deletes the booking and releases its seat. Bookings held by another
// trainee are reported as not found.
func (s *BookingService) Cancel(ctx context.Context, bookingID, traineeEmail string) (*models.Booking, error) {
	traineeEmail = normalizeEmail(traineeEmail)
	if !isUUID(s.validator, bookingID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}

	var booking *models.Booking
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		found, err := s.bookings.FindForUpdate(ctx, exec, bookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
			}
			return appErrors.Internal(err, "failed to load booking")
		}
		if !strings.EqualFold(found.TraineeEmail, traineeEmail) {
			return appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		if _, err := s.sessions.LockByID(ctx, exec, found.SessionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "session not found")
			}
			return appErrors.Internal(err, "failed to load session")
		}
		exists, err := s.trainees.ExistsByEmail(ctx, traineeEmail)
		if err != nil {
			return appErrors.Internal(err, "failed to load trainee")
		}
		if !exists {
			return appErrors.Clone(appErrors.ErrNotFound, "trainee not found")
		}

		if err := s.bookings.Delete(ctx, exec, found.ID); err != nil {
			return appErrors.Internal(err, "failed to delete booking")
		}
		if err := s.sessions.DecrementSeats(ctx, exec, found.SessionID); err != nil {
			return appErrors.Internal(err, "failed to release seat")
		}
		booking = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.BookingCancelled()
	s.invalidateListings(ctx)
	s.logger.Info("booking cancelled", zap.String("booking_id", booking.ID), zap.String("session_id", booking.SessionID), zap.String("trainee", traineeEmail))
	return booking, nil
}

// ListForTrainee returns the trainee's bookings with their sessions.
func (s *BookingService) ListForTrainee(ctx context.Context, traineeEmail string) ([]models.BookingDetail, error) {
	bookings, err := s.bookings.ListByTrainee(ctx, normalizeEmail(traineeEmail))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list bookings")
	}
	if bookings == nil {
		bookings = []models.BookingDetail{}
	}
	return bookings, nil
}

func (s *BookingService) invalidateListings(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, SessionCachePattern)
}

// normalizeEmail folds emails to the lowercase form bookings are stored under.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeBooked
	case errors.Is(err, appErrors.ErrCapacityExceeded):
		return OutcomeCapacityExceeded
	case errors.Is(err, appErrors.ErrScheduleConflict):
		return OutcomeConflict
	case errors.Is(err, appErrors.ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
