package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fitclass-api/internal/models"
	"github.com/noah-isme/fitclass-api/internal/repository"
	"github.com/noah-isme/fitclass-api/internal/scheduling"
	appErrors "github.com/noah-isme/fitclass-api/pkg/errors"
	"github.com/noah-isme/fitclass-api/pkg/export"
	"github.com/noah-isme/fitclass-api/pkg/pagination"
)

type transactor interface {
	WithinTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error
	Lock(ctx context.Context, exec sqlx.ExtContext, scope string, keys ...string) error
}

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter, params pagination.Params) ([]models.ClassSession, int, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error)
	CountByDate(ctx context.Context, exec sqlx.ExtContext, date string) (int, error)
	ListByTrainerOnDate(ctx context.Context, exec sqlx.ExtContext, trainerID, date, excludeID string) ([]models.ClassSession, error)
	ListByTrainer(ctx context.Context, trainerID string) ([]models.ClassSession, error)
	ListBookedByTrainee(ctx context.Context, exec sqlx.ExtContext, traineeEmail, date, excludeID string) ([]models.ClassSession, error)
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error
	Update(ctx context.Context, exec sqlx.ExtContext, session *models.ClassSession) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type sessionBookingReader interface {
	CountBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error)
	ListTraineesBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]string, error)
}

type trainerReader interface {
	FindByID(ctx context.Context, id string) (*models.Trainer, error)
}

// SessionServiceConfig carries the tunable limits of the schedule manager.
type SessionServiceConfig struct {
	Policy    scheduling.Policy
	Paginator pagination.Paginator
	CacheTTL  time.Duration
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type sessionPage struct {
	Items []models.ClassSession `json:"items"`
	Total int                   `json:"total"`
}

// SessionService owns the class session lifecycle: creation under the daily
// cap, trainer assignment without overlaps, updates and deletion.
type SessionService struct {
	tx        transactor
	sessions  sessionRepository
	bookings  sessionBookingReader
	trainers  trainerReader
	cache     *CacheService
	metrics   *MetricsService
	policy    scheduling.Policy
	paginator pagination.Paginator
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService instantiates SessionService.
func NewSessionService(tx transactor, sessions sessionRepository, bookings sessionBookingReader, trainers trainerReader, cache *CacheService, metrics *MetricsService, cfg SessionServiceConfig, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Paginator.DefaultLimit <= 0 {
		cfg.Paginator = pagination.Default
	}
	return &SessionService{
		tx:        tx,
		sessions:  sessions,
		bookings:  bookings,
		trainers:  trainers,
		cache:     cache,
		metrics:   metrics,
		policy:    cfg.Policy.Normalize(),
		paginator: cfg.Paginator,
		cacheTTL:  cfg.CacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// ParseClock parses an "hh:mm AM|PM" string, reporting INVALID_TIME_FORMAT on failure.
func ParseClock(raw string) (scheduling.Clock, error) {
	clock, err := scheduling.ParseClock(raw)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInvalidTimeFormat.Code, appErrors.ErrInvalidTimeFormat.Status, appErrors.ErrInvalidTimeFormat.Message)
	}
	return clock, nil
}

// List returns sessions with pagination metadata. Pages are served from the
// cache when it is enabled. A trainer filter that is not a uuid matches nothing.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter, opts pagination.Options) ([]models.ClassSession, *models.Pagination, error) {
	params := s.paginator.Calculate(opts)
	if filter.Date != "" {
		if err := s.validator.Var(filter.Date, "datetime=2006-01-02"); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must use the YYYY-MM-DD format")
		}
	}
	if filter.TrainerID != "" && !s.isUUID(filter.TrainerID) {
		return []models.ClassSession{}, &models.Pagination{Page: params.Page, Limit: params.Limit, Total: 0}, nil
	}

	var startKey string
	if filter.StartTime != nil {
		startKey = filter.StartTime.String()
	}
	key := CacheKey("sessions:list", filter.Date, startKey, filter.TrainerID, strings.TrimSpace(filter.SearchTerm),
		params.Page, params.Limit, params.SortBy, params.SortOrder)

	var page sessionPage
	if hit, _ := s.cache.Get(ctx, key, &page); !hit {
		items, total, err := s.sessions.List(ctx, filter, params)
		if err != nil {
			return nil, nil, appErrors.Internal(err, "failed to list sessions")
		}
		page = sessionPage{Items: items, Total: total}
		_ = s.cache.Set(ctx, key, page, s.cacheTTL)
	}

	if page.Items == nil {
		page.Items = []models.ClassSession{}
	}
	return page.Items, &models.Pagination{Page: params.Page, Limit: params.Limit, Total: page.Total}, nil
}

// ListForTrainer returns every session assigned to the trainer.
func (s *SessionService) ListForTrainer(ctx context.Context, trainerID string) ([]models.ClassSession, error) {
	if _, err := s.findTrainer(ctx, trainerID); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByTrainer(ctx, trainerID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list trainer sessions")
	}
	if sessions == nil {
		sessions = []models.ClassSession{}
	}
	return sessions, nil
}

// Create schedules a session lasting the configured duration, unless the date
// already holds the maximum number of sessions.
func (s *SessionService) Create(ctx context.Context, req models.CreateSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	start, end, err := s.resolveTimes(req.StartTime)
	if err != nil {
		return nil, err
	}

	session := &models.ClassSession{Date: req.Date, StartTime: start, EndTime: end}
	err = s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.checkDailyCap(ctx, exec, req.Date); err != nil {
			return err
		}
		if err := s.sessions.Create(ctx, exec, session); err != nil {
			return appErrors.Internal(err, "failed to create session")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SessionCreated()
	s.invalidateListings(ctx)
	s.logger.Info("session created", zap.String("session_id", session.ID), zap.String("date", session.Date), zap.Stringer("start", session.StartTime))
	return session, nil
}

// Update applies the provided fields. Moving a session re-checks the daily cap
// of the target date, the assigned trainer and every booked trainee.
func (s *SessionService) Update(ctx context.Context, id string, req models.UpdateSessionRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	var start, end scheduling.Clock
	if req.StartTime != nil {
		var err error
		if start, end, err = s.resolveTimes(*req.StartTime); err != nil {
			return nil, err
		}
	}
	var trainerID string
	if req.TrainerID != nil && *req.TrainerID != "" {
		trainerID = *req.TrainerID
		if _, err := s.findTrainer(ctx, trainerID); err != nil {
			return nil, err
		}
	}

	var next models.ClassSession
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.lockSession(ctx, exec, id)
		if err != nil {
			return err
		}

		next = *current
		if req.StartTime != nil {
			next.StartTime, next.EndTime = start, end
		}
		if req.Date != nil && *req.Date != "" {
			next.Date = *req.Date
		}
		if trainerID != "" {
			next.TrainerID = &trainerID
		}

		dateChanged := next.Date != current.Date
		intervalChanged := dateChanged || next.StartTime != current.StartTime || next.EndTime != current.EndTime
		trainerChanged := next.HasTrainer() && (!current.HasTrainer() || *current.TrainerID != *next.TrainerID)

		if dateChanged {
			if err := s.checkDailyCap(ctx, exec, next.Date); err != nil {
				return err
			}
		}
		if next.HasTrainer() && (trainerChanged || intervalChanged) {
			if err := s.checkTrainer(ctx, exec, next); err != nil {
				return err
			}
		}
		if intervalChanged {
			if err := s.checkBookedTrainees(ctx, exec, next); err != nil {
				return err
			}
		}

		if err := s.sessions.Update(ctx, exec, &next); err != nil {
			return appErrors.Internal(err, "failed to update session")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListings(ctx)
	s.logger.Info("session updated", zap.String("session_id", next.ID), zap.String("date", next.Date), zap.Stringer("start", next.StartTime))
	return &next, nil
}

// AssignTrainer sets the session's trainer when the trainer is free for the
// whole session interval.
func (s *SessionService) AssignTrainer(ctx context.Context, id string, req models.AssignTrainerRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trainer assignment payload")
	}
	if _, err := s.findTrainer(ctx, req.TrainerID); err != nil {
		return nil, err
	}

	var session *models.ClassSession
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.lockSession(ctx, exec, id)
		if err != nil {
			return err
		}
		trainerID := req.TrainerID
		current.TrainerID = &trainerID
		if err := s.checkTrainer(ctx, exec, *current); err != nil {
			return err
		}
		if err := s.sessions.Update(ctx, exec, current); err != nil {
			return appErrors.Internal(err, "failed to assign trainer")
		}
		session = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListings(ctx)
	s.logger.Info("trainer assigned", zap.String("session_id", session.ID), zap.String("trainer_id", req.TrainerID))
	return session, nil
}

// Delete removes a session that holds no bookings and returns it.
func (s *SessionService) Delete(ctx context.Context, id string) (*models.ClassSession, error) {
	var session *models.ClassSession
	err := s.tx.WithinTx(ctx, func(exec sqlx.ExtContext) error {
		current, err := s.lockSession(ctx, exec, id)
		if err != nil {
			return err
		}
		booked, err := s.bookings.CountBySession(ctx, exec, id)
		if err != nil {
			return appErrors.Internal(err, "failed to count session bookings")
		}
		if booked > 0 {
			return appErrors.Clone(appErrors.ErrSessionHasBookings, fmt.Sprintf("session has %d active bookings", booked))
		}
		if err := s.sessions.Delete(ctx, exec, id); err != nil {
			return appErrors.Internal(err, "failed to delete session")
		}
		session = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.SessionDeleted()
	s.invalidateListings(ctx)
	s.logger.Info("session deleted", zap.String("session_id", id))
	return session, nil
}

// ExportTrainerSchedule renders the trainer's sessions as csv or pdf.
func (s *SessionService) ExportTrainerSchedule(ctx context.Context, trainerID, format string) (*ExportFile, error) {
	exportFormat, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	trainer, err := s.findTrainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByTrainer(ctx, trainerID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list trainer sessions")
	}

	table := export.Table{
		Title:   fmt.Sprintf("Schedule for %s", trainer.FullName),
		Columns: []string{"Date", "Start", "End", "Booked", "Available"},
	}
	for _, session := range sessions {
		table.Rows = append(table.Rows, []string{
			session.Date,
			session.StartTime.String(),
			session.EndTime.String(),
			fmt.Sprint(session.SeatCount),
			fmt.Sprint(max(s.policy.MaxSeats-session.SeatCount, 0)),
		})
	}

	payload, err := export.Render(exportFormat, table)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render schedule")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("trainer-%s-schedule.%s", trainerID, exportFormat),
		ContentType: exportFormat.ContentType(),
		Payload:     payload,
	}, nil
}

func (s *SessionService) resolveTimes(rawStart string) (scheduling.Clock, scheduling.Clock, error) {
	start, err := ParseClock(rawStart)
	if err != nil {
		return 0, 0, err
	}
	end, err := s.policy.EndFor(start)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
			fmt.Sprintf("a session starting at %s would end after midnight", start))
	}
	return start, end, nil
}

func (s *SessionService) checkDailyCap(ctx context.Context, exec sqlx.ExtContext, date string) error {
	if err := s.tx.Lock(ctx, exec, repository.LockSessionDate, date); err != nil {
		return appErrors.Internal(err, "failed to lock session date")
	}
	count, err := s.sessions.CountByDate(ctx, exec, date)
	if err != nil {
		return appErrors.Internal(err, "failed to count sessions")
	}
	if !s.policy.CanCreateSession(count) {
		return appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("the daily limit of %d sessions is reached for %s", s.policy.MaxSessionsPerDay, date))
	}
	return nil
}

func (s *SessionService) checkTrainer(ctx context.Context, exec sqlx.ExtContext, session models.ClassSession) error {
	trainerID := *session.TrainerID
	if err := s.tx.Lock(ctx, exec, repository.LockTrainer, trainerID); err != nil {
		return appErrors.Internal(err, "failed to lock trainer")
	}
	others, err := s.sessions.ListByTrainerOnDate(ctx, exec, trainerID, session.Date, session.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to load trainer sessions")
	}
	if hit, ok := scheduling.FindOverlap(session.Interval(), intervalsOf(others)); ok {
		s.metrics.ScheduleConflict(models.ConflictTrainer)
		return conflictError(hit, models.ConflictTrainer, trainerID, "trainer is already assigned to an overlapping session")
	}
	return nil
}

func (s *SessionService) checkBookedTrainees(ctx context.Context, exec sqlx.ExtContext, session models.ClassSession) error {
	emails, err := s.bookings.ListTraineesBySession(ctx, exec, session.ID)
	if err != nil {
		return appErrors.Internal(err, "failed to load session trainees")
	}
	if len(emails) == 0 {
		return nil
	}
	if err := s.tx.Lock(ctx, exec, repository.LockTrainee, emails...); err != nil {
		return appErrors.Internal(err, "failed to lock trainees")
	}
	for _, email := range emails {
		booked, err := s.sessions.ListBookedByTrainee(ctx, exec, email, session.Date, session.ID)
		if err != nil {
			return appErrors.Internal(err, "failed to load trainee bookings")
		}
		if hit, ok := scheduling.FindOverlap(session.Interval(), intervalsOf(booked)); ok {
			s.metrics.ScheduleConflict(models.ConflictTrainee)
			return conflictError(hit, models.ConflictTrainee, email, "a booked trainee has an overlapping session")
		}
	}
	return nil
}

func (s *SessionService) lockSession(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ClassSession, error) {
	if !s.isUUID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	session, err := s.sessions.LockByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Internal(err, "failed to load session")
	}
	return session, nil
}

func (s *SessionService) findTrainer(ctx context.Context, id string) (*models.Trainer, error) {
	if !s.isUUID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
	}
	trainer, err := s.trainers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trainer not found")
		}
		return nil, appErrors.Internal(err, "failed to load trainer")
	}
	return trainer, nil
}

func (s *SessionService) isUUID(id string) bool {
	return isUUID(s.validator, id)
}

func (s *SessionService) invalidateListings(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, SessionCachePattern)
}

// isUUID reports whether id can name a row; ids are uuid columns.
func isUUID(validate *validator.Validate, id string) bool {
	return validate.Var(id, "required,uuid") == nil
}

func intervalsOf(sessions []models.ClassSession) []scheduling.Interval {
	intervals := make([]scheduling.Interval, len(sessions))
	for i, session := range sessions {
		intervals[i] = session.Interval()
	}
	return intervals
}

func conflictError(hit scheduling.Interval, subject, subjectID, message string) error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrScheduleConflict, message), models.NewScheduleConflict(hit, subject, subjectID))
}
