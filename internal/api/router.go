package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/scheduling"
)

type RouterConfig struct {
	Schedules    *scheduling.ScheduleService
	Slots        *scheduling.SlotService
	Exceptions   *scheduling.ExceptionService
	Appointments *scheduling.AppointmentService
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", createScheduleHandler(cfg.Schedules))
		r.Get("/", listSchedulesHandler(cfg.Schedules))
		r.Get("/{id}", getScheduleHandler(cfg.Schedules))
		r.Patch("/{id}", updateScheduleHandler(cfg.Schedules))
		r.Delete("/{id}", deleteScheduleHandler(cfg.Schedules))
		r.Post("/{id}/slots", generateSlotsHandler(cfg.Slots))
	})

	r.Route("/slots", func(r chi.Router) {
		r.Get("/", listSlotsHandler(cfg.Slots))
		r.Get("/available", listAvailableSlotsHandler(cfg.Slots))
		r.Get("/{id}", getSlotHandler(cfg.Slots))
	})

	r.Route("/exceptions", func(r chi.Router) {
		r.Post("/", createExceptionHandler(cfg.Exceptions))
		r.Get("/", listExceptionsHandler(cfg.Exceptions))
		r.Get("/{id}", getExceptionHandler(cfg.Exceptions))
		r.Delete("/{id}", deleteExceptionHandler(cfg.Exceptions))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(cfg.Appointments))
		r.Get("/", listAppointmentsHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/check-in", transitionHandler(func(req *http.Request, id uuid.UUID) (*scheduling.Appointment, error) {
			return cfg.Appointments.CheckIn(req.Context(), id, actorFromRequest(req))
		}))
		r.Post("/{id}/start-visit", transitionHandler(func(req *http.Request, id uuid.UUID) (*scheduling.Appointment, error) {
			return cfg.Appointments.StartVisit(req.Context(), id, actorFromRequest(req))
		}))
		r.Post("/{id}/complete", transitionHandler(func(req *http.Request, id uuid.UUID) (*scheduling.Appointment, error) {
			return cfg.Appointments.Complete(req.Context(), id, actorFromRequest(req))
		}))
		r.Post("/{id}/no-show", transitionHandler(func(req *http.Request, id uuid.UUID) (*scheduling.Appointment, error) {
			return cfg.Appointments.MarkNoShow(req.Context(), id, actorFromRequest(req))
		}))
	})

	return r
}
