package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/scheduling/internal/scheduling"
)

func createScheduleHandler(svc *scheduling.ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		orgID, err := uuid.Parse(req.OrganizationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_organization_id", "organization_id must be a valid UUID")
			return
		}
		effectiveFrom, err := time.Parse(dateLayout, req.EffectiveFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_effective_from", "effective_from must be YYYY-MM-DD")
			return
		}

		in := scheduling.ScheduleInput{
			DoctorID:            doctorID,
			OrganizationID:      orgID,
			DayOfWeek:           req.DayOfWeek,
			Start:               req.Start,
			End:                 req.End,
			SlotDurationMinutes: req.SlotDurationMinutes,
			EffectiveFrom:       effectiveFrom,
		}
		if req.EffectiveUntil != nil {
			until, err := time.Parse(dateLayout, *req.EffectiveUntil)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_effective_until", "effective_until must be YYYY-MM-DD")
				return
			}
			in.EffectiveUntil = &until
		}

		sched, err := svc.Create(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toScheduleResponse(sched))
	}
}

func updateScheduleHandler(svc *scheduling.ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		upd := scheduling.ScheduleUpdate{
			DayOfWeek:           req.DayOfWeek,
			Start:               req.Start,
			End:                 req.End,
			SlotDurationMinutes: req.SlotDurationMinutes,
			ClearEffectiveUntil: req.ClearEffectiveUntil,
		}
		if req.EffectiveFrom != nil {
			from, err := time.Parse(dateLayout, *req.EffectiveFrom)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_effective_from", "effective_from must be YYYY-MM-DD")
				return
			}
			upd.EffectiveFrom = &from
		}
		if req.EffectiveUntil != nil {
			until, err := time.Parse(dateLayout, *req.EffectiveUntil)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_effective_until", "effective_until must be YYYY-MM-DD")
				return
			}
			upd.EffectiveUntil = &until
		}

		sched, err := svc.Update(r.Context(), id, upd)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}

func deleteScheduleHandler(svc *scheduling.ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getScheduleHandler(svc *scheduling.ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		sched, err := svc.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(sched))
	}
}

func listSchedulesHandler(svc *scheduling.ScheduleService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id query parameter is required")
			return
		}
		includeInactive := r.URL.Query().Get("include_inactive") == "true"

		schedules, err := svc.ListByDoctor(r.Context(), doctorID, includeInactive)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]ScheduleResponse, 0, len(schedules))
		for i := range schedules {
			out = append(out, toScheduleResponse(&schedules[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
