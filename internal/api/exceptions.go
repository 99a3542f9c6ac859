package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling/internal/scheduling"
)

func createExceptionHandler(svc *scheduling.ExceptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateExceptionRequest
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
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		impact, err := svc.Create(r.Context(), scheduling.ExceptionInput{
			DoctorID:       doctorID,
			OrganizationID: orgID,
			Date:           date,
			Start:          req.Start,
			End:            req.End,
			Reason:         req.Reason,
		}, actorFromRequest(r))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		affected := make([]AffectedAppointmentResponse, 0, len(impact.Affected))
		for i := range impact.Affected {
			affected = append(affected, AffectedAppointmentResponse{
				Appointment:          toAppointmentResponse(&impact.Affected[i].Appointment),
				RequiresNotification: impact.Affected[i].RequiresNotification,
			})
		}

		writeJSON(w, http.StatusCreated, ExceptionImpactResponse{
			Exception:    toExceptionResponse(impact.Exception),
			BlockedSlots: impact.BlockedSlots,
			Affected:     affected,
		})
	}
}

func deleteExceptionHandler(svc *scheduling.ExceptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id, actorFromRequest(r)); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getExceptionHandler(svc *scheduling.ExceptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		ex, err := svc.Get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toExceptionResponse(ex))
	}
}

func listExceptionsHandler(svc *scheduling.ExceptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f scheduling.ExceptionFilter

		if v := q.Get("doctor_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			f.DoctorID = &id
		}
		if v := q.Get("from"); v != "" {
			from, err := time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
			f.From = &from
		}
		if v := q.Get("to"); v != "" {
			to, err := time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
			f.To = &to
		}

		exceptions, err := svc.List(r.Context(), f)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]ExceptionResponse, 0, len(exceptions))
		for i := range exceptions {
			out = append(out, toExceptionResponse(&exceptions[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}
