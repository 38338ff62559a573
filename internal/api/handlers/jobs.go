package handlers

import (
	"job-route-service/internal/api/dto"
	"job-route-service/internal/platform/obs"
	"job-route-service/internal/ports"
	"log"
	"net/http"
	"time"
)

// JobHandler exposes read-only job retrieval endpoints.
type JobHandler struct {
	Repo ports.JobRepository
}

// List returns the jobs scheduled on ?date=YYYY-MM-DD.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	day, err := parseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "date query parameter must be YYYY-MM-DD")
		return
	}

	jobs, err := h.Repo.ListJobs(r.Context(), day)
	if err != nil {
		log.Printf("req_id=%s list jobs failed: %v", obs.RequestID(r.Context()), err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	res := dto.ListJobsResponse{
		Date: day.Format(time.DateOnly),
		Jobs: make([]dto.JobResponse, 0, len(jobs)),
	}
	for _, j := range jobs {
		res.Jobs = append(res.Jobs, dto.JobResponse{
			ID:            j.ID,
			CustomerName:  j.CustomerName,
			Address:       j.Address,
			ScheduledDate: j.ScheduledDate.Format(time.DateOnly),
			RouteOrder:    j.RouteOrder,
		})
	}

	writeJSON(w, r, http.StatusOK, res)
}
