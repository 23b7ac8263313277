package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/exportprofiles/internal/app"
	"github.com/shrimpsizemoose/exportprofiles/internal/export"
	"github.com/shrimpsizemoose/exportprofiles/internal/metrics"
	"github.com/shrimpsizemoose/exportprofiles/internal/models"
	"github.com/shrimpsizemoose/exportprofiles/internal/profiles"
)

var validate = validator.New()

type ProfileHandler struct {
	service *app.Service
}

func NewProfileHandler(service *app.Service) *ProfileHandler {
	return &ProfileHandler{
		service: service,
	}
}

// Register mounts every route on mux.
func (h *ProfileHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/courses/{course}/profiles", instrument("/api/v1/courses/{course}/profiles", h.HandleListProfiles))
	mux.HandleFunc("POST /api/v1/courses/{course}/export", instrument("/api/v1/courses/{course}/export", h.HandleExportAction))
	mux.HandleFunc("POST /api/v1/courses/{course}/profiles/{profile}/delete", instrument("/api/v1/courses/{course}/profiles/{profile}/delete", h.HandleDeleteProfile))
	mux.HandleFunc("POST /api/v1/hooks/course-deleted", instrument("/api/v1/hooks/course-deleted", h.HandleCourseDeleted))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			duration := time.Since(start).Seconds()
			metrics.APIRequestDuration.WithLabelValues(
				path,
				r.Method,
				strconv.Itoa(rec.status),
			).Observe(duration)
		}()
		next(rec, r)
	}
}

type exportRequest struct {
	Action    string               `json:"action" validate:"required,oneof=save save_new remove export select"`
	Selector  string               `json:"selector" validate:"required"`
	NameInput string               `json:"name" validate:"required_if=Action save_new,max=20"`
	GroupID   int64                `json:"group" validate:"min=0"`
	Items     map[int64]bool       `json:"items"`
	Options   models.ExportOptions `json:"options"`
}

type courseDeletedRequest struct {
	CourseID int64 `json:"course_id" validate:"required,min=1"`
}

func listingURL(courseID int64) string {
	return fmt.Sprintf("/api/v1/courses/%d/profiles", courseID)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error.Printf("Failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, export.ErrGroupAccess):
		http.Error(w, "Cannot access group", http.StatusForbidden)
	case errors.Is(err, export.ErrCourseNotFound):
		http.Error(w, "Course not found", http.StatusNotFound)
	case errors.Is(err, models.ErrUnknownSelector),
		errors.Is(err, export.ErrUnknownAction),
		errors.Is(err, export.ErrNameRequired),
		errors.Is(err, export.ErrInvalidOptions),
		errors.Is(err, export.ErrNoExporter):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error.Printf("Request failed: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// authorize runs the checks every course route shares and returns the caller
// and course id. It writes the error response itself when it returns false.
func (h *ProfileHandler) authorize(w http.ResponseWriter, r *http.Request) (*models.Identity, int64, bool) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return nil, 0, false
	}

	identity, err := h.service.Identify(r)
	if err != nil {
		logger.Error.Printf("Auth failed: %v", err)
		writeError(w, err)
		return nil, 0, false
	}

	courseID, err := strconv.ParseInt(r.PathValue("course"), 10, 64)
	if err != nil || courseID <= 0 {
		logger.Error.Printf("Failed to extract course from path: %s", r.URL.Path)
		http.Error(w, "Invalid course", http.StatusBadRequest)
		return nil, 0, false
	}

	if !identity.Can(models.CapGradeExport) || !identity.Can(models.CapProfilesView) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, 0, false
	}

	return identity, courseID, true
}

func (h *ProfileHandler) HandleListProfiles(w http.ResponseWriter, r *http.Request) {
	identity, courseID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var sel *models.Selector
	if raw := r.URL.Query().Get("selector"); raw != "" {
		parsed, err := models.ParseSelector(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		sel = &parsed
	}

	ctx := r.Context()
	course, err := h.service.Store.GetCourse(ctx, courseID)
	if err != nil {
		writeError(w, err)
		return
	}
	if course == nil {
		writeError(w, export.ErrCourseNotFound)
		return
	}

	items, err := h.service.Store.ListGradeItems(ctx, course.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	form, err := h.service.Resolver.Resolve(ctx, identity.Owner(course.ID), sel, items, profiles.Viewer{
		CanViewHidden:    identity.Can(models.CapViewHidden),
		CanViewSuspended: identity.Can(models.CapViewSuspended),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"course": course,
		"form":   form,
	})
}

func (h *ProfileHandler) HandleExportAction(w http.ResponseWriter, r *http.Request) {
	identity, courseID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		logger.Debug.Printf("Invalid export request: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sel, err := models.ParseSelector(req.Selector)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Orchestrator.Run(r.Context(), identity, export.ActionRequest{
		CourseID:  courseID,
		GroupID:   req.GroupID,
		Action:    export.Action(req.Action),
		Selected:  sel,
		NameInput: req.NameInput,
		Items:     req.Items,
		Options:   req.Options,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case result.File != nil:
		w.Header().Set("Content-Type", result.File.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.File.Name))
		w.Header().Set("Content-Length", strconv.Itoa(len(result.File.Data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(result.File.Data); err != nil {
			logger.Error.Printf("Failed to stream export: %v", err)
		}
	case result.Confirm != "":
		writeJSON(w, map[string]interface{}{
			"confirm":    result.Confirm,
			"profile_id": result.ProfileID,
			"delete_url": fmt.Sprintf("/api/v1/courses/%d/profiles/%d/delete", courseID, result.ProfileID),
			"cancel_url": listingURL(courseID),
		})
	default:
		http.Redirect(w, r, listingURL(courseID), http.StatusSeeOther)
	}
}

func (h *ProfileHandler) HandleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	identity, courseID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	profileID, err := strconv.ParseInt(r.PathValue("profile"), 10, 64)
	if err != nil || profileID <= 0 {
		http.Error(w, "Invalid profile", http.StatusBadRequest)
		return
	}

	if _, err := h.service.Orchestrator.ConfirmDelete(r.Context(), identity, courseID, profileID); err != nil {
		writeError(w, err)
		return
	}

	http.Redirect(w, r, listingURL(courseID), http.StatusSeeOther)
}

func (h *ProfileHandler) HandleCourseDeleted(w http.ResponseWriter, r *http.Request) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	identity, err := h.service.Identify(r)
	if err != nil {
		logger.Error.Printf("Auth failed: %v", err)
		writeError(w, err)
		return
	}
	if !identity.Can(models.CapSiteManage) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req courseDeletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	deleted, err := h.service.Store.DeleteAllForCourse(r.Context(), req.CourseID)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Info.Printf("Purged %d export profiles of deleted course %d", deleted, req.CourseID)

	writeJSON(w, map[string]interface{}{
		"course_id": req.CourseID,
		"deleted":   deleted,
	})
}
