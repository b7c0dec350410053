package course

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/httpx"
)

// Handler contains dependencies for handling course endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type CreateCourseRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Code      string `json:"code" validate:"required,max=32"`
	TeacherID *int64 `json:"teacher_id" validate:"omitempty,gt=0"`
}

// UpdateCourseRequest changes only the fields present in the body.
type UpdateCourseRequest struct {
	Name      *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Code      *string    `json:"code" validate:"omitempty,min=1,max=32"`
	TeacherID optionalID `json:"teacher_id"`
}

// optionalID tells an absent id apart from an explicit null.
type optionalID struct {
	Set   bool
	Value *int64
}

func (o *optionalID) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v <= 0 {
		return apperr.New(apperr.KindInvalidRequest, "teacher_id must be positive")
	}
	o.Value = &v
	return nil
}

type EnrollRequest struct {
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCourseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	c, err := h.svc.Create(r.Context(), req.Name, req.Code, req.TeacherID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.logger.Infow("course created", "course_id", c.ID, "code", c.Code)
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	out, err := h.svc.List(r.Context(), actor)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) Students(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, h.logger, apperr.ErrUnauthenticated)
		return
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	out, err := h.svc.Students(r.Context(), id, actor)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// Enroll adds a student to the course in the path.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	courseID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req EnrollRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	e, err := h.svc.Enroll(r.Context(), req.StudentID, courseID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.logger.Infow("student enrolled", "student_id", e.StudentID, "course_id", e.CourseID)
	httpx.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) Unenroll(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.svc.Unenroll(r.Context(), id); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	var req UpdateCourseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	c, err := h.svc.Update(r.Context(), id, Changes{
		Name:       req.Name,
		Code:       req.Code,
		SetTeacher: req.TeacherID.Set,
		TeacherID:  req.TeacherID.Value,
	})
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.logger.Infow("course updated", "course_id", c.ID, "code", c.Code)
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	h.logger.Infow("course deleted", "course_id", id)
	w.WriteHeader(http.StatusNoContent)
}
