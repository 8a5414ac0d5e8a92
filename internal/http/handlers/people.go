package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/http/respond"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/middleware"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models/dto"
)

// PeopleHandler owns registration and profile maintenance for users, teachers and students.
type PeopleHandler struct {
	svc *auth.Service
}

// NewPeopleHandler constructs the handler.
func NewPeopleHandler(svc *auth.Service) *PeopleHandler {
	return &PeopleHandler{svc: svc}
}

// Register attaches the routes. Mutations of an existing person need requireAuth. Registration
// runs under optionalAuth so that re-registering a taken email can be checked against the caller.
func (h *PeopleHandler) Register(r chi.Router, requireAuth, optionalAuth Middleware) {
	r.With(optionalAuth).Post("/users", h.handleRegisterUser)

	r.Route("/teachers", func(r chi.Router) {
		r.With(optionalAuth).Post("/", h.handleRegisterTeacher)
		r.Get("/", h.list(models.RoleTeacher))
		r.Get("/{email}", h.get(models.RoleTeacher))
		r.With(requireAuth).Put("/{email}", h.handleUpdateTeacher)
		r.With(requireAuth).Delete("/{email}", h.remove(models.RoleTeacher))
	})

	r.Route("/students", func(r chi.Router) {
		r.With(optionalAuth).Post("/", h.handleRegisterStudent)
		r.Get("/", h.list(models.RoleStudent))
		r.Get("/{email}", h.get(models.RoleStudent))
		r.With(requireAuth).Put("/{email}", h.handleUpdateStudent)
		r.With(requireAuth).Delete("/{email}", h.remove(models.RoleStudent))
		r.With(requireAuth).Put("/{email}/class", h.handleAssignClass)
	})
}

func (h *PeopleHandler) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req dto.UserRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	id, err := h.svc.RegisterUser(r.Context(), auth.UserInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "user registered", id)
}

func (h *PeopleHandler) handleRegisterTeacher(w http.ResponseWriter, r *http.Request) {
	var req dto.TeacherRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	id, err := h.svc.RegisterTeacher(r.Context(), teacherInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "teacher registered", id)
}

func (h *PeopleHandler) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req dto.StudentRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	id, err := h.svc.RegisterStudent(r.Context(), studentInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "student registered", id)
}

func (h *PeopleHandler) handleUpdateTeacher(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if !selfOrTeacher(w, r, email) {
		return
	}
	var req dto.TeacherRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	id, err := h.svc.UpdateTeacher(r.Context(), email, teacherInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "teacher updated", id)
}

func (h *PeopleHandler) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if !selfOrTeacher(w, r, email) {
		return
	}
	var req dto.StudentRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	id, err := h.svc.UpdateStudent(r.Context(), email, studentInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "student updated", id)
}

func (h *PeopleHandler) handleAssignClass(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "email")
	if !selfOrTeacher(w, r, subject) {
		return
	}
	var req dto.ClassCodeRequest
	if err := respond.Decode(r, &req); err != nil || strings.TrimSpace(req.ClassCode) == "" {
		respond.Error(w, http.StatusBadRequest, "classCode is required")
		return
	}
	if err := h.svc.AssignClassCode(r.Context(), subject, strings.TrimSpace(req.ClassCode)); err != nil {
		writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "class assigned", map[string]string{"subject": subject, "classCode": req.ClassCode})
}

func (h *PeopleHandler) get(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.svc.Get(r.Context(), role, chi.URLParam(r, "email"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, "ok", id)
	}
}

func (h *PeopleHandler) list(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := h.svc.List(r.Context(), role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, "ok", ids)
	}
}

func (h *PeopleHandler) remove(role models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := chi.URLParam(r, "email")
		if !selfOrTeacher(w, r, email) {
			return
		}
		if err := h.svc.Delete(r.Context(), role, email); err != nil {
			writeError(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, string(role)+" deleted", nil)
	}
}

// selfOrTeacher allows any teacher and the person named by subject, which is an email or a
// document id. It writes the rejection itself.
func selfOrTeacher(w http.ResponseWriter, r *http.Request, subject string) bool {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	subject = strings.TrimSpace(subject)
	if claims.CanModify(subject, subject) {
		return true
	}
	respond.Error(w, http.StatusForbidden, "not allowed to modify this record")
	return false
}

func teacherInput(req dto.TeacherRequest) auth.TeacherInput {
	return auth.TeacherInput{Name: req.Name, Email: req.Email, Password: req.Password, EmployeeID: req.EmployeeID}
}

func studentInput(req dto.StudentRequest) auth.StudentInput {
	return auth.StudentInput{
		Name:             req.Name,
		Email:            req.Email,
		Password:         req.Password,
		EnrollmentNumber: req.EnrollmentNumber,
		Department:       req.Department,
		ClassCode:        req.ClassCode,
	}
}
