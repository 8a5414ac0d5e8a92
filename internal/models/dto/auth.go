package dto

import (
	"time"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	Role         models.Role    `json:"role"`
	SubjectID    string         `json:"subjectId"`
	Profile      map[string]any `json:"profile,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type UserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TeacherRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	EmployeeID string `json:"employeeID"`
}

type StudentRequest struct {
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Password         string  `json:"password"`
	EnrollmentNumber string  `json:"enrollmentNumber"`
	Department       string  `json:"department"`
	ClassCode        *string `json:"classCode,omitempty"`
}

type ClassCodeRequest struct {
	ClassCode string `json:"classCode"`
}

type MeResponse struct {
	SubjectID string      `json:"subjectId"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type InsertResponse struct {
	InsertedIDs []string `json:"insertedIds"`
}

type UpdateResponse struct {
	Matched  int64 `json:"matched"`
	Modified int64 `json:"modified"`
}
