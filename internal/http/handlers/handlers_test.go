package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/middleware"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage/memory"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	t      *testing.T
	router http.Handler
	store  *memory.Store
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memory.NewStore()
	tokens := auth.NewTokenService(auth.TokenConfig{Secret: "handler-secret", Issuer: "test", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour})
	svc := auth.NewService(store, auth.NewCredentialHasher(bcrypt.MinCost), tokens)

	r := chi.NewRouter()
	requireAuth := middleware.RequireAuth(svc)
	limiter := middleware.NewMemoryLimiter(1000)
	limit := func(route string) Middleware { return middleware.RateLimit(limiter, route, nil) }
	teacherOnly := func(next http.Handler) http.Handler {
		return requireAuth(middleware.RequireRole(models.RoleTeacher)(next))
	}
	NewHealthHandler(time.Now(), store).Register(r)
	NewAuthHandler(svc).Register(r, limit, requireAuth)
	NewPeopleHandler(svc).Register(r, requireAuth, middleware.OptionalAuth(svc))
	NewLearningPathHandler(store).Register(r, teacherOnly)

	return &api{t: t, router: r, store: store}
}

func (a *api) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (a *api) login(email, password string) (access, refresh string) {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(a.t, http.StatusOK, code, env.Message)
	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &out))
	return out.AccessToken, out.RefreshToken
}

func (a *api) registerTeacher(name, email, employeeID string) {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/teachers", "", map[string]string{
		"name": name, "email": email, "password": "pw", "employeeID": employeeID,
	})
	require.Equal(a.t, http.StatusCreated, code, env.Message)
}

func (a *api) registerStudent(name, email, enrollment string) {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/students", "", map[string]string{
		"name": name, "email": email, "password": "pw", "enrollmentNumber": enrollment, "department": "CS",
	})
	require.Equal(a.t, http.StatusCreated, code, env.Message)
}

func TestTeacherLoginFlow(t *testing.T) {
	a := newAPI(t)
	a.registerTeacher("A", "a@x.com", "E1")

	code, env := a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "a@x.com", "password": "pw"})
	require.Equal(t, http.StatusOK, code)
	var login struct {
		AccessToken string         `json:"accessToken"`
		Role        string         `json:"role"`
		SubjectID   string         `json:"subjectId"`
		Profile     map[string]any `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.Equal(t, "teacher", login.Role)
	assert.NotEmpty(t, login.SubjectID)
	assert.Equal(t, map[string]any{"employeeID": "E1"}, login.Profile)

	code, env = a.do(http.MethodGet, "/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, code)
	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "a@x.com", me.Email)
	assert.Equal(t, "teacher", me.Role)

	wrongCode, wrong := a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "a@x.com", "password": "wrong"})
	unknownCode, unknown := a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "z@x.com", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, wrongCode)
	assert.Equal(t, wrongCode, unknownCode)
	assert.Equal(t, wrong, unknown)
	assert.Equal(t, "invalid credentials", wrong.Message)
	assert.Equal(t, "invalid_credentials", wrong.Error)
}

func TestLoginValidation(t *testing.T) {
	a := newAPI(t)
	code, _ := a.do(http.MethodPost, "/auth/login", "", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRefresh(t *testing.T) {
	a := newAPI(t)
	a.registerStudent("S", "s@x.com", "N1")
	access, refresh := a.login("s@x.com", "pw")

	code, env := a.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, code)
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	code, _ = a.do(http.MethodGet, "/auth/me", out.AccessToken, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": access})
	assert.Equal(t, http.StatusUnauthorized, code, "access token cannot refresh")
	code, env = a.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid token", env.Message)
	code, _ = a.do(http.MethodPost, "/auth/refresh", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodGet, "/auth/me", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "refresh token cannot authorize")
	code, _ = a.do(http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRegistrationConflictsAndValidation(t *testing.T) {
	a := newAPI(t)
	a.registerTeacher("A", "a@x.com", "E1")

	code, env := a.do(http.MethodPost, "/teachers", "", map[string]string{
		"name": "B", "email": "b@x.com", "password": "pw", "employeeID": "E1",
	})
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Error)
	var conflict map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &conflict))
	assert.Equal(t, "employeeID", conflict["field"])

	owner, _ := a.login("a@x.com", "pw")
	code, _ = a.do(http.MethodPost, "/teachers", owner, map[string]string{
		"name": "A", "email": "a@x.com", "password": "pw", "employeeID": "E1",
	})
	assert.Equal(t, http.StatusCreated, code, "same email re-registers for its owner")

	code, _ = a.do(http.MethodPost, "/students", "", map[string]string{
		"name": "A", "email": "a@x.com", "password": "pw", "enrollmentNumber": "N1",
	})
	assert.Equal(t, http.StatusConflict, code, "email held by a teacher")

	code, _ = a.do(http.MethodPost, "/teachers", "", map[string]string{"name": "C", "email": "c@x.com", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodPost, "/users", "", map[string]string{"name": "U", "email": "u@x.com", "password": "pw"})
	assert.Equal(t, http.StatusCreated, code)
}

func TestReRegistrationCannotTakeOverAccount(t *testing.T) {
	a := newAPI(t)
	a.registerStudent("V", "v@x.com", "N1")
	a.registerStudent("O", "o@x.com", "N2")
	a.registerTeacher("A", "a@x.com", "E1")
	other, _ := a.login("o@x.com", "pw")
	teacher, _ := a.login("a@x.com", "pw")

	takeover := map[string]string{"name": "V", "email": "v@x.com", "password": "mine", "enrollmentNumber": "N1"}
	code, _ := a.do(http.MethodPost, "/students", "", takeover)
	assert.Equal(t, http.StatusUnauthorized, code, "anonymous overwrite")
	code, _ = a.do(http.MethodPost, "/students", other, takeover)
	assert.Equal(t, http.StatusForbidden, code, "another student")
	code, _ = a.do(http.MethodPost, "/students", "not-a-token", takeover)
	assert.Equal(t, http.StatusUnauthorized, code, "invalid token")

	code, _ = a.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "v@x.com", "password": "mine"})
	assert.Equal(t, http.StatusUnauthorized, code)
	a.login("v@x.com", "pw")

	code, _ = a.do(http.MethodPost, "/students", teacher, takeover)
	assert.Equal(t, http.StatusCreated, code, "teachers may re-register anyone")
	a.login("v@x.com", "mine")

	code, _ = a.do(http.MethodPost, "/users", "", map[string]string{"name": "N", "email": "new@x.com", "password": "pw"})
	assert.Equal(t, http.StatusCreated, code, "fresh emails need no token")
}

func TestPeopleReadsHidePasswords(t *testing.T) {
	a := newAPI(t)
	a.registerStudent("S", "s@x.com", "N1")
	a.registerStudent("T", "t@x.com", "N2")

	code, env := a.do(http.MethodGet, "/students", "", nil)
	require.Equal(t, http.StatusOK, code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)
	assert.NotContains(t, string(env.Data), "password")
	assert.NotContains(t, string(env.Data), "$2a$")

	code, env = a.do(http.MethodGet, "/students/t@x.com", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"enrollmentNumber":"N2"`)

	code, _ = a.do(http.MethodGet, "/teachers/t@x.com", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPeopleMutationsRequireOwnerOrTeacher(t *testing.T) {
	a := newAPI(t)
	a.registerTeacher("A", "a@x.com", "E1")
	a.registerStudent("S", "s@x.com", "N1")
	a.registerStudent("T", "t@x.com", "N2")
	teacher, _ := a.login("a@x.com", "pw")
	student, _ := a.login("s@x.com", "pw")

	update := map[string]string{"department": "Math"}
	code, _ := a.do(http.MethodPut, "/students/t@x.com", "", update)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(http.MethodPut, "/students/t@x.com", student, update)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPut, "/students/s@x.com", student, update)
	assert.Equal(t, http.StatusOK, code)
	code, env := a.do(http.MethodPut, "/students/t@x.com", teacher, update)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"department":"Math"`)

	code, _ = a.do(http.MethodPut, "/students/s@x.com", student, map[string]string{"enrollmentNumber": "N2"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = a.do(http.MethodPut, "/teachers/a@x.com", student, map[string]string{"name": "X"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPut, "/teachers/nobody@x.com", teacher, map[string]string{"name": "X"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(http.MethodDelete, "/students/t@x.com", student, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodDelete, "/students/t@x.com", teacher, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodDelete, "/students/t@x.com", teacher, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAssignClass(t *testing.T) {
	a := newAPI(t)
	a.registerTeacher("A", "a@x.com", "E1")
	a.registerStudent("S", "s@x.com", "N1")
	a.registerStudent("T", "t@x.com", "N2")
	teacher, _ := a.login("a@x.com", "pw")
	student, _ := a.login("s@x.com", "pw")

	body := map[string]string{"classCode": "CODE-X"}
	code, _ := a.do(http.MethodPut, "/students/s@x.com/class", student, body)
	assert.Equal(t, http.StatusNotFound, code, "no learning path with that code yet")

	code, _ = a.do(http.MethodPost, "/learning-paths", teacher, map[string]string{"title": "Go", "classCode": "CODE-X"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = a.do(http.MethodPut, "/students/s@x.com/class", student, body)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodPut, "/students/t@x.com/class", student, body)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPut, "/students/t@x.com/class", teacher, body)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodPut, "/students/s@x.com/class", student, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	self, err := a.store.Collection(models.CollectionStudents).FindOne(context.Background(), storage.Filter{"email": "s@x.com"})
	require.NoError(t, err)
	code, _ = a.do(http.MethodPut, "/students/"+self.ID()+"/class", student, body)
	assert.Equal(t, http.StatusOK, code, "students may address themselves by id")
	other, err := a.store.Collection(models.CollectionStudents).FindOne(context.Background(), storage.Filter{"email": "t@x.com"})
	require.NoError(t, err)
	code, _ = a.do(http.MethodPut, "/students/"+other.ID()+"/class", student, body)
	assert.Equal(t, http.StatusForbidden, code)

	doc, err := a.store.Collection(models.CollectionStudents).FindOne(context.Background(), storage.Filter{"email": "t@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "CODE-X", doc["classCode"])
}

func TestLearningPaths(t *testing.T) {
	a := newAPI(t)
	a.registerTeacher("A", "a@x.com", "E1")
	a.registerStudent("S", "s@x.com", "N1")
	teacher, _ := a.login("a@x.com", "pw")
	student, _ := a.login("s@x.com", "pw")

	path := map[string]any{"title": "Go", "classCode": "C1", "modules": []any{"basics"}}
	code, _ := a.do(http.MethodPost, "/learning-paths", "", path)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(http.MethodPost, "/learning-paths", student, path)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := a.do(http.MethodPost, "/learning-paths", teacher, path)
	require.Equal(t, http.StatusCreated, code)
	var one struct {
		InsertedIDs []string `json:"insertedIds"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &one))
	require.Len(t, one.InsertedIDs, 1)
	id := one.InsertedIDs[0]

	code, env = a.do(http.MethodPost, "/learning-paths", teacher, []map[string]any{{"title": "Rust", "classCode": "C2"}, {"title": "SQL", "classCode": "C2"}})
	require.Equal(t, http.StatusCreated, code)
	var many struct {
		InsertedIDs []string `json:"insertedIds"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &many))
	assert.Len(t, many.InsertedIDs, 2)

	code, _ = a.do(http.MethodPost, "/learning-paths", teacher, "[]")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodPost, "/learning-paths", teacher, "42")
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(http.MethodGet, "/learning-paths", "", nil)
	require.Equal(t, http.StatusOK, code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 3)

	code, env = a.do(http.MethodGet, "/learning-paths?classCode=C2", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 2)

	code, env = a.do(http.MethodGet, "/learning-paths/"+id, "", nil)
	require.Equal(t, http.StatusOK, code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Go", got["title"])
	assert.Equal(t, id, got["_id"])

	code, env = a.do(http.MethodPut, "/learning-paths/"+id, teacher, map[string]any{"title": "Go 2", "_id": "hijack"})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"matched":1,"modified":1}`, string(env.Data))
	code, env = a.do(http.MethodGet, "/learning-paths/"+id, "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Go 2", got["title"])
	assert.Equal(t, id, got["_id"])

	code, _ = a.do(http.MethodPut, "/learning-paths/missing", teacher, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(http.MethodDelete, "/learning-paths/"+id, teacher, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodDelete, "/learning-paths/"+id, teacher, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(http.MethodGet, "/learning-paths/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	a := newAPI(t)
	code, env := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", env.Message)

	r := chi.NewRouter()
	NewHealthHandler(time.Now(), downPinger{}).Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.Contains(t, rec.Body.String(), `"error":"internal"`)
}
