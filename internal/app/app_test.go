package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/care-scheduler/internal/config"
	"github.com/jwalitptl/care-scheduler/internal/model"
	"github.com/jwalitptl/care-scheduler/internal/repository/memory"
	"github.com/jwalitptl/care-scheduler/pkg/logger"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code int    `json:"code"`
		Kind string `json:"kind"`
	} `json:"error"`
	Pagination *struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

type APISuite struct {
	suite.Suite
	app    *App
	engine *gin.Engine
	admin  string
}

func TestAPISuite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	suite.Run(t, new(APISuite))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{RequestTimeout: 5 * time.Second},
		Storage:     config.StorageConfig{Driver: "memory", Lock: "local"},
		Persistence: config.PersistenceConfig{Timeout: 5 * time.Second},
		Audit:       config.AuditConfig{Mode: "sync"},
		JWT:         config.JWTConfig{Issuer: "care-scheduler", Expiry: time.Hour},
		Secrets: config.Secrets{
			EncryptionKey: "test-encryption-key",
			JWTSecret:     "test-jwt-secret",
			AdminEmail:    "admin@clinic.test",
			AdminPassword: "admin-password",
		},
	}
}

func (s *APISuite) SetupTest() {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), logger.Nop(),
		WithRepositories(memory.New().Repositories()),
		WithHasherCost(bcrypt.MinCost),
	)
	s.Require().NoError(err)
	s.Require().NoError(a.Bootstrap(ctx))
	s.app = a
	s.engine, err = a.Handler()
	s.Require().NoError(err)
	s.admin = s.login("admin@clinic.test", "admin-password")
}

func (s *APISuite) TearDownTest() {
	s.NoError(s.app.Close(context.Background()))
}

func (s *APISuite) do(method, path, token string, body interface{}) (int, envelope) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func (s *APISuite) decode(env envelope, dst interface{}) {
	s.Require().NoError(json.Unmarshal(env.Data, dst))
}

func (s *APISuite) login(email, password string) string {
	code, env := s.do(http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{Email: email, Password: password})
	s.Require().Equal(http.StatusOK, code)
	var tok model.TokenResponse
	s.decode(env, &tok)
	return tok.AccessToken
}

func (s *APISuite) register(role model.Role, token string) (*model.User, string) {
	password := gofakeit.Password(true, true, true, false, false, 12)
	code, env := s.do(http.MethodPost, "/api/v1/auth/register", token, model.RegisterRequest{
		Email:     gofakeit.Email(),
		Password:  password,
		Role:      role,
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
	})
	s.Require().Equal(http.StatusCreated, code, "register %s", role)
	var u model.User
	s.decode(env, &u)
	return &u, s.login(u.Email, password)
}

// clinic sets up a doctor with a professional profile and a patient with a
// consented profile.
func (s *APISuite) clinic() (prof *model.Professional, patient *model.PatientProfile, patientToken string) {
	doctor, _ := s.register(model.RoleDoctor, s.admin)
	code, env := s.do(http.MethodPost, "/api/v1/professionals", s.admin, model.CreateProfessionalRequest{
		UserID:         doctor.ID,
		Specialization: "Cardiology",
		LicenseNumber:  gofakeit.Numerify("CRM-######"),
	})
	s.Require().Equal(http.StatusCreated, code)
	prof = &model.Professional{}
	s.decode(env, prof)

	user, token := s.register(model.RolePatient, "")
	code, env = s.do(http.MethodPost, "/api/v1/patients", s.admin, model.CreatePatientRequest{
		UserID:  user.ID,
		Consent: true,
	})
	s.Require().Equal(http.StatusCreated, code)
	patient = &model.PatientProfile{}
	s.decode(env, patient)
	return prof, patient, token
}

func tomorrowAt(h int) time.Time {
	d := time.Now().UTC().Add(48 * time.Hour)
	return time.Date(d.Year(), d.Month(), d.Day(), h, 0, 0, 0, time.UTC)
}

func (s *APISuite) auditCount(filter model.AuditFilter) int {
	_, total, err := s.app.Audit.List(context.Background(), filter, model.Pagination{})
	s.Require().NoError(err)
	return total
}

func (s *APISuite) TestHealthAndMetrics() {
	code, _ := s.do(http.MethodGet, "/health/live", "", nil)
	s.Equal(http.StatusOK, code)
	code, _ = s.do(http.MethodGet, "/health/ready", "", nil)
	s.Equal(http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "care_scheduler_http_requests_total")
}

func (s *APISuite) TestUnauthenticatedRequestIsDeniedAndAudited() {
	code, env := s.do(http.MethodGet, "/api/v1/appointments", "", nil)
	s.Equal(http.StatusUnauthorized, code)
	s.Require().NotNil(env.Error)
	s.Equal("AUTHENTICATION_ERROR", env.Error.Kind)

	logs, _, err := s.app.Audit.List(context.Background(), model.AuditFilter{Resource: model.ResourceAppointments}, model.Pagination{})
	s.Require().NoError(err)
	s.Require().Len(logs, 1)
	s.Nil(logs[0].ActorID)
	s.Equal("denied", logs[0].Detail["outcome"])
}

func (s *APISuite) TestSelfRegistrationIsPatientOnly() {
	code, env := s.do(http.MethodPost, "/api/v1/auth/register", "", model.RegisterRequest{
		Email: gofakeit.Email(), Password: "long-enough", Role: model.RoleDoctor, FirstName: "Eve",
	})
	s.Equal(http.StatusForbidden, code)
	s.Equal("AUTHORIZATION_ERROR", env.Error.Kind)

	code, env = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": "not-an-email"})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("VALIDATION_ERROR", env.Error.Kind)
}

func (s *APISuite) TestBookingFlow() {
	prof, patient, patientToken := s.clinic()

	book := func(h, m int) (int, envelope) {
		return s.do(http.MethodPost, "/api/v1/appointments", patientToken, model.CreateAppointmentRequest{
			PatientID:      patient.ID,
			ProfessionalID: prof.ID,
			Type:           model.AppointmentTypeConsultation,
			ScheduledDate:  tomorrowAt(h).Add(time.Duration(m) * time.Minute),
			Duration:       30,
		})
	}

	code, env := book(10, 0)
	s.Require().Equal(http.StatusCreated, code)
	var appt model.Appointment
	s.decode(env, &appt)
	s.Equal(model.AppointmentStatusScheduled, appt.Status)

	code, env = book(10, 15)
	s.Equal(http.StatusBadRequest, code)
	s.Equal("SCHEDULING_CONFLICT", env.Error.Kind)

	code, _ = book(10, 30)
	s.Equal(http.StatusCreated, code)

	code, env = s.do(http.MethodPost, "/api/v1/appointments", patientToken, map[string]interface{}{
		"patient_id": patient.ID, "professional_id": prof.ID, "type": "SURGERY", "scheduled_date": tomorrowAt(9),
	})
	s.Equal(http.StatusBadRequest, code)
	s.Equal("VALIDATION_ERROR", env.Error.Kind)

	// a patient only sees their own bookings
	code, env = s.do(http.MethodGet, "/api/v1/appointments", patientToken, nil)
	s.Require().Equal(http.StatusOK, code)
	s.Equal(2, env.Pagination.Total)

	path := "/api/v1/appointments/" + appt.ID.String() + "/cancel"
	code, _ = s.do(http.MethodPatch, path, patientToken, model.CancelAppointmentRequest{Reason: "travel"})
	s.Equal(http.StatusOK, code)
	code, env = s.do(http.MethodPatch, path, patientToken, nil)
	s.Equal(http.StatusConflict, code)
	s.Equal("INVALID_STATE_TRANSITION", env.Error.Kind)

	// booking plus both cancel attempts, one record each
	s.Equal(3, s.auditCount(model.AuditFilter{ResourceID: appt.ID.String()}))
}

func (s *APISuite) TestPatientCannotDriveStatus() {
	prof, patient, patientToken := s.clinic()
	code, env := s.do(http.MethodPost, "/api/v1/appointments", s.admin, model.CreateAppointmentRequest{
		PatientID: patient.ID, ProfessionalID: prof.ID, Type: model.AppointmentTypeExam, ScheduledDate: tomorrowAt(14),
	})
	s.Require().Equal(http.StatusCreated, code)
	var appt model.Appointment
	s.decode(env, &appt)

	path := "/api/v1/appointments/" + appt.ID.String() + "/status"
	code, _ = s.do(http.MethodPatch, path, patientToken, model.TransitionAppointmentRequest{Status: model.AppointmentStatusConfirmed})
	s.Equal(http.StatusForbidden, code)

	code, env = s.do(http.MethodPatch, path, s.admin, model.TransitionAppointmentRequest{Status: model.AppointmentStatusConfirmed})
	s.Require().Equal(http.StatusOK, code)
	s.decode(env, &appt)
	s.Equal(model.AppointmentStatusConfirmed, appt.Status)
	s.Equal(30, appt.Duration)
}

func (s *APISuite) TestEraseThroughAPI() {
	_, patient, patientToken := s.clinic()
	path := "/api/v1/patients/" + patient.ID.String()

	code, _ := s.do(http.MethodGet, path, patientToken, nil)
	s.Equal(http.StatusOK, code)

	code, env := s.do(http.MethodDelete, path, patientToken, nil)
	s.Equal(http.StatusForbidden, code)
	s.Equal("AUTHORIZATION_ERROR", env.Error.Kind)

	code, _ = s.do(http.MethodDelete, path, s.admin, nil)
	s.Require().Equal(http.StatusOK, code)

	code, _ = s.do(http.MethodGet, path, s.admin, nil)
	s.Equal(http.StatusNotFound, code)

	// the erasure writes the one successful DELETE record itself
	logs, _, err := s.app.Audit.List(context.Background(), model.AuditFilter{
		ResourceID: patient.ID.String(),
		Action:     model.AuditActionDelete,
	}, model.Pagination{})
	s.Require().NoError(err)
	s.Require().Len(logs, 2)
	var erasures int
	for _, l := range logs {
		if l.Detail["erasure"] == true {
			erasures++
		}
	}
	s.Equal(1, erasures)

	// the token of an erased user stops working
	code, _ = s.do(http.MethodGet, "/api/v1/appointments", patientToken, nil)
	s.Equal(http.StatusUnauthorized, code)
}

func (s *APISuite) TestAuditEndpointsAreAdminOnly() {
	_, _, patientToken := s.clinic()

	code, _ := s.do(http.MethodGet, "/api/v1/audit/logs", patientToken, nil)
	s.Equal(http.StatusForbidden, code)

	code, env := s.do(http.MethodGet, "/api/v1/audit/logs?action=LOGIN", s.admin, nil)
	s.Require().Equal(http.StatusOK, code)
	s.GreaterOrEqual(env.Pagination.Total, 1)

	code, _ = s.do(http.MethodGet, "/api/v1/audit/logs?action=PURGE", s.admin, nil)
	s.Equal(http.StatusBadRequest, code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/export?resource=patients", nil)
	req.Header.Set("Authorization", "Bearer "+s.admin)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Type"), "text/csv")
	s.Contains(w.Body.String(), "id,sequence,timestamp")
}

func (s *APISuite) TestPasswordsNeverReachTheTrail() {
	s.register(model.RolePatient, "")
	logs, _, err := s.app.Audit.List(context.Background(), model.AuditFilter{
		Resource: model.ResourceAuth,
		Action:   model.AuditActionCreate,
	}, model.Pagination{})
	s.Require().NoError(err)
	s.Require().NotEmpty(logs)
	for _, l := range logs {
		if body, ok := l.Detail["body"].(map[string]interface{}); ok {
			s.Equal("***REDACTED***", body["password"])
		}
	}
}

func (s *APISuite) TestRefreshToken() {
	code, env := s.do(http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{Email: "admin@clinic.test", Password: "admin-password"})
	s.Require().Equal(http.StatusOK, code)
	var tok model.TokenResponse
	s.decode(env, &tok)
	s.Require().NotEmpty(tok.RefreshToken)

	// a refresh token does not authenticate API calls
	code, _ = s.do(http.MethodGet, "/api/v1/professionals", tok.RefreshToken, nil)
	s.Equal(http.StatusUnauthorized, code)

	code, env = s.do(http.MethodPost, "/api/v1/auth/refresh", "", model.RefreshRequest{RefreshToken: tok.RefreshToken})
	s.Require().Equal(http.StatusOK, code)
	var refreshed model.TokenResponse
	s.decode(env, &refreshed)

	code, _ = s.do(http.MethodGet, "/api/v1/professionals", refreshed.AccessToken, nil)
	s.Equal(http.StatusOK, code)

	code, env = s.do(http.MethodPost, "/api/v1/auth/refresh", "", model.RefreshRequest{RefreshToken: "garbage"})
	s.Equal(http.StatusUnauthorized, code)
	s.Require().NotNil(env.Error)
	s.Equal("AUTHENTICATION_ERROR", env.Error.Kind)

	code, _ = s.do(http.MethodPost, "/api/v1/auth/refresh", "", gin.H{})
	s.Equal(http.StatusBadRequest, code)
}
