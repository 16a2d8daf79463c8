package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"venueattend/internal/attendance"
	"venueattend/internal/auth"
	"venueattend/internal/faceclient"
	"venueattend/internal/identity"
	"venueattend/internal/ledger"
	"venueattend/internal/location"
	"venueattend/internal/model"
	"venueattend/internal/schedule"
)

type stubRecognizer struct {
	match faceclient.Match
	err   error
}

func (r stubRecognizer) Recognize(context.Context, string, string) (faceclient.Match, error) {
	return r.match, r.err
}

type stubEnroller struct {
	result *faceclient.EnrollResult
	urls   []string
}

func (e *stubEnroller) Enroll(_ context.Context, _, imageURL, _ string) (*faceclient.EnrollResult, error) {
	e.urls = append(e.urls, imageURL)
	return e.result, nil
}

type stubGallery struct {
	mu    sync.Mutex
	calls int
}

func (g *stubGallery) Refresh(context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.calls, nil
}

type APISuite struct {
	suite.Suite
	ctx    context.Context
	zone   *time.Location
	today  model.Date
	clock  time.Time
	ids    *identity.Service
	locs   *location.Service
	reg    *schedule.Registry
	ledger *ledger.Ledger
	srv    *Server
	router *gin.Engine

	hall   *model.Location
	annex  *model.Location
	sched  *model.Schedule
	member *model.Member
	admin  string
	kiosk  string
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.ctx = context.Background()
	s.zone = time.FixedZone("WAT", 3600)
	s.today = model.Date{Year: 2026, Month: time.June, Day: 6}
	s.setClock("07:55")
	now := func() time.Time { return s.clock }

	ids, err := identity.New(identity.NewMemoryStore(), identity.WithPolicy(identity.Policy{
		LockoutThreshold: 5,
		LockoutDuration:  30 * time.Minute,
		BcryptCost:       bcrypt.MinCost,
	}))
	s.Require().NoError(err)
	s.ids = ids

	schedStore := schedule.NewMemoryStore()
	ledgerStore := ledger.NewMemoryStore()
	schedStore.GuardDeletes(ledgerStore)
	s.locs = location.New(location.NewMemoryStore(schedStore))
	s.reg = schedule.NewRegistry(schedStore, s.locs, schedule.WithLocation(s.zone))
	s.ledger = ledger.New(ledgerStore, ledger.WithClock(now))

	engine, err := attendance.NewEngine(ids, s.reg, ledgerStore, attendance.WithClock(now))
	s.Require().NoError(err)

	issuer := auth.NewIssuer("venueattend", "test-key", 15*time.Minute, time.Hour)
	s.srv = New(Deps{
		Engine:      engine,
		Identity:    ids,
		Locations:   s.locs,
		Schedules:   s.reg,
		Ledger:      s.ledger,
		Issuer:      issuer,
		AdminAPIKey: "admin-key",
		Zone:        s.zone,
		Now:         now,
	})
	s.router = gin.New()
	s.srv.Register(s.router)

	capacity := 4
	s.hall = &model.Location{Name: "Town Hall", LocalGovernment: "Ikeja", State: "Lagos", Capacity: &capacity}
	s.Require().NoError(s.locs.Create(s.ctx, s.hall))
	s.annex = &model.Location{Name: "Annex", LocalGovernment: "Ikeja", State: "Lagos"}
	s.Require().NoError(s.locs.Create(s.ctx, s.annex))
	s.sched = &model.Schedule{LocationID: s.hall.ID, Date: s.today}
	s.Require().NoError(s.reg.Create(s.ctx, s.sched))

	s.member, err = ids.Register(s.ctx, identity.Registration{
		Code: "LA/26A/0001", FullName: "Ada Obi", Email: "ada@example.com", Password: "pw", PIN: "1234",
	})
	s.Require().NoError(err)

	adminPair, err := issuer.Issue("admin", auth.RoleAdmin, "")
	s.Require().NoError(err)
	s.admin = adminPair.AccessToken
	kioskPair, err := issuer.Issue("kiosk-1", auth.RoleKiosk, s.hall.ID)
	s.Require().NoError(err)
	s.kiosk = kioskPair.AccessToken
}

func (s *APISuite) setClock(clock string) {
	s.clock = model.MustTimeOfDay(clock).On(s.today, s.zone)
}

func (s *APISuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
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
	s.router.ServeHTTP(w, req)
	return w
}

func (s *APISuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *APISuite) checkIn(pin string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/v1/checkins", s.kiosk, gin.H{"identity": "LA/26A/0001", "pin": pin, "method": "pin"})
}

func (s *APISuite) TestCheckInThenDuplicate() {
	w := s.checkIn("1234")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	body := s.decode(w)
	s.Equal("success", body["code"])
	s.Equal("Ada Obi", body["member_name"])
	rec := body["record"].(map[string]any)
	s.Equal("on_time", rec["status"])
	s.Equal(s.hall.ID, rec["location_id"])

	w = s.checkIn("1234")
	s.Equal(http.StatusConflict, w.Code)
	body = s.decode(w)
	s.Equal("already_marked", body["code"])
	s.Contains(body["error"], "07:55")
	s.NotEmpty(body["check_in_time"])
}

func (s *APISuite) TestCheckInRejections() {
	w := s.checkIn("9999")
	s.Equal(http.StatusUnauthorized, w.Code)
	s.Equal("identity_error", s.decode(w)["code"])

	w = s.do(http.MethodPost, "/v1/checkins", s.kiosk, gin.H{"identity": "LA/26A/0001", "pin": "12", "method": "pin"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("invalid_request", s.decode(w)["code"])

	w = s.do(http.MethodPost, "/v1/checkins", s.kiosk,
		gin.H{"identity": "LA/26A/0001", "pin": "1234", "method": "pin", "location_id": s.annex.ID})
	s.Equal(http.StatusForbidden, w.Code, "kiosk is bound to the hall")

	w = s.do(http.MethodPost, "/v1/checkins", s.admin,
		gin.H{"identity": "LA/26A/0001", "pin": "1234", "method": "pin", "location_id": s.annex.ID})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("no_schedule_today", s.decode(w)["code"])

	s.setClock("16:00:01")
	w = s.checkIn("1234")
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("outside_schedule_window", s.decode(w)["code"])
}

func (s *APISuite) TestLockoutReturns423() {
	for i := 0; i < 4; i++ {
		s.Equal(http.StatusUnauthorized, s.checkIn("0000").Code)
	}
	w := s.checkIn("0000")
	s.Equal(http.StatusLocked, w.Code)
	body := s.decode(w)
	s.Equal("account_locked", body["code"])
	s.NotEmpty(body["locked_until"])

	s.Equal(http.StatusLocked, s.checkIn("1234").Code)

	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/v1/members/"+s.member.ID+"/unlock", s.admin, nil).Code)
	s.Equal(http.StatusCreated, s.checkIn("1234").Code)
}

func (s *APISuite) TestFaceCheckInUsesRecognizer() {
	s.srv.Recognizer = stubRecognizer{match: faceclient.Match{MemberID: s.member.ID, Confidence: 0.3}}
	req := gin.H{"identity": "LA/26A/0001", "pin": "1234", "method": "face_pin", "image_url": "https://img/1.jpg"}

	w := s.do(http.MethodPost, "/v1/checkins", s.kiosk, req)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("recognition_mismatch", s.decode(w)["code"])

	s.srv.Recognizer = stubRecognizer{err: errors.New("face service down")}
	w = s.do(http.MethodPost, "/v1/checkins", s.kiosk, req)
	s.Equal(http.StatusForbidden, w.Code)

	s.srv.Recognizer = stubRecognizer{match: faceclient.Match{MemberID: s.member.ID, Confidence: 0.91}}
	w = s.do(http.MethodPost, "/v1/checkins", s.kiosk, req)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	rec := s.decode(w)["record"].(map[string]any)
	s.Equal("face_pin", rec["recognition_method"])
	s.InDelta(0.91, rec["confidence_score"], 1e-9)
}

func (s *APISuite) TestAuthBoundaries() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/v1/locations", "", nil).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/v1/locations", s.kiosk, nil).Code)

	w := s.do(http.MethodPost, "/v1/auth/admin-token", "", gin.H{"api_key": "wrong"})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/v1/auth/admin-token", "", gin.H{"api_key": "admin-key"})
	s.Require().Equal(http.StatusCreated, w.Code)
	tokens := s.decode(w)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/v1/locations", tokens["access_token"].(string), nil).Code)

	w = s.do(http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": tokens["refresh_token"]})
	s.Equal(http.StatusOK, w.Code)
	w = s.do(http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": tokens["access_token"]})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *APISuite) TestRegisterDevice() {
	w := s.do(http.MethodPost, "/v1/devices/register", s.admin, gin.H{"device_id": "k2", "location_id": "nope"})
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/v1/devices/register", s.admin, gin.H{"device_id": "k2", "location_id": s.hall.ID})
	s.Require().Equal(http.StatusCreated, w.Code)
	token := s.decode(w)["access_token"].(string)

	w = s.do(http.MethodPost, "/v1/checkins", token, gin.H{"identity": "LA/26A/0001", "pin": "1234", "method": "pin"})
	s.Equal(http.StatusCreated, w.Code)
}

func (s *APISuite) TestLocationAdmin() {
	w := s.do(http.MethodPost, "/v1/locations", s.admin, gin.H{"name": "Depot", "local_government": "Yaba"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/v1/locations", s.admin, gin.H{"name": "Depot", "local_government": "Yaba", "state": "Lagos"})
	s.Require().Equal(http.StatusCreated, w.Code)
	id := s.decode(w)["id"].(string)

	w = s.do(http.MethodPost, "/v1/locations/"+id+"/active", s.admin, gin.H{"active": false})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(false, s.decode(w)["active"])

	s.Equal(http.StatusConflict, s.do(http.MethodDelete, "/v1/locations/"+s.hall.ID, s.admin, nil).Code)
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/v1/locations/"+id, s.admin, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/locations/"+id, s.admin, nil).Code)
}

func (s *APISuite) TestScheduleLifecycleDrivesMarkBySchedule() {
	w := s.do(http.MethodPost, "/v1/schedules", s.admin, gin.H{"location_id": s.annex.ID, "date": s.today.String()})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	sched := s.decode(w)
	s.Equal("08:00", sched["start_time"])
	s.Equal("16:00", sched["end_time"])
	id := sched["id"].(string)

	w = s.do(http.MethodPost, "/v1/schedules", s.admin, gin.H{
		"location_id": s.annex.ID, "date": s.today.String(), "start_time": "17:00", "end_time": "09:00",
	})
	s.Equal(http.StatusBadRequest, w.Code)

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/v1/schedules/"+id+"/cancel", s.admin, gin.H{"reason": "rain"}).Code)

	mark := gin.H{"member_id": s.member.ID, "schedule_id": id}
	s.setClock("09:00")
	w = s.do(http.MethodPost, "/v1/attendance/mark-by-schedule", s.admin, mark)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("no_schedule_today", s.decode(w)["code"])

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/v1/schedules/"+id+"/activate", s.admin, nil).Code)
	w = s.do(http.MethodPost, "/v1/attendance/mark-by-schedule", s.admin, mark)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Equal("very_late", s.decode(w)["record"].(map[string]any)["status"])

	s.Equal(http.StatusConflict, s.do(http.MethodDelete, "/v1/schedules/"+id, s.admin, nil).Code)

	w = s.do(http.MethodGet, "/v1/schedules/today/locations", s.admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(s.decode(w)["locations"], 2)
}

func (s *APISuite) TestCheckOutVerifyAndList() {
	w := s.checkIn("1234")
	s.Require().Equal(http.StatusCreated, w.Code)
	id := s.decode(w)["record"].(map[string]any)["id"].(string)

	s.setClock("15:00")
	w = s.do(http.MethodPost, "/v1/attendance/"+id+"/checkout", s.kiosk, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.NotEmpty(s.decode(w)["check_out_time"])
	s.Equal(http.StatusConflict, s.do(http.MethodPost, "/v1/attendance/"+id+"/checkout", s.kiosk, nil).Code)

	w = s.do(http.MethodPost, "/v1/attendance/"+id+"/verify", s.admin, gin.H{"verified": true, "admin_notes": "seen"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(true, s.decode(w)["verified_by_admin"])

	w = s.do(http.MethodGet, "/v1/attendance?location_id="+s.hall.ID+"&status=on_time", s.admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	body := s.decode(w)
	s.EqualValues(1, body["total"])
	s.Len(body["records"], 1)

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/attendance?status=absent", s.admin, nil).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/attendance?offset=-1", s.admin, nil).Code)
}

func (s *APISuite) TestSummariesAndHistory() {
	s.setClock("08:10")
	s.Require().Equal(http.StatusCreated, s.checkIn("1234").Code)

	w := s.do(http.MethodGet, "/v1/locations/"+s.hall.ID+"/summary", s.admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	sum := s.decode(w)["summary"].(map[string]any)
	s.EqualValues(1, sum["total_present"])
	s.EqualValues(1, sum["late"])
	s.InDelta(100.0, sum["attendance_rate"], 1e-9)
	s.InDelta(25.0, sum["capacity_utilisation"], 1e-9)

	w = s.do(http.MethodGet, "/v1/members/"+s.member.ID+"/history?days=7", s.admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Len(s.decode(w)["records"], 1)

	w = s.do(http.MethodGet, "/v1/members/"+s.member.ID+"/summary", s.admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.EqualValues(1, s.decode(w)["total_present"])

	s.Equal(http.StatusBadRequest,
		s.do(http.MethodGet, "/v1/members/"+s.member.ID+"/summary?from=2026-06-10&to=2026-06-01", s.admin, nil).Code)
}

func (s *APISuite) TestExportCSV() {
	s.Require().Equal(http.StatusCreated, s.checkIn("1234").Code)

	w := s.do(http.MethodGet, "/v1/attendance/export?date="+s.today.String(), s.admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Type"), "text/csv")
	s.Contains(w.Header().Get("Content-Disposition"), "attendance-2026-06-06.csv")

	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal("LA/26A/0001", rows[1][1])
	s.Equal("Ada Obi", rows[1][2])
	s.Equal("Town Hall", rows[1][3])
	s.Equal("2026-06-06 07:55:00", rows[1][4])
}

func (s *APISuite) TestMemberAdmin() {
	w := s.do(http.MethodPost, "/v1/members", s.admin, gin.H{
		"code": "LA/26A/0002", "full_name": "Bola Ade", "email": "bola@example.com", "password": "pw", "pin": "12a4",
	})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/v1/members", s.admin, gin.H{
		"code": "LA/26A/0002", "full_name": "Bola Ade", "email": "bola@example.com", "password": "pw", "pin": "4321",
	})
	s.Require().Equal(http.StatusCreated, w.Code)
	id := s.decode(w)["id"].(string)

	w = s.do(http.MethodPost, "/v1/members", s.admin, gin.H{
		"code": "LA/26A/0002", "full_name": "Dup", "email": "dup@example.com", "password": "pw", "pin": "4321",
	})
	s.Equal(http.StatusConflict, w.Code)

	s.Equal(http.StatusNoContent, s.do(http.MethodPut, "/v1/members/"+id+"/pin", s.admin, gin.H{"pin": "5555"}).Code)
	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/v1/members/"+id+"/active", s.admin, gin.H{"active": false}).Code)

	w = s.do(http.MethodPost, "/v1/checkins", s.kiosk, gin.H{"identity": "LA/26A/0002", "pin": "5555", "method": "pin"})
	s.Equal(http.StatusUnauthorized, w.Code, "inactive members cannot check in")

	w = s.do(http.MethodGet, "/v1/members/"+id, s.admin, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(false, s.decode(w)["has_template"])
}

func (s *APISuite) TestEnrollPhotoFromURL() {
	s.Equal(http.StatusServiceUnavailable,
		s.do(http.MethodPost, "/v1/members/"+s.member.ID+"/photo", s.admin, gin.H{"image_url": "https://img/a.jpg"}).Code)

	enroller := &stubEnroller{result: &faceclient.EnrollResult{Success: false, Message: "no face detected"}}
	gallery := &stubGallery{}
	s.srv.Enroller, s.srv.Gallery = enroller, gallery

	w := s.do(http.MethodPost, "/v1/members/"+s.member.ID+"/photo", s.admin, gin.H{"image_url": "https://img/a.jpg"})
	s.Equal(http.StatusUnprocessableEntity, w.Code)

	enroller.result = &faceclient.EnrollResult{Success: true}
	w = s.do(http.MethodPost, "/v1/members/"+s.member.ID+"/photo", s.admin, gin.H{"image_url": "https://img/a.jpg"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal([]string{"https://img/a.jpg", "https://img/a.jpg"}, enroller.urls)
	s.Equal(1, gallery.calls)

	m, err := s.ids.Get(s.ctx, s.member.ID)
	s.Require().NoError(err)
	s.Equal([]byte("https://img/a.jpg"), m.Template)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/v1/members/"+s.member.ID+"/photo", s.admin, gin.H{}).Code)
	s.Equal(http.StatusServiceUnavailable,
		s.do(http.MethodPost, "/v1/members/"+s.member.ID+"/photo", s.admin, gin.H{"data": "data:image/png;base64,AA"}).Code)

	w = s.do(http.MethodPost, "/v1/gallery/refresh", s.admin, nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *APISuite) TestHealthz() {
	s.srv.Health = map[string]HealthCheck{
		"db":    func(context.Context) bool { return true },
		"redis": func(context.Context) bool { return false },
	}
	w := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
	body := s.decode(w)
	s.Equal(true, body["db"])
	s.Equal(false, body["redis"])
}
