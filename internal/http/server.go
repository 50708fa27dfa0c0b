package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ZhonFortune/classtab-ics-backend/internal/config"
	"github.com/ZhonFortune/classtab-ics-backend/internal/digest"
	"github.com/ZhonFortune/classtab-ics-backend/internal/identity"
	"github.com/ZhonFortune/classtab-ics-backend/internal/model"
	"github.com/ZhonFortune/classtab-ics-backend/internal/repository"
)

// Body statuses carried inside the JSON payload. The transport-level code is
// 200 for all of these; existing clients read the status field, not the HTTP
// code.
const (
	statusOK            = 200
	statusAlreadyExists = 201
	statusWrongPassword = 204
	statusNoneYet       = 204
	statusTokenMismatch = 205
	statusMissingParam  = 401
	statusNotFound      = 404
	statusRejected      = 405
	statusServerError   = 500
)

// defaultClassName is substituted when a class entry is submitted without a
// name. The original deployment used a localized placeholder here.
const defaultClassName = "unknown"

var (
	errUnknownUser = errors.New("unknown user")
	errDuplicate   = errors.New("duplicate entry")
)

type Server struct {
	cfg      config.Config
	store    *repository.Store
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewServer(cfg config.Config, store *repository.Store, redisClient *redis.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		redis:    redisClient,
		cacheTTL: cfg.ClassCacheTTL,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/login/verify", s.handleLoginVerify)
	r.Get("/login/create", s.handleLoginCreate)

	r.Get("/class/getlist", s.handleClassList)
	r.Post("/class/add", s.handleClassAdd)
	r.Get("/class/duration/get", s.handleDurationGet)
	r.Post("/class/duration/add", s.handleDurationAdd)
	r.Post("/class/term/add", s.handleTermAdd)
	r.Get("/class/term/get", s.handleTermGet)

	r.Get("/api/getlist", s.handleAPIList)

	return r
}

// Login

type userInfo struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	Token string `json:"token"`
}

type loginResponse struct {
	Status   int      `json:"status"`
	Message  string   `json:"message"`
	UserInfo userInfo `json:"userinfo"`
}

func (s *Server) handleLoginVerify(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("uname")
	password := r.URL.Query().Get("pwd")
	if name == "" || password == "" {
		writeStatus(w, statusMissingParam, "username and password must not be empty")
		return
	}

	passwordHash := digest.Sum(password)
	user, err := s.store.GetUserByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeStatus(w, statusNotFound, "user does not exist")
			return
		}
		log.Printf("login verify store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}

	if user.PasswordHash != passwordHash {
		writeStatus(w, statusWrongPassword, "wrong password")
		return
	}

	// The stored token is always derived the same way at registration, so a
	// mismatch here means the row was corrupted or tampered with.
	if identity.Token(name, passwordHash, user.Level) != user.Token {
		writeStatus(w, statusTokenMismatch, "rejected")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Status:  statusOK,
		Message: "login successful",
		UserInfo: userInfo{
			Name:  user.Name,
			Level: user.Level,
			Token: user.Token,
		},
	})
}

func (s *Server) handleLoginCreate(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("uname")
	password := r.URL.Query().Get("pwd")
	if name == "" || password == "" {
		writeStatus(w, statusMissingParam, "username and password must not be empty")
		return
	}

	passwordHash := digest.Sum(password)
	level := 1
	inserted, err := s.store.CreateUser(r.Context(), model.User{
		Name:         name,
		PasswordHash: passwordHash,
		Level:        level,
		Token:        identity.Token(name, passwordHash, level),
	})
	if err != nil {
		log.Printf("login create store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}
	if !inserted {
		writeStatus(w, statusAlreadyExists, "user already exists")
		return
	}
	writeStatus(w, statusOK, "user created")
}

// Class table

type classRow struct {
	CCID      string `json:"ccid"`
	CID       string `json:"cid"`
	UID       string `json:"uid"`
	TableName string `json:"tablename"`
	ClassName string `json:"classname"`
	Week      string `json:"week"`
	Weekday   string `json:"weekday"`
	RefC      string `json:"refc"`
	Teacher   string `json:"teacher"`
	Location  string `json:"location"`
	Classroom string `json:"class"`
}

type classListResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ClassList []classRow `json:"classlist"`
	} `json:"data"`
}

func (s *Server) handleClassList(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("utoken")
	if token == "" {
		writeStatus(w, statusMissingParam, "parameter must not be empty")
		return
	}

	if cached, ok := s.cachedClassList(r.Context(), token); ok {
		writeRawJSON(w, cached)
		return
	}

	entries, err := s.store.ListClassEntriesByOwner(r.Context(), token)
	if err != nil {
		log.Printf("class list store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}

	resp := classListResponse{Status: statusOK, Message: "ok"}
	resp.Data.ClassList = make([]classRow, 0, len(entries))
	for _, entry := range entries {
		resp.Data.ClassList = append(resp.Data.ClassList, classRow{
			CCID:      entry.CCID,
			CID:       entry.CID,
			UID:       entry.OwnerToken,
			TableName: entry.TableName,
			ClassName: entry.ClassName,
			Week:      entry.Week,
			Weekday:   entry.Weekday,
			RefC:      entry.RefC,
			Teacher:   entry.Teacher,
			Location:  entry.Location,
			Classroom: entry.Classroom,
		})
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		writeStatus(w, statusServerError, "server error")
		return
	}
	s.storeClassListCache(r.Context(), token, payload)
	writeRawJSON(w, payload)
}

type classAddRequest struct {
	UID         string `json:"uid"`
	CID         string `json:"cid"`
	TableName   string `json:"tablename"`
	ClassName   string `json:"classname"`
	ForDuration string `json:"for_duration"`
	Week        string `json:"week"`
	Weekday     string `json:"weekday"`
	ClassTime   string `json:"classTime"`
	Teacher     string `json:"teacher"`
	Location    string `json:"location"`
	Classroom   string `json:"classroom"`
}

// missingParams names the required fields that are absent, in request order,
// so the rejection message can list them for the caller.
func (req classAddRequest) missingParams() []string {
	missing := []string{}
	if req.UID == "" {
		missing = append(missing, "uid")
	}
	if req.CID == "" {
		missing = append(missing, "cid")
	}
	if req.ForDuration == "" {
		missing = append(missing, "for_duration")
	}
	if req.Week == "" {
		missing = append(missing, "week")
	}
	if req.Weekday == "" {
		missing = append(missing, "weekday")
	}
	if req.ClassTime == "" {
		missing = append(missing, "classTime")
	}
	return missing
}

// applyDefaults substitutes the documented fallbacks: the term identifier for
// a missing table name, the sentinel for a missing class name.
func (req *classAddRequest) applyDefaults() {
	if req.TableName == "" {
		req.TableName = req.CID
	}
	if req.ClassName == "" {
		req.ClassName = defaultClassName
	}
}

func (s *Server) handleClassAdd(w http.ResponseWriter, r *http.Request) {
	var req classAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, statusMissingParam, "invalid request body")
		return
	}
	if missing := req.missingParams(); len(missing) > 0 {
		writeStatus(w, statusMissingParam, "missing required parameters: "+strings.Join(missing, ", "))
		return
	}
	req.applyDefaults()

	exists, err := s.store.UserExistsByToken(r.Context(), req.UID)
	if err != nil {
		log.Printf("class add store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}
	if !exists {
		writeStatus(w, statusNotFound, "user does not exist")
		return
	}

	termExists, err := s.store.TermExists(r.Context(), req.CID)
	if err != nil {
		log.Printf("class add store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}
	if !termExists {
		writeStatus(w, statusNotFound, "term does not exist")
		return
	}

	entry := model.ClassEntry{
		CCID:       identity.ClassEntryID(req.UID, req.CID, req.ForDuration, req.Week, req.Weekday, req.ClassTime),
		CID:        req.CID,
		OwnerToken: req.UID,
		TableName:  req.TableName,
		ClassName:  req.ClassName,
		Week:       req.Week,
		Weekday:    req.Weekday,
		RefC:       req.ForDuration,
		Teacher:    req.Teacher,
		Location:   req.Location,
		Classroom:  req.Classroom,
	}
	inserted, err := s.store.CreateClassEntry(r.Context(), entry)
	if err != nil {
		log.Printf("class add store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}
	if !inserted {
		writeStatus(w, statusRejected, "class already exists")
		return
	}

	s.dropClassListCache(r.Context(), req.UID)
	writeStatus(w, statusOK, "class added")
}

// Period templates ("class durations")

type durationRow struct {
	CCID     string `json:"ccid"`
	CID      string `json:"cid"`
	UID      string `json:"uid"`
	DuraName string `json:"duraname"`
	Num      int    `json:"num"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

type durationListResponse struct {
	Status  int           `json:"status"`
	Message string        `json:"message"`
	Data    []durationRow `json:"data"`
}

func (s *Server) handleDurationGet(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("uid")
	if token == "" {
		writeStatus(w, statusMissingParam, "parameter must not be empty")
		return
	}

	exists, err := s.store.UserExistsByToken(r.Context(), token)
	if err != nil {
		log.Printf("duration get store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}
	if !exists {
		writeStatus(w, statusNotFound, "user does not exist")
		return
	}

	entries, err := s.store.ListPeriodEntriesByOwner(r.Context(), token)
	if err != nil {
		log.Printf("duration get store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}
	if len(entries) == 0 {
		writeStatus(w, statusNoneYet, "no period templates yet")
		return
	}

	rows := make([]durationRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, durationRow{
			CCID:     entry.CCID,
			CID:      entry.CID,
			UID:      entry.OwnerToken,
			DuraName: entry.Label,
			Num:      entry.Index,
			Start:    entry.Start,
			End:      entry.End,
		})
	}
	writeJSON(w, http.StatusOK, durationListResponse{Status: statusOK, Message: "ok", Data: rows})
}

type durationSlot struct {
	Index     int `json:"index"`
	StartTime int `json:"startTime"`
	EndTime   int `json:"endTime"`
}

type durationAddRequest struct {
	UID  string         `json:"uid"`
	CID  string         `json:"cid"`
	Name string         `json:"name"`
	Data []durationSlot `json:"data"`
}

func (req durationAddRequest) missingParams() []string {
	missing := []string{}
	if req.UID == "" {
		missing = append(missing, "uid")
	}
	if req.CID == "" {
		missing = append(missing, "cid")
	}
	if len(req.Data) == 0 {
		missing = append(missing, "data")
	}
	return missing
}

type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (s *Server) handleDurationAdd(w http.ResponseWriter, r *http.Request) {
	var req durationAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, statusMissingParam, "invalid request body")
		return
	}
	if missing := req.missingParams(); len(missing) > 0 {
		writeStatus(w, statusMissingParam, "parameter must not be empty: "+strings.Join(missing, ", "))
		return
	}
	if req.Name == "" {
		req.Name = req.CID
	}

	// Entries are applied in order and the batch stops at the first failure.
	// Entries inserted before that point stay committed.
	for _, slot := range req.Data {
		err := s.addPeriodEntry(r.Context(), req.UID, req.CID, req.Name, slot)
		if errors.Is(err, errUnknownUser) || errors.Is(err, errDuplicate) {
			writeStatus(w, statusRejected, "one or more entries were not added")
			return
		}
		if err != nil {
			log.Printf("duration add store error: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Status:  statusServerError,
				Message: "server error",
				Error:   err.Error(),
			})
			return
		}
	}
	writeStatus(w, statusOK, "added")
}

func (s *Server) addPeriodEntry(ctx context.Context, token, cid, label string, slot durationSlot) error {
	exists, err := s.store.UserExistsByToken(ctx, token)
	if err != nil {
		return err
	}
	if !exists {
		return errUnknownUser
	}

	entry := model.PeriodEntry{
		CCID:       identity.PeriodEntryID(token, cid, label, slot.Index, slot.StartTime, slot.EndTime),
		CID:        cid,
		OwnerToken: token,
		Label:      label,
		Index:      slot.Index,
		Start:      slot.StartTime,
		End:        slot.EndTime,
	}
	inserted, err := s.store.CreatePeriodEntry(ctx, entry)
	if err != nil {
		return err
	}
	if !inserted {
		return errDuplicate
	}
	return nil
}

// Terms

type termAddRequest struct {
	UID          string `json:"uid"`
	CCID         string `json:"ccid"`
	FirstSchool  string `json:"firstschool"`
	SecondSchool string `json:"secondschool"`
	ClassCount   int    `json:"class"`
	WeekCount    int    `json:"weeknum"`
	Start        int64  `json:"start"`
	End          int64  `json:"end"`
}

func (req termAddRequest) missingParams() []string {
	missing := []string{}
	if req.UID == "" {
		missing = append(missing, "uid")
	}
	if req.CCID == "" {
		missing = append(missing, "ccid")
	}
	return missing
}

type termAddResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		CID string `json:"cid"`
	} `json:"data"`
}

func (s *Server) handleTermAdd(w http.ResponseWriter, r *http.Request) {
	var req termAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, statusMissingParam, "invalid request body")
		return
	}
	if missing := req.missingParams(); len(missing) > 0 {
		writeStatus(w, statusMissingParam, "parameter must not be empty: "+strings.Join(missing, ", "))
		return
	}

	exists, err := s.store.UserExistsByToken(r.Context(), req.UID)
	if err != nil {
		log.Printf("term add store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}
	if !exists {
		writeStatus(w, statusNotFound, "user does not exist")
		return
	}

	term := model.Term{
		CID:          identity.NewGroupID(req.UID),
		CCID:         req.CCID,
		OwnerToken:   req.UID,
		FirstSchool:  req.FirstSchool,
		SecondSchool: req.SecondSchool,
		ClassCount:   req.ClassCount,
		WeekCount:    req.WeekCount,
		Start:        req.Start,
		End:          req.End,
	}
	inserted, err := s.store.CreateTerm(r.Context(), term)
	if err != nil {
		log.Printf("term add store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}
	if !inserted {
		// A freshly salted identifier colliding means something is badly wrong.
		writeStatus(w, statusServerError, "server error")
		return
	}

	resp := termAddResponse{Status: statusOK, Message: "term created"}
	resp.Data.CID = term.CID
	writeJSON(w, http.StatusOK, resp)
}

type termRow struct {
	CID          string `json:"cid"`
	CCID         string `json:"ccid"`
	UID          string `json:"uid"`
	FirstSchool  string `json:"firstschool"`
	SecondSchool string `json:"secondschool"`
	ClassCount   int    `json:"class"`
	WeekCount    int    `json:"weeknum"`
	Start        int64  `json:"start"`
	End          int64  `json:"end"`
}

type termListResponse struct {
	Status  int       `json:"status"`
	Message string    `json:"message"`
	Data    []termRow `json:"data"`
}

func (s *Server) handleTermGet(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("uid")
	if token == "" {
		writeStatus(w, statusMissingParam, "parameter must not be empty")
		return
	}

	exists, err := s.store.UserExistsByToken(r.Context(), token)
	if err != nil {
		log.Printf("term get store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}
	if !exists {
		writeStatus(w, statusNotFound, "user does not exist")
		return
	}

	terms, err := s.store.ListTermsByOwner(r.Context(), token)
	if err != nil {
		log.Printf("term get store error: %v", err)
		writeStatus(w, statusServerError, "server error")
		return
	}

	rows := make([]termRow, 0, len(terms))
	for _, term := range terms {
		rows = append(rows, termRow{
			CID:          term.CID,
			CCID:         term.CCID,
			UID:          term.OwnerToken,
			FirstSchool:  term.FirstSchool,
			SecondSchool: term.SecondSchool,
			ClassCount:   term.ClassCount,
			WeekCount:    term.WeekCount,
			Start:        term.Start,
			End:          term.End,
		})
	}
	writeJSON(w, http.StatusOK, termListResponse{Status: statusOK, Message: "ok", Data: rows})
}

// Capability listing

type apiEntry struct {
	Name   string            `json:"name"`
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Params map[string]string `json:"params,omitempty"`
}

type apiListResponse struct {
	Status  int        `json:"status"`
	Message string     `json:"message"`
	List    []apiEntry `json:"list"`
}

var apiList = []apiEntry{
	{Name: "login", URL: "/login/verify", Method: http.MethodGet, Params: map[string]string{"uname": "username", "pwd": "password"}},
	{Name: "register", URL: "/login/create", Method: http.MethodGet, Params: map[string]string{"uname": "username", "pwd": "password"}},
	{Name: "get class table", URL: "/class/getlist", Method: http.MethodGet, Params: map[string]string{"utoken": "user token"}},
	{Name: "add class entry", URL: "/class/add", Method: http.MethodPost},
	{Name: "add period template", URL: "/class/duration/add", Method: http.MethodPost},
	{Name: "get period templates", URL: "/class/duration/get", Method: http.MethodGet, Params: map[string]string{"uid": "user token"}},
	{Name: "add term", URL: "/class/term/add", Method: http.MethodPost},
	{Name: "get terms", URL: "/class/term/get", Method: http.MethodGet, Params: map[string]string{"uid": "user token"}},
}

func (s *Server) handleAPIList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apiListResponse{Status: statusOK, Message: "ok", List: apiList})
}

// Class list cache

func classListKey(token string) string {
	return "classlist:" + token
}

func (s *Server) cachedClassList(ctx context.Context, token string) ([]byte, bool) {
	if s.redis == nil {
		return nil, false
	}
	value, err := s.redis.Get(ctx, classListKey(token)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("class list cache read error: %v", err)
		return nil, false
	}
	return value, true
}

func (s *Server) storeClassListCache(ctx context.Context, token string, payload []byte) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, classListKey(token), payload, s.cacheTTL).Err(); err != nil {
		log.Printf("class list cache write error: %v", err)
	}
}

func (s *Server) dropClassListCache(ctx context.Context, token string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, classListKey(token)).Err(); err != nil {
		log.Printf("class list cache drop error: %v", err)
	}
}

// Helpers

type statusResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRawJSON(w http.ResponseWriter, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// writeStatus sends the in-body status envelope with a transport-level 200.
func writeStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, http.StatusOK, statusResponse{Status: status, Message: message})
}
