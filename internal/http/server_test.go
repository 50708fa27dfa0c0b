package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ZhonFortune/classtab-ics-backend/internal/config"
	"github.com/ZhonFortune/classtab-ics-backend/internal/db"
	"github.com/ZhonFortune/classtab-ics-backend/internal/digest"
	"github.com/ZhonFortune/classtab-ics-backend/internal/identity"
	"github.com/ZhonFortune/classtab-ics-backend/internal/repository"
)

type bodyEnvelope struct {
	Status   int    `json:"status"`
	Message  string `json:"message"`
	UserInfo struct {
		Name  string `json:"name"`
		Level int    `json:"level"`
		Token string `json:"token"`
	} `json:"userinfo"`
}

func TestRegisterAndLogin(t *testing.T) {
	app := newTestServer(t)
	if app == nil {
		return
	}

	name := uniqueName("user")
	password := "dev-password"

	// First registration succeeds, second reports "already exists".
	body := getBody(t, app.URL+"/login/create?uname="+name+"&pwd="+password)
	if body.Status != 200 {
		t.Fatalf("expected 200 on first registration, got %d (%s)", body.Status, body.Message)
	}
	body = getBody(t, app.URL+"/login/create?uname="+name+"&pwd="+password)
	if body.Status != 201 {
		t.Fatalf("expected 201 on duplicate registration, got %d", body.Status)
	}

	body = getBody(t, app.URL+"/login/verify?uname="+name+"&pwd="+password)
	if body.Status != 200 {
		t.Fatalf("expected 200 on login, got %d (%s)", body.Status, body.Message)
	}
	wantToken := identity.Token(name, digest.Sum(password), 1)
	if body.UserInfo.Token != wantToken {
		t.Fatalf("expected derived token %s, got %s", wantToken, body.UserInfo.Token)
	}
	if body.UserInfo.Name != name || body.UserInfo.Level != 1 {
		t.Fatalf("unexpected userinfo: %+v", body.UserInfo)
	}

	// Wrong password: 204 and no token in the response.
	body = getBody(t, app.URL+"/login/verify?uname="+name+"&pwd=wrong")
	if body.Status != 204 {
		t.Fatalf("expected 204 on wrong password, got %d", body.Status)
	}
	if body.UserInfo.Token != "" {
		t.Fatalf("expected no token on wrong password, got %s", body.UserInfo.Token)
	}

	body = getBody(t, app.URL+"/login/verify?uname="+uniqueName("nobody")+"&pwd=x")
	if body.Status != 404 {
		t.Fatalf("expected 404 for unknown user, got %d", body.Status)
	}

	body = getBody(t, app.URL+"/login/verify?uname="+name)
	if body.Status != 401 {
		t.Fatalf("expected 401 for empty credentials, got %d", body.Status)
	}
}

func TestDurationBatchAdd(t *testing.T) {
	app := newTestServer(t)
	if app == nil {
		return
	}

	token := registerUser(t, app.URL)
	cid := uniqueName("group")

	// Empty name falls back to the group identifier.
	body := postBody(t, app.URL+"/class/duration/add", map[string]interface{}{
		"uid": token,
		"cid": cid,
		"data": []map[string]int{
			{"index": 1, "startTime": 480, "endTime": 525},
			{"index": 2, "startTime": 535, "endTime": 580},
			{"index": 3, "startTime": 600, "endTime": 645},
		},
	})
	if body.Status != 200 {
		t.Fatalf("expected 200 on batch add, got %d (%s)", body.Status, body.Message)
	}

	// Batch with a duplicate in the middle: the entry before it commits, the
	// duplicate stops the batch, the entry after is never attempted.
	body = postBody(t, app.URL+"/class/duration/add", map[string]interface{}{
		"uid": token,
		"cid": cid,
		"data": []map[string]int{
			{"index": 10, "startTime": 700, "endTime": 745},
			{"index": 2, "startTime": 535, "endTime": 580},
			{"index": 11, "startTime": 800, "endTime": 845},
		},
	})
	if body.Status != 405 {
		t.Fatalf("expected 405 on duplicate in batch, got %d", body.Status)
	}

	var listResp durationListResponse
	getJSON(t, app.URL+"/class/duration/get?uid="+token, &listResp)
	if listResp.Status != 200 {
		t.Fatalf("expected 200 listing durations, got %d", listResp.Status)
	}
	indexes := map[int]bool{}
	for _, row := range listResp.Data {
		if row.DuraName != cid {
			t.Fatalf("expected label to default to cid %s, got %s", cid, row.DuraName)
		}
		indexes[row.Num] = true
	}
	if !indexes[10] {
		t.Fatalf("expected entry before the duplicate to be committed")
	}
	if indexes[11] {
		t.Fatalf("expected entry after the duplicate to be skipped")
	}

	body = getBody(t, app.URL+"/class/duration/get")
	if body.Status != 401 {
		t.Fatalf("expected 401 for empty uid, got %d", body.Status)
	}
	body = getBody(t, app.URL+"/class/duration/get?uid=not-a-token")
	if body.Status != 404 {
		t.Fatalf("expected 404 for unknown user, got %d", body.Status)
	}

	fresh := registerUser(t, app.URL)
	body = getBody(t, app.URL+"/class/duration/get?uid="+fresh)
	if body.Status != 204 {
		t.Fatalf("expected 204 for user with no durations, got %d", body.Status)
	}
}

func TestTermAndClassFlow(t *testing.T) {
	app := newTestServer(t)
	if app == nil {
		return
	}

	token := registerUser(t, app.URL)

	// No classes yet: success with an empty list, not an error.
	var classes classListResponse
	getJSON(t, app.URL+"/class/getlist?utoken="+token, &classes)
	if classes.Status != 200 {
		t.Fatalf("expected 200 for empty class list, got %d", classes.Status)
	}
	if len(classes.Data.ClassList) != 0 {
		t.Fatalf("expected empty class list, got %d rows", len(classes.Data.ClassList))
	}

	var termResp termAddResponse
	postJSON(t, app.URL+"/class/term/add", map[string]interface{}{
		"uid":         token,
		"ccid":        uniqueName("durations"),
		"firstschool": "First Middle School",
		"weeknum":     16,
	}, &termResp)
	if termResp.Status != 200 || termResp.Data.CID == "" {
		t.Fatalf("expected term creation with fresh cid, got %+v", termResp)
	}
	termCID := termResp.Data.CID

	var terms termListResponse
	getJSON(t, app.URL+"/class/term/get?uid="+token, &terms)
	if terms.Status != 200 || len(terms.Data) != 1 {
		t.Fatalf("expected one term, got %+v", terms)
	}
	if terms.Data[0].CID != termCID {
		t.Fatalf("expected listed term cid %s, got %s", termCID, terms.Data[0].CID)
	}

	body := postBody(t, app.URL+"/class/add", map[string]interface{}{
		"uid": token,
		"cid": termCID,
	})
	if body.Status != 401 {
		t.Fatalf("expected 401 for missing class params, got %d", body.Status)
	}

	classEntry := map[string]interface{}{
		"uid":          token,
		"cid":          termCID,
		"for_duration": uniqueName("period"),
		"week":         "1-16",
		"weekday":      "2",
		"classTime":    "3",
		"teacher":      "Mr. Hu",
	}
	body = postBody(t, app.URL+"/class/add", classEntry)
	if body.Status != 200 {
		t.Fatalf("expected 200 adding class, got %d (%s)", body.Status, body.Message)
	}
	body = postBody(t, app.URL+"/class/add", classEntry)
	if body.Status != 405 {
		t.Fatalf("expected 405 adding duplicate class, got %d", body.Status)
	}

	unknownTerm := classEntry
	unknownTerm["cid"] = uniqueName("missing-term")
	body = postBody(t, app.URL+"/class/add", unknownTerm)
	if body.Status != 404 {
		t.Fatalf("expected 404 for unknown term, got %d", body.Status)
	}

	getJSON(t, app.URL+"/class/getlist?utoken="+token, &classes)
	if classes.Status != 200 || len(classes.Data.ClassList) != 1 {
		t.Fatalf("expected one class row, got %+v", classes)
	}
	row := classes.Data.ClassList[0]
	if row.TableName != termCID {
		t.Fatalf("expected table name to default to cid, got %s", row.TableName)
	}
	if row.ClassName != defaultClassName {
		t.Fatalf("expected class name sentinel, got %s", row.ClassName)
	}
	if row.UID != token {
		t.Fatalf("expected owner token on the row, got %s", row.UID)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	pool := openTestDB(t)
	if pool == nil {
		return nil
	}
	t.Cleanup(pool.Close)

	cfg := config.Config{
		HTTPAddr:      ":0",
		ClassCacheTTL: time.Second,
	}
	store := repository.NewStore(pool)
	server := NewServer(cfg, store, nil)
	app := httptest.NewServer(server.Router())
	t.Cleanup(app.Close)
	return app
}

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("CLASSTAB_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("CLASSTAB_TEST_DB or DATABASE_URL not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	if err := db.InitSchema(context.Background(), pool); err != nil {
		t.Fatalf("schema init failed: %v", err)
	}
	return pool
}

func registerUser(t *testing.T, baseURL string) string {
	t.Helper()
	name := uniqueName("user")
	password := "dev-password"
	body := getBody(t, baseURL+"/login/create?uname="+name+"&pwd="+password)
	if body.Status != 200 {
		t.Fatalf("registration failed with %d (%s)", body.Status, body.Message)
	}
	return identity.Token(name, digest.Sum(password), 1)
}

var nameCounter int

func uniqueName(prefix string) string {
	nameCounter++
	return fmt.Sprintf("%s.%d.%d", prefix, time.Now().UnixNano(), nameCounter)
}

func getBody(t *testing.T, url string) bodyEnvelope {
	t.Helper()
	var body bodyEnvelope
	getJSON(t, url, &body)
	return body
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
}

func postBody(t *testing.T, url string, payload interface{}) bodyEnvelope {
	t.Helper()
	var body bodyEnvelope
	postJSON(t, url, payload, &body)
	return body
}

func postJSON(t *testing.T, url string, payload interface{}, out interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		t.Fatalf("encode error: %v", err)
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
}
