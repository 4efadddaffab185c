package tests

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areuok/server/internal/config"
	"github.com/areuok/server/internal/db"
	"github.com/areuok/server/internal/device"
	"github.com/areuok/server/internal/event"
	httphandler "github.com/areuok/server/internal/http"
	"github.com/areuok/server/internal/http/handlers"
	"github.com/areuok/server/internal/repo"
	"github.com/areuok/server/internal/streak"
	"github.com/areuok/server/internal/supervision"
	_ "github.com/lib/pq"
)

// testServer holds the server and DB for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration tests")
	}

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	err = RunMigrations(database)
	require.NoError(t, err, "migrations must run successfully")
	require.NoError(t, TruncateAll(ctx, database), "truncate tables")

	deviceRepo := repo.NewDeviceRepo(database)
	signinRepo := repo.NewSigninRepo(database)
	supervisionRepo := repo.NewSupervisionRepo(database)

	bus := event.NewBus(cfg.EventBuffer)
	t.Cleanup(bus.Close)

	deviceService := device.NewService(deviceRepo)
	engine := streak.NewEngine(deviceRepo, signinRepo, bus)
	supervisionService := supervision.NewService(supervisionRepo)
	directory := supervision.NewDirectory(supervisionRepo)

	deviceHandler := handlers.NewDeviceHandler(deviceService)
	signinHandler := handlers.NewSigninHandler(engine)
	supervisionHandler := handlers.NewSupervisionHandler(supervisionService)
	eventsHandler := handlers.NewEventsHandler(bus, directory, 100*time.Millisecond)

	router := httphandler.NewRouter(deviceHandler, signinHandler, supervisionHandler, eventsHandler)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

// deviceJSON matches the device object in API responses
type deviceJSON struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Mode       string `json:"mode"`
}

// signinJSON matches POST /devices/{id}/signin responses
type signinJSON struct {
	DeviceID string    `json:"device_id"`
	Date     time.Time `json:"date"`
	Streak   int       `json:"streak"`
}

// statusJSON matches GET /devices/{id}/status responses
type statusJSON struct {
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name"`
	Mode       string     `json:"mode"`
	LastSignin *time.Time `json:"last_signin"`
	Streak     int        `json:"streak"`
}

// requestJSON matches supervision request objects in API responses
type requestJSON struct {
	RequestID    string `json:"request_id"`
	SupervisorID string `json:"supervisor_id"`
	TargetID     string `json:"target_id"`
	Status       string `json:"status"`
}

// relationJSON matches supervision relation objects in API responses
type relationJSON struct {
	RelationID     string  `json:"relation_id"`
	SupervisorID   string  `json:"supervisor_id"`
	TargetID       string  `json:"target_id"`
	SupervisorName *string `json:"supervisor_name"`
	TargetName     *string `json:"target_name"`
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func registerDevice(t *testing.T, s *testServer, name, mode string) deviceJSON {
	t.Helper()
	resp := postJSON(t, s.BaseURL()+"/devices/register", map[string]string{
		"device_name": name,
		"mode":        mode,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "register %s", name)
	var registered deviceJSON
	decodeJSON(t, resp, &registered)
	return registered
}

func signin(t *testing.T, s *testServer, deviceID string) signinJSON {
	t.Helper()
	resp := postJSON(t, s.BaseURL()+"/devices/"+deviceID+"/signin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var record signinJSON
	decodeJSON(t, resp, &record)
	return record
}

func pairBody(supervisorID, targetID string) map[string]string {
	return map[string]string{"supervisor_id": supervisorID, "target_id": targetID}
}

func TestDeviceRegistration(t *testing.T) {
	s := newTestServer(t)

	registered := registerDevice(t, s, "watch-alpha", "signin")
	assert.Equal(t, "watch-alpha", registered.DeviceName)
	assert.Equal(t, "signin", registered.Mode)

	// duplicate name is refused
	resp := postJSON(t, s.BaseURL()+"/devices/register", map[string]string{
		"device_name": "watch-alpha",
		"mode":        "signin",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// a fresh device has no streak
	statusResp, err := http.Get(s.BaseURL() + "/devices/" + registered.DeviceID + "/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	var status statusJSON
	decodeJSON(t, statusResp, &status)
	assert.Equal(t, 0, status.Streak)
	assert.Nil(t, status.LastSignin)
}

func TestSigninIsIdempotentWithinADay(t *testing.T) {
	s := newTestServer(t)
	registered := registerDevice(t, s, "watch-beta", "signin")

	first := signin(t, s, registered.DeviceID)
	assert.Equal(t, 1, first.Streak)

	second := signin(t, s, registered.DeviceID)
	assert.Equal(t, first.Streak, second.Streak)
	assert.True(t, first.Date.Equal(second.Date), "repeat sign-in returns the same record")

	var count int
	err := s.DB.QueryRow("SELECT COUNT(*) FROM signin_records WHERE device_id = $1", registered.DeviceID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	statusResp, err := http.Get(s.BaseURL() + "/devices/" + registered.DeviceID + "/status")
	require.NoError(t, err)
	var status statusJSON
	decodeJSON(t, statusResp, &status)
	assert.Equal(t, 1, status.Streak)
	require.NotNil(t, status.LastSignin)
}

func TestConcurrentSigninPersistsOneRecord(t *testing.T) {
	s := newTestServer(t)
	registered := registerDevice(t, s, "watch-gamma", "signin")

	const callers = 8
	records := make([]signinJSON, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(s.BaseURL()+"/devices/"+registered.DeviceID+"/signin", "application/json", nil)
			if err != nil {
				t.Errorf("signin request %d: %v", i, err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("signin request %d: status %d: %s", i, resp.StatusCode, body)
				return
			}
			if err := json.NewDecoder(resp.Body).Decode(&records[i]); err != nil {
				t.Errorf("signin request %d: decode: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.Equal(t, 1, records[i].Streak, "caller %d", i)
	}

	var count int
	err := s.DB.QueryRow("SELECT COUNT(*) FROM signin_records WHERE device_id = $1", registered.DeviceID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "exactly one record regardless of interleaving")
}

func TestSupervisionWorkflow(t *testing.T) {
	s := newTestServer(t)
	supervisor := registerDevice(t, s, "guardian", "supervisor")
	target := registerDevice(t, s, "watch-delta", "signin")

	// accept before any request
	resp := postJSON(t, s.BaseURL()+"/supervision/accept", pairBody(supervisor.DeviceID, target.DeviceID))
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// request shows up in the target's pending list
	resp = postJSON(t, s.BaseURL()+"/supervision/request", pairBody(supervisor.DeviceID, target.DeviceID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var request requestJSON
	decodeJSON(t, resp, &request)
	assert.Equal(t, "pending", request.Status)

	pendingResp, err := http.Get(s.BaseURL() + "/supervision/pending/" + target.DeviceID)
	require.NoError(t, err)
	var pending []requestJSON
	decodeJSON(t, pendingResp, &pending)
	require.Len(t, pending, 1)

	// accept creates the relation and consumes the request
	resp = postJSON(t, s.BaseURL()+"/supervision/accept", pairBody(supervisor.DeviceID, target.DeviceID))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, s.BaseURL()+"/supervision/accept", pairBody(supervisor.DeviceID, target.DeviceID))
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no pending request remains after accept")

	// a new request for a pair that already has a relation cannot be accepted
	resp = postJSON(t, s.BaseURL()+"/supervision/request", pairBody(supervisor.DeviceID, target.DeviceID))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, s.BaseURL()+"/supervision/accept", pairBody(supervisor.DeviceID, target.DeviceID))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// but it can be rejected
	resp = postJSON(t, s.BaseURL()+"/supervision/reject", pairBody(supervisor.DeviceID, target.DeviceID))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// both parties see the relation with names attached
	listResp, err := http.Get(s.BaseURL() + "/supervision/list/" + target.DeviceID)
	require.NoError(t, err)
	var relations []relationJSON
	decodeJSON(t, listResp, &relations)
	require.Len(t, relations, 1)
	require.NotNil(t, relations[0].SupervisorName)
	require.NotNil(t, relations[0].TargetName)
	assert.Equal(t, "guardian", *relations[0].SupervisorName)
	assert.Equal(t, "watch-delta", *relations[0].TargetName)

	// remove is idempotent
	removeURL := s.BaseURL() + "/supervision/" + relations[0].RelationID
	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodDelete, removeURL, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "remove attempt %d", i+1)
	}
}

func TestEventStreamDeliversOnlySupervisedSignins(t *testing.T) {
	s := newTestServer(t)
	supervisor := registerDevice(t, s, "guardian-2", "supervisor")
	target := registerDevice(t, s, "watch-epsilon", "signin")
	unrelated := registerDevice(t, s, "watch-zeta", "signin")

	resp := postJSON(t, s.BaseURL()+"/supervision/request", pairBody(supervisor.DeviceID, target.DeviceID))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, s.BaseURL()+"/supervision/accept", pairBody(supervisor.DeviceID, target.DeviceID))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	streamResp, err := http.Get(s.BaseURL() + "/devices/" + supervisor.DeviceID + "/events")
	require.NoError(t, err)
	defer streamResp.Body.Close()
	require.Equal(t, http.StatusOK, streamResp.StatusCode)
	require.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	dataLines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(streamResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				dataLines <- strings.TrimPrefix(line, "data: ")
			}
		}
		close(dataLines)
	}()

	// the unrelated device's event must be filtered, the target's forwarded
	signin(t, s, unrelated.DeviceID)
	signin(t, s, target.DeviceID)

	select {
	case payload := <-dataLines:
		var envelope struct {
			Type string `json:"type"`
			Data struct {
				DeviceID   string `json:"device_id"`
				DeviceName string `json:"device_name"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &envelope), "payload: %s", payload)
		assert.Equal(t, "signin", envelope.Type)
		assert.Equal(t, target.DeviceID, envelope.Data.DeviceID,
			"stream must deliver the supervised device, never %s", unrelated.DeviceName)
		assert.Equal(t, "watch-epsilon", envelope.Data.DeviceName)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the supervised sign-in event")
	}

	// no further events may arrive for the unrelated device
	select {
	case payload, ok := <-dataLines:
		if ok {
			t.Fatalf("unexpected extra event: %s", payload)
		}
	case <-time.After(300 * time.Millisecond):
	}
}

func TestMain(m *testing.M) {
	if os.Getenv("DATABASE_URL") == "" {
		fmt.Println("DATABASE_URL not set; integration tests will be skipped")
	}
	os.Exit(m.Run())
}
