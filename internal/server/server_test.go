package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/catalog"
	"librarian/internal/config"
	"librarian/internal/notify"
	"librarian/internal/server"
	"librarian/internal/storage/storagetest"
	"librarian/internal/tasks"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testServer struct {
	t     *testing.T
	url   string
	app   *server.App
	clock *clock
}

func testConfig(t *testing.T, driver string) config.App {
	dsn := ""
	if driver == "sqlite3" {
		dsn = filepath.Join(t.TempDir(), "library.db")
	}
	return config.App{
		Env:                 "test",
		DBDriver:            driver,
		DatabaseURL:         dsn,
		QueueBackend:        "memory",
		WorkerConcurrency:   2,
		TaskTimeLimit:       time.Minute,
		ReportWaitTimeout:   2 * time.Second,
		SchedulerTimezone:   "UTC",
		MailTransport:       "log",
		MailFrom:            "library@library.local",
		MailTestRecipient:   "admin@library.local",
		MailRecipientDomain: "library.local",
		JWTSigningKey:       "test-signing-key",
		JWTIssuer:           "librarian",
		AccessTTL:           time.Hour,
		AdminUsername:       "admin",
		AdminPassword:       "admin-pass",
		AuthRatePerMinute:   1000,
	}
}

func setupTestSuite(t *testing.T, cfg config.App) *testServer {
	t.Helper()
	clk := &clock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	app, err := server.Build(context.Background(), cfg, storagetest.Discard(),
		server.WithClock(clk.Now),
		server.WithTransport(notify.TransportFunc(func(context.Context, notify.Message) error { return nil })),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.Pool().Run(ctx)
	}()

	srv := httptest.NewServer(app.Router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
		app.Close()
	})
	return &testServer{t: t, url: srv.URL, app: app, clock: clk}
}

func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.url+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	var session struct {
		AccessToken string `json:"access_token"`
	}
	code := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password}, &session)
	require.Equal(s.t, http.StatusOK, code)
	return session.AccessToken
}

func (s *testServer) register(username string) (catalog.Patron, string) {
	s.t.Helper()
	var p catalog.Patron
	code := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": username, "password": "secret123"}, &p)
	require.Equal(s.t, http.StatusCreated, code)
	return p, s.login(username, "secret123")
}

func (s *testServer) addBook(admin, title string) catalog.Book {
	s.t.Helper()
	var b catalog.Book
	code := s.do(http.MethodPost, "/api/books", admin, map[string]string{"title": title, "author": "Jane Austen"}, &b)
	require.Equal(s.t, http.StatusCreated, code)
	return b
}

func (s *testServer) waitTask(admin, id string) tasks.Task {
	s.t.Helper()
	var task tasks.Task
	require.Eventually(s.t, func() bool {
		task = tasks.Task{}
		s.do(http.MethodGet, "/api/tasks/"+id, admin, nil, &task)
		return task.Done()
	}, 5*time.Second, 20*time.Millisecond)
	return task
}

var drivers = []string{server.DriverMemory, "sqlite3"}

func TestCheckoutFlow(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ts := setupTestSuite(t, testConfig(t, driver))
			admin := ts.login("admin", "admin-pass")
			patron, token := ts.register("reader")
			book := ts.addBook(admin, "Pride and Prejudice")

			var lent catalog.Book
			code := ts.do(http.MethodPost, "/api/circulation/checkout", token, map[string]int64{"book_id": book.ID}, &lent)
			require.Equal(t, http.StatusOK, code)
			require.NotNil(t, lent.PatronID)
			assert.Equal(t, patron.ID, *lent.PatronID)
			require.NotNil(t, lent.DueDate)
			assert.Equal(t, "2024-01-15", lent.DueDate.UTC().Format("2006-01-02"))

			code = ts.do(http.MethodPost, "/api/circulation/checkout", admin, map[string]int64{"book_id": book.ID, "patron_id": patron.ID}, nil)
			assert.Equal(t, http.StatusConflict, code)

			code = ts.do(http.MethodDelete, fmt.Sprintf("/api/patrons/%d", patron.ID), admin, nil, nil)
			assert.Equal(t, http.StatusConflict, code, "patron holding a book cannot be deleted")

			var held []catalog.Book
			code = ts.do(http.MethodGet, fmt.Sprintf("/api/patrons/%d/books", patron.ID), token, nil, &held)
			require.Equal(t, http.StatusOK, code)
			assert.Len(t, held, 1)

			var returned catalog.Book
			code = ts.do(http.MethodPost, "/api/circulation/return", token, map[string]int64{"book_id": book.ID}, &returned)
			require.Equal(t, http.StatusOK, code)
			assert.Nil(t, returned.PatronID)
			assert.Nil(t, returned.DueDate)

			code = ts.do(http.MethodPost, "/api/circulation/return", token, map[string]int64{"book_id": book.ID}, nil)
			assert.Equal(t, http.StatusConflict, code)

			var history []catalog.LoanEvent
			code = ts.do(http.MethodGet, fmt.Sprintf("/api/books/%d/history", book.ID), admin, nil, &history)
			require.Equal(t, http.StatusOK, code)
			assert.Len(t, history, 2)

			code = ts.do(http.MethodDelete, fmt.Sprintf("/api/patrons/%d", patron.ID), admin, nil, nil)
			assert.Equal(t, http.StatusNoContent, code)
		})
	}
}

func TestConcurrentCheckoutPreventsDoubleBooking(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ts := setupTestSuite(t, testConfig(t, driver))
			admin := ts.login("admin", "admin-pass")
			book := ts.addBook(admin, "The Great Gatsby")

			var tokens []string
			for i := range 10 {
				_, token := ts.register(fmt.Sprintf("member%d", i))
				tokens = append(tokens, token)
			}

			var wg sync.WaitGroup
			var mu sync.Mutex
			codes := map[int]int{}
			for _, token := range tokens {
				wg.Add(1)
				go func(token string) {
					defer wg.Done()
					code := ts.do(http.MethodPost, "/api/circulation/checkout", token, map[string]int64{"book_id": book.ID}, nil)
					mu.Lock()
					codes[code]++
					mu.Unlock()
				}(token)
			}
			wg.Wait()

			assert.Equal(t, map[int]int{http.StatusOK: 1, http.StatusConflict: 9}, codes)
		})
	}
}

func TestAuthorization(t *testing.T) {
	ts := setupTestSuite(t, testConfig(t, server.DriverMemory))
	admin := ts.login("admin", "admin-pass")
	book := ts.addBook(admin, "Emma")
	first, firstToken := ts.register("first")
	_, secondToken := ts.register("second")

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/books", "", nil, nil))
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/books", firstToken, nil, nil))
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/api/books", firstToken, map[string]string{"title": "x", "author": "y"}, nil))
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/api/tasks/send-reminders", firstToken, nil, nil))

	code := ts.do(http.MethodPost, "/api/circulation/checkout", secondToken, map[string]int64{"book_id": book.ID, "patron_id": first.ID}, nil)
	assert.Equal(t, http.StatusForbidden, code, "patrons check out only for themselves")

	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/circulation/checkout", firstToken, map[string]int64{"book_id": book.ID}, nil))
	code = ts.do(http.MethodPost, "/api/circulation/return", secondToken, map[string]int64{"book_id": book.ID}, nil)
	assert.Equal(t, http.StatusForbidden, code, "only the holder or an admin returns a book")

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "x"}, nil))
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{"username": "first", "password": "secret123"}, nil))
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{"username": "first", "password": "wrong-password"}, nil))
}

func TestReminderPipeline(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			ts := setupTestSuite(t, testConfig(t, driver))
			admin := ts.login("admin", "admin-pass")
			patron, token := ts.register("late")

			for _, title := range []string{"Dune", "Emma"} {
				b := ts.addBook(admin, title)
				require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/circulation/checkout", token, map[string]int64{"book_id": b.ID}, nil))
			}
			ts.addBook(admin, "Walden")

			var overdue struct {
				Count int `json:"count"`
			}
			require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/circulation/overdue-books?as_of=2024-01-15", admin, nil, &overdue))
			assert.Equal(t, 0, overdue.Count, "a book due today is not overdue")
			require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/circulation/overdue-books?as_of=2024-01-16", admin, nil, &overdue))
			assert.Equal(t, 2, overdue.Count)

			ts.clock.Set(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))

			var queued tasks.Task
			require.Equal(t, http.StatusAccepted, ts.do(http.MethodPost, "/api/tasks/send-reminders", admin, nil, &queued))
			assert.Equal(t, tasks.StatePending, queued.State)

			done := ts.waitTask(admin, queued.ID)
			require.Equal(t, tasks.StateCompleted, done.State)
			var res tasks.ReminderResult
			require.NoError(t, json.Unmarshal(done.Result, &res))
			assert.Equal(t, 2, res.Sent)

			var logs []notify.EmailLog
			require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/email-logs?type=overdue_reminder", admin, nil, &logs))
			assert.Len(t, logs, 2)

			var notes []notify.Notification
			require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/notifications?unread=true", token, nil, &notes))
			require.Len(t, notes, 2)
			assert.Equal(t, patron.ID, notes[0].PatronID)

			var report tasks.Task
			require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/tasks/weekly-report", admin, nil, &report))
			var rep tasks.Report
			require.NoError(t, json.Unmarshal(report.Result, &rep))
			assert.Equal(t, int64(3), rep.TotalBooks)
			assert.Equal(t, int64(2), rep.Overdue)
			assert.Equal(t, "66.7%", rep.CheckoutRate)

			var heartbeat tasks.Task
			require.Equal(t, http.StatusAccepted, ts.do(http.MethodPost, "/api/tasks/test-email", admin, nil, &heartbeat))
			assert.Equal(t, tasks.StateCompleted, ts.waitTask(admin, heartbeat.ID).State)

			assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/tasks/does-not-exist", admin, nil, nil))
		})
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	cfg := testConfig(t, "sqlite3")
	cfg.SeedData = true
	ts := setupTestSuite(t, cfg)
	ctx := context.Background()

	require.NoError(t, server.Seed(ctx, ts.app))

	books, err := ts.app.Catalog.ListBooks(ctx, catalog.Page{})
	require.NoError(t, err)
	assert.Len(t, books, 10)

	ahmet, err := ts.app.Catalog.GetPatronByUsername(ctx, "ahmet")
	require.NoError(t, err)
	held, err := ts.app.Catalog.ListBooksByPatron(ctx, ahmet.ID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "Animal Farm", held[0].Title)

	ts.login("ahmet", "sifre123")

	_, err = ts.app.Circulation.Return(ctx, held[0].ID)
	require.NoError(t, err)
	require.NoError(t, server.Seed(ctx, ts.app))

	held, err = ts.app.Catalog.ListBooksByPatron(ctx, ahmet.ID)
	require.NoError(t, err)
	assert.Empty(t, held, "a returned seed loan is not made again")
	books, err = ts.app.Catalog.ListBooks(ctx, catalog.Page{})
	require.NoError(t, err)
	assert.Len(t, books, 10)
}

func TestBuildRejectsDevSigningKey(t *testing.T) {
	cfg := testConfig(t, server.DriverMemory)
	cfg.JWTSigningKey = config.DevSigningKey

	_, err := server.Build(context.Background(), cfg, storagetest.Discard())
	assert.ErrorIs(t, err, config.ErrDevSigningKey)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := setupTestSuite(t, testConfig(t, "sqlite3"))

	var health struct {
		Dependencies map[string]bool `json:"dependencies"`
	}
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", "", nil, &health))
	assert.True(t, health.Dependencies["db"])

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/metrics", "", nil, nil))
}

func TestScheduler(t *testing.T) {
	cfg := testConfig(t, server.DriverMemory)
	cfg.ReminderSchedule = "0 9 * * *"
	cfg.TestEmailSchedule = "0 * * * *"
	ts := setupTestSuite(t, cfg)

	s, err := ts.app.Scheduler()
	require.NoError(t, err)
	s.Start()
	<-s.Stop().Done()

	cfg.ReminderSchedule = "not a schedule"
	broken := setupTestSuite(t, cfg)
	_, err = broken.app.Scheduler()
	assert.Error(t, err)
}
