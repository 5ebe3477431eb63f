package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/scraperhub/internal/history"
	"github.com/JakeFAU/scraperhub/internal/output"
	"github.com/JakeFAU/scraperhub/internal/scraper"
	"github.com/JakeFAU/scraperhub/internal/session"
	"github.com/JakeFAU/scraperhub/internal/users"
)

type scraperCatalog map[string]scraper.Constructor

func (c scraperCatalog) Lookup(name string) (scraper.Constructor, bool) {
	ctor, ok := c[name]
	return ctor, ok
}

func (c scraperCatalog) ScraperNames() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type steppedScraper struct {
	*scraper.Base
	steps <-chan float64
}

func (s *steppedScraper) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v := <-s.steps:
			if v >= 1 {
				s.SetOutput("demo_result.csv")
				s.Complete(ctx)
				return nil
			}
			s.Report(ctx, v)
		}
	}
}

type tokenSeq struct{ n int }

func (s *tokenSeq) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("tok-%d", s.n), nil
}

type harness struct {
	srv     *httptest.Server
	client  *http.Client
	jar     http.CookieJar
	outDir  string
	history *history.MemoryStore
	steps   chan float64
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	dir := t.TempDir()

	store, err := users.NewFileStore(filepath.Join(dir, "users.yaml"))
	require.NoError(t, err)
	require.NoError(t, store.Add(users.User{Username: "alice", Email: "alice@example.com", Password: "pw"}))

	steps := make(chan float64)
	catalog := scraperCatalog{
		"demo": func(env scraper.Env) (scraper.Scraper, error) {
			return &steppedScraper{Base: scraper.NewBase("demo", env.Logger), steps: steps}, nil
		},
	}
	coord, err := session.NewCoordinator(session.Config{Catalog: catalog})
	require.NoError(t, err)
	manager := users.NewManager(store, coord, &tokenSeq{}, nil)
	t.Cleanup(manager.CloseAll)

	outDir := filepath.Join(dir, "output")
	outputs, err := output.New(output.Config{Dir: outDir}, nil, nil)
	require.NoError(t, err)

	runs := history.NewMemoryStore()
	server, err := NewServer(cfg, Deps{
		Users:    manager,
		Scrapers: catalog,
		Outputs:  outputs,
		History:  runs,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{
		srv:     srv,
		client:  &http.Client{Jar: jar, Timeout: 5 * time.Second},
		jar:     jar,
		outDir:  outDir,
		history: runs,
		steps:   steps,
	}
}

func (h *harness) do(t *testing.T, method, path string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	return resp, []byte(readAll(t, resp))
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	resp, body := h.do(t, http.MethodPost, "/user/login", map[string]string{
		"email":    "alice@example.com",
		"password": "pw",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func requireCode(t *testing.T, body []byte, want Code) {
	t.Helper()
	var eb ErrorBody
	require.NoError(t, json.Unmarshal(body, &eb), string(body))
	require.Equal(t, want, eb.Error.Code)
	require.NotEmpty(t, eb.Error.Msg)
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	resp, body := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = h.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	failing := newHarness(t, Config{Ready: func(context.Context) error { return errors.New("db down") }})
	resp, _ = failing.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "http_requests_total")
}

func TestLoginFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	resp, body := h.do(t, http.MethodGet, "/user", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	requireCode(t, body, CodeUnknownUser)

	resp, body = h.do(t, http.MethodPost, "/user/login", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	requireCode(t, body, CodeMissingFields)

	_, body = h.do(t, http.MethodPost, "/user/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	requireCode(t, body, CodeLoginFailed)

	h.login(t)

	resp, body = h.do(t, http.MethodGet, "/user", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"user":{"username":"alice","email":"alice@example.com","active_scraper":false}}`, string(body))

	resp, body = h.do(t, http.MethodPost, "/user/login", map[string]string{
		"email": "alice@example.com", "password": "pw",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	requireCode(t, body, CodeAlreadyLoggedIn)

	resp, body = h.do(t, http.MethodGet, "/user/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(body))

	_, body = h.do(t, http.MethodGet, "/user", nil)
	requireCode(t, body, CodeUnknownUser)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})

	_, body := h.do(t, http.MethodPost, "/user/register", map[string]string{"username": "bob"})
	requireCode(t, body, CodeMissingFields)

	resp, body := h.do(t, http.MethodPost, "/user/register", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.JSONEq(t, `{"user":{"username":"bob","email":"bob@example.com"}}`, string(body))

	resp, body = h.do(t, http.MethodPost, "/user/register", map[string]string{
		"username": "alice2", "email": "ALICE@example.com", "password": "x",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	requireCode(t, body, CodeUserExists)

	resp, _ = h.do(t, http.MethodPost, "/user/login", map[string]string{
		"email": "bob@example.com", "password": "s3cret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScraperRoutesRequireLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/scrapers/list"},
		{http.MethodPost, "/scrapers/start"},
		{http.MethodGet, "/scrapers/history"},
		{http.MethodGet, "/output/report.csv"},
		{http.MethodGet, "/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, body := h.do(t, tt.method, tt.path, nil)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			requireCode(t, body, CodeNotLoggedIn)
		})
	}
}

func TestListAndStartScrapers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.login(t)

	resp, body := h.do(t, http.MethodGet, "/scrapers/list", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"scraper_list":["demo"]}`, string(body))

	resp, body = h.do(t, http.MethodPost, "/scrapers/start", map[string]string{"scraper_name": "nope"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	requireCode(t, body, CodeScraperNotFound)

	resp, body = h.do(t, http.MethodPost, "/scrapers/start", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	requireCode(t, body, CodeScraperNotFound)

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/scrapers/start", strings.NewReader(`{"name":"demo"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	jsonResp, err := h.client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, jsonResp.StatusCode)
	require.JSONEq(t, `{"scraper":"demo"}`, readAll(t, jsonResp))
	require.NoError(t, jsonResp.Body.Close())

	resp, body = h.do(t, http.MethodPost, "/scrapers/start", map[string]string{"scraper_name": "demo"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	requireCode(t, body, CodeScraperRunning)

	_, body = h.do(t, http.MethodGet, "/user", nil)
	require.Contains(t, string(body), `"active_scraper":true`)
}

func TestScraperHistory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	ctx := context.Background()
	for i, owner := range []string{"alice@example.com", "alice@example.com", "bob@example.com"} {
		require.NoError(t, h.history.StartRun(ctx, history.Run{
			ID:        uuid.New(),
			Owner:     owner,
			Scraper:   "demo",
			StartedAt: time.Unix(int64(100+i), 0).UTC(),
			Status:    history.StatusRunning,
		}))
	}
	h.login(t)

	resp, body := h.do(t, http.MethodGet, "/scrapers/history?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Runs []history.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Runs, 1)
	require.Equal(t, "alice@example.com", out.Runs[0].Owner)

	_, body = h.do(t, http.MethodGet, "/scrapers/history", nil)
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Runs, 2)
}

func TestHistoryLimit(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"":     defaultHistoryLimit,
		"5":    5,
		"-1":   defaultHistoryLimit,
		"abc":  defaultHistoryLimit,
		"1000": maxHistoryLimit,
	}
	for raw, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/scrapers/history?limit="+url.QueryEscape(raw), nil)
		require.Equal(t, want, historyLimit(r), raw)
	}
}

func TestDownloadOutput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.login(t)
	content := "name,price\nmilk,1.09\nbread,2.49\n"
	require.NoError(t, os.WriteFile(filepath.Join(h.outDir, "report.csv"), []byte(content), 0o600))

	resp, body := h.do(t, http.MethodGet, "/output/report.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, content, string(body))
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/"), resp.Header.Get("Content-Type"))

	resp, body = h.do(t, http.MethodGet, "/output/missing.csv", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	requireCode(t, body, CodeFileNotFound)

	resp, body = h.do(t, http.MethodGet, "/output/..%5Creport.csv", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	requireCode(t, body, CodeInvalidFilename)

	resp, body = h.do(t, http.MethodGet, "/output/a%2Freport.csv", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	requireCode(t, body, CodeInvalidFilename)
}

func TestWebsocketStreamsProgress(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.login(t)

	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	dialer := websocket.Dialer{Jar: h.jar, HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	defer func() { _ = conn.Close() }()

	startResp, _ := h.do(t, http.MethodPost, "/scrapers/start", map[string]string{"scraper_name": "demo"})
	require.Equal(t, http.StatusAccepted, startResp.StatusCode)

	h.steps <- 0.5
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	// A socket attached after the start replays progress 0 first.
	var evt session.Event
	for {
		require.NoError(t, conn.ReadJSON(&evt))
		require.Equal(t, session.TypeActive, evt.Type)
		require.Equal(t, "demo", evt.Data.Name)
		require.NotNil(t, evt.Data.Progress)
		if *evt.Data.Progress == 0.5 {
			break
		}
	}

	h.steps <- 1
	for evt.Type != session.TypeCompleted {
		require.NoError(t, conn.ReadJSON(&evt))
	}
	require.Equal(t, "demo_result.csv", evt.Data.Download)

	require.Eventually(t, func() bool {
		_, body := h.do(t, http.MethodGet, "/user", nil)
		return strings.Contains(string(body), `"active_scraper":false`)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLogoutClosesWebsocket(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.login(t)

	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	dialer := websocket.Dialer{Jar: h.jar, HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _ = h.do(t, http.MethodPost, "/user/logout", nil)
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := &Server{logger: zap.NewNop()}
	handler := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	requireCode(t, rec.Body.Bytes(), CodeInternal)
}

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	s := &Server{logger: zap.New(core)}

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	require.Equal(t, http.StatusOK, rec.Code)
	entries := logs.FilterMessage("write JSON failed").All()
	require.Len(t, entries, 1)
	require.EqualValues(t, http.StatusOK, entries[0].ContextMap()["status"])
}

func TestCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want Code
	}{
		{fmt.Errorf("wrap: %w", users.ErrLoginFailed), CodeLoginFailed},
		{users.ErrMissingFields, CodeMissingFields},
		{users.ErrAlreadyLoggedIn, CodeAlreadyLoggedIn},
		{users.ErrUserExists, CodeUserExists},
		{session.ErrScraperNotFound, CodeScraperNotFound},
		{session.ErrAlreadyRunning, CodeScraperRunning},
		{session.ErrSessionClosed, CodeNotLoggedIn},
		{output.ErrNotFound, CodeFileNotFound},
		{output.ErrInvalidName, CodeInvalidFilename},
		{errors.New("disk on fire"), CodeInternal},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, codeFor(tt.err), tt.err.Error())
	}
}
