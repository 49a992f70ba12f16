package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/soofff/boofi/internal/controller"
	"github.com/soofff/boofi/internal/journal"
	"github.com/soofff/boofi/internal/journal/journaltest"
	"github.com/soofff/boofi/internal/system"
	"github.com/soofff/boofi/internal/task"
	"github.com/soofff/boofi/internal/testutil"
)

// passwordBackend rejects every credential but the one it was built for.
type passwordBackend struct {
	*testutil.FakeBackend
	cred     system.Credential
	password string
}

func (b passwordBackend) Run(ctx context.Context, path string, args ...string) ([]byte, error) {
	if b.cred.Password != b.password {
		return nil, system.CredentialError{Reason: system.ReasonPassword}
	}
	return b.FakeBackend.Run(ctx, path, args...)
}

type testEnv struct {
	server  *APIServer
	handler http.Handler
	fake    *testutil.FakeBackend
	journal *journal.Journal
}

func newTestEnv(t *testing.T, withJournal bool) *testEnv {
	t.Helper()
	fake := testutil.NewLinux("ubuntu", "jammy")
	fake.OnRun = func(path string, args []string) ([]byte, error) {
		if path == "/bin/sh" && len(args) == 2 && args[0] == "-c" && args[1] == "echo hi" {
			return []byte("hi\n"), nil
		}
		return nil, system.RunError{Backend: "fake", Path: path, Code: 127, Stderr: "not found"}
	}

	env := &testEnv{fake: fake}
	opts := controller.Options{
		Name:     "localhost",
		TokenTTL: time.Hour,
		Factory: func(cred system.Credential) (system.Backend, error) {
			return passwordBackend{FakeBackend: fake, cred: cred, password: "secret"}, nil
		},
	}
	if withJournal {
		env.journal = journaltest.Open(t)
		opts.Recorder = env.journal.Recorder("localhost")
	}
	svc := Service{Controller: controller.New(opts), Journal: env.journal}

	srv, err := NewAPIServer(Options{Listen: "127.0.0.1:0"}, map[string]Service{"localhost": svc})
	if err != nil {
		t.Fatalf("NewAPIServer: %v", err)
	}
	env.server = srv
	env.handler = srv.Handler()
	return env
}

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

var aliceAuth = basicAuth("alice", "secret")

func (e *testEnv) do(t *testing.T, method, target, body, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (e *testEnv) waitForTask(t *testing.T, id string) task.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := e.do(t, http.MethodGet, "/localhost/tasks/"+id, "", aliceAuth)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET task %s: %d %s", id, rec.Code, rec.Body.String())
		}
		got := decode[task.Task](t, rec)
		if got.Status.Terminal() {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return task.Task{}
}

func TestMissingAuthorizationChallenges(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodGet, "/localhost/tasks", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Basic realm="rest api"` {
		t.Fatalf("WWW-Authenticate = %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}
}

func TestAuthenticationFailures(t *testing.T) {
	env := newTestEnv(t, false)
	tests := []struct {
		name   string
		target string
		auth   string
		want   int
	}{
		{"unknown service", "/nowhere/tasks", aliceAuth, http.StatusNotFound},
		{"wrong password", "/localhost/tasks", basicAuth("alice", "nope"), http.StatusUnauthorized},
		{"garbage basic", "/localhost/tasks", "Basic !!!", http.StatusUnauthorized},
		{"unknown token", "/localhost/tasks", "Bearer AAAAAAAAAAAAAAAA", http.StatusUnauthorized},
		{"unknown scheme", "/localhost/tasks", "Digest x", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodGet, tc.target, "", tc.auth); rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTokenLifecycle(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/localhost/token", "", aliceAuth)
	if rec.Code != http.StatusOK {
		t.Fatalf("issue token: %d %s", rec.Code, rec.Body.String())
	}
	token := decode[tokenResponse](t, rec).Token
	if len(token) != 16 {
		t.Fatalf("unexpected token %q", token)
	}
	bearer := "Bearer " + token

	if rec := env.do(t, http.MethodGet, "/localhost/tasks", "", bearer); rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("tasks with bearer: %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodDelete, "/localhost/token", "", aliceAuth); rec.Code != http.StatusBadRequest {
		t.Fatalf("revoke without bearer: expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/localhost/token", "", bearer); rec.Code != http.StatusAccepted {
		t.Fatalf("revoke: expected 202, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/localhost/tasks", "", bearer); rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", rec.Code)
	}
}

func TestRunAppSync(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodPost, "/localhost/apps/sh", `{"command":"echo hi"}`, aliceAuth)
	if rec.Code != http.StatusOK {
		t.Fatalf("run sh: %d %s", rec.Code, rec.Body.String())
	}
	if out := decode[string](t, rec); out != "hi\n" {
		t.Fatalf("output = %q", out)
	}
}

func TestRunAppAsync(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodPost, "/localhost/apps/sh?async=true", `{"command":"echo hi"}`, aliceAuth)
	if rec.Code != http.StatusOK {
		t.Fatalf("run sh async: %d %s", rec.Code, rec.Body.String())
	}
	created := decode[task.Task](t, rec)
	if created.ID != 1 || created.Status != task.StatusCreated {
		t.Fatalf("unexpected task %+v", created)
	}

	done := env.waitForTask(t, "1")
	if done.Status != task.StatusFinished || string(done.Output) != `"hi\n"` {
		t.Fatalf("unexpected finished task %+v", done)
	}
}

func TestRunAppsBatch(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodPost, "/localhost/apps", `[{"name":"sh","input":{"command":"echo hi"}}]`, aliceAuth)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch: %d %s", rec.Code, rec.Body.String())
	}
	if out := decode[[]string](t, rec); !reflect.DeepEqual(out, []string{"hi\n"}) {
		t.Fatalf("batch output %v", out)
	}
}

func TestRunAppErrors(t *testing.T) {
	env := newTestEnv(t, false)
	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"unknown app", http.MethodPost, "/localhost/apps/reboot", `{}`, http.StatusNotFound},
		{"invalid json", http.MethodPost, "/localhost/apps/sh", `{"command":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/localhost/apps/sh", `{"cmd":"ls"}`, http.StatusBadRequest},
		{"bad async flag", http.MethodPost, "/localhost/apps/sh?async=maybe", `{"command":"echo hi"}`, http.StatusBadRequest},
		{"batch not a list", http.MethodPost, "/localhost/apps", `{"name":"sh"}`, http.StatusBadRequest},
		{"batch missing body", http.MethodPost, "/localhost/apps", ``, http.StatusBadRequest},
		{"batch unknown app", http.MethodPost, "/localhost/apps", `[{"name":"sh","input":{"command":"echo hi"}},{"name":"nope"}]`, http.StatusNotFound},
		{"command fails", http.MethodPost, "/localhost/apps/sh", `{"command":"false"}`, http.StatusInternalServerError},
		{"method", http.MethodPut, "/localhost/apps", `[]`, http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, tc.method, tc.target, tc.body, aliceAuth)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAppsHelp(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(t, http.MethodGet, "/localhost/apps", "", aliceAuth)
	if rec.Code != http.StatusOK {
		t.Fatalf("apps help: %d %s", rec.Code, rec.Body.String())
	}
	help := decode[[]map[string]any](t, rec)
	if len(help) != 5 || help[0]["name"] != "ls" || help[0]["compatible"] != true {
		t.Fatalf("unexpected help %v", help)
	}
}

func TestTaskLookup(t *testing.T) {
	env := newTestEnv(t, false)
	if rec := env.do(t, http.MethodGet, "/localhost/tasks/abc", "", aliceAuth); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/localhost/tasks/7", "", aliceAuth); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFiles(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodGet, "/localhost/files", "", aliceAuth)
	if help := decode[[]map[string]any](t, rec); rec.Code != http.StatusOK || len(help) != 20 {
		t.Fatalf("files help: %d, %d handlers", rec.Code, len(help))
	}

	if rec := env.do(t, http.MethodPost, "/localhost/files/etc/hostname", `{"hostname":"web01"}`, aliceAuth); rec.Code != http.StatusAccepted {
		t.Fatalf("write hostname: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/localhost/files/etc/hostname", "", aliceAuth)
	if rec.Code != http.StatusOK || decode[string](t, rec) != "web01\n" {
		t.Fatalf("read hostname: %d %s", rec.Code, rec.Body.String())
	}

	env.fake.SetFile("/srv/site.conf", "listen 80\n")
	rec = env.do(t, http.MethodGet, "/localhost/files/srv/site.conf?name=text", "", aliceAuth)
	if rec.Code != http.StatusOK || decode[string](t, rec) != "listen 80\n" {
		t.Fatalf("read by name: %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodDelete, "/localhost/files/srv/site.conf", "", aliceAuth); rec.Code != http.StatusAccepted {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"read-only write", http.MethodPost, "/localhost/files/proc/version", `{}`, http.StatusMethodNotAllowed},
		{"unknown handler", http.MethodGet, "/localhost/files/etc/hostname?name=nope", "", http.StatusNotFound},
		{"handler not matching path", http.MethodGet, "/localhost/files/etc/hosts?name=version", "", http.StatusNotFound},
		{"bad input", http.MethodPost, "/localhost/files/etc/hostname", `{"hostname":"two words"}`, http.StatusBadRequest},
		{"missing file", http.MethodGet, "/localhost/files/etc/missing", "", http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, tc.method, tc.target, tc.body, aliceAuth)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestFilesListDirectory(t *testing.T) {
	env := newTestEnv(t, false)
	env.fake.AddDir("/etc")
	env.fake.OnRun = func(path string, args []string) ([]byte, error) {
		if path == "/bin/ls" {
			return []byte("total 4\n-rw-r--r-- 1 root root 6 Jan  1 00:00 hostname\ndrwxr-xr-x 2 root root 4096 Jan  1 00:00 cron.d/\n"), nil
		}
		return nil, system.RunError{Backend: "fake", Path: path, Code: 127}
	}

	rec := env.do(t, http.MethodGet, "/localhost/files/etc/", "", aliceAuth)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	entries := decode[[]controller.DirEntry](t, rec)
	if len(entries) != 2 || entries[0].Info.Name != "hostname" || !entries[1].Info.Directory {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if !reflect.DeepEqual(entries[0].ManagedBy, []string{"hostname", "text"}) {
		t.Fatalf("managed_by = %v", entries[0].ManagedBy)
	}
}

func TestJournal(t *testing.T) {
	env := newTestEnv(t, true)
	rec := env.do(t, http.MethodPost, "/localhost/apps/sh?async=1", `{"command":"echo hi"}`, aliceAuth)
	if rec.Code != http.StatusOK {
		t.Fatalf("run: %d %s", rec.Code, rec.Body.String())
	}
	env.waitForTask(t, "1")

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = env.do(t, http.MethodGet, "/localhost/journal?limit=10", "", aliceAuth)
		if rec.Code != http.StatusOK {
			t.Fatalf("journal: %d %s", rec.Code, rec.Body.String())
		}
		entries := decode[[]journal.Entry](t, rec)
		if len(entries) == 1 {
			if entries[0].AppName != "sh" || entries[0].Status != task.StatusFinished || entries[0].Service != "localhost" {
				t.Fatalf("unexpected entry %+v", entries[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal never recorded the task, got %d entries", len(entries))
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rec := env.do(t, http.MethodGet, "/localhost/journal?limit=-1", "", aliceAuth); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit: expected 400, got %d", rec.Code)
	}
}

func TestJournalDisabled(t *testing.T) {
	env := newTestEnv(t, false)
	if rec := env.do(t, http.MethodGet, "/localhost/journal", "", aliceAuth); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(t, http.MethodPost, "/localhost/apps/sh", `{"command":"echo hi"}`, aliceAuth)
	env.do(t, http.MethodPost, "/localhost/apps/sh?async=true", `{"command":"echo hi"}`, aliceAuth)
	env.waitForTask(t, "1")
	env.do(t, http.MethodGet, "/nowhere/tasks", "", aliceAuth)

	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`boofi_http_requests_total{service="localhost",code="200"}`,
		`boofi_http_requests_total{service="",code="404"} 1`,
		`boofi_tasks{service="localhost",status="finished"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in:\n%s", want, body)
		}
	}
}
