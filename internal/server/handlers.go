package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/soofff/boofi/internal/controller"
	"github.com/soofff/boofi/internal/system"
	"github.com/soofff/boofi/internal/validate"
)

// parseQueryIntParam extracts a non-negative integer query parameter.
// Returns (value, provided, error).
func parseQueryIntParam(query url.Values, name string) (int, bool, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, err
	}
	if value < 0 {
		return 0, true, fmt.Errorf("value must be non-negative")
	}
	return value, true, nil
}

func parseAsync(query url.Values) (bool, error) {
	raw := strings.TrimSpace(query.Get("async"))
	if raw == "" {
		return false, nil
	}
	async, err := strconv.ParseBool(raw)
	if err != nil {
		return false, requestError{message: fmt.Sprintf("invalid async value %q", raw)}
	}
	return async, nil
}

// readJSONBody returns the request body, which must be valid JSON when
// present. An empty body yields nil.
func readJSONBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, requestError{message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
		}
		return nil, requestError{message: "failed to read request body"}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, requestError{message: "request body is not valid JSON"}
	}
	return body, nil
}

func (s *APIServer) handleTasks(w http.ResponseWriter, r *http.Request, info authInfo) {
	writeJSON(w, http.StatusOK, info.service.Controller.Tasks())
}

func (s *APIServer) handleTask(w http.ResponseWriter, r *http.Request, info authInfo) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeFailure(w, requestError{message: fmt.Sprintf("invalid task id %q", r.PathValue("id"))})
		return
	}
	t, err := info.service.Controller.Task(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *APIServer) handleAppsHelp(w http.ResponseWriter, r *http.Request, info authInfo) {
	help, err := info.service.Controller.AppsHelp(r.Context(), info.cred)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, help)
}

// handleAppsRun runs a batch given as [{"name": ..., "input": ...}].
func (s *APIServer) handleAppsRun(w http.ResponseWriter, r *http.Request, info authInfo) {
	async, err := parseAsync(r.URL.Query())
	if err != nil {
		writeFailure(w, err)
		return
	}
	body, err := readJSONBody(w, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if body == nil {
		writeFailure(w, requestError{message: "request body is required"})
		return
	}
	var batch []controller.Invocation
	if err := json.Unmarshal(body, &batch); err != nil {
		writeFailure(w, requestError{message: fmt.Sprintf("invalid app batch: %v", err)})
		return
	}

	results, err := info.service.Controller.RunApps(r.Context(), info.cred, batch, async)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *APIServer) handleAppRun(w http.ResponseWriter, r *http.Request, info authInfo) {
	async, err := parseAsync(r.URL.Query())
	if err != nil {
		writeFailure(w, err)
		return
	}
	body, err := readJSONBody(w, r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	result, err := info.service.Controller.RunApp(r.Context(), info.cred, r.PathValue("name"), body, async)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *APIServer) handleFilesHelp(w http.ResponseWriter, r *http.Request, info authInfo) {
	writeJSON(w, http.StatusOK, info.service.Controller.FilesHelp())
}

// filePath rebuilds the absolute endpoint path from the route remainder.
// A trailing slash is dropped so "/files/etc/" lists /etc.
func filePath(r *http.Request) (string, error) {
	p := "/" + r.PathValue("path")
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	if err := validate.AbsPath(p); err != nil {
		return "", requestError{message: err.Error()}
	}
	return p, nil
}

// handleFileGet lists directories and reads everything else through the
// handler chosen by ?name= or by path matching.
func (s *APIServer) handleFileGet(w http.ResponseWriter, r *http.Request, info authInfo) {
	p, err := filePath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	ctrl := info.service.Controller

	kind, err := ctrl.Stat(r.Context(), info.cred, p)
	switch {
	case err == nil && kind == system.KindDirectory:
		entries, err := ctrl.ListDirectory(r.Context(), info.cred, p)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	case err != nil && system.IsCredentialError(err):
		writeFailure(w, err)
		return
	}

	content, err := ctrl.ReadFile(r.Context(), info.cred, p, r.URL.Query().Get("name"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *APIServer) handleFileWrite(w http.ResponseWriter, r *http.Request, info authInfo) {
	p, err := filePath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	body, err := readJSONBody(w, r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := info.service.Controller.WriteFile(r.Context(), info.cred, p, r.URL.Query().Get("name"), body); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *APIServer) handleFileDelete(w http.ResponseWriter, r *http.Request, info authInfo) {
	p, err := filePath(r)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := info.service.Controller.DeleteFile(r.Context(), info.cred, p, r.URL.Query().Get("name")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleJournal returns the latest recorded task runs of the service,
// newest first.
func (s *APIServer) handleJournal(w http.ResponseWriter, r *http.Request, info authInfo) {
	if info.service.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit, _, err := parseQueryIntParam(r.URL.Query(), "limit")
	if err != nil {
		writeFailure(w, requestError{message: fmt.Sprintf("invalid limit: %v", err)})
		return
	}
	entries, err := info.service.Journal.List(r.Context(), info.service.Controller.Name(), limit)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
