package server

import (
	"encoding/base64"
	"log"
	"net/http"
	"strings"

	"github.com/soofff/boofi/internal/sanitize"
	"github.com/soofff/boofi/internal/system"
)

const basicChallenge = `Basic realm="rest api"`

// authInfo is what the middleware learned about the caller. token is only
// set for bearer authentication.
type authInfo struct {
	service Service
	cred    system.Credential
	token   string
}

type authedHandler func(w http.ResponseWriter, r *http.Request, info authInfo)

// authenticated resolves the service and the caller credential before
// calling next. Basic credentials are checked against the endpoint when
// verifyBasic is set; bearer tokens were checked when they were issued.
func (s *APIServer) authenticated(next authedHandler, verifyBasic bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc, err := s.service(r.PathValue("service"))
		if err != nil {
			writeFailure(w, err)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			writeUnauthorized(w, "authentication required")
			return
		}
		scheme, value, _ := strings.Cut(header, " ")
		value = strings.TrimSpace(value)

		info := authInfo{service: svc}
		switch strings.ToLower(scheme) {
		case "basic":
			cred, ok := parseBasic(value)
			if !ok {
				writeUnauthorized(w, "malformed basic credentials")
				return
			}
			if verifyBasic {
				if err := svc.Controller.Verify(r.Context(), cred); err != nil {
					writeFailure(w, err)
					return
				}
			}
			info.cred = cred
		case "bearer":
			cred, err := svc.Controller.ResolveToken(value)
			if err != nil {
				log.Printf("[APIServer] rejected token %s: %v", sanitize.MaskSecret(value), err)
				writeFailure(w, err)
				return
			}
			info.cred = cred
			info.token = value
		default:
			writeUnauthorized(w, "unsupported authorization scheme")
			return
		}

		next(w, r, info)
	})
}

// parseBasic decodes "user:password". A missing colon means an empty
// password.
func parseBasic(value string) (system.Credential, bool) {
	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return system.Credential{}, false
	}
	username, password, _ := strings.Cut(string(decoded), ":")
	if username == "" {
		return system.Credential{}, false
	}
	return system.NewCredential(username, password), true
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", basicChallenge)
	writeError(w, http.StatusUnauthorized, message)
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *APIServer) handleTokenIssue(w http.ResponseWriter, r *http.Request, info authInfo) {
	token, err := info.service.Controller.IssueToken(r.Context(), info.cred)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// handleTokenRevoke answers 202 when the presented token was removed and
// 200 when it was already gone.
func (s *APIServer) handleTokenRevoke(w http.ResponseWriter, r *http.Request, info authInfo) {
	if info.token == "" {
		writeFailure(w, requestError{message: "bearer token required"})
		return
	}
	if info.service.Controller.RevokeToken(info.token) {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusOK)
}
