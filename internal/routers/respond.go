package routers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	maxBodySize     = 1 << 20 // 1MB
	tokenCookieName = "access_token"
)

var (
	errEmptyBody     = errors.New("request body is empty")
	errMalformedBody = errors.New("malformed request body")
	errTrailingData  = errors.New("request body contains unexpected data")
	errNoToken       = errors.New("authorization token missing")
	errBadAuthHeader = errors.New("authorization header must be Bearer token")
)

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	if decoder.More() {
		return errTrailingData
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type responder struct {
	logger logrus.FieldLogger
}

func (rs responder) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		rs.logger.WithError(err).Warn("write json response")
	}
}

func (rs responder) writeError(w http.ResponseWriter, status int, kind, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	rs.writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// bearerToken reads the Authorization header and falls back to the session cookie.
func bearerToken(r *http.Request) (string, error) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return "", errBadAuthHeader
		}
		return strings.TrimSpace(token), nil
	}
	if c, err := r.Cookie(tokenCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errNoToken
}
