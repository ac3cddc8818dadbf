package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/elskow/crm-auth/internal/apperror"
)

const maxBodyBytes = 1 << 20

var errInvalidBody = apperror.New(apperror.Validation, "invalid request body")

type ErrorPayload struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as an error body. Internal errors are logged with
// their cause and answered with a generic message.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	e := apperror.As(err)
	if e.Kind == apperror.Internal {
		log.Error("request failed", zap.Error(err))
	}

	WriteJSON(w, e.Kind.HTTPStatus(), ErrorBody{
		Error: ErrorPayload{
			Kind:    e.Kind.String(),
			Message: e.Message,
			Details: e.Details,
		},
	})
}

// DecodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody.WithCause(err)
	}
	return nil
}
