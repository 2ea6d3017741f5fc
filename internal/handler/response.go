package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/mentorscore/session-api/internal/errors"
	"github.com/mentorscore/session-api/internal/httputil"
	"github.com/mentorscore/session-api/internal/util"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// decodeJSON decodes the request body into v. Numbers are kept as
// json.Number so that large integers survive until normalization.
func decodeJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.PayloadTooLarge(maxErr.Limit)
		}
		return apperrors.ValidationError("Failed to read request body")
	}
	if err := unmarshalNumbers(data, v); err != nil {
		return apperrors.ValidationError("Invalid request body")
	}
	return nil
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// pathID returns a validated identifier URL parameter.
func pathID(r *http.Request, name string) (string, error) {
	id := chi.URLParam(r, name)
	if id == "" {
		return "", apperrors.MissingRequired(name)
	}
	if !util.IsValidIdentifier(id) {
		return "", apperrors.InvalidInput(name, "invalid identifier")
	}
	return id, nil
}
