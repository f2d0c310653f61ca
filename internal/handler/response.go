package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/trmquang93/planning-poker-sub001/internal/errors"
	"github.com/trmquang93/planning-poker-sub001/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// decodeJSON reads a single JSON object from the request body into dst.
// An empty body leaves dst at its zero value.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.InvalidInput("body", "request body too large")
		}
		return apperrors.InvalidInput("body", "malformed JSON")
	}
	return nil
}
