package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gagyebu/internal/core"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = fmt.Errorf("%w: empty body", errBadRequest)

// decodeJSON reads one JSON value from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		// Field-level value errors such as a bad date surface as validation.
		for _, target := range validationErrors {
			if errors.Is(err, target) {
				return err
			}
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for bodies that may be omitted.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := decodeJSON(w, r, v); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

// parseMonth reads ?month=YYYY-MM, defaulting to the month containing now.
func parseMonth(r *http.Request, now time.Time) (core.Month, error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return core.MonthOf(now), nil
	}
	return core.ParseMonth(v)
}
