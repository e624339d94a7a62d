package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/intake/internal/core"
)

const maxJSONBody = 1 << 20

// BulkItem is the outcome of one id in a bulk request.
type BulkItem[T any] struct {
	Index  int            `json:"index"`
	ID     uuid.UUID      `json:"id"`
	Result *T             `json:"result,omitempty"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

// BulkResponse reports every id of a bulk request in request order.
type BulkResponse[T any] struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Items     []BulkItem[T] `json:"items"`
}

func toBulkResponse[T any](res core.BulkResult[T]) BulkResponse[T] {
	out := BulkResponse[T]{
		Succeeded: res.Succeeded(),
		Failed:    res.Failed(),
		Items:     make([]BulkItem[T], len(res.Outcomes)),
	}
	for i, o := range res.Outcomes {
		item := BulkItem[T]{Index: o.Index, ID: o.ID}
		if o.Err != nil {
			e := newErrorResponse(o.Err)
			item.Error = &e
		} else {
			v := o.Value
			item.Result = &v
		}
		out.Items[i] = item
	}
	return out
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &core.ValidationError{Field: "body", Message: "required field is empty: request body"}
		}
		return &core.ValidationError{Field: "body", Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	if dec.More() {
		return &core.ValidationError{Field: "body", Message: "invalid request body: trailing data"}
	}
	return nil
}

func parseID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &core.ValidationError{Field: "id", Value: raw, Message: "invalid id"}
	}
	return id, nil
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return defaultVal
	}
	return v
}
