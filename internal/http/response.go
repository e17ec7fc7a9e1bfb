// Package http exposes the authenticated HTTP surface that drives the
// extraction pipeline: listing a user's ingested emails, serving a
// message's stored HTML, and running a script against the caller's
// mailbox. Every handler here is a thin adapter — auth, request decoding,
// response shaping — over the collaborators in internal/domain,
// internal/repository, and internal/service/pipeline.
package http

import (
	"encoding/csv"
	"encoding/json"
	"net/http"

	"github.com/harrowgate/epv/internal/domain"
)

// decodeJSON reads the request body into v, capping it at 1MiB to bound
// how much a single malicious script upload can cost the server.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// writeJSON marshals v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a domain.Error as its {error, data?} payload at the
// status StatusCode maps it to. A plain error is treated as InternalError.
func writeError(w http.ResponseWriter, err error) {
	de := domain.AsError(err)
	writeJSON(w, de.Kind.StatusCode(), de.Payload())
}

// writeRows renders a tabular (flattened) pipeline result as CSV: each row
// is one top-level element's leaf values, serialized with their JSON
// projection's Value field.
func writeRows(w http.ResponseWriter, rows [][]domain.SerializableElement) {
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	for _, row := range rows {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = cellString(cell)
		}
		_ = cw.Write(record)
	}
}

func cellString(cell domain.SerializableElement) string {
	if s, ok := cell.Value.(string); ok {
		return s
	}
	b, err := json.Marshal(cell.Value)
	if err != nil {
		return ""
	}
	return string(b)
}
