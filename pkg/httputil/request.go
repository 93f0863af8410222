package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// DefaultMaxBodyBytes limits JSON request bodies. Large uploads go through
// the storage endpoint which applies its own per-bucket limit.
const DefaultMaxBodyBytes = 1 << 20 // 1 MiB

// DecodeJSON decodes a JSON request body into dst, enforcing a body size cap
// and rejecting trailing garbage.
func DecodeJSON(r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, DefaultMaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return WrapError(CodeValidation, "invalid request body", err)
	}
	if dec.More() {
		return NewError(CodeValidation, "unexpected trailing data in request body")
	}
	return nil
}

// PathInt64 extracts an int64 path variable from the mux route
func PathInt64(r *http.Request, name string) (int64, error) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return 0, NewError(CodeValidation, fmt.Sprintf("missing path parameter %q", name))
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, WrapError(CodeValidation, fmt.Sprintf("invalid path parameter %q", name), err)
	}
	return v, nil
}

// PathString extracts a string path variable from the mux route
func PathString(r *http.Request, name string) (string, error) {
	raw, ok := mux.Vars(r)[name]
	if !ok || raw == "" {
		return "", NewError(CodeValidation, fmt.Sprintf("missing path parameter %q", name))
	}
	return raw, nil
}

// QueryInt64 extracts an optional int64 query parameter, returning def when absent
func QueryInt64(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, WrapError(CodeValidation, fmt.Sprintf("invalid query parameter %q", name), err)
	}
	return v, nil
}

// Pagination holds limit/offset parsed from the query string
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination parses limit/offset with sane bounds
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) (Pagination, error) {
	limit, err := QueryInt64(r, "limit", int64(defaultLimit))
	if err != nil {
		return Pagination{}, err
	}
	offset, err := QueryInt64(r, "offset", 0)
	if err != nil {
		return Pagination{}, err
	}
	if limit < 1 || limit > int64(maxLimit) {
		return Pagination{}, NewError(CodeValidation,
			fmt.Sprintf("limit must be between 1 and %d", maxLimit))
	}
	if offset < 0 {
		return Pagination{}, NewError(CodeValidation, "offset must not be negative")
	}
	return Pagination{Limit: int(limit), Offset: int(offset)}, nil
}
