package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// ParseJSON decodes JSON from the request body into the destination
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// ParsePathInt64 extracts and parses an int64 path parameter
func ParsePathInt64(r *http.Request, key string) (int64, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return 0, fmt.Errorf("missing path parameter: %s", key)
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %s", key, str)
	}
	return val, nil
}

// ParsePathInt64OrError extracts an int64 path parameter and writes error on failure
func ParsePathInt64OrError(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	val, err := ParsePathInt64(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return 0, false
	}
	return val, true
}

// ParsePathIDList parses a comma separated id list such as "1,2,3"
func ParsePathIDList(r *http.Request, key string) ([]int64, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return nil, fmt.Errorf("missing path parameter: %s", key)
	}
	var ids []int64
	for _, part := range strings.Split(str, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer for %s: %s", key, part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("missing path parameter: %s", key)
	}
	return ids, nil
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, str)
	}
	return val, nil
}

// ParseQueryString extracts a string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// Page is a validated page/page_size pair
type Page struct {
	Page     int
	PageSize int
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ParsePage reads page (>= 1) and page_size (1..maxSize) query parameters
func ParsePage(r *http.Request, defaultSize, maxSize int) (Page, error) {
	page, err := ParseQueryInt(r, "page", 1)
	if err != nil {
		return Page{}, err
	}
	size, err := ParseQueryInt(r, "page_size", defaultSize)
	if err != nil {
		return Page{}, err
	}
	if page < 1 {
		return Page{}, fmt.Errorf("page must be at least 1")
	}
	if size < 1 || size > maxSize {
		return Page{}, fmt.Errorf("page_size must be between 1 and %d", maxSize)
	}
	return Page{Page: page, PageSize: size}, nil
}

// ParseSkipLimit reads skip/limit query parameters
func ParseSkipLimit(r *http.Request, defaultLimit, maxLimit int) (limit, offset int, err error) {
	offset, err = ParseQueryInt(r, "skip", 0)
	if err != nil {
		return 0, 0, err
	}
	limit, err = ParseQueryInt(r, "limit", defaultLimit)
	if err != nil {
		return 0, 0, err
	}
	if offset < 0 {
		return 0, 0, fmt.Errorf("skip must not be negative")
	}
	if limit < 1 || limit > maxLimit {
		return 0, 0, fmt.Errorf("limit must be between 1 and %d", maxLimit)
	}
	return limit, offset, nil
}
