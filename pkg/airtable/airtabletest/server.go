// Package airtabletest provides an in-memory Airtable REST server for tests.
package airtabletest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Record mirrors the Airtable wire form
type Record struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

// Request is one request the server received
type Request struct {
	Method string
	Table  string
	Query  map[string][]string
}

type failure struct {
	method string
	table  string
	status int
	left   int
}

// Server is a fake Airtable base. It understands listing with
// filterByFormula of the form {Field}="value" or {Field}='value', fields[],
// maxRecords, pageSize and offset, plus batch PATCH and POST.
type Server struct {
	*httptest.Server

	BaseID string
	APIKey string

	mu       sync.Mutex
	tables   map[string][]*Record
	nextID   int
	requests []Request
	failures []*failure
}

// NewServer starts a fake base that accepts apiKey as its bearer token.
func NewServer(baseID, apiKey string) *Server {
	s := &Server{
		BaseID: baseID,
		APIKey: apiKey,
		tables: make(map[string][]*Record),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Seed appends a record to table and returns its ID
func (s *Server) Seed(table string, fields map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(table, fields)
}

// Records returns a copy of the table's records in order
func (s *Server) Records(table string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, Record{ID: r.ID, Fields: copyFields(r.Fields)})
	}
	return out
}

// Record returns one record by ID
func (s *Server) Record(table, id string) (Record, bool) {
	for _, r := range s.Records(table) {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Requests returns every request received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// FailNext makes the next n requests matching method and table (either may
// be empty to match anything) fail with status.
func (s *Server) FailNext(method, table string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{method: method, table: table, status: status, left: n})
}

func (s *Server) insert(table string, fields map[string]interface{}) string {
	s.nextID++
	id := fmt.Sprintf("rec%014d", s.nextID)
	s.tables[table] = append(s.tables[table], &Record{ID: id, Fields: copyFields(fields)})
	return id
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+s.APIKey {
		writeError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "Authentication required")
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != s.BaseID {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Could not find what you are looking for")
		return
	}
	table := parts[1]

	s.requests = append(s.requests, Request{Method: r.Method, Table: table, Query: r.URL.Query()})

	for _, f := range s.failures {
		if f.left > 0 && (f.method == "" || f.method == r.Method) && (f.table == "" || f.table == table) {
			f.left--
			writeError(w, f.status, "INJECTED", "injected failure")
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		s.list(w, r, table)
	case http.MethodPatch:
		s.update(w, r, table)
	case http.MethodPost:
		s.create(w, r, table)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method)
	}
}

var formulaPattern = regexp.MustCompile(`^\{([^}]+)\}\s*=\s*(?:"([^"]*)"|'([^']*)')$`)

func (s *Server) list(w http.ResponseWriter, r *http.Request, table string) {
	q := r.URL.Query()

	var match func(*Record) bool
	if formula := q.Get("filterByFormula"); formula != "" {
		m := formulaPattern.FindStringSubmatch(formula)
		if m == nil {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_FILTER_BY_FORMULA", formula)
			return
		}
		field, want := m[1], m[2]+m[3]
		match = func(rec *Record) bool {
			v, ok := rec.Fields[field]
			return ok && fmt.Sprint(v) == want
		}
	}

	var matched []*Record
	for _, rec := range s.tables[table] {
		if match == nil || match(rec) {
			matched = append(matched, rec)
		}
	}
	if max, _ := strconv.Atoi(q.Get("maxRecords")); max > 0 && len(matched) > max {
		matched = matched[:max]
	}

	pageSize, _ := strconv.Atoi(q.Get("pageSize"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	start, _ := strconv.Atoi(q.Get("offset"))
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	fields := q["fields[]"]
	resp := struct {
		Records []Record `json:"records"`
		Offset  string   `json:"offset,omitempty"`
	}{Records: []Record{}}
	for _, rec := range matched[start:end] {
		out := Record{ID: rec.ID, Fields: copyFields(rec.Fields)}
		if len(fields) > 0 {
			out.Fields = map[string]interface{}{}
			for _, f := range fields {
				if v, ok := rec.Fields[f]; ok {
					out.Fields[f] = v
				}
			}
		}
		resp.Records = append(resp.Records, out)
	}
	if end < len(matched) {
		resp.Offset = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

type writeBody struct {
	Records []Record `json:"records"`
}

func (s *Server) decodeWrite(w http.ResponseWriter, r *http.Request) (*writeBody, bool) {
	var body writeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_REQUEST_BODY", err.Error())
		return nil, false
	}
	if len(body.Records) == 0 || len(body.Records) > 10 {
		writeError(w, http.StatusUnprocessableEntity, "INVALID_RECORDS", "records must hold between 1 and 10 items")
		return nil, false
	}
	return &body, true
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, table string) {
	body, ok := s.decodeWrite(w, r)
	if !ok {
		return
	}

	var out []Record
	for _, in := range body.Records {
		var target *Record
		for _, rec := range s.tables[table] {
			if rec.ID == in.ID {
				target = rec
				break
			}
		}
		if target == nil {
			writeError(w, http.StatusNotFound, "ROW_DOES_NOT_EXIST", in.ID)
			return
		}
		for k, v := range in.Fields {
			if v == nil {
				delete(target.Fields, k)
				continue
			}
			target.Fields[k] = v
		}
		out = append(out, Record{ID: target.ID, Fields: copyFields(target.Fields)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": out})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, table string) {
	body, ok := s.decodeWrite(w, r)
	if !ok {
		return
	}

	var out []Record
	for _, in := range body.Records {
		id := s.insert(table, in.Fields)
		out = append(out, Record{ID: id, Fields: copyFields(in.Fields)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": out})
}

func copyFields(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"type": typ, "message": msg},
	})
}
