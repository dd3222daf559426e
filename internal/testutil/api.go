package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roach88/upcheck/internal/catalog"
)

// FakeToken is the API token FakeAPI accepts.
const FakeToken = "test-token"

// FakeCheck is a check stored by FakeAPI.
type FakeCheck struct {
	PK      int64
	Type    string
	Name    string
	Address string
	Tags    []string
	Fields  map[string]any
}

// FakeTag is a tag stored by FakeAPI.
type FakeTag struct {
	PK    int64
	Tag   string
	Color string
}

// FakeAPI is an in-memory stand-in for the product's check and tag API.
//
// It implements the endpoints the fixture client consumes, paginates check
// listings, and can inject failures and latency into deletes.
type FakeAPI struct {
	Server *httptest.Server

	mu          sync.Mutex
	nextPK      int64
	tags        map[int64]*FakeTag
	checks      map[int64]*FakeCheck
	pageSize    int
	failDeletes map[int64]int
	failPaths   map[string]int
	deleteDelay time.Duration
	requests    []string
}

// NewFakeAPI starts a fake API server that is closed when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		tags:        make(map[int64]*FakeTag),
		checks:      make(map[int64]*FakeCheck),
		pageSize:    50,
		failDeletes: make(map[int64]int),
		failPaths:   make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// SetPageSize changes how many tags or checks one listing page holds.
func (f *FakeAPI) SetPageSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = n
}

// FailDelete makes every DELETE of check pk answer with status.
func (f *FakeAPI) FailDelete(pk int64, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDeletes[pk] = status
}

// FailPath makes every request to path (no query) answer with status.
func (f *FakeAPI) FailPath(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPaths[path] = status
}

// SetDeleteDelay slows every DELETE down by d.
func (f *FakeAPI) SetDeleteDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteDelay = d
}

// Requests returns "METHOD path" for every request served, in order.
func (f *FakeAPI) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// Tags returns every stored tag sorted by pk.
func (f *FakeAPI) Tags() []FakeTag {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeTag, 0, len(f.tags))
	for _, t := range f.tags {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PK < out[j].PK })
	return out
}

// Checks returns every stored check sorted by pk.
func (f *FakeAPI) Checks() []FakeCheck {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCheck, 0, len(f.checks))
	for _, c := range f.checks {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PK < out[j].PK })
	return out
}

// SeedCheck stores a check directly, bypassing the API.
func (f *FakeAPI) SeedCheck(typ, name string, tags ...string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPK++
	f.checks[f.nextPK] = &FakeCheck{PK: f.nextPK, Type: typ, Name: name, Tags: tags, Fields: map[string]any{}}
	return f.nextPK
}

func (f *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	status, failing := f.failPaths[r.URL.Path]
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Token "+FakeToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token."})
		return
	}
	if failing {
		writeJSON(w, status, map[string]string{"detail": "injected failure"})
		return
	}

	path := r.URL.Path
	switch {
	case path == "/api/v1/check-tags/" && r.Method == http.MethodGet:
		f.listTags(w, r)
	case path == "/api/v1/check-tags/" && r.Method == http.MethodPost:
		f.createTag(w, r)
	case path == "/api/v1/checks/" && r.Method == http.MethodGet:
		f.listChecks(w, r)
	case strings.HasPrefix(path, "/api/v1/checks/add-") && r.Method == http.MethodPost:
		typ := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/checks/add-"), "/")
		f.createCheck(w, r, typ)
	case strings.HasPrefix(path, "/api/v1/checks/") && r.Method == http.MethodDelete:
		f.deleteCheck(w, strings.Trim(strings.TrimPrefix(path, "/api/v1/checks/"), "/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	}
}

func (f *FakeAPI) listTags(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")

	f.mu.Lock()
	var matched []map[string]any
	for _, t := range f.sortedTags() {
		if strings.Contains(t.Tag, search) {
			matched = append(matched, f.tagJSON(t))
		}
	}
	size := f.pageSize
	f.mu.Unlock()

	f.writePage(w, r, matched, size)
}

func (f *FakeAPI) createTag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tag      string `json:"tag"`
		ColorHex string `json:"color_hex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Tag == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"tag": []string{"This field is required."}})
		return
	}

	f.mu.Lock()
	f.nextPK++
	t := &FakeTag{PK: f.nextPK, Tag: body.Tag, Color: body.ColorHex}
	f.tags[t.PK] = t
	out := f.tagJSON(t)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (f *FakeAPI) createCheck(w http.ResponseWriter, r *http.Request, typ string) {
	if _, err := catalog.Lookup(catalog.Type(typ)); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}

	data, _ := io.ReadAll(r.Body)
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	name, _ := fields["name"].(string)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"name": []string{"This field is required."}})
		return
	}
	address, _ := fields["msp_address"].(string)
	var tags []string
	if raw, ok := fields["tags"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	f.mu.Lock()
	f.nextPK++
	c := &FakeCheck{PK: f.nextPK, Type: typ, Name: name, Address: address, Tags: tags, Fields: fields}
	f.checks[c.PK] = c
	out := f.checkJSON(c)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"messages": map[string]any{}, "results": out})
}

func (f *FakeAPI) listChecks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tag, search := q.Get("tag"), q.Get("search")

	f.mu.Lock()
	var matched []map[string]any
	for _, c := range f.sortedChecks() {
		if tag != "" && !contains(c.Tags, tag) {
			continue
		}
		if search != "" && !strings.Contains(c.Name, search) {
			continue
		}
		matched = append(matched, f.checkJSON(c))
	}
	size := f.pageSize
	f.mu.Unlock()

	f.writePage(w, r, matched, size)
}

// writePage answers with the ?page= slice of matched, linking the next
// page while one remains.
func (f *FakeAPI) writePage(w http.ResponseWriter, r *http.Request, matched []map[string]any, size int) {
	pageNum, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if pageNum < 1 {
		pageNum = 1
	}

	start := (pageNum - 1) * size
	end := start + size
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	var next any
	if end < len(matched) {
		nq := r.URL.Query()
		nq.Set("page", strconv.Itoa(pageNum+1))
		next = f.Server.URL + r.URL.Path + "?" + nq.Encode()
	}

	results := matched[start:end]
	if results == nil {
		results = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(matched), "next": next, "results": results})
}

func (f *FakeAPI) deleteCheck(w http.ResponseWriter, id string) {
	pk, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}

	f.mu.Lock()
	delay := f.deleteDelay
	status, failing := f.failDeletes[pk]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if failing {
		writeJSON(w, status, map[string]string{"detail": "injected failure"})
		return
	}

	f.mu.Lock()
	_, ok := f.checks[pk]
	delete(f.checks, pk)
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": map[string]any{"success": true}})
}

// sortedTags and sortedChecks require f.mu.
func (f *FakeAPI) sortedTags() []*FakeTag {
	out := make([]*FakeTag, 0, len(f.tags))
	for _, t := range f.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PK < out[j].PK })
	return out
}

func (f *FakeAPI) sortedChecks() []*FakeCheck {
	out := make([]*FakeCheck, 0, len(f.checks))
	for _, c := range f.checks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PK < out[j].PK })
	return out
}

func (f *FakeAPI) tagJSON(t *FakeTag) map[string]any {
	return map[string]any{
		"pk":        t.PK,
		"url":       fmt.Sprintf("%s/api/v1/check-tags/%d/", f.Server.URL, t.PK),
		"tag":       t.Tag,
		"color_hex": t.Color,
	}
}

func (f *FakeAPI) checkJSON(c *FakeCheck) map[string]any {
	label := c.Type
	if contract, err := catalog.Lookup(catalog.Type(c.Type)); err == nil {
		label = contract.ListLabel
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"pk":          c.PK,
		"url":         fmt.Sprintf("%s/api/v1/checks/%d/", f.Server.URL, c.PK),
		"name":        c.Name,
		"check_type":  label,
		"msp_address": c.Address,
		"tags":        tags,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
