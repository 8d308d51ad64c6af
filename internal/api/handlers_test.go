package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/local/pdfrange/internal/metrics"
	"github.com/local/pdfrange/internal/orchestrator"
	"github.com/local/pdfrange/internal/pdfdoc"
	"github.com/local/pdfrange/internal/pdftest"
	"github.com/local/pdfrange/internal/source"
	"github.com/local/pdfrange/internal/statuscheck"
	"github.com/local/pdfrange/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
	metrics.Init()
}

type fakeFetcher map[string]fetchResult

type fetchResult struct {
	doc *source.Document
	err error
}

func (f fakeFetcher) Fetch(_ context.Context, ref string) (*source.Document, error) {
	r, ok := f[ref]
	if !ok {
		return nil, source.ErrUnsupportedRef
	}
	return r.doc, r.err
}

type fakeChecker statuscheck.Summary

func (f fakeChecker) Summary(context.Context) statuscheck.Summary { return statuscheck.Summary(f) }

type testEnv struct {
	t      *testing.T
	router *gin.Engine
	store  *store.Memory
}

func newEnv(t *testing.T, fetcher Fetcher, checker ReadinessChecker) *testEnv {
	t.Helper()
	st := store.NewMemory(orchestrator.New(pdfdoc.NewPDFCPU(pdfdoc.Options{})), time.Hour)
	srv := New(Config{MaxUploadBytes: 1 << 20}, st, fetcher, checker)
	r := gin.New()
	r.Use(RequestLogger())
	srv.SetupRoutes(r)
	return &testEnv{t: t, router: r, store: st}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession() string {
	e.t.Helper()
	w := e.do(httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	if w.Code != http.StatusCreated {
		e.t.Fatalf("create session: %d %s", w.Code, w.Body)
	}
	var v sessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		e.t.Fatal(err)
	}
	if v.State != "empty" {
		e.t.Fatalf("new session state %q", v.State)
	}
	return v.ID
}

func uploadRequest(t *testing.T, id, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/source", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func extractForm(id, start, end string) *http.Request {
	form := "start=" + start + "&end=" + end
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/extract", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body, err)
	}
	return body.Error
}

func (e *testEnv) state(id string) string {
	e.t.Helper()
	w := e.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil))
	if w.Code != http.StatusOK {
		e.t.Fatalf("get session: %d", w.Code)
	}
	var v sessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		e.t.Fatal(err)
	}
	return v.State
}

func TestUploadAndExtract(t *testing.T) {
	e := newEnv(t, nil, nil)
	id := e.createSession()

	w := e.do(uploadRequest(t, id, "ten.pdf", "application/pdf", pdftest.Build(t, 10)))
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body)
	}
	var v sessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	want := sessionView{
		ID: id, State: "loaded", File: "ten.pdf", Pages: 10,
		DefaultStart: 1, DefaultEnd: 10,
		Message: "PDF loaded successfully! 10 pages found.",
	}
	if diff := cmp.Diff(want, v, cmpIgnoreVolatile); diff != "" {
		t.Errorf("upload response mismatch (-want +got):\n%s", diff)
	}

	w = e.do(extractForm(id, "3", "7"))
	if w.Code != http.StatusOK {
		t.Fatalf("extract: %d %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=extracted_pages_3-7.pdf" {
		t.Errorf("content disposition %q", cd)
	}
	if msg := w.Header().Get("X-Extract-Message"); msg != "Successfully extracted 5 pages!" {
		t.Errorf("message %q", msg)
	}
	if diff := cmp.Diff(pdftest.Labels(3, 7), pdftest.PageLabels(t, w.Body.Bytes())); diff != "" {
		t.Errorf("page labels mismatch (-want +got):\n%s", diff)
	}

	// JSON with numeric bounds, same session, no reload.
	w = e.do(jsonRequest(http.MethodPost, "/api/sessions/"+id+"/extract", `{"start":10,"end":10}`))
	if w.Code != http.StatusOK {
		t.Fatalf("json extract: %d %s", w.Code, w.Body)
	}
	if diff := cmp.Diff(pdftest.Labels(10, 10), pdftest.PageLabels(t, w.Body.Bytes())); diff != "" {
		t.Errorf("page labels mismatch (-want +got):\n%s", diff)
	}
	if e.state(id) != "loaded" {
		t.Error("session left loaded state")
	}
}

var cmpIgnoreVolatile = cmpopts.IgnoreFields(sessionView{}, "Size", "Fingerprint")

func TestExtractValidation(t *testing.T) {
	e := newEnv(t, nil, nil)
	id := e.createSession()
	if w := e.do(uploadRequest(t, id, "ten.pdf", "application/pdf", pdftest.Build(t, 10))); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}

	cases := []struct {
		start, end string
		want       string
	}{
		{"", "4", "Please enter both start and end page numbers"},
		{"abc", "4", "Please enter both start and end page numbers"},
		{"0", "4", "Page numbers must be greater than 0"},
		{"1", "11", "Page numbers cannot exceed 10"},
		{"5", "3", "Start page must be less than or equal to end page"},
	}
	for _, c := range cases {
		w := e.do(extractForm(id, c.start, c.end))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%q..%q: status %d", c.start, c.end, w.Code)
			continue
		}
		if got := decodeError(t, w); got != c.want {
			t.Errorf("%q..%q: error %q, want %q", c.start, c.end, got, c.want)
		}
	}
	for _, body := range []string{`{"start":true,"end":3}`, `{"start":null,"end":3}`} {
		w := e.do(jsonRequest(http.MethodPost, "/api/sessions/"+id+"/extract", body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", body, w.Code)
			continue
		}
		if got := decodeError(t, w); got != "Please enter both start and end page numbers" {
			t.Errorf("%s: error %q", body, got)
		}
	}
	if e.state(id) != "loaded" {
		t.Error("validation errors changed the session state")
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	e := newEnv(t, nil, nil)
	id := e.createSession()
	if w := e.do(uploadRequest(t, id, "ok.pdf", "application/pdf", pdftest.Build(t, 2))); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}

	// A PDF content type does not help a text body.
	w := e.do(uploadRequest(t, id, "notes.pdf", "application/pdf", []byte("just some notes")))
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status %d, want 415", w.Code)
	}
	if got := decodeError(t, w); got != "Error loading PDF. Please make sure it's a valid PDF file." {
		t.Errorf("error %q", got)
	}
	if e.state(id) != "empty" {
		t.Error("failed load kept the previous document")
	}
	if w := e.do(extractForm(id, "1", "1")); w.Code != http.StatusConflict {
		t.Errorf("extract after failed load: %d", w.Code)
	}
}

func TestUploadErrors(t *testing.T) {
	e := newEnv(t, nil, nil)
	id := e.createSession()

	if w := e.do(uploadRequest(t, id, "ok.pdf", "application/pdf", pdftest.Build(t, 2))); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}
	w := e.do(uploadRequest(t, id, "huge.pdf", "application/pdf", make([]byte, 2<<20)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload: %d", w.Code)
	}
	if e.state(id) != "empty" {
		t.Error("oversized upload kept the previous document")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/source", strings.NewReader("x"))
	req.Header.Set("Content-Type", "text/plain")
	if w := e.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("missing file field: %d", w.Code)
	}
}

func TestLoadByReference(t *testing.T) {
	fetcher := fakeFetcher{
		"s3://docs/four.pdf": {doc: &source.Document{Name: "four.pdf", Data: pdftest.Build(t, 4)}},
		"s3://docs/huge.pdf": {err: source.ErrTooLarge},
		"s3://docs/down.pdf": {err: errors.New("connection reset")},
	}
	e := newEnv(t, fetcher, nil)
	id := e.createSession()
	path := "/api/sessions/" + id + "/source"

	w := e.do(jsonRequest(http.MethodPost, path, `{"ref":"s3://docs/four.pdf"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("load by ref: %d %s", w.Code, w.Body)
	}
	var v sessionView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.File != "four.pdf" || v.Pages != 4 {
		t.Errorf("view = %+v", v)
	}

	for _, c := range []struct {
		body  string
		want  int
		state string
	}{
		{`{}`, http.StatusBadRequest, "loaded"},
		{`{"ref":"ftp://x/y.pdf"}`, http.StatusBadRequest, "empty"},
		{`{"ref":"s3://docs/huge.pdf"}`, http.StatusRequestEntityTooLarge, "empty"},
		{`{"ref":"s3://docs/down.pdf"}`, http.StatusBadGateway, "empty"},
	} {
		if w := e.do(jsonRequest(http.MethodPost, path, `{"ref":"s3://docs/four.pdf"}`)); w.Code != http.StatusOK {
			t.Fatalf("reload: %d", w.Code)
		}
		if w := e.do(jsonRequest(http.MethodPost, path, c.body)); w.Code != c.want {
			t.Errorf("%s: status %d, want %d", c.body, w.Code, c.want)
		}
		// A failed fetch is a failed load: the previous document is dropped.
		if got := e.state(id); got != c.state {
			t.Errorf("%s: state %q, want %q", c.body, got, c.state)
		}
	}

	noRefs := newEnv(t, nil, nil)
	id = noRefs.createSession()
	if w := noRefs.do(jsonRequest(http.MethodPost, "/api/sessions/"+id+"/source", `{"ref":"s3://docs/four.pdf"}`)); w.Code != http.StatusBadRequest {
		t.Errorf("ref with no fetcher: %d", w.Code)
	}
}

func TestSessionLifecycleRoutes(t *testing.T) {
	e := newEnv(t, nil, nil)

	if w := e.do(httptest.NewRequest(http.MethodGet, "/api/sessions/nope", nil)); w.Code != http.StatusNotFound {
		t.Errorf("unknown session: %d", w.Code)
	}
	if w := e.do(extractForm("nope", "1", "1")); w.Code != http.StatusNotFound {
		t.Errorf("extract on unknown session: %d", w.Code)
	}

	id := e.createSession()
	w := e.do(extractForm(id, "1", "1"))
	if w.Code != http.StatusConflict {
		t.Errorf("extract before load: %d", w.Code)
	}
	if got := decodeError(t, w); got != "Please load a PDF first" {
		t.Errorf("error %q", got)
	}

	if w := e.do(httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil)); w.Code != http.StatusNoContent {
		t.Errorf("delete: %d", w.Code)
	}
	if w := e.do(httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil)); w.Code != http.StatusNotFound {
		t.Errorf("second delete: %d", w.Code)
	}
}

func TestPreview(t *testing.T) {
	e := newEnv(t, nil, nil)
	id := e.createSession()
	base := "/api/sessions/" + id + "/pages/"

	if w := e.do(httptest.NewRequest(http.MethodGet, base+"1/preview", nil)); w.Code != http.StatusConflict {
		t.Errorf("preview before load: %d", w.Code)
	}
	if w := e.do(uploadRequest(t, id, "three.pdf", "application/pdf", pdftest.Build(t, 3))); w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}

	w := e.do(httptest.NewRequest(http.MethodGet, base+"2/preview", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("preview: %d %s", w.Code, w.Body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte{0xFF, 0xD8}) {
		t.Error("body is not a JPEG")
	}

	for _, page := range []string{"0", "4", "x"} {
		if w := e.do(httptest.NewRequest(http.MethodGet, base+page+"/preview", nil)); w.Code != http.StatusBadRequest {
			t.Errorf("preview page %s: %d", page, w.Code)
		}
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	notReady := fakeChecker(statuscheck.Summary{
		Redis:    statuscheck.Status{OK: false, Message: "connection refused"},
		S3:       statuscheck.Status{OK: true},
		Sessions: statuscheck.Status{OK: true},
	})
	e := newEnv(t, nil, notReady)

	if w := e.do(httptest.NewRequest(http.MethodGet, "/health", nil)); w.Code != http.StatusOK {
		t.Errorf("health: %d", w.Code)
	}
	if w := e.do(httptest.NewRequest(http.MethodGet, "/ready", nil)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with redis down: %d", w.Code)
	}

	e = newEnv(t, nil, nil)
	if w := e.do(httptest.NewRequest(http.MethodGet, "/ready", nil)); w.Code != http.StatusOK {
		t.Errorf("ready without checker: %d", w.Code)
	}

	id := e.createSession()
	e.do(extractForm(id, "1", "1"))
	w := e.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pdfrange_extractions_total") {
		t.Errorf("metrics: %d", w.Code)
	}
}

func TestRangeFieldJSON(t *testing.T) {
	var req extractRequest
	if err := json.Unmarshal([]byte(`{"start":"3","end":7}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.Start != "3" || req.End != "7" {
		t.Errorf("got %+v", req)
	}
	if err := json.Unmarshal([]byte(`{"start":true,"end":null}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.Start != "true" || req.End != "" {
		t.Errorf("got %+v", req)
	}
	if err := json.Unmarshal([]byte(`{"start":[1]}`), &req); err == nil {
		t.Error("array bound accepted")
	}
}
