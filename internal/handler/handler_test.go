package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/gasportal/internal/api"
	"github.com/dukerupert/gasportal/internal/auth"
	"github.com/dukerupert/gasportal/internal/catalog"
	"github.com/dukerupert/gasportal/internal/flash"
	"github.com/dukerupert/gasportal/internal/form"
	"github.com/dukerupert/gasportal/internal/model"
	"github.com/dukerupert/gasportal/internal/session"
)

const testDevice = "dev-1"

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(slog.Default())
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r
}

// withProvider places a fresh device session in the request context.
func withProvider(t *testing.T, r *http.Request) (*http.Request, *session.Session, *session.MemoryStorage) {
	t.Helper()
	storage := session.NewMemoryStorage()
	s, err := session.New(storage)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	ctx := auth.WithDevice(r.Context(), auth.DeviceContext{DeviceID: testDevice})
	ctx = session.WithSession(ctx, s)
	return r.WithContext(ctx), s, storage
}

func loginForm(email, password string) io.Reader {
	v := url.Values{"email": {email}, "password": {password}}
	return strings.NewReader(v.Encode())
}

func newLoginRequest(t *testing.T, email, password string) (*http.Request, *session.Session, *session.MemoryStorage) {
	r := httptest.NewRequest(http.MethodPost, "/login", loginForm(email, password))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return withProvider(t, r)
}

type fakeAuthenticator struct {
	result    api.LoginResult
	err       error
	logouts   int
	logoutErr error
}

func (f *fakeAuthenticator) Login(ctx context.Context, email, password string) (api.LoginResult, error) {
	return f.result, f.err
}

func (f *fakeAuthenticator) Logout(ctx context.Context) error {
	f.logouts++
	return f.logoutErr
}

func TestMockLogin(t *testing.T) {
	notices := flash.NewQueue()
	h := NewAuthHandler(nil, newTestRenderer(t), notices, slog.Default())

	req, s, storage := newLoginRequest(t, "a@b.com", "x")
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
	if !s.IsAuthenticated() {
		t.Fatal("expected authenticated session")
	}
	if u := s.User(); u.Email != "a@b.com" || u.FirstName != "John" || u.LastName != "Doe" {
		t.Errorf("user = %+v", u)
	}
	if tok, _, _ := storage.GetItem(session.TokenKey); tok != "mock-token" {
		t.Errorf("stored token = %q, want mock-token", tok)
	}
	got := notices.Drain(testDevice)
	if len(got) != 1 || got[0].Message != "Successfully logged in!" || got[0].Level != flash.LevelSuccess {
		t.Errorf("notices = %+v", got)
	}
}

func TestLoginInvalidRendersFailure(t *testing.T) {
	h := NewAuthHandler(nil, newTestRenderer(t), flash.NewQueue(), slog.Default())

	req, s, _ := newLoginRequest(t, "not-an-email", "x")
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if s.IsAuthenticated() {
		t.Error("invalid login must not authenticate")
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Login failed. Please try again.") {
		t.Error("expected failure notice in page")
	}
	if !strings.Contains(body, `value="not-an-email"`) {
		t.Error("expected email preserved in form")
	}
}

func TestLiveLogin(t *testing.T) {
	fa := &fakeAuthenticator{result: api.LoginResult{
		Token: "jwt",
		User:  model.User{ID: "7", Email: "real@example.com", FirstName: "Ada", LastName: "Lovelace"},
	}}
	h := NewAuthHandler(fa, newTestRenderer(t), flash.NewQueue(), slog.Default())

	req, s, _ := newLoginRequest(t, "real@example.com", "secret")
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if s.Token() != "jwt" || s.User().ID != "7" {
		t.Errorf("state = %+v", s.State())
	}
}

func TestLiveLoginBackendFailure(t *testing.T) {
	fa := &fakeAuthenticator{err: &api.Error{StatusCode: http.StatusBadRequest}}
	notices := flash.NewQueue()
	h := NewAuthHandler(fa, newTestRenderer(t), notices, slog.Default())

	req, s, _ := newLoginRequest(t, "a@b.com", "wrong")
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if s.IsAuthenticated() {
		t.Error("failed login must not authenticate")
	}
	if !strings.Contains(rec.Body.String(), "Login failed. Please try again.") {
		t.Error("expected failure notice")
	}
}

func TestLoginWithoutProvider(t *testing.T) {
	h := NewAuthHandler(nil, newTestRenderer(t), flash.NewQueue(), slog.Default())
	r := httptest.NewRequest(http.MethodPost, "/login", loginForm("a@b.com", "x"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Login(rec, r)

	if !strings.Contains(rec.Body.String(), "Login failed. Please try again.") {
		t.Error("expected failure notice without a session provider")
	}
}

func TestLogout(t *testing.T) {
	fa := &fakeAuthenticator{logoutErr: errors.New("backend down")}
	h := NewAuthHandler(fa, newTestRenderer(t), flash.NewQueue(), slog.Default())

	r := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req, s, storage := withProvider(t, r)
	s.Login("jwt", model.User{ID: "7"})

	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if fa.logouts != 1 {
		t.Errorf("backend logouts = %d, want 1", fa.logouts)
	}
	if s.IsAuthenticated() {
		t.Error("expected logged out even when the backend call fails")
	}
	if _, ok, _ := storage.GetItem(session.TokenKey); ok {
		t.Error("expected token removed from storage")
	}
}

func TestLogoutRejectedTokenGoesToLogin(t *testing.T) {
	fa := &fakeAuthenticator{logoutErr: fmt.Errorf("logout: %w", api.ErrUnauthorized)}
	h := NewAuthHandler(fa, newTestRenderer(t), flash.NewQueue(), slog.Default())

	for _, hx := range []bool{false, true} {
		r := httptest.NewRequest(http.MethodPost, "/logout", nil)
		if hx {
			r.Header.Set("HX-Request", "true")
		}
		req, s, _ := withProvider(t, r)
		s.Login("jwt", model.User{ID: "7"})

		rec := httptest.NewRecorder()
		h.Logout(rec, req)

		loc := rec.Header().Get("Location")
		if hx {
			loc = rec.Header().Get("HX-Redirect")
		}
		if loc != "/login" {
			t.Errorf("hx=%v redirect = %q, want /login", hx, loc)
		}
		if s.IsAuthenticated() {
			t.Errorf("hx=%v expected logged out", hx)
		}
	}
}

func TestLoginPage(t *testing.T) {
	h := NewAuthHandler(nil, newTestRenderer(t), flash.NewQueue(), slog.Default())
	req, _, _ := withProvider(t, httptest.NewRequest(http.MethodGet, "/login", nil))
	rec := httptest.NewRecorder()
	h.LoginPage(rec, req)

	body := rec.Body.String()
	for _, want := range []string{`type="email"`, `name="password"`, "required"} {
		if !strings.Contains(body, want) {
			t.Errorf("login page missing %q", want)
		}
	}
}

// Request submission

type fakeSubmitter struct {
	got     []model.ServiceRequest
	created model.ServiceRequest
	err     error
}

func (f *fakeSubmitter) Submit(ctx context.Context, req model.ServiceRequest) (model.ServiceRequest, error) {
	f.got = append(f.got, req)
	return f.created, f.err
}

type upload struct {
	name string
	data string
}

func newSubmitRequest(t *testing.T, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	for _, f := range files {
		part, err := w.CreateFormFile("attachments", f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write([]byte(f.data))
	}
	w.Close()
	r := httptest.NewRequest(http.MethodPost, "/requests", &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	req, _, _ := withProvider(t, r)
	return req
}

func validRequestFields() map[string]string {
	return map[string]string{
		"requestType":   "Gas Leak",
		"description":   "Smell of gas near the meter",
		"address":       "1 Main St",
		"contactNumber": "555-0100",
	}
}

func TestSubmitMock(t *testing.T) {
	drafts := form.NewDrafts()
	notices := flash.NewQueue()
	h := NewRequestHandler(nil, drafts, notices, 1<<20, slog.Default())

	rec := httptest.NewRecorder()
	h.Submit(rec, newSubmitRequest(t, validRequestFields(), upload{"a.png", "png"}))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Errorf("response = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if !drafts.Get(testDevice).IsEmpty() {
		t.Error("expected draft reset after mock submit")
	}
	got := notices.Drain(testDevice)
	if len(got) != 1 || got[0].Message != "Service request submitted successfully!" {
		t.Errorf("notices = %+v", got)
	}
}

func TestSubmitLive(t *testing.T) {
	fs := &fakeSubmitter{created: model.ServiceRequest{ID: "SR 9"}}
	drafts := form.NewDrafts()
	h := NewRequestHandler(fs, drafts, flash.NewQueue(), 1<<20, slog.Default())

	rec := httptest.NewRecorder()
	h.Submit(rec, newSubmitRequest(t, validRequestFields(), upload{"a.png", "png"}, upload{"b.pdf", "%PDF"}))

	if loc := rec.Header().Get("Location"); loc != "/?request=SR+9" {
		t.Errorf("Location = %q, want /?request=SR+9", loc)
	}
	if len(fs.got) != 1 {
		t.Fatalf("submits = %d, want 1", len(fs.got))
	}
	sent := fs.got[0]
	if sent.RequestType != "Gas Leak" || sent.ContactNumber != "555-0100" {
		t.Errorf("sent = %+v", sent)
	}
	if len(sent.Attachments) != 2 || sent.Attachments[1].Filename != "b.pdf" {
		t.Errorf("attachments = %+v", sent.Attachments)
	}
	if !drafts.Get(testDevice).IsEmpty() {
		t.Error("expected draft reset after submit")
	}
}

func TestSubmitLiveFailureKeepsDraft(t *testing.T) {
	fs := &fakeSubmitter{err: &api.Error{StatusCode: http.StatusInternalServerError}}
	drafts := form.NewDrafts()
	notices := flash.NewQueue()
	h := NewRequestHandler(fs, drafts, notices, 1<<20, slog.Default())

	rec := httptest.NewRecorder()
	h.Submit(rec, newSubmitRequest(t, validRequestFields(), upload{"a.png", "png"}))

	if loc := rec.Header().Get("Location"); loc != "/#request-form" {
		t.Errorf("Location = %q, want /#request-form", loc)
	}
	draft := drafts.Get(testDevice)
	if draft.Address != "1 Main St" || len(draft.Attachments) != 1 {
		t.Errorf("draft = %+v, want kept for retry", draft)
	}
	got := notices.Drain(testDevice)
	if len(got) != 1 || got[0].Message != "Failed to submit service request. Please try again." || got[0].Level != flash.LevelError {
		t.Errorf("notices = %+v", got)
	}
}

func TestSubmitUnauthorizedRedirectsToLogin(t *testing.T) {
	fs := &fakeSubmitter{err: &api.Error{StatusCode: http.StatusUnauthorized}}
	h := NewRequestHandler(fs, form.NewDrafts(), flash.NewQueue(), 1<<20, slog.Default())

	rec := httptest.NewRecorder()
	h.Submit(rec, newSubmitRequest(t, validRequestFields()))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("response = %d %q, want 303 /login", rec.Code, rec.Header().Get("Location"))
	}
}

func TestSubmitMissingFields(t *testing.T) {
	fs := &fakeSubmitter{}
	drafts := form.NewDrafts()
	h := NewRequestHandler(fs, drafts, flash.NewQueue(), 1<<20, slog.Default())

	rec := httptest.NewRecorder()
	h.Submit(rec, newSubmitRequest(t, map[string]string{"requestType": "Maintenance"}))

	if len(fs.got) != 0 {
		t.Error("invalid draft must not be submitted")
	}
	if rec.Header().Get("Location") != "/#request-form" {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	if drafts.Get(testDevice).RequestType != "Maintenance" {
		t.Error("expected entered values kept")
	}
}

func TestSubmitTooLarge(t *testing.T) {
	fs := &fakeSubmitter{}
	h := NewRequestHandler(fs, form.NewDrafts(), flash.NewQueue(), 64, slog.Default())

	rec := httptest.NewRecorder()
	h.Submit(rec, newSubmitRequest(t, validRequestFields(), upload{"big.pdf", strings.Repeat("x", 1024)}))

	if len(fs.got) != 0 {
		t.Error("oversized upload must not be submitted")
	}
	if rec.Header().Get("Location") != "/#request-form" {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
}

// Status

type fakeFetcher struct {
	req model.ServiceRequest
	err error
	ids []string
}

func (f *fakeFetcher) Status(ctx context.Context, id string) (model.ServiceRequest, error) {
	f.ids = append(f.ids, id)
	return f.req, f.err
}

func statusRequest(t *testing.T, id string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/requests/"+id+"/status", nil)
	r.SetPathValue("id", id)
	r.Header.Set("HX-Request", "true")
	req, _, _ := withProvider(t, r)
	return req
}

func TestStatusPartialFound(t *testing.T) {
	updated := time.Date(2024, 2, 20, 10, 0, 0, 0, time.UTC)
	ff := &fakeFetcher{req: model.ServiceRequest{ID: "SR-9", RequestType: "Maintenance", Status: "Completed", LastUpdated: &updated}}
	h := NewStatusHandler(ff, newTestRenderer(t), slog.Default())
	h.now = func() time.Time { return updated.Add(3 * time.Hour) }

	req := statusRequest(t, "SR-9")
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	rec := httptest.NewRecorder()
	h.Partial(rec, req)

	body := rec.Body.String()
	for _, want := range []string{"SR-9", "Maintenance", "bg-utility-success text-white", "20.2.2024", "Not available", " ago"} {
		if !strings.Contains(body, want) {
			t.Errorf("partial missing %q", want)
		}
	}
}

func TestStatusPartialNotFound(t *testing.T) {
	ff := &fakeFetcher{err: &api.Error{StatusCode: http.StatusNotFound}}
	h := NewStatusHandler(ff, newTestRenderer(t), slog.Default())

	rec := httptest.NewRecorder()
	h.Partial(rec, statusRequest(t, "SR-404"))

	if !strings.Contains(rec.Body.String(), "No request found with ID SR-404") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStatusPartialError(t *testing.T) {
	ff := &fakeFetcher{err: errors.New("connection refused")}
	h := NewStatusHandler(ff, newTestRenderer(t), slog.Default())

	rec := httptest.NewRecorder()
	h.Partial(rec, statusRequest(t, "SR-1"))

	if !strings.Contains(rec.Body.String(), "Failed to load request status") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStatusPartialUnauthorized(t *testing.T) {
	ff := &fakeFetcher{err: &api.Error{StatusCode: http.StatusUnauthorized}}
	h := NewStatusHandler(ff, newTestRenderer(t), slog.Default())

	rec := httptest.NewRecorder()
	h.Partial(rec, statusRequest(t, "SR-1"))

	if got := rec.Header().Get("HX-Redirect"); got != "/login" {
		t.Errorf("HX-Redirect = %q, want /login", got)
	}
}

func TestStatusPartialMock(t *testing.T) {
	h := NewStatusHandler(nil, newTestRenderer(t), slog.Default())

	rec := httptest.NewRecorder()
	h.Partial(rec, statusRequest(t, "SR-2024-001"))
	if !strings.Contains(rec.Body.String(), "Gas Leak Investigation") {
		t.Error("expected example request")
	}

	rec = httptest.NewRecorder()
	h.Partial(rec, statusRequest(t, "SR-1"))
	if !strings.Contains(rec.Body.String(), "No request found with ID SR-1") {
		t.Error("expected not found for unknown id in mock mode")
	}
}

// Index

func newPortal(t *testing.T, fetcher StatusFetcher) (*PortalHandler, *form.Drafts) {
	renderer := newTestRenderer(t)
	drafts := form.NewDrafts()
	notices := flash.NewQueue()
	status := NewStatusHandler(fetcher, renderer, slog.Default())
	return NewPortalHandler(catalog.NewLoader(nil), drafts, notices, status, renderer, slog.Default()), drafts
}

func TestIndexMock(t *testing.T) {
	h, _ := newPortal(t, nil)
	req, _, _ := withProvider(t, httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	h.Index(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"Available Services", "Emergency Gas Leak", "Urgent", "Home Connection",
		`accept="image/*,.pdf,.doc,.docx"`, "multiple",
		"SR-2024-001", "Gas Leak Investigation", "In Progress", "bg-utility-warning text-black",
		"2/20/2024", "2/21/2024", `href="/login"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestIndexPrefillsService(t *testing.T) {
	h, drafts := newPortal(t, nil)
	req, _, _ := withProvider(t, httptest.NewRequest(http.MethodGet, "/?service=2", nil))
	rec := httptest.NewRecorder()
	h.Index(rec, req)

	if !strings.Contains(rec.Body.String(), `value="Meter Installation"`) {
		t.Error("expected request type prefilled")
	}
	if drafts.Get(testDevice).RequestType != "Meter Installation" {
		t.Error("expected prefill stored in draft")
	}
}

func TestIndexListsKeptAttachments(t *testing.T) {
	h, drafts := newPortal(t, nil)
	var d form.RequestDraft
	d.SetAttachments([]model.Attachment{{Filename: "meter.png", ContentType: "image/png", Data: []byte("png")}})
	drafts.Put(testDevice, d)

	req, _, _ := withProvider(t, httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	h.Index(rec, req)

	if !strings.Contains(rec.Body.String(), "meter.png <span class=\"text-xs\">(3 bytes)</span>") {
		t.Error("expected kept attachment with its size")
	}
}

func TestIndexLiveStatusPlaceholder(t *testing.T) {
	h, _ := newPortal(t, &fakeFetcher{})
	req, _, _ := withProvider(t, httptest.NewRequest(http.MethodGet, "/?request=SR-9", nil))
	rec := httptest.NewRecorder()
	h.Index(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "Loading request status…") {
		t.Error("expected loading placeholder")
	}
	if !strings.Contains(body, `hx-get="/requests/SR-9/status"`) {
		t.Error("expected lazy status fetch")
	}
}

func TestIndexLiveStatusPlaceholderEscapesID(t *testing.T) {
	h, _ := newPortal(t, &fakeFetcher{})
	target := "/?request=" + url.QueryEscape("SR/9?x")
	req, _, _ := withProvider(t, httptest.NewRequest(http.MethodGet, target, nil))
	rec := httptest.NewRecorder()
	h.Index(rec, req)

	if !strings.Contains(rec.Body.String(), `hx-get="/requests/SR%2F9%3Fx/status"`) {
		t.Errorf("expected escaped status url in %s", rec.Body.String())
	}
}

func TestIndexLiveLookupForm(t *testing.T) {
	h, _ := newPortal(t, &fakeFetcher{})
	req, _, _ := withProvider(t, httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	h.Index(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "Check Status") {
		t.Error("expected status lookup form")
	}
	if strings.Contains(body, "SR-2024-001") {
		t.Error("live mode must not show the example request")
	}
}

func TestIndexShowsAccount(t *testing.T) {
	h, _ := newPortal(t, nil)
	req, s, _ := withProvider(t, httptest.NewRequest(http.MethodGet, "/", nil))
	s.Login("mock-token", model.User{ID: "1", Email: "a@b.com", FirstName: "John", LastName: "Doe"})

	rec := httptest.NewRecorder()
	h.Index(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "John Doe") || !strings.Contains(body, `action="/logout"`) {
		t.Error("expected account name and logout button")
	}
}
