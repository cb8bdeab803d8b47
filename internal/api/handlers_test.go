package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekklesia/commhub/internal/auth"
	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/domain"
	"github.com/ekklesia/commhub/internal/service/communication"
	"github.com/ekklesia/commhub/internal/service/contact"
	"github.com/ekklesia/commhub/internal/service/stats"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (s *memUsers) ByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Email]; ok {
		return auth.ErrEmailTaken
	}
	cp := *u
	s.users[u.Email] = &cp
	return nil
}

// memContacts backs both the contact service and the recipient resolver.
type memContacts struct {
	mu   sync.Mutex
	byID map[string]domain.Contact
}

func (m *memContacts) Get(_ context.Context, id string) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, contact.ErrNotFound
	}
	return &c, nil
}

func (m *memContacts) sorted() []domain.Contact {
	out := make([]domain.Contact, 0, len(m.byID))
	for _, c := range m.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phone < out[j].Phone })
	return out
}

func (m *memContacts) List(_ context.Context, f contact.ListFilter) ([]domain.Contact, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *memContacts) All(_ context.Context) ([]domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(), nil
}

func (m *memContacts) Create(_ context.Context, c *domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.byID {
		if o.Phone == c.Phone {
			return contact.ErrDuplicatePhone
		}
	}
	m.byID[c.ID] = *c
	return nil
}

func (m *memContacts) Update(_ context.Context, id string, u contact.UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return contact.ErrNotFound
	}
	if u.Name != nil {
		c.Name = u.Name
	}
	if u.Phone != nil {
		c.Phone = *u.Phone
	}
	m.byID[id] = c
	return nil
}

func (m *memContacts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return contact.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memContacts) DeleteMany(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := m.byID[id]; ok {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func (m *memContacts) Reachable(_ context.Context, ch domain.Channel) ([]domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Contact
	for _, c := range m.sorted() {
		if !c.OptedOut(ch) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memContacts) ReachableByTags(ctx context.Context, tags domain.Tags, ch domain.Channel) ([]domain.Contact, error) {
	all, _ := m.Reachable(ctx, ch)
	var out []domain.Contact
	for _, c := range all {
		if c.Tags.Intersects(tags) {
			out = append(out, c)
		}
	}
	return out, nil
}

type memComms struct {
	mu   sync.Mutex
	byID map[string]domain.Communication
}

func (m *memComms) Get(_ context.Context, id string) (*domain.Communication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, communication.ErrNotFound
	}
	return &c, nil
}

func (m *memComms) List(_ context.Context, _ communication.ListFilter) ([]domain.Communication, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Communication
	for _, c := range m.byID {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memComms) Create(_ context.Context, c *domain.Communication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = *c
	return nil
}

func (m *memComms) Update(_ context.Context, id string, u communication.UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return communication.ErrNotFound
	}
	if c.Status != domain.CommunicationDraft {
		return communication.ErrAlreadySent
	}
	if u.Message != nil {
		c.Message = *u.Message
	}
	m.byID[id] = c
	return nil
}

func (m *memComms) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return communication.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memComms) Dispatch(ctx context.Context, id string, fn communication.DispatchFunc) (*domain.Communication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, communication.ErrNotFound
	}
	t, err := fn(ctx, &c)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	c.Status = domain.CommunicationSent
	c.SentCount, c.FailedCount, c.Cost = t.SentCount, t.FailedCount, t.Cost
	c.Provider = &t.Provider
	c.SentAt = &now
	m.byID[id] = c
	return &c, nil
}

type fixedCounts struct{}

func (fixedCounts) Counts(context.Context, time.Time) (*stats.Counts, error) {
	return &stats.Counts{TotalContacts: 3, CommunicationsByStatus: map[string]int{"draft": 1}, CountsByType: map[string]int{"sms": 1}}, nil
}

type testEnv struct {
	handler  http.Handler
	contacts *memContacts
	comms    *memComms
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := &memUsers{users: map[string]*domain.User{}}
	m, err := auth.NewManager(config.AuthConfig{SecretKey: "test-secret"}, users)
	require.NoError(t, err)
	_, err = m.CreateUser(context.Background(), auth.RegisterInput{
		Email: "admin@church.test", Password: "s3cret-pass", Role: domain.RoleSuperAdmin,
	})
	require.NoError(t, err)
	pair, err := m.Login(context.Background(), "admin@church.test", "s3cret-pass")
	require.NoError(t, err)

	contacts := &memContacts{byID: map[string]domain.Contact{}}
	comms := &memComms{byID: map[string]domain.Communication{}}
	dispatcher := communication.NewDispatcher(comms, communication.NewResolver(contacts), nil)

	srv := NewServer(config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}}, Deps{
		Auth:           m,
		Contacts:       contact.NewService(contacts, nil),
		Communications: communication.NewService(comms, dispatcher),
		Stats:          stats.NewService(fixedCounts{}, nil, nil),
		Health:         NewHealthChecker(nil, nil, nil),
	})
	return &testEnv{handler: srv.Handler(), contacts: contacts, comms: comms, token: pair.AccessToken}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	hs := decodeBody[HealthStatus](t, rr)
	assert.Equal(t, "healthy", hs.Status)
	assert.Contains(t, hs.Checks, "database")
	assert.Contains(t, hs.Checks, "sms")

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "alive")
}

func TestAPIRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/contacts", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))

	env.token = "garbage"
	rr = env.do(t, http.MethodGet, "/api/contacts", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"admin@church.test","password":"s3cret-pass"}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		pair := decodeBody[auth.TokenPair](t, rr)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, "bearer", pair.TokenType)
	})

	t.Run("password form", func(t *testing.T) {
		form := url.Values{"username": {"admin@church.test"}, "password": {"s3cret-pass"}}
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	})

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"admin@church.test","password":"nope-nope"}`))
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("me", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/auth/me", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		u := decodeBody[domain.User](t, rr)
		assert.Equal(t, "admin@church.test", u.Email)
		assert.Equal(t, domain.RoleSuperAdmin, u.Role)
	})
}

func TestContactEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/contacts", map[string]any{"name": "Thabo", "phone": "082 123 4567", "tags": []string{"Kanana"}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decodeBody[domain.Contact](t, rr)
	assert.Equal(t, "+27821234567", created.Phone)
	assert.Equal(t, domain.Tags{"kanana"}, created.Tags)

	rr = env.do(t, http.MethodPost, "/api/contacts", map[string]any{"phone": "+27821234567"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/contacts", map[string]any{"phone": "12ab"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid_phone")
	assert.Len(t, env.contacts.byID, 1)

	rr = env.do(t, http.MethodGet, "/api/contacts/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/contacts/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/contacts?limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decodeBody[struct {
		Data       []domain.Contact `json:"data"`
		Pagination PaginationMeta   `json:"pagination"`
	}](t, rr)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 1, page.Pagination.Total)
	assert.Equal(t, 10, page.Pagination.Limit)

	rr = env.do(t, http.MethodGet, "/api/contacts/location-tags", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "kanana")
}

func TestMalformedPathIDsAreNotFound(t *testing.T) {
	env := newTestEnv(t)
	valid := "7d9f5c1e-3b2a-4c8d-9e0f-1a2b3c4d5e6f"

	tests := []struct {
		method string
		path   string
		code   string
	}{
		{http.MethodGet, "/api/communications/abc", "not_found"},
		{http.MethodPut, "/api/communications/abc", "not_found"},
		{http.MethodDelete, "/api/communications/abc", "not_found"},
		{http.MethodGet, "/api/communications/abc/status", "not_found"},
		{http.MethodPost, "/api/communications/abc/send", "not_found"},
		{http.MethodPost, "/api/communications/abc/send-bulk", "not_found"},
		{http.MethodGet, "/api/contacts/abc", "not_found"},
		{http.MethodPut, "/api/contacts/abc", "not_found"},
		{http.MethodDelete, "/api/contacts/abc", "not_found"},
		{http.MethodGet, "/api/scenarios/abc", "not_found"},
		{http.MethodDelete, "/api/scenarios/abc", "not_found"},
		{http.MethodGet, "/api/scenarios/abc/tasks", "not_found"},
		{http.MethodGet, "/api/scenarios/abc/statistics", "not_found"},
		{http.MethodPost, "/api/scenarios/" + valid + "/tasks/abc/complete", "not_found"},
		{http.MethodGet, "/api/attendance/contact/abc", "contact_not_found"},
		{http.MethodDelete, "/api/attendance/abc", "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, map[string]any{"message": "x"})
			assert.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
			assert.Contains(t, rr.Body.String(), tt.code)
		})
	}
}

func TestAddListAcceptsWrappedAndBareBodies(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/contacts/add-list", map[string]any{
		"contacts": []map[string]any{{"phone": "0821111111"}, {"phone": "bad"}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[contact.ImportResult](t, rr)
	assert.Equal(t, 1, res.ImportedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, 2, res.Total)

	rr = env.do(t, http.MethodPost, "/api/contacts/add-list", []map[string]any{{"phone": "0822222222"}, {"phone": "0821111111"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res = decodeBody[contact.ImportResult](t, rr)
	assert.Equal(t, 1, res.ImportedCount)
	assert.Equal(t, 1, res.SkippedCount)

	rr = env.do(t, http.MethodPost, "/api/contacts/add-list", map[string]any{"people": []string{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMassDelete(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for _, p := range []string{"0821111111", "0822222222", "0823333333"} {
		rr := env.do(t, http.MethodPost, "/api/contacts", map[string]any{"phone": p})
		require.Equal(t, http.StatusCreated, rr.Code)
		ids = append(ids, decodeBody[domain.Contact](t, rr).ID)
	}

	rr := env.do(t, http.MethodPost, "/api/contacts/mass-delete", []string{ids[0], "unknown"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"deleted_count":1`)

	rr = env.do(t, http.MethodPost, "/api/contacts/mass-delete", map[string]any{"ids": ids[1:]})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"deleted_count":2`)

	rr = env.do(t, http.MethodPost, "/api/contacts/mass-delete", []string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImportVCardUpload(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "contacts.vcf")
	require.NoError(t, err)
	fmt.Fprint(fw, "BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Lerato\r\nTEL;TYPE=CELL:0829998888\r\nEND:VCARD\r\n")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/contacts/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[contact.ImportResult](t, rr)
	assert.Equal(t, 1, res.ImportedCount)
}

func TestExportContacts(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/contacts", map[string]any{"name": "Sipho", "phone": "0824445555"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/contacts/export?format=vcf", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/vcard"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".vcf")
	assert.Equal(t, "1", rr.Header().Get("X-Contact-Count"))
	assert.Contains(t, rr.Body.String(), "TEL;TYPE=CELL:+27824445555")

	rr = env.do(t, http.MethodGet, "/api/contacts/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/contacts/export/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCommunicationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/contacts", map[string]any{"phone": "0821234567"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/communications", map[string]any{
		"recipient_group": "everyone", "message": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/communications", map[string]any{
		"message_type": "sms", "recipient_group": "all_contacts", "message": "Service at 9",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	c := decodeBody[domain.Communication](t, rr)
	assert.Equal(t, domain.CommunicationDraft, c.Status)
	assert.NotEmpty(t, c.CreatedBy)

	t.Run("send without providers is unavailable", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/communications/"+c.ID+"/send", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "sms_unavailable")
		assert.Equal(t, domain.CommunicationDraft, env.comms.byID[c.ID].Status)
	})

	t.Run("bulk with only invalid numbers", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/communications/"+c.ID+"/send-bulk", map[string]any{
			"phone_numbers": []string{"abc", "12"},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("already sent", func(t *testing.T) {
		sent := env.comms.byID[c.ID]
		sent.Status = domain.CommunicationSent
		env.comms.byID[c.ID] = sent

		rr := env.do(t, http.MethodPost, "/api/communications/"+c.ID+"/send", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)

		rr = env.do(t, http.MethodPut, "/api/communications/"+c.ID, map[string]any{"message": "changed"})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	rr = env.do(t, http.MethodGet, "/api/communications/"+c.ID+"/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/communications/providers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"providers":[]}`, rr.Body.String())

	rr = env.do(t, http.MethodDelete, "/api/communications/"+c.ID, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/communications/"+c.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	d := decodeBody[stats.Dashboard](t, rr)
	assert.Equal(t, 3, d.TotalContacts)
	assert.Equal(t, 0, d.Providers.TotalProviders)

	rr = env.do(t, http.MethodGet, "/api/stats/providers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total_providers":0,"providers":[]}`, rr.Body.String())
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: missing", contact.ErrValidation), http.StatusBadRequest},
		{communication.ErrNoRecipients, http.StatusUnprocessableEntity},
		{fmt.Errorf("load: %w", communication.ErrNotFound), http.StatusNotFound},
		{communication.ErrAlreadySent, http.StatusConflict},
		{communication.ErrSendInProgress, http.StatusConflict},
		{communication.ErrNoProviderAvailable, http.StatusServiceUnavailable},
		{auth.ErrForbidden, http.StatusForbidden},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{errors.New("pq: relation does not exist"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			respondError(rr, tt.err)
			assert.Equal(t, tt.status, rr.Code)
		})
	}

	rr := httptest.NewRecorder()
	respondError(rr, errors.New("pq: password authentication failed for user church"))
	assert.NotContains(t, rr.Body.String(), "church")
	assert.Contains(t, rr.Body.String(), "A database error occurred")
}

func TestSafeErrorMessage(t *testing.T) {
	assert.Equal(t, "bad input", safeErrorMessage(400, errors.New("bad input")))
	assert.Equal(t, "Request timed out", safeErrorMessage(500, context.DeadlineExceeded))
	assert.Equal(t, "Service temporarily unavailable", safeErrorMessage(502, errors.New("dial tcp 10.0.0.1:5432: connection refused")))
	assert.Equal(t, "An internal error occurred", safeErrorMessage(500, errors.New("boom")))
	assert.Equal(t, "An internal error occurred", safeErrorMessage(500, nil))
}

func TestParsePagination(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=3&limit=1000", nil)
	p := ParsePagination(r, 50, 500)
	assert.Equal(t, PaginationParams{Page: 3, Limit: 500, Offset: 1000}, p)

	r = httptest.NewRequest(http.MethodGet, "/?page=-1", nil)
	p = ParsePagination(r, 50, 500)
	assert.Equal(t, PaginationParams{Page: 1, Limit: 50, Offset: 0}, p)

	resp := NewPaginatedResponse([]int{1}, PaginationParams{Page: 1, Limit: 2}, 5)
	assert.Equal(t, 3, resp.Pagination.TotalPages)
	assert.True(t, resp.Pagination.HasMore)
}

func TestDetermineOverallStatus(t *testing.T) {
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: "ping failed"},
	}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"},
		"redis":    {Status: "down", Message: "ping failed"},
	}))
	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"},
		"sms":      {Status: "down", Message: "not configured"},
	}))
	assert.Equal(t, "2d 3h 4m 5s", formatUptime(2*24*time.Hour+3*time.Hour+4*time.Minute+5*time.Second))
}
