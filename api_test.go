package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/hub/store"
)

func newAPIFixture(t *testing.T) (*APIServer, *Hub) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hub := NewHub(DefaultConfig(), st)
	return NewAPIServer(hub), hub
}

func apiGet(t *testing.T, s *APIServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestAPIHealth(t *testing.T) {
	s, hub := newAPIFixture(t)
	_, err := hub.reg.Register(quietConn(t), "alice")
	require.NoError(t, err)

	rec := apiGet(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Participants)
}

func TestAPIRosterJoinOrder(t *testing.T) {
	s, hub := newAPIFixture(t)
	_, err := hub.reg.Register(quietConn(t), "alice")
	require.NoError(t, err)
	_, err = hub.reg.Register(quietConn(t), "bob")
	require.NoError(t, err)

	rec := apiGet(t, s, "/api/roster")
	require.Equal(t, http.StatusOK, rec.Code)

	var users []RosterUser
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, RosterUser{ID: 0, Username: "alice"}, users[0])
	assert.Equal(t, RosterUser{ID: 1, Username: "bob"}, users[1])
}

func TestAPIPresenter(t *testing.T) {
	s, hub := newAPIFixture(t)
	p, err := hub.reg.Register(quietConn(t), "alice")
	require.NoError(t, err)

	rec := apiGet(t, s, "/api/presenter")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PresenterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Presenter, "free lease reports null")

	granted, _ := hub.screen.Acquire(p.ID, nil)
	require.True(t, granted)

	rec = apiGet(t, s, "/api/presenter")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Presenter)
	assert.Equal(t, p.ID, *resp.Presenter)
}

func TestAPIFiles(t *testing.T) {
	s, hub := newAPIFixture(t)

	rec := apiGet(t, s, "/api/files")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	_, err := hub.store.AddFile("notes.txt", 0, "alice", []byte("0123456789"))
	require.NoError(t, err)

	rec = apiGet(t, s, "/api/files")
	var files []FileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 1)
	assert.Equal(t, FileResponse{
		ID:           0,
		Name:         "notes.txt",
		Size:         10,
		UploaderID:   0,
		UploaderName: "alice",
	}, files[0])
}

func TestAPIMetricsExposed(t *testing.T) {
	s, _ := newAPIFixture(t)
	rec := apiGet(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "huddle_participants")
}
