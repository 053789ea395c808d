package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/service/tool"
	"github.com/ashwinyue/next-bot/internal/testutil"
)

func TestGoogleClient_Events(t *testing.T) {
	var created map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("sendUpdates"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "evt-1",
			"status":   "confirmed",
			"summary":  created["summary"],
			"htmlLink": "https://calendar.example/evt-1",
			"start":    created["start"],
			"end":      created["end"],
		})
	})
	mux.HandleFunc("DELETE /calendars/primary/events/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("DELETE /calendars/primary/events/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend error", http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []interface{}{
				map[string]interface{}{"id": "a", "status": "confirmed", "summary": "A", "start": map[string]string{"dateTime": "2025-01-06T10:00:00Z"}, "end": map[string]string{"dateTime": "2025-01-06T10:30:00Z"}},
				map[string]interface{}{"id": "b", "status": "cancelled"},
				map[string]interface{}{"id": "c", "status": "confirmed", "summary": "All day", "start": map[string]string{"date": "2025-01-07"}, "end": map[string]string{"date": "2025-01-08"}},
			},
		})
	})
	mux.HandleFunc("POST /freeBusy", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"calendars": map[string]interface{}{
				"primary": map[string]interface{}{
					"busy": []interface{}{map[string]string{"start": "2025-01-06T10:00:00Z", "end": "2025-01-06T10:30:00Z"}},
				},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	cfg := mustConfig(t, nil)
	client := NewGoogleClient(srv.Client(), srv.URL)

	ev, err := client.CreateEvent(ctx, cfg, &Event{
		Title:    "Intro call",
		Start:    at(monday, 10, 0),
		End:      at(monday, 10, 30),
		Attendee: Attendee{Name: "Ada", Email: "ada@example.com", Phone: "+1555"},
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, at(monday, 10, 0), ev.Start.UTC())
	assert.Equal(t, "+1555", ev.Attendee.Phone)
	assert.Equal(t, "Intro call", created["summary"])
	attendees := created["attendees"].([]interface{})
	assert.Equal(t, "ada@example.com", attendees[0].(map[string]interface{})["email"])

	assert.NoError(t, client.CancelEvent(ctx, cfg, "gone"))
	err = client.CancelEvent(ctx, cfg, "broken")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)

	events, err := client.ListEvents(ctx, cfg, monday, monday.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), events[1].Start)

	busy, err := client.BusyIntervals(ctx, cfg, monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, at(monday, 10, 0), busy[0].Start.UTC())
}

func TestGoHighLevelClient_CreateEvent(t *testing.T) {
	var appointment map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /contacts/upsert", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultGoHighLevelVersion, r.Header.Get("Version"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"contact": map[string]string{"id": "contact-1"}})
	})
	mux.HandleFunc("POST /calendars/events/appointments", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&appointment))
		appointment["id"] = "appt-1"
		_ = json.NewEncoder(w).Encode(appointment)
	})
	mux.HandleFunc("GET /calendars/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "loc-1", r.URL.Query().Get("locationId"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"events": []interface{}{
				map[string]string{"id": "x", "startTime": "2025-01-06T10:00:00Z", "endTime": "2025-01-06T10:30:00Z", "appointmentStatus": "confirmed"},
				map[string]string{"id": "y", "startTime": "2025-01-06T11:00:00Z", "endTime": "2025-01-06T11:30:00Z", "appointmentStatus": "cancelled"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	client := NewGoHighLevelClient(srv.Client(), srv.URL, "", nil)

	_, err := client.CreateEvent(ctx, mustConfig(t, nil), &Event{Title: "x"})
	assert.ErrorIs(t, err, ErrMissingLocation)

	cfg := mustConfig(t, map[string]interface{}{"calendarId": "cal-1", "locationId": "loc-1"})
	ev, err := client.CreateEvent(ctx, cfg, &Event{
		Title:    "Demo",
		Start:    at(monday, 10, 0),
		End:      at(monday, 10, 30),
		Attendee: Attendee{Name: "Ada", Phone: "+1555"},
	})
	require.NoError(t, err)
	assert.Equal(t, "appt-1", ev.ID)
	assert.Equal(t, "contact-1", appointment["contactId"])
	assert.Equal(t, "cal-1", appointment["calendarId"])
	assert.Equal(t, at(monday, 10, 0), ev.Start.UTC())

	busy, err := client.BusyIntervals(ctx, cfg, monday, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, busy, 1)
}

type recordingStore struct {
	mu      sync.Mutex
	id      string
	payload map[string]interface{}
}

func (s *recordingStore) UpdateCredential(ctx context.Context, id string, credentials map[string]interface{}) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.payload = credentials
	return &model.Credential{ID: id}, nil
}

func TestAuthorizedClient_PersistsRefreshedToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh",
			"refresh_token": "r2",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := &recordingStore{}
	ec := &tool.ExecutionContext{
		CredentialID: "cred-1",
		Credentials: map[string]interface{}{
			"access_token":  "stale",
			"refresh_token": "r1",
			"expiry_date":   float64(time.Now().Add(-time.Hour).UnixMilli()),
			"scope":         "calendar",
		},
	}
	settings := OAuthSettings{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL + "/token"}

	hc, err := authorizedClient(context.Background(), settings, ec, srv.Client(), store, nil)
	require.NoError(t, err)
	resp, err := hc.Get(srv.URL + "/ping")
	require.NoError(t, err)
	resp.Body.Close()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, "cred-1", store.id)
	assert.Equal(t, "fresh", store.payload["access_token"])
	assert.Equal(t, "r2", store.payload["refresh_token"])
	assert.Equal(t, "calendar", store.payload["scope"])
	assert.NotZero(t, store.payload["expiry_date"])
}

func TestAuthorizedClient_StaticTokens(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	store := &recordingStore{}
	for _, creds := range []map[string]interface{}{
		{"api_key": "pit-123"},
		{"accessToken": "pit-123"},
	} {
		hc, err := authorizedClient(context.Background(), OAuthSettings{}, &tool.ExecutionContext{Credentials: creds, CredentialID: "c"}, srv.Client(), store, nil)
		require.NoError(t, err)
		resp, err := hc.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "Bearer pit-123", auth)
	}
	assert.Empty(t, store.id)

	_, err := authorizedClient(context.Background(), OAuthSettings{}, &tool.ExecutionContext{Credentials: map[string]interface{}{"x": "y"}}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestExpiryFromCredentials(t *testing.T) {
	ms := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, ms.UnixMilli(), expiryFromCredentials(map[string]interface{}{"expiry_date": float64(ms.UnixMilli())}).UnixMilli())
	assert.Equal(t, ms.Unix(), expiryFromCredentials(map[string]interface{}{"expires_at": "2025-01-06T10:00:00Z"}).Unix())
	assert.Equal(t, ms.Unix(), expiryFromCredentials(map[string]interface{}{"expires_at": float64(ms.Unix())}).Unix())
	assert.True(t, expiryFromCredentials(map[string]interface{}{}).IsZero())
}

func TestGoogleClientFactory_DefaultBaseURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	factory := NewGoogleClientFactory(OAuthSettings{}, "", testutil.NewTestClient(srv), nil, nil)
	client, err := factory(context.Background(), &tool.ExecutionContext{Credentials: map[string]interface{}{"access_token": "tok"}})
	require.NoError(t, err)

	events, err := client.ListEvents(context.Background(), mustConfig(t, nil), at(monday, 0, 0), at(monday, 23, 0))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = factory(context.Background(), &tool.ExecutionContext{})
	assert.ErrorIs(t, err, ErrNoCredentials)
}
