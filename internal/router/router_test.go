package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/next-bot/internal/config"
	"github.com/ashwinyue/next-bot/internal/handler"
	"github.com/ashwinyue/next-bot/internal/logger"
	"github.com/ashwinyue/next-bot/internal/repository"
	"github.com/ashwinyue/next-bot/internal/router"
	"github.com/ashwinyue/next-bot/internal/service"
	"github.com/ashwinyue/next-bot/internal/testutil"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiServer struct {
	t      *testing.T
	engine *gin.Engine
	repos  *repository.Repositories
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Security.EncryptionKey = "0123456789abcdef0123456789abcdef"

	repos := repository.NewRepositories(testutil.NewTestDB(t))
	reg := prometheus.NewRegistry()
	svc, err := service.NewServices(context.Background(), repos, cfg, service.Deps{
		Registerer: reg,
		Logger:     logger.Discard(),
	})
	require.NoError(t, err)

	return &apiServer{
		t:     t,
		repos: repos,
		engine: router.SetupRouter(handler.NewHandlers(svc), router.Options{
			Gatherer: reg,
			Logger:   logger.Discard(),
		}),
	}
}

func (s *apiServer) do(method, path, userID string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode(t *testing.T, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHealthAndAuth(t *testing.T) {
	s := newAPIServer(t)

	w, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/tools", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListTools(t *testing.T) {
	s := newAPIServer(t)

	w, env := s.do(http.MethodGet, "/api/v1/tools", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, decode(t, env.Data)["total"])

	w, env = s.do(http.MethodGet, "/api/v1/tools?type=CONTACT_FORM", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, env.Data)
	assert.EqualValues(t, 1, data["total"])
	assert.Equal(t, "lead-capture", data["items"].([]interface{})[0].(map[string]interface{})["id"])

	w, _ = s.do(http.MethodGet, "/api/v1/tools/missing", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeadCaptureFlow(t *testing.T) {
	s := newAPIServer(t)

	w, _ := s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/lead-capture", "user-1", map[string]interface{}{
		"config": map[string]interface{}{"requiredFields": []string{"name", "email"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env := s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/lead-capture/execute/saveLead", "user-1", map[string]interface{}{
		"params":         map[string]interface{}{"name": "Ada"},
		"conversationId": "conv-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, env.Data)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "MISSING_REQUIRED_FIELDS", res["error"].(map[string]interface{})["code"])

	w, env = s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/lead-capture/execute/saveLead", "user-1", map[string]interface{}{
		"params":         map[string]interface{}{"name": "Ada", "email": "ada@example.com"},
		"conversationId": "conv-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	res = decode(t, env.Data)
	require.Equal(t, true, res["success"], w.Body.String())
	leadID := res["data"].(map[string]interface{})["leadId"].(string)

	saved, err := s.repos.Lead.GetByID(context.Background(), leadID)
	require.NoError(t, err)
	assert.Equal(t, "conv-1", saved.ConversationID)

	// 停用后执行被跳过
	w, _ = s.do(http.MethodPut, "/api/v1/bots/bot-1/tools/lead-capture/enabled", "user-1", map[string]interface{}{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	_, env = s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/lead-capture/execute/detectTrigger", "user-1", map[string]interface{}{
		"params": map[string]interface{}{"message": "quote please"},
	})
	res = decode(t, env.Data)
	assert.Equal(t, true, res["skipped"])

	w, _ = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "next_bot_tool_executions_total")
}

func TestInstallValidation(t *testing.T) {
	s := newAPIServer(t)

	w, _ := s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/gohighlevel-calendar", "user-1", map[string]interface{}{
		"config": map[string]interface{}{"calendarId": "cal-1"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/nope", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(http.MethodPut, "/api/v1/bots/bot-1/tools/lead-capture/enabled", "user-1", map[string]interface{}{"enabled": true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCalendarCredentialFlow(t *testing.T) {
	s := newAPIServer(t)

	w, _ := s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/google-calendar", "user-1", map[string]interface{}{
		"config": map[string]interface{}{"calendarId": "primary", "timeZone": "UTC"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	_, env := s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/google-calendar/execute/listAvailableSlots", "user-1", map[string]interface{}{})
	assert.Equal(t, "AUTH_REQUIRED", decode(t, env.Data)["error"].(map[string]interface{})["code"])

	_, env = s.do(http.MethodGet, "/api/v1/bots/bot-1/functions", "user-1", nil)
	assert.EqualValues(t, 0, decode(t, env.Data)["total"])

	w, env = s.do(http.MethodPost, "/api/v1/credentials", "user-1", map[string]interface{}{
		"provider":    "google",
		"credentials": map[string]interface{}{"access_token": "super-secret", "refresh_token": "also-secret"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "secret")
	cred := decode(t, env.Data)
	credID := cred["id"].(string)
	assert.Equal(t, "********", cred["credentials"].(map[string]interface{})["access_token"])

	stored, err := s.repos.Credential.GetByID(context.Background(), credID)
	require.NoError(t, err)
	assert.Equal(t, true, stored.Credentials["__encrypted"])

	w, _ = s.do(http.MethodGet, "/api/v1/credentials/"+credID, "user-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	w, _ = s.do(http.MethodGet, "/api/v1/credentials/"+credID, "user-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/credentials?provider=google", "user-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, env.Data)["total"])

	// 其他用户不能把该凭证关联到自己的 bot
	w, _ = s.do(http.MethodPost, "/api/v1/bots/bot-2/tools/google-calendar", "user-2", map[string]interface{}{
		"config": map[string]interface{}{"calendarId": "primary", "timeZone": "UTC"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, _ = s.do(http.MethodPut, "/api/v1/bots/bot-2/tools/google-calendar/credential", "user-2", map[string]interface{}{"credentialId": credID})
	assert.Equal(t, http.StatusNotFound, w.Code)
	_, env = s.do(http.MethodPost, "/api/v1/bots/bot-2/tools/google-calendar/execute/listAvailableSlots", "user-2", map[string]interface{}{})
	assert.Equal(t, "AUTH_REQUIRED", decode(t, env.Data)["error"].(map[string]interface{})["code"])

	w, _ = s.do(http.MethodPut, "/api/v1/bots/bot-1/tools/google-calendar/credential", "user-1", map[string]interface{}{"credentialId": credID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	_, env = s.do(http.MethodGet, "/api/v1/bots/bot-1/functions", "user-1", nil)
	data := decode(t, env.Data)
	assert.EqualValues(t, 5, data["total"])
	names := make([]string, 0)
	for _, item := range data["items"].([]interface{}) {
		names = append(names, item.(map[string]interface{})["name"].(string))
	}
	assert.Contains(t, names, "google-calendar__bookAppointment")

	// 最后一个引用解除后凭证被删除
	w, _ = s.do(http.MethodDelete, "/api/v1/bots/bot-1/tools/google-calendar", "user-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	_, err = s.repos.Credential.GetByID(context.Background(), credID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCustomToolFlow(t *testing.T) {
	s := newAPIServer(t)

	var got map[string]interface{}
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temperature":21}`))
	}))
	defer webhook.Close()

	w, env := s.do(http.MethodPost, "/api/v1/tools/custom", "user-1", map[string]interface{}{
		"name":        "Weather",
		"description": "Current weather",
		"serverUrl":   webhook.URL,
		"secretToken": "tok",
		"parameters": []map[string]interface{}{
			{"name": "city", "type": "string", "required": true},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	toolID := decode(t, env.Data)["id"].(string)

	w, env = s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/"+toolID+"/execute/execute", "user-1", map[string]interface{}{
		"params": map[string]interface{}{"city": "Paris"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, env.Data)
	require.Equal(t, true, res["success"], w.Body.String())
	assert.EqualValues(t, 21, res["data"].(map[string]interface{})["temperature"])
	assert.Equal(t, "Paris", got["parameters"].(map[string]interface{})["city"])
	assert.Equal(t, "user-1", got["context"].(map[string]interface{})["userId"])

	w, _ = s.do(http.MethodDelete, "/api/v1/tools/custom/"+toolID, "user-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	_, env = s.do(http.MethodPost, "/api/v1/bots/bot-1/tools/"+toolID+"/execute/execute", "user-1", map[string]interface{}{
		"params": map[string]interface{}{"city": "Paris"},
	})
	assert.Equal(t, "TOOL_NOT_FOUND", decode(t, env.Data)["error"].(map[string]interface{})["code"])

	w, _ = s.do(http.MethodDelete, "/api/v1/tools/custom/lead-capture", "user-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
