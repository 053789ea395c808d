package calendar

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/ashwinyue/next-bot/internal/model"
	"github.com/ashwinyue/next-bot/internal/service/tool"
)

// TokenStore 保存刷新后的令牌
type TokenStore interface {
	UpdateCredential(ctx context.Context, id string, credentials map[string]interface{}) (*model.Credential, error)
}

// OAuthSettings OAuth 客户端参数
type OAuthSettings struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

func (s OAuthSettings) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURL,
		Scopes:       s.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// tokenFromCredentials 从存储的凭证中读取令牌，api_key 视为永不过期的访问令牌
func tokenFromCredentials(creds map[string]interface{}) (*oauth2.Token, bool, error) {
	if key := firstString(creds, "api_key", "apiKey"); key != "" {
		return &oauth2.Token{AccessToken: key, TokenType: "Bearer"}, true, nil
	}

	tok := &oauth2.Token{
		AccessToken:  firstString(creds, "access_token", "accessToken"),
		RefreshToken: firstString(creds, "refresh_token", "refreshToken"),
		TokenType:    firstString(creds, "token_type", "tokenType"),
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, false, ErrNoCredentials
	}
	tok.Expiry = expiryFromCredentials(creds)
	return tok, false, nil
}

// expiryFromCredentials 支持 expiry_date（毫秒）和 expires_at（RFC3339 或秒）
func expiryFromCredentials(creds map[string]interface{}) time.Time {
	if v, ok := creds["expiry_date"]; ok {
		if ms, ok := toInt64(v); ok && ms > 0 {
			return time.UnixMilli(ms)
		}
	}
	if v, ok := creds["expires_at"]; ok {
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
		}
		if sec, ok := toInt64(v); ok && sec > 0 {
			return time.Unix(sec, 0)
		}
	}
	return time.Time{}
}

// credentialsWithToken 合并新令牌，保留其余字段
func credentialsWithToken(base map[string]interface{}, tok *oauth2.Token) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+4)
	for k, v := range base {
		out[k] = v
	}
	out["access_token"] = tok.AccessToken
	if tok.RefreshToken != "" {
		out["refresh_token"] = tok.RefreshToken
	}
	if tok.TokenType != "" {
		out["token_type"] = tok.TokenType
	}
	if !tok.Expiry.IsZero() {
		out["expiry_date"] = tok.Expiry.UnixMilli()
	}
	delete(out, "accessToken")
	delete(out, "refreshToken")
	return out
}

// persistingTokenSource 访问令牌变化时回写凭证
type persistingTokenSource struct {
	base    oauth2.TokenSource
	persist func(*oauth2.Token)

	mu      sync.Mutex
	current string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	rotated := tok.AccessToken != s.current
	s.current = tok.AccessToken
	s.mu.Unlock()
	if rotated {
		s.persist(tok)
	}
	return tok, nil
}

// authorizedClient 基于凭证创建带自动刷新的 HTTP 客户端
func authorizedClient(ctx context.Context, settings OAuthSettings, ec *tool.ExecutionContext, base *http.Client, store TokenStore, logger *slog.Logger) (*http.Client, error) {
	if ec == nil || len(ec.Credentials) == 0 {
		return nil, ErrNoCredentials
	}
	tok, static, err := tokenFromCredentials(ec.Credentials)
	if err != nil {
		return nil, err
	}
	if base == nil {
		base = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	if static || settings.ClientID == "" || tok.RefreshToken == "" {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)), nil
	}

	credentials := ec.Credentials
	credentialID := ec.CredentialID
	ts := &persistingTokenSource{
		base:    settings.config().TokenSource(ctx, tok),
		current: tok.AccessToken,
		persist: func(fresh *oauth2.Token) {
			if store == nil || credentialID == "" {
				return
			}
			logger.Info("oauth token refreshed", "credential_id", credentialID)
			tool.NonCritical(ctx, logger, "persist_oauth_token", func(ctx context.Context) error {
				_, err := store.UpdateCredential(ctx, credentialID, credentialsWithToken(credentials, fresh))
				return err
			})
		},
	}
	return oauth2.NewClient(ctx, ts), nil
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
