package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"agenda/internal/config"

	"github.com/go-chi/chi/v5"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permManageCompanies  = "manage:companies"
	permReadAppointments = "read:appointments"
	permWriteAppointment = "write:appointments"
	permReadBlocks       = "read:blocks"
	permWriteBlocks      = "write:blocks"
	permReadReports      = "read:reports"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
)

type requestInfoKey struct{}

// requestInfo is filled in by inner handlers and read back by the logger.
type requestInfo struct {
	client string
}

// HTTPAuth authenticates staff requests by API key plus a shared extra
// header, checks per-route permissions and company scope, and rate limits
// per key.
type HTTPAuth struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
	limiter *keyedLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m, limiter: newKeyedLimiter(cfg.RateLimit)}
}

// Require returns middleware that authenticates the caller and demands
// permission. Inside a {companyID} route the key must also cover that company.
func (a *HTTPAuth) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client, err := a.authenticate(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !hasPermission(client, permission) || !coversCompany(client, chi.URLParam(r, "companyID")) {
				writeError(w, http.StatusForbidden, errPermissionDenied.Error())
				return
			}
			if !a.limiter.Allow(client.Key) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
				info.client = client.Name
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *HTTPAuth) authenticate(r *http.Request) (config.APIClientKey, error) {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingCredentials
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

// hasPermission treats an empty permission list as allow-all.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func coversCompany(client config.APIClientKey, companyID string) bool {
	if companyID == "" || len(client.CompanyIDs) == 0 {
		return true
	}
	for _, id := range client.CompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// remoteHost is the caller address without port.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return clientKeyUnknown
}
