package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/offer-checkout/internal/domain/auth"
	"github.com/xenking/offer-checkout/pkg/httpmiddleware"
)

type apiKeyCtxKey struct{}

// APIKeyFromContext returns the key authenticated by Security.
func APIKeyFromContext(ctx context.Context) (auth.APIKeyInfo, bool) {
	info, ok := ctx.Value(apiKeyCtxKey{}).(auth.APIKeyInfo)
	return info, ok
}

// Security authenticates requests by the api_key header. Keys are stored as
// the HMAC-SHA256 of the raw key under pepper and must carry scope.
type Security struct {
	apikeys auth.Repository
	pepper  string
	scope   string
}

// NewSecurity returns a Security requiring scope on every key.
func NewSecurity(apikeys auth.Repository, pepper, scope string) *Security {
	return &Security{apikeys: apikeys, pepper: pepper, scope: scope}
}

var errUnauthorized = errors.New("unauthorized")

func (s *Security) authenticate(ctx context.Context, key string) (auth.APIKeyInfo, error) {
	if key == "" {
		return auth.APIKeyInfo{}, errUnauthorized
	}
	hash := auth.HashKey(key, s.pepper)
	info, err := s.apikeys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			return auth.APIKeyInfo{}, errUnauthorized
		}
		return auth.APIKeyInfo{}, errors.Wrap(err, "find api key")
	}

	// The lookup matched on the hash; compare again in constant time against
	// what was actually stored.
	computed, _ := hex.DecodeString(hash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return auth.APIKeyInfo{}, errUnauthorized
	}
	if s.scope != "" && !info.HasScope(s.scope) {
		return auth.APIKeyInfo{}, errors.Wrapf(errUnauthorized, "missing scope %q", s.scope)
	}
	return *info, nil
}

// Middleware rejects unauthenticated requests with 401.
func (s *Security) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := s.authenticate(r.Context(), r.Header.Get(httpmiddleware.APIKeyHeader))
		if err != nil {
			if !errors.Is(err, errUnauthorized) {
				zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
			}
			writeJSON(w, http.StatusUnauthorized, errorResponse{
				Code:    http.StatusUnauthorized,
				Message: "unauthorized",
			})
			return
		}
		ctx := context.WithValue(r.Context(), apiKeyCtxKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
