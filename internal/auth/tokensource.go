package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenSource returns an [oauth2.TokenSource] view of the cache so
// standard transports like [oauth2.NewClient] can consume it directly.
//
// The source shares the cache's coalescing and skew behavior; it never
// forces a refresh on its own.
func (c *TokenCache) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &cacheTokenSource{ctx: ctx, cache: c}
}

type cacheTokenSource struct {
	ctx   context.Context
	cache *TokenCache
}

func (s *cacheTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.cache.GetAccessToken(s.ctx, false)
	if err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken: token.Value,
		TokenType:   token.TokenType,
		Expiry:      token.ExpiresAt,
	}, nil
}
