package main

import (
	"context"
	"time"

	"github.com/lunarvale/tonearm/internal/shared"
	"github.com/urfave/cli/v3"
)

// TokenStatus reports the cached token without triggering a refresh.
func (r *Runner) TokenStatus(ctx context.Context, cmd *cli.Command) error {
	token, usable := r.tokens.Cached()

	if token == nil {
		return r.writePlain("No token cached\n")
	}

	r.writePlain("Token: %s\n", shared.Redact(token.Value))
	r.writePlain("Type: %s\n", token.TokenType)
	r.writePlain("Expires: %s\n", token.ExpiresAt.Format(time.RFC3339))
	if usable {
		r.writePlain("Status: ✓ usable\n")
	} else {
		r.writePlain("Status: ✗ expired or expiring\n")
	}

	return nil
}

// TokenFetch acquires a token, hitting the upstream issuance endpoint
// only when the cache cannot serve the request.
func (r *Runner) TokenFetch(ctx context.Context, cmd *cli.Command) error {
	force := cmd.Bool("force")

	r.logger.Info("fetching access token", "force", force)

	token, err := r.tokens.GetAccessToken(ctx, force)
	if err != nil {
		return err
	}

	r.writePlain("✓ Token acquired\n")
	r.writePlain("Token: %s\n", shared.Redact(token.Value))
	r.writePlain("Expires: %s\n", token.ExpiresAt.Format(time.RFC3339))

	return nil
}

// TokenClear drops the cached token so the next request fetches a new one.
func (r *Runner) TokenClear(ctx context.Context, cmd *cli.Command) error {
	r.tokens.ClearCache()
	r.logger.Info("token cache cleared")
	return r.writePlain("✓ Token cache cleared\n")
}
