package service

import (
	"context"
	"log/slog"
)

// autherMiddleware wraps an Auther with structured logging. Wired via
// fx.Decorate so handlers stay unaware of the cross-cutting concern.
type autherMiddleware struct {
	next   Auther
	logger *slog.Logger
}

func (m *autherMiddleware) Verify(ctx context.Context, token string) (string, error) {
	userID, err := m.next.Verify(ctx, token)
	if err != nil {
		// Token contents never reach the log.
		m.logger.WarnContext(ctx, "token verification failed", "error", err)
		return "", err
	}
	m.logger.DebugContext(ctx, "token verified", "user_id", userID)
	return userID, nil
}
