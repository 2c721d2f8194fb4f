package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// withSession runs fn against a scoped store session and always releases it,
// whether fn succeeds, fails or panics.
func withSession(ctx context.Context, store driven.Store, fn func(driven.Session) error) (err error) {
	sess, err := store.Session(ctx)
	if err != nil {
		return fmt.Errorf("open store session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close store session: %w", cerr)
		}
	}()
	return fn(sess)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
