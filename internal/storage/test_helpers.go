package storage

import (
	"context"
	"testing"
	"time"
)

// testContext returns a context that expires well before the test deadline
// so a hung store connection fails the test instead of wedging the run.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
