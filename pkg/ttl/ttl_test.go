package ttl

import (
	"context"
	"testing"
	"time"

	"github.com/isaacriehm/memory-mcp/pkg/config"
)

func TestDaemonStartStop(t *testing.T) {
	d := New(nil, nil, config.Config{})
	d.Start(context.Background())
	// The sweep ticker fires hourly, so Stop must return well before that
	// without ever touching the nil store.
	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}

func TestDaemonStartIsIdempotent(t *testing.T) {
	d := New(nil, nil, config.Config{})
	d.Start(context.Background())
	defer d.Stop()

	firstCancel := d.cancel
	d.Start(context.Background())
	if d.cancel == nil || firstCancel == nil {
		t.Fatal("expected cancel to be set after Start")
	}
}

func TestDaemonStopWithoutStartIsNoop(t *testing.T) {
	d := New(nil, nil, config.Config{})
	d.Stop()
}
