package async

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/catface996/aiops-executor/internal/logging"
)

func TestGoRecoversPanic(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewComponentLoggerTo("test", buf)

	var wg sync.WaitGroup
	wg.Add(1)
	Go(logger, "test-task", func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()

	if !strings.Contains(buf.String(), `background worker "test-task" panicked`) {
		t.Fatalf("expected panic log mentioning the worker name, got %q", buf.String())
	}
}

func TestGoRunsFnToCompletion(t *testing.T) {
	done := make(chan struct{})
	Go(nil, "ok-task", func() {
		close(done)
	})
	<-done
}
