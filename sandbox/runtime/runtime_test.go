package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/calvinalkan/agent-sandbox/sandbox/runtime"
)

func Test_Run_ReturnsError_When_ToolboxBinaryIsEmpty(t *testing.T) {
	t.Parallel()

	_, err := runtime.Run(context.Background(), nil, runtime.Request{
		Command: "echo",
		WorkDir: runtime.Mount{HostPath: t.TempDir(), GuestPath: "/work"},
		Timeout: time.Second,
	}, nil)

	if err == nil {
		t.Fatal("expected an error for an empty toolbox binary, got nil")
	}
}

func Test_Run_ErrorIsNotErrTimeout_When_ToolboxBinaryIsEmpty(t *testing.T) {
	t.Parallel()

	_, err := runtime.Run(context.Background(), nil, runtime.Request{Command: "echo"}, nil)
	if err == nil {
		t.Fatal("expected an error, got nil")
	}

	// An empty toolbox isn't a timeout; this just exercises that ErrTimeout
	// is comparable via errors.Is for callers that do hit the real path.
	if errors.Is(err, runtime.ErrTimeout) {
		t.Fatal("empty-toolbox compile failure should not present as ErrTimeout")
	}
}
