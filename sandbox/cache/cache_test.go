package cache_test

import (
	"testing"

	"github.com/calvinalkan/agent-sandbox/sandbox/cache"
)

func Test_Get_ReturnsSameError_When_CalledRepeatedlyWithEmptyBytes(t *testing.T) {
	first, firstErr := cache.Get(nil)
	if firstErr == nil {
		t.Fatal("expected an error for an empty toolbox binary, got nil")
	}

	if first != nil {
		t.Fatalf("module = %+v, want nil on compile failure", first)
	}

	second, secondErr := cache.Get([]byte{0, 1, 2, 3})
	if secondErr == nil {
		t.Fatal("expected the memoized error to be returned, got nil")
	}

	if secondErr.Error() != firstErr.Error() {
		t.Fatalf("second call returned a different error (%v) than the first (%v); cache should be memoized", secondErr, firstErr)
	}

	if second != nil {
		t.Fatalf("module = %+v, want nil on compile failure", second)
	}
}
