package bridge_test

import (
	"context"
	"testing"

	"github.com/calvinalkan/agent-sandbox/sandbox/bridge"
)

func Test_Do_Fails_When_BridgeHasNoPolicy(t *testing.T) {
	t.Parallel()

	b := bridge.New(nil, nil)

	_, err := b.Do(context.Background(), bridge.Request{URL: "https://example.com"})
	if err == nil {
		t.Fatal("expected an error for a disabled bridge, got nil")
	}
}

func Test_Do_RejectsWithResponse_When_HostMatchesBlockedDomain(t *testing.T) {
	t.Parallel()

	b := bridge.New(&bridge.Policy{
		BlockedDomains: []string{"*.internal.example.com"},
	}, nil)

	resp, err := b.Do(context.Background(), bridge.Request{URL: "https://admin.internal.example.com/"})
	if err != nil {
		t.Fatalf("Do returned a Go error, want a policy-rejection Response: %v", err)
	}

	if resp.OK {
		t.Fatal("expected OK=false for a blocked domain")
	}

	if resp.Error == "" {
		t.Fatal("expected a non-empty Error message")
	}
}

func Test_Do_RejectsWithResponse_When_HostNotInAllowList(t *testing.T) {
	t.Parallel()

	b := bridge.New(&bridge.Policy{
		AllowedDomains: []string{"api.example.com"},
	}, nil)

	resp, err := b.Do(context.Background(), bridge.Request{URL: "https://other.example.com/"})
	if err != nil {
		t.Fatalf("Do returned a Go error, want a policy-rejection Response: %v", err)
	}

	if resp.OK {
		t.Fatal("expected OK=false for a host outside the allow-list")
	}
}

func Test_Enabled_ReflectsWhetherPolicyWasProvided(t *testing.T) {
	t.Parallel()

	if (bridge.New(nil, nil)).Enabled() {
		t.Fatal("expected Enabled()=false for a nil policy")
	}

	if !(bridge.New(&bridge.Policy{}, nil)).Enabled() {
		t.Fatal("expected Enabled()=true for a non-nil policy")
	}
}
