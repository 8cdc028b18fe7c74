package bridge

import (
	"context"
	"fmt"

	"github.com/bytecodealliance/wasmtime-go/v25"
)

// call holds the state of the in-flight fetch response a guest is reading
// back via __sandbox_fetch_response_len/__sandbox_fetch_response_read.
// DefineHostFuncs creates one call per linker, and sandbox/runtime.Run builds
// a new linker for every invocation, so concurrent invocations that share a
// Bridge each read back their own response.
type call struct {
	lastResponse []byte
}

// DefineHostFuncs registers the three-function fetch ABI on linker under the
// "sandbox" import module name, backed by b. ctx is used for the outbound
// HTTP call's deadline/cancellation.
func DefineHostFuncs(ctx context.Context, linker *wasmtime.Linker, b *Bridge) error {
	state := &call{}

	err := linker.FuncWrap("sandbox", "__sandbox_fetch", func(caller *wasmtime.Caller, reqPtr, reqLen int32) int32 {
		data := memoryData(caller)

		if reqPtr < 0 || reqLen < 0 || int(reqPtr+reqLen) > len(data) {
			return -1
		}

		reqBytes := make([]byte, reqLen)
		copy(reqBytes, data[reqPtr:reqPtr+reqLen])

		req, err := UnmarshalRequest(reqBytes)
		if err != nil {
			state.lastResponse, _ = MarshalResponse(Response{OK: false, Error: fmt.Sprintf("invalid fetch request: %v", err)})

			return 0
		}

		if !b.Enabled() {
			state.lastResponse, _ = MarshalResponse(Response{OK: false, Error: "bridge: networking disabled"})

			return -2
		}

		resp, err := b.Do(ctx, req)
		if err != nil {
			state.lastResponse, _ = MarshalResponse(Response{OK: false, Error: err.Error()})

			return 0
		}

		encoded, err := MarshalResponse(resp)
		if err != nil {
			return -1
		}

		state.lastResponse = encoded

		return 0
	})
	if err != nil {
		return fmt.Errorf("bridge: defining __sandbox_fetch: %w", err)
	}

	err = linker.FuncWrap("sandbox", "__sandbox_fetch_response_len", func() int32 {
		return int32(len(state.lastResponse))
	})
	if err != nil {
		return fmt.Errorf("bridge: defining __sandbox_fetch_response_len: %w", err)
	}

	err = linker.FuncWrap("sandbox", "__sandbox_fetch_response_read", func(caller *wasmtime.Caller, bufPtr, bufLen int32) int32 {
		data := memoryData(caller)

		n := len(state.lastResponse)
		if int(bufLen) < n {
			n = int(bufLen)
		}

		if bufPtr < 0 || int(bufPtr)+n > len(data) {
			return -1
		}

		copy(data[bufPtr:int(bufPtr)+n], state.lastResponse[:n])

		return int32(n)
	})
	if err != nil {
		return fmt.Errorf("bridge: defining __sandbox_fetch_response_read: %w", err)
	}

	return nil
}

func memoryData(caller *wasmtime.Caller) []byte {
	export := caller.GetExport("memory")
	if export == nil {
		return nil
	}

	mem := export.Memory()
	if mem == nil {
		return nil
	}

	return mem.UnsafeData(caller)
}
