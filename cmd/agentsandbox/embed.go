package main

import _ "embed"

// toolboxWasm is the compiled guest binary (package guest, built with
// GOOS=wasip1 GOARCH=wasm; see the guest-wasm Makefile target). The checked
// in toolbox.wasm is a placeholder until that build step runs; main wires
// whatever bytes are present into package sandbox via SetToolboxWasm
// regardless, so a Sandbox constructed without rebuilding fails lazily
// with KindToolboxNotAvailable on first Exec rather than at startup.
//
//go:embed toolbox.wasm
var toolboxWasm []byte
