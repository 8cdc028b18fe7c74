// Package curlapplet implements the guest's "curl" command over the host
// fetch bridge. It lives outside package applets because it depends on
// package fetch's go:wasmimport declarations, which only compile for
// GOARCH=wasm; keeping it separate lets the rest of the toolbox (package
// applets, package shell) stay buildable and testable as ordinary
// cross-platform Go.
package curlapplet

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/calvinalkan/agent-sandbox/guest/fetch"
)

var valueFlags = map[string]bool{
	"-A": true, "--user-agent": true,
	"-b": true, "--cookie": true,
	"-e": true, "--referer": true,
	"-u": true, "--user": true,
	"--connect-timeout": true,
	"--max-time":         true,
}

// Run implements a curl-compatible command line over the host fetch
// bridge: -X/--request sets the method, -H/--header adds a request header
// (repeatable), -d/--data sets the body and upgrades a still-default GET to
// POST, -o/--output writes the response body to a file under the sandbox
// work directory instead of stdout. Other value-taking flags are accepted
// and their operand skipped; boolean flags are accepted and ignored.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	req := fetch.Request{Method: "GET", Headers: map[string]string{}}

	var (
		url        string
		outputPath string
		methodSet  bool
		bodySet    bool
	)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "-X" || arg == "--request":
			i++
			if i < len(args) {
				req.Method = args[i]
				methodSet = true
			}
		case arg == "-H" || arg == "--header":
			i++
			if i < len(args) {
				if name, value, ok := strings.Cut(args[i], ":"); ok {
					req.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
				}
			}
		case arg == "-d" || arg == "--data":
			i++
			if i < len(args) {
				body := args[i]
				req.Body = &body
				bodySet = true
			}
		case arg == "-o" || arg == "--output":
			i++
			if i < len(args) {
				outputPath = args[i]
			}
		case valueFlags[arg]:
			i++
		case strings.HasPrefix(arg, "-"):
			// Boolean flag (-v, -s, -L, --silent, --insecure, ...): accepted
			// and ignored.
		default:
			if url == "" {
				url = arg
			}
		}
	}

	if url == "" {
		fmt.Fprintln(stderr, "curl: no URL specified")

		return 1
	}

	if bodySet && !methodSet {
		req.Method = "POST"
	}

	req.URL = url

	resp, err := fetch.Do(req)
	if err != nil {
		fmt.Fprintf(stderr, "curl: %v\n", err)

		return 1
	}

	fmt.Fprintf(stderr, "HTTP %d\n", resp.Status)

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(resp.Body), 0o644); err != nil {
			fmt.Fprintf(stderr, "curl: writing %s: %v\n", outputPath, err)

			return 1
		}

		return 0
	}

	fmt.Fprint(stdout, resp.Body)

	if !resp.OK {
		return 1
	}

	return 0
}
