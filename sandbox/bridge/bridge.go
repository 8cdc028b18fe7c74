// Package bridge implements the host side of the sandbox's synchronous
// fetch bridge: the guest calls three imported functions
// (__sandbox_fetch, __sandbox_fetch_response_len,
// __sandbox_fetch_response_read) in the "sandbox" import namespace; this
// package answers them by running a real HTTP request on the host (subject
// to a [sandbox.FetchPolicy]) and handing the JSON-encoded response back
// across the linear memory boundary.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// Request mirrors the JSON shape the guest's fetch.rs-derived client sends.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    *string           `json:"body"`
}

// Response mirrors the JSON shape the guest expects back.
type Response struct {
	Status  uint16            `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	OK      bool              `json:"ok"`
	Error   string            `json:"error,omitempty"`
}

// Policy is the resolved, defaulted fetch policy a Bridge enforces. It
// mirrors sandbox.FetchPolicy without importing package sandbox, to avoid a
// dependency cycle (sandbox imports bridge, not the reverse).
type Policy struct {
	AllowedDomains       []string
	BlockedDomains       []string
	DenyPrivateIPs       bool
	MaxRedirects         int
	ConnectTimeout       time.Duration
	RequestTimeout       time.Duration
	MaxResponseBodyBytes int64
	RateLimit            *RateLimit
}

// RateLimit configures the token-bucket limiter guarding a Bridge.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// Bridge answers fetch requests on behalf of one sandbox instance.
type Bridge struct {
	policy  Policy
	client  *fasthttp.Client
	limiter *rate.Limiter
	debugf  func(string, ...any)
}

// New constructs a Bridge enforcing policy. A nil policy disables fetching
// entirely; Do always returns an error in that case.
func New(policy *Policy, debugf func(string, ...any)) *Bridge {
	b := &Bridge{debugf: debugf}

	if policy == nil {
		return b
	}

	b.policy = *policy

	b.client = &fasthttp.Client{
		MaxConnsPerHost:           64,
		ReadTimeout:               policy.RequestTimeout,
		WriteTimeout:              policy.RequestTimeout,
		MaxIdemponentCallAttempts: 1,
	}

	if policy.ConnectTimeout > 0 {
		connectTimeout := policy.ConnectTimeout
		b.client.Dial = func(addr string) (net.Conn, error) {
			return fasthttp.DialTimeout(addr, connectTimeout)
		}
	}

	if policy.RateLimit != nil {
		b.limiter = rate.NewLimiter(rate.Limit(policy.RateLimit.RequestsPerSecond), policy.RateLimit.Burst)
	}

	return b
}

// Enabled reports whether this Bridge was constructed with a non-nil policy.
func (b *Bridge) Enabled() bool {
	return b.client != nil
}

// Do executes req against the configured policy and returns the response the
// guest should see. It never returns a Go error for HTTP-level failures
// (connection refused, DNS failure, timeout) — those come back as a
// Response with OK=false and Error set, matching what the guest's fetch()
// wire protocol expects. Policy rejections (blocked domain, host outside the
// allow-list, private address) are reported the same way. A Go error is only
// returned when networking is disabled or the rate-limit wait fails.
func (b *Bridge) Do(ctx context.Context, req Request) (Response, error) {
	if !b.Enabled() {
		return Response{}, fmt.Errorf("bridge: networking disabled")
	}

	host, err := hostOf(req.URL)
	if err != nil {
		return Response{OK: false, Error: err.Error()}, nil
	}

	if err := b.checkDomainPolicy(host); err != nil {
		return Response{OK: false, Error: err.Error()}, nil
	}

	if b.policy.DenyPrivateIPs {
		if blocked, err := hostResolvesToPrivateIP(host); err != nil {
			return Response{OK: false, Error: err.Error()}, nil
		} else if blocked {
			return Response{OK: false, Error: fmt.Sprintf("fetch blocked: %q resolves to a private address", host)}, nil
		}
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("bridge: rate limit wait: %w", err)
		}
	}

	return b.doRequest(ctx, req)
}

func (b *Bridge) doRequest(ctx context.Context, req Request) (Response, error) {
	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()

	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	method := req.Method
	if method == "" {
		method = fasthttp.MethodGet
	}

	httpReq.SetRequestURI(req.URL)
	httpReq.Header.SetMethod(method)

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if req.Body != nil {
		httpReq.SetBodyString(*req.Body)
	}

	httpReq.Header.SetNoDefaultContentType(true)
	httpReq.SetMaxRedirects(maxInt(b.policy.MaxRedirects, 0))

	timeout := b.policy.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	err := b.client.DoDeadline(httpReq, httpResp, deadline)
	if err != nil {
		if b.debugf != nil {
			b.debugf("bridge: fetch %s %q failed: %v", method, req.URL, err)
		}

		return Response{OK: false, Error: err.Error()}, nil
	}

	body := httpResp.Body()

	maxBody := b.policy.MaxResponseBodyBytes
	if maxBody > 0 && int64(len(body)) > maxBody {
		body = body[:maxBody]
	}

	headers := map[string]string{}
	httpResp.Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})

	status := httpResp.StatusCode()

	return Response{
		Status:  uint16(status),
		Headers: headers,
		Body:    string(body),
		OK:      status >= 200 && status < 300,
	}, nil
}

func (b *Bridge) checkDomainPolicy(host string) error {
	for _, pattern := range b.policy.BlockedDomains {
		if domainMatches(pattern, host) {
			return fmt.Errorf("fetch blocked: %q matches blocked domain pattern %q", host, pattern)
		}
	}

	if b.policy.AllowedDomains == nil {
		return nil
	}

	for _, pattern := range b.policy.AllowedDomains {
		if domainMatches(pattern, host) {
			return nil
		}
	}

	return fmt.Errorf("fetch blocked: %q does not match any allowed domain pattern", host)
}

func domainMatches(pattern, host string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return len(host) > len(suffix) && strings.HasSuffix(host, "."+suffix)
	}

	return pattern == host
}

func hostOf(rawURL string) (string, error) {
	// Lightweight extraction avoiding a full net/url dependency pull-in for
	// a single field; fasthttp.URI is used for the real parse inside
	// doRequest via SetRequestURI.
	u := fasthttp.AcquireURI()
	defer fasthttp.ReleaseURI(u)

	if err := u.Parse(nil, []byte(rawURL)); err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	host := string(u.Host())
	if host == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", rawURL)
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h, nil
	}

	return host, nil
}

func hostResolvesToPrivateIP(host string) (bool, error) {
	if ip := net.ParseIP(host); ip != nil {
		return isPrivateIP(ip), nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return false, fmt.Errorf("resolving %q: %w", host, err)
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return true, nil
		}
	}

	return false, nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

// MarshalRequest and UnmarshalResponse round-trip the wire JSON shapes the
// guest side (guest/fetch) encodes and decodes across the linear memory
// boundary described by the __sandbox_fetch* ABI.
func MarshalRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func UnmarshalRequest(data []byte) (Request, error) {
	var req Request

	err := json.Unmarshal(data, &req)

	return req, err
}

func MarshalResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}
