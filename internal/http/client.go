// Package http builds the net/http clients used to reach the TableRAG API and
// upload sources, with proxy support.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/tablerag/tablerag-client/internal/config"
)

// CreateOptimizedClient creates the client used for multipart uploads and for
// fetching S3/Azure upload sources.
//
// It starts from ConfigureHTTPClient so uploads respect the same proxy settings as
// API calls, removes the overall client timeout (uploads are bounded by their
// context instead), and enables HTTP/2 unless a proxy is in the path or
// DISABLE_HTTP2=true is set. FORCE_HTTP2=true keeps HTTP/2 through a proxy.
func CreateOptimizedClient(cfg *config.Config) (*nethttp.Client, error) {
	var baseClient *nethttp.Client
	var err error

	if cfg != nil {
		baseClient, err = ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	} else {
		baseClient = &nethttp.Client{Transport: newBaseTransport()}
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; keep it as is
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.MaxIdleConnsPerHost = 64
	tr.MaxConnsPerHost = 64
	tr.DisableCompression = true // spreadsheets are already zip containers
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" {
		disableHTTP2(tr)
	}

	if proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true" {
		disableHTTP2(tr)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0
	return baseClient, nil
}

func disableHTTP2(tr *nethttp.Transport) {
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
}

// proxyActive reports whether requests will go through a proxy. Proxies often
// mishandle HTTP/2 streams mid-transfer.
func proxyActive(cfg *config.Config) bool {
	envProxy := os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
		os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	if cfg == nil {
		return envProxy
	}
	switch cfg.ProxyMode {
	case "no-proxy", "":
		return false
	case "system":
		return envProxy
	default:
		return true
	}
}
