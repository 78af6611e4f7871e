// Package http_utils builds the shared HTTP client used by the feed
// loader, the probe engine and the notifier.
package http_utils

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func getProxyFunc() func(*http.Request) (*url.URL, error) {
	proxy := viper.GetString("navigation.proxy")
	if proxy == "" {
		return http.ProxyFromEnvironment
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		log.Error().Err(err).Str("proxy", proxy).Msg("Error parsing proxy url, using environment proxy")
		return http.ProxyFromEnvironment
	}
	return http.ProxyURL(proxyURL)
}

// CreateHttpTransport creates an HTTP transport with pooling limits sized
// for many concurrent scans against distinct hosts.
func CreateHttpTransport() *http.Transport {
	transport := &http.Transport{
		Proxy: getProxyFunc(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       100,
		DisableKeepAlives:     false,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			Renegotiation:      tls.RenegotiateOnceAsClient,
			InsecureSkipVerify: true,
		},
	}
	return transport
}

// CreateHttpClient returns a pooled client without redirect following,
// suitable for sharing across scan tasks.
func CreateHttpClient() *http.Client {
	return &http.Client{
		Transport: CreateHttpTransport(),
		Timeout:   60 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// SetStandardHeaders applies the configured user agent and bug bounty
// identification header to an outgoing request.
func SetStandardHeaders(req *http.Request) {
	if ua := viper.GetString("navigation.user_agent"); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if header := viper.GetString("navigation.bug_bounty_header"); header != "" {
		req.Header.Set("X-Bug-Bounty", header)
	}
}
