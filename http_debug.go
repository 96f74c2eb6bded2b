package hxcommunity

import (
	"net/http"
	"net/http/httputil"
	"os"

	"github.com/rs/zerolog"
)

// debugTransport dumps each request and response through zerolog.
//
// Enable with HXCOMMUNITY_DEBUG=true or DEBUG=true. Dumps include bodies, and
// dispatch bodies are only obfuscated, not encrypted, so never enable this
// where logs leave the machine.
type debugTransport struct {
	base   http.RoundTripper
	logger zerolog.Logger
}

// NewDebugTransport wraps base with request/response dump logging. A nil base
// means http.DefaultTransport.
func NewDebugTransport(base http.RoundTripper, logger zerolog.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &debugTransport{base: base, logger: logger}
}

func (dt *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if reqDump, err := httputil.DumpRequestOut(req, true); err == nil {
		dt.logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Str("request_dump", string(reqDump)).Msg("HTTP request")
	}

	resp, err := dt.base.RoundTrip(req)
	if err != nil {
		dt.logger.Error().Err(err).Str("method", req.Method).Str("url", req.URL.String()).Msg("HTTP request failed")
		return nil, err
	}

	if respDump, err := httputil.DumpResponse(resp, true); err == nil {
		dt.logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Int("status_code", resp.StatusCode).Str("response_dump", string(respDump)).Msg("HTTP response")
	}
	return resp, nil
}

// debugLoggingRequested reports whether HXCOMMUNITY_DEBUG or DEBUG is "true".
func debugLoggingRequested() bool {
	return os.Getenv("HXCOMMUNITY_DEBUG") == "true" || os.Getenv("DEBUG") == "true"
}
