// Package safeurl guards outbound HTTP targets configured by operators:
// webhook sinks and decision-provider endpoints. It rejects non-HTTP(S)
// schemes and private/loopback addresses (SSRF), and bounds response body
// reads.
package safeurl

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
)

// MaxResponseBody is the default cap for HTTP response body reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

// ErrUnsafeScheme is returned for URLs outside http/https.
var ErrUnsafeScheme = errors.New("safeurl: only http and https schemes are allowed")

// ErrPrivateTarget is returned when a URL targets a private or loopback
// address.
var ErrPrivateTarget = errors.New("safeurl: URL targets a private or loopback address")

// Check validates an outbound URL. AllowLoopback permits localhost
// targets, which local decision providers legitimately use.
func Check(raw string, allowLoopback bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("safeurl: parse: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrUnsafeScheme
	}

	host := u.Hostname()
	ip := net.ParseIP(host)
	if ip == nil {
		// Hostnames resolve at dial time; only literal addresses are
		// checked here.
		if !allowLoopback && (host == "localhost" || host == "") {
			return ErrPrivateTarget
		}
		return nil
	}

	if ip.IsLoopback() {
		if allowLoopback {
			return nil
		}
		return ErrPrivateTarget
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return ErrPrivateTarget
	}
	return nil
}

// BoundedRead reads at most max bytes from r, erroring when the body
// exceeds the cap.
func BoundedRead(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		max = MaxResponseBody
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("safeurl: response body exceeds %d bytes", max)
	}
	return data, nil
}
