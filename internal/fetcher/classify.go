package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
)

// errClass buckets a per-URL failure for run stats. The buckets mirror what
// an operator actually triages: a burst of DNS errors means a config problem,
// a burst of timeouts means a slow site or a dead network.
type errClass string

const (
	classTimeout errClass = "timeout"
	classDNS     errClass = "dns"
	classRefused errClass = "refused"
	classTLS     errClass = "ssl"
	classClient  errClass = "4xx"
	classServer  errClass = "5xx"
	classOther   errClass = "other"
)

// classify maps a transport-level error into its stats bucket. HTTP status
// classes are handled by the caller, which sees the response.
func classify(err error) errClass {
	if err == nil {
		return classOther
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return classTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return classTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return classDNS
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return classRefused
	}

	var certErr *x509.CertificateInvalidError
	var unkErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var recErr tls.RecordHeaderError
	if errors.As(err, &certErr) || errors.As(err, &unkErr) || errors.As(err, &hostErr) || errors.As(err, &recErr) {
		return classTLS
	}
	// TLS handshake failures often surface as plain url.Errors; fall back to
	// the message.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "tls") || strings.Contains(msg, "x509") || strings.Contains(msg, "certificate") {
		return classTLS
	}
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "connection refused") {
		return classRefused
	}
	if strings.Contains(msg, "no such host") {
		return classDNS
	}

	return classOther
}

// retryableClass reports whether a transport error bucket is worth another
// attempt. DNS and TLS failures won't heal within a run; timeouts and resets
// might.
func retryableClass(c errClass) bool {
	switch c {
	case classTimeout, classRefused, classOther:
		return true
	default:
		return false
	}
}
