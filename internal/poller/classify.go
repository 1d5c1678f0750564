package poller

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"

	"github.com/jpalmerr/etagwatch/internal/status"
)

// classifyProbeError maps a transport-level probe error to a failure class.
//
// The precedence is fixed and normative:
//
//  1. connection refused or DNS resolution failure → external (the watched
//     resource is down or unreachable)
//  2. timeout or TLS handshake/verification failure → transient
//
// Anything else is unclassified: ok is false and the caller must treat the
// fault as fatal to the cycle.
func classifyProbeError(err error) (class status.Class, ok bool) {
	if err == nil {
		return status.ClassNone, true
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return status.ClassExternal, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return status.ClassExternal, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return status.ClassTransient, true
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return status.ClassTransient, true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return status.ClassTransient, true
	}
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) || errors.As(err, &invalidCert) {
		return status.ClassTransient, true
	}

	return status.ClassNone, false
}
