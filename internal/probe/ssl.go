package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"net"
	"net/url"
	"time"

	"healthdeck/internal/models"
)

// SSLProber reads the peer certificate of a TLS endpoint and reports on its expiry.
// The chain is not verified; only the leaf certificate dates matter.
type SSLProber struct {
	now func() time.Time
}

func NewSSLProber() *SSLProber {
	return &SSLProber{now: time.Now}
}

// Probe performs the handshake against the URL host, defaulting to port 443.
func (p *SSLProber) Probe(ctx context.Context, svc models.Service) models.ProbeResult {
	u, err := url.Parse(svc.URL)
	if err != nil {
		return failure(0, err.Error())
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}

	ctx, cancel := context.WithTimeout(ctx, svc.Timeout())
	defer cancel()

	dialer := &tls.Dialer{
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true,
		},
	}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	elapsed := time.Since(start)
	if err != nil {
		if isTimeout(err) {
			return failure(elapsed, "Connection timeout")
		}
		return failure(elapsed, err.Error())
	}
	defer conn.Close()

	var cert *x509.Certificate
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if certs := tlsConn.ConnectionState().PeerCertificates; len(certs) > 0 {
			cert = certs[0]
		}
	}
	return classifyCertificate(cert, host, svc.Threshold(), elapsed, p.now())
}

func classifyCertificate(cert *x509.Certificate, host string, thresholdDays int, elapsed time.Duration, now time.Time) models.ProbeResult {
	if cert == nil {
		return failure(elapsed, "No certificate found")
	}

	days := daysUntil(cert.NotAfter, now)
	details := &models.SSLDetails{
		Issuer:          cert.Issuer.CommonName,
		Subject:         cert.Subject.CommonName,
		ValidFrom:       cert.NotBefore.UTC(),
		ValidTo:         cert.NotAfter.UTC(),
		DaysUntilExpiry: days,
	}
	if details.Issuer == "" {
		details.Issuer = "Unknown"
	}
	if details.Subject == "" {
		details.Subject = host
	}

	result := models.ProbeResult{
		Status:         models.StatusHealthy,
		ResponseTimeMs: elapsed.Milliseconds(),
		Timestamp:      now.UTC(),
		SSL:            details,
	}
	switch {
	case days < 0:
		result.Status = models.StatusUnhealthy
		result.Error = fmt.Sprintf("Certificate expired %d days ago", -days)
	case days < thresholdDays:
		result.Status = models.StatusWarning
		result.Error = fmt.Sprintf("Certificate expires in %d days", days)
	}
	return result
}

// daysUntil rounds away from now: a certificate expiring in 36 hours has 2 days
// left, and one that expired 12 hours ago has -1. A certificate is expired from
// its NotAfter instant on, so the result is never 0 once that instant has passed.
func daysUntil(t, now time.Time) int {
	days := float64(t.Sub(now)) / float64(24*time.Hour)
	if now.Before(t) {
		return int(math.Ceil(days))
	}
	return min(int(math.Floor(days)), -1)
}
