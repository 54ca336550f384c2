package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"healthdeck/internal/models"
)

// TCPProber checks that a host:port accepts connections.
type TCPProber struct {
	dialer net.Dialer
}

func NewTCPProber() *TCPProber {
	return &TCPProber{}
}

// Probe connects and immediately closes the connection.
func (p *TCPProber) Probe(ctx context.Context, svc models.Service) models.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, svc.Timeout())
	defer cancel()

	addr := net.JoinHostPort(svc.Host, strconv.Itoa(svc.Port))
	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	elapsed := time.Since(start)
	if err != nil {
		log.Debug().Err(err).Str("addr", addr).Str("service", svc.Name).Msg("[Probe] TCP connection failed")
		return failure(elapsed, tcpErrorMessage(err, svc))
	}
	conn.Close()

	ms := elapsed.Milliseconds()
	result := models.ProbeResult{
		Status:         models.StatusHealthy,
		ResponseTimeMs: ms,
		Timestamp:      time.Now().UTC(),
	}
	if ms > int64(svc.Threshold()) {
		result.Status = models.StatusWarning
		result.Error = fmt.Sprintf("Slow connection: %dms", ms)
	}
	return result
}

// tcpErrorMessage turns well-known dial failures into readable reasons.
func tcpErrorMessage(err error, svc models.Service) string {
	addr := fmt.Sprintf("%s:%d", svc.Host, svc.Port)

	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Sprintf("Connection refused - service not running on %s", addr)
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		return fmt.Sprintf("Host not found: %s", svc.Host)
	case errors.Is(err, syscall.ETIMEDOUT):
		return fmt.Sprintf("Connection timed out to %s", addr)
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return fmt.Sprintf("Host unreachable: %s", svc.Host)
	case isTimeout(err):
		return fmt.Sprintf("Connection timeout (%ds)", int(svc.Timeout()/time.Second))
	}
	return err.Error()
}
