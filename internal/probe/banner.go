package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const defaultBannerPort = 3389

// rdpConnectionRequest is a TPKT-wrapped X.224 Connection Request carrying an
// RDP negotiation request for TLS and CredSSP.
var rdpConnectionRequest = []byte{
	0x03, 0x00, 0x00, 0x13, // TPKT v3, length 19
	0x0e, 0xe0, 0x00, 0x00, 0x00, 0x00, 0x00, // X.224 CR
	0x01, 0x00, 0x08, 0x00, 0x03, 0x00, 0x00, 0x00, // RDP_NEG_REQ
}

const tpktVersion = 0x03

type BannerResult struct {
	Result
	Info domain.BannerMetadata
}

type BannerDriver struct {
	// Frame is written after connecting; the RDP request when nil.
	Frame []byte
}

func NewBannerDriver() *BannerDriver { return &BannerDriver{} }

// Probe connects to host, sends the negotiation frame and classifies the
// reply by its first byte.
func (b *BannerDriver) Probe(ctx context.Context, host string, cfg domain.BannerConfig, timeout time.Duration) BannerResult {
	port := cfg.Port
	if port == 0 {
		port = defaultBannerPort
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := BannerResult{Info: domain.BannerMetadata{TLS: cfg.TLS}}
	addr := withPort(host, strconv.Itoa(port))
	start := time.Now()

	var conn net.Conn
	var err error
	if cfg.TLS {
		d := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: true}}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		if timedOut(ctx, err) {
			out.Result = timeoutResult(start, "connect "+addr)
			return out
		}
		code := domain.CodeConnectionError
		var rec tls.RecordHeaderError
		if cfg.TLS && errors.As(err, &rec) {
			code = domain.CodeTLSError
		}
		out.Result = errorResult(start, code, err)
		return out
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	frame := b.Frame
	if frame == nil {
		frame = rdpConnectionRequest
	}
	if _, err := conn.Write(frame); err != nil {
		out.Result = errorResult(start, domain.CodeConnectionError, fmt.Errorf("write negotiation: %w", err))
		return out
	}

	buf := make([]byte, 64)
	received := 0
	var readErr error
	for received < 4 {
		n, err := conn.Read(buf[received:])
		received += n
		if err != nil {
			readErr = err
			break
		}
	}
	out.Result = classifyBanner(&out.Info, buf[:received], readErr, start)
	return out
}

func classifyBanner(info *domain.BannerMetadata, data []byte, readErr error, start time.Time) Result {
	latency := sinceMS(start)
	info.BytesReceived = len(data)
	if len(data) > 0 {
		hb := data[0]
		info.HeaderByte = &hb
	}

	switch {
	case len(data) == 0 && isTimeout(readErr):
		return timeoutResult(start, "banner read")
	case len(data) == 0 && (errors.Is(readErr, io.EOF) || isReset(readErr)):
		info.Detail = "closed without data"
		return Result{Status: domain.StatusFailure, LatencyMS: latency, ErrorCode: domain.CodeNoResponse, Message: "connection closed before any data was received"}
	case len(data) == 0:
		return Result{Status: domain.StatusError, LatencyMS: latency, ErrorCode: domain.CodeConnectionError, Message: fmt.Sprintf("read: %v", readErr)}
	case isReset(readErr):
		// some services reset anonymous negotiation after answering
		info.ResetAfter = true
		info.Detail = "reset after data"
		return Result{Status: domain.StatusSuccess, LatencyMS: latency}
	case data[0] == tpktVersion:
		info.Detail = "tpkt response"
		return Result{Status: domain.StatusSuccess, LatencyMS: latency}
	default:
		info.Detail = fmt.Sprintf("unexpected header byte 0x%02x", data[0])
		return Result{Status: domain.StatusDegraded, LatencyMS: latency, ErrorCode: domain.CodeUnexpectedBanner, Message: info.Detail}
	}
}

func isReset(err error) bool {
	return err != nil && (errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE))
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
