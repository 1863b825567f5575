package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const defaultPingCount = 3

type PingResult struct {
	Result
	Stats domain.PingMetadata
}

// PingDriver sends ICMP echo requests over an unprivileged socket and falls
// back to the system ping binary when the socket is unavailable.
type PingDriver struct {
	lookup func(ctx context.Context, host string) ([]net.IP, error)
	listen func() (*icmp.PacketConn, error)
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewPingDriver() *PingDriver {
	return &PingDriver{
		lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		},
		listen: func() (*icmp.PacketConn, error) { return icmp.ListenPacket("udp4", "0.0.0.0") },
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// PingCount normalizes a configured reply count.
func PingCount(n int) int {
	if n == 0 {
		return defaultPingCount
	}
	if n < 1 {
		return 1
	}
	return n
}

func (p *PingDriver) Probe(ctx context.Context, host string, count int, timeout time.Duration) PingResult {
	count = PingCount(count)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	ip, err := p.resolve(ctx, host)
	if err != nil {
		if timedOut(ctx, err) {
			return PingResult{Result: timeoutResult(start, "ping")}
		}
		return PingResult{Result: unreachable(start, err.Error())}
	}
	if conn, err := p.listen(); err == nil {
		defer conn.Close()
		stats, err := echo(ctx, conn, ip, count)
		if err != nil {
			return PingResult{Result: errorResult(start, domain.CodePingError, err)}
		}
		return classifyPing(stats)
	}

	out, runErr := p.run(ctx, "ping", pingArgs(host, count, timeout)...)
	stats, err := ParsePingOutput(string(out))
	if err != nil {
		if unknownHost.MatchString(string(out)) {
			return PingResult{Result: unreachable(start, fmt.Sprintf("resolve %s: unknown host", host))}
		}
		if timedOut(ctx, runErr) {
			return PingResult{Result: timeoutResult(start, "ping")}
		}
		if runErr != nil {
			err = fmt.Errorf("%v: %w", runErr, err)
		}
		return PingResult{Result: errorResult(start, domain.CodePingError, err)}
	}
	stats.Method = "exec"
	return classifyPing(stats)
}

func (p *PingDriver) resolve(ctx context.Context, host string) (net.IP, error) {
	lookup := p.lookup
	if lookup == nil {
		lookup = func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		}
	}
	ips, err := lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("resolve %s: no ipv4 address", host)
	}
	return ips[0], nil
}

func unreachable(start time.Time, msg string) Result {
	return Result{
		Status:    domain.StatusFailure,
		LatencyMS: sinceMS(start),
		ErrorCode: domain.CodeHostUnreachable,
		Message:   msg,
	}
}

func classifyPing(s domain.PingMetadata) PingResult {
	r := PingResult{Stats: s}
	r.LatencyMS = s.AvgMS
	switch {
	case s.Received == 0 || s.LossPercent >= 100:
		r.Status = domain.StatusFailure
		r.ErrorCode = domain.CodeHostUnreachable
		r.Message = fmt.Sprintf("no replies from %d packets", s.Sent)
	case s.LossPercent > 0:
		r.Status = domain.StatusDegraded
		r.ErrorCode = domain.CodePacketLoss
		r.Message = fmt.Sprintf("%.0f%% packet loss", s.LossPercent)
	default:
		r.Status = domain.StatusSuccess
	}
	return r
}

func pingArgs(host string, count int, timeout time.Duration) []string {
	n := strconv.Itoa(count)
	if runtime.GOOS == "windows" {
		return []string{"-n", n, "-w", strconv.Itoa(int(timeout.Milliseconds())), host}
	}
	return []string{"-c", n, host}
}

func echo(ctx context.Context, conn *icmp.PacketConn, ip net.IP, count int) (domain.PingMetadata, error) {
	stats := domain.PingMetadata{Method: "icmp"}
	dst := &net.UDPAddr{IP: ip}

	deadline, _ := ctx.Deadline()
	perReply := time.Until(deadline) / time.Duration(count)

	var rtts []float64
	buf := make([]byte, 1500)
	for seq := 1; seq <= count; seq++ {
		if ctx.Err() != nil {
			break
		}
		msg := icmp.Message{
			Type: ipv4.ICMPTypeEcho,
			Body: &icmp.Echo{ID: os.Getpid() & 0xffff, Seq: seq, Data: []byte("pulsewatch")},
		}
		b, err := msg.Marshal(nil)
		if err != nil {
			return stats, err
		}
		sent := time.Now()
		if _, err := conn.WriteTo(b, dst); err != nil {
			return stats, fmt.Errorf("send echo: %w", err)
		}
		stats.Sent++
		_ = conn.SetReadDeadline(sent.Add(perReply))
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					break
				}
				return stats, fmt.Errorf("read echo: %w", err)
			}
			reply, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), buf[:n])
			if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
				continue
			}
			// the kernel rewrites the id on unprivileged sockets; match on seq
			if e, ok := reply.Body.(*icmp.Echo); ok && e.Seq == seq {
				rtts = append(rtts, float64(time.Since(sent).Microseconds())/1000)
				break
			}
		}
	}
	if stats.Sent == 0 {
		return stats, errors.New("no echo requests sent")
	}
	stats.Received = len(rtts)
	stats.LossPercent = float64(stats.Sent-stats.Received) / float64(stats.Sent) * 100
	if len(rtts) > 0 {
		stats.MinMS, stats.MaxMS = math.Inf(1), 0
		var sum float64
		for _, v := range rtts {
			sum += v
			stats.MinMS = math.Min(stats.MinMS, v)
			stats.MaxMS = math.Max(stats.MaxMS, v)
		}
		stats.AvgMS = sum / float64(len(rtts))
	}
	return stats, nil
}

var (
	unknownHost = regexp.MustCompile(`(?i)unknown host|name or service not known|could not find host|cannot resolve|temporary failure in name resolution`)
	unixSummary = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received`)
	unixLoss    = regexp.MustCompile(`([\d.]+)% packet loss`)
	unixRTT     = regexp.MustCompile(`min/avg/max/(?:mdev|stddev) = ([\d.]+)/([\d.]+)/([\d.]+)`)
	winSummary  = regexp.MustCompile(`Sent = (\d+), Received = (\d+), Lost = \d+ \((\d+)% loss\)`)
	winRTT      = regexp.MustCompile(`Minimum = (\d+)ms, Maximum = (\d+)ms, Average = (\d+)ms`)
)

// ParsePingOutput extracts loss and timing from Linux, macOS or Windows ping
// output.
func ParsePingOutput(out string) (domain.PingMetadata, error) {
	var s domain.PingMetadata
	switch {
	case unixSummary.MatchString(out):
		m := unixSummary.FindStringSubmatch(out)
		s.Sent, _ = strconv.Atoi(m[1])
		s.Received, _ = strconv.Atoi(m[2])
		if l := unixLoss.FindStringSubmatch(out); l != nil {
			s.LossPercent, _ = strconv.ParseFloat(l[1], 64)
		} else if s.Sent > 0 {
			s.LossPercent = float64(s.Sent-s.Received) / float64(s.Sent) * 100
		}
		if r := unixRTT.FindStringSubmatch(out); r != nil {
			s.MinMS, _ = strconv.ParseFloat(r[1], 64)
			s.AvgMS, _ = strconv.ParseFloat(r[2], 64)
			s.MaxMS, _ = strconv.ParseFloat(r[3], 64)
		}
	case winSummary.MatchString(out):
		m := winSummary.FindStringSubmatch(out)
		s.Sent, _ = strconv.Atoi(m[1])
		s.Received, _ = strconv.Atoi(m[2])
		s.LossPercent, _ = strconv.ParseFloat(m[3], 64)
		if r := winRTT.FindStringSubmatch(out); r != nil {
			s.MinMS, _ = strconv.ParseFloat(r[1], 64)
			s.MaxMS, _ = strconv.ParseFloat(r[2], 64)
			s.AvgMS, _ = strconv.ParseFloat(r[3], 64)
		}
	default:
		return s, errors.New("unrecognized ping output")
	}
	return s, nil
}
