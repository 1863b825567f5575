package probe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// ResolverKind identifies how a DNS endpoint is reached.
type ResolverKind string

const (
	ResolverUDP    ResolverKind = "udp"
	ResolverDoH    ResolverKind = "doh"
	ResolverDoT    ResolverKind = "dot"
	ResolverCustom ResolverKind = "custom"
	ResolverSystem ResolverKind = "system"
)

// DNSTarget is one resolver endpoint. Endpoint is host[:port] for UDP, DoT,
// custom and system resolvers, and a URL for DoH.
type DNSTarget struct {
	Kind     ResolverKind
	Endpoint string
	Region   string
}

// Key deduplicates targets by (kind, endpoint).
func (t DNSTarget) Key() string { return string(t.Kind) + "|" + strings.ToLower(t.Endpoint) }

type DNSQuery struct {
	Name       string
	RecordType string
	DNSSEC     bool
	// BearerToken is sent to DoH endpoints when set.
	BearerToken string
}

type DNSResult struct {
	Result
	Target         DNSTarget
	Answers        []string
	Authenticated  bool
	TLSFingerprint string
}

// DNSDriver queries a single resolver per call.
type DNSDriver struct {
	HTTPClient *http.Client
	// ResolvConf is read for the system resolver.
	ResolvConf string
	// DoTQueryPort is the UDP port queried after a DoT handshake.
	DoTQueryPort string
}

func NewDNSDriver() *DNSDriver {
	return &DNSDriver{
		HTTPClient:   &http.Client{},
		ResolvConf:   "/etc/resolv.conf",
		DoTQueryPort: "53",
	}
}

var recordTypes = map[string]uint16{
	"A":     dns.TypeA,
	"AAAA":  dns.TypeAAAA,
	"CNAME": dns.TypeCNAME,
	"MX":    dns.TypeMX,
	"TXT":   dns.TypeTXT,
	"NS":    dns.TypeNS,
	"SOA":   dns.TypeSOA,
	"CAA":   dns.TypeCAA,
	"SRV":   dns.TypeSRV,
	"PTR":   dns.TypePTR,
}

// SupportedRecordType reports whether rt can be queried.
func SupportedRecordType(rt string) bool {
	_, ok := recordTypes[strings.ToUpper(rt)]
	return ok
}

type dnsReply struct {
	msg         *dns.Msg
	fingerprint string
	err         error
}

// Probe resolves q against t. The query races a timer so a stalled resolver
// yields a timeout result rather than an error.
func (d *DNSDriver) Probe(ctx context.Context, t DNSTarget, q DNSQuery, timeout time.Duration) DNSResult {
	out := DNSResult{Target: t}
	qtype, ok := recordTypes[strings.ToUpper(q.RecordType)]
	if !ok {
		out.Result = Result{Status: domain.StatusError, ErrorCode: domain.CodeValidation, Message: "unsupported record type " + q.RecordType}
		return out
	}
	name := q.Name
	if qtype == dns.TypePTR && net.ParseIP(name) != nil {
		if rev, err := dns.ReverseAddr(name); err == nil {
			name = rev
		}
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true
	if q.DNSSEC {
		msg.SetEdns0(4096, true)
		msg.AuthenticatedData = true
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan dnsReply, 1)
	go func() {
		done <- d.exchange(ctx, t, msg, q.BearerToken)
	}()

	var rep dnsReply
	select {
	case <-ctx.Done():
		out.Result = timeoutResult(start, "dns query to "+t.Endpoint)
		return out
	case rep = <-done:
	}

	out.TLSFingerprint = rep.fingerprint
	if rep.err != nil {
		if timedOut(ctx, rep.err) {
			out.Result = timeoutResult(start, "dns query to "+t.Endpoint)
			return out
		}
		out.Result = errorResult(start, domain.CodeDNSError, rep.err)
		return out
	}
	latency := sinceMS(start)

	switch rep.msg.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		out.Result = Result{Status: domain.StatusFailure, LatencyMS: latency, ErrorCode: domain.CodeNoRecords, Message: "NXDOMAIN"}
		return out
	default:
		out.Result = Result{Status: domain.StatusError, LatencyMS: latency, ErrorCode: domain.CodeDNSError, Message: "rcode " + dns.RcodeToString[rep.msg.Rcode]}
		return out
	}

	out.Authenticated = rep.msg.AuthenticatedData
	out.Answers = answers(rep.msg.Answer, qtype)
	if len(out.Answers) == 0 {
		out.Result = Result{Status: domain.StatusFailure, LatencyMS: latency, ErrorCode: domain.CodeNoRecords, Message: "no " + strings.ToUpper(q.RecordType) + " records"}
		return out
	}
	out.Result = Result{Status: domain.StatusSuccess, LatencyMS: latency}
	return out
}

func (d *DNSDriver) exchange(ctx context.Context, t DNSTarget, msg *dns.Msg, token string) dnsReply {
	switch t.Kind {
	case ResolverDoH:
		m, err := d.exchangeDoH(ctx, t.Endpoint, msg, token)
		return dnsReply{msg: m, err: err}
	case ResolverDoT:
		fp, err := d.handshake(ctx, t.Endpoint)
		if err != nil {
			return dnsReply{err: fmt.Errorf("dot handshake: %w", err)}
		}
		host := t.Endpoint
		if h, _, err := net.SplitHostPort(t.Endpoint); err == nil {
			host = h
		}
		port := d.DoTQueryPort
		if port == "" {
			port = "53"
		}
		m, err := exchangeUDP(ctx, net.JoinHostPort(host, port), msg)
		return dnsReply{msg: m, fingerprint: fp, err: err}
	case ResolverSystem:
		addr, err := d.systemResolver()
		if err != nil {
			return dnsReply{err: err}
		}
		m, err := exchangeUDP(ctx, addr, msg)
		return dnsReply{msg: m, err: err}
	default:
		m, err := exchangeUDP(ctx, withPort(t.Endpoint, "53"), msg)
		return dnsReply{msg: m, err: err}
	}
}

func exchangeUDP(ctx context.Context, addr string, msg *dns.Msg) (*dns.Msg, error) {
	c := &dns.Client{Net: "udp"}
	resp, _, err := c.ExchangeContext(ctx, msg, addr)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		c.Net = "tcp"
		resp, _, err = c.ExchangeContext(ctx, msg, addr)
	}
	return resp, err
}

// exchangeDoH posts the wire-format query (RFC 8484).
func (d *DNSDriver) exchangeDoH(ctx context.Context, endpoint string, msg *dns.Msg, token string) (*dns.Msg, error) {
	packed, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(packed))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	out := new(dns.Msg)
	if err := out.Unpack(body); err != nil {
		return nil, fmt.Errorf("unpack doh answer: %w", err)
	}
	return out, nil
}

// handshake completes TLS with the resolver and returns the leaf
// certificate's SHA-256 fingerprint. Verification is skipped; resolvers
// often present self-signed certificates.
func (d *DNSDriver) handshake(ctx context.Context, endpoint string) (string, error) {
	dialer := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: true}}
	conn, err := dialer.DialContext(ctx, "tcp", withPort(endpoint, "853"))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return "", errors.New("no peer certificate")
	}
	sum := sha256.Sum256(state.PeerCertificates[0].Raw)
	return hex.EncodeToString(sum[:]), nil
}

func (d *DNSDriver) systemResolver() (string, error) {
	path := d.ResolvConf
	if path == "" {
		path = "/etc/resolv.conf"
	}
	cfg, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return "", fmt.Errorf("read resolv.conf: %w", err)
	}
	if len(cfg.Servers) == 0 {
		return "", errors.New("no system nameserver configured")
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port), nil
}

func withPort(addr, port string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), port)
}

// answers renders the RRs matching qtype in a canonical text form.
func answers(rrs []dns.RR, qtype uint16) []string {
	var out []string
	for _, rr := range rrs {
		if rr.Header().Rrtype != qtype {
			continue
		}
		switch v := rr.(type) {
		case *dns.A:
			out = append(out, v.A.String())
		case *dns.AAAA:
			out = append(out, v.AAAA.String())
		case *dns.CNAME:
			out = append(out, strings.TrimSuffix(v.Target, "."))
		case *dns.MX:
			out = append(out, fmt.Sprintf("%d %s", v.Preference, strings.TrimSuffix(v.Mx, ".")))
		case *dns.TXT:
			out = append(out, strings.Join(v.Txt, ""))
		case *dns.NS:
			out = append(out, strings.TrimSuffix(v.Ns, "."))
		case *dns.SOA:
			out = append(out, fmt.Sprintf("%s %s %d", strings.TrimSuffix(v.Ns, "."), strings.TrimSuffix(v.Mbox, "."), v.Serial))
		case *dns.CAA:
			out = append(out, fmt.Sprintf("%d %s %q", v.Flag, v.Tag, v.Value))
		case *dns.SRV:
			out = append(out, fmt.Sprintf("%d %d %d %s", v.Priority, v.Weight, v.Port, strings.TrimSuffix(v.Target, ".")))
		case *dns.PTR:
			out = append(out, strings.TrimSuffix(v.Ptr, "."))
		}
	}
	return out
}
