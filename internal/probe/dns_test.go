package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func startDNS(t *testing.T, h dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: h, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func answerA(ips ...string) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		for _, ip := range ips {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(ip),
			})
		}
		_ = w.WriteMsg(m)
	}
}

func TestDNSDriver_UDPAnswers(t *testing.T) {
	addr := startDNS(t, answerA("10.0.0.1", "10.0.0.2"))
	out := NewDNSDriver().Probe(context.Background(), DNSTarget{Kind: ResolverUDP, Endpoint: addr}, DNSQuery{Name: "example.com", RecordType: "A"}, time.Second)
	if !out.OK() {
		t.Fatalf("want success, got %+v", out.Result)
	}
	if len(out.Answers) != 2 || out.Answers[0] != "10.0.0.1" {
		t.Fatalf("unexpected answers %v", out.Answers)
	}
}

func TestDNSDriver_IgnoresOtherRecordTypes(t *testing.T) {
	addr := startDNS(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, &dns.CNAME{
			Hdr:    dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: 60},
			Target: "alias.example.com.",
		})
		_ = w.WriteMsg(m)
	})
	out := NewDNSDriver().Probe(context.Background(), DNSTarget{Kind: ResolverUDP, Endpoint: addr}, DNSQuery{Name: "example.com", RecordType: "A"}, time.Second)
	if out.Status != domain.StatusFailure || out.ErrorCode != domain.CodeNoRecords {
		t.Fatalf("want failure/NO_RECORDS, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestDNSDriver_NXDomainIsNoRecords(t *testing.T) {
	addr := startDNS(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeNameError)
		_ = w.WriteMsg(m)
	})
	out := NewDNSDriver().Probe(context.Background(), DNSTarget{Kind: ResolverUDP, Endpoint: addr}, DNSQuery{Name: "missing.example", RecordType: "A"}, time.Second)
	if out.Status != domain.StatusFailure || out.ErrorCode != domain.CodeNoRecords {
		t.Fatalf("want failure/NO_RECORDS, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestDNSDriver_ServFailIsError(t *testing.T) {
	addr := startDNS(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, dns.RcodeServerFailure)
		_ = w.WriteMsg(m)
	})
	out := NewDNSDriver().Probe(context.Background(), DNSTarget{Kind: ResolverUDP, Endpoint: addr}, DNSQuery{Name: "example.com", RecordType: "A"}, time.Second)
	if out.Status != domain.StatusError || out.ErrorCode != domain.CodeDNSError {
		t.Fatalf("want error/DNS_ERROR, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestDNSDriver_TimeoutIsNotError(t *testing.T) {
	addr := startDNS(t, func(w dns.ResponseWriter, r *dns.Msg) {
		time.Sleep(300 * time.Millisecond)
		answerA("10.0.0.1")(w, r)
	})
	out := NewDNSDriver().Probe(context.Background(), DNSTarget{Kind: ResolverUDP, Endpoint: addr}, DNSQuery{Name: "example.com", RecordType: "A"}, 50*time.Millisecond)
	if out.Status != domain.StatusTimeout || out.ErrorCode != domain.CodeTimeout {
		t.Fatalf("want timeout/TIMEOUT, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestDNSDriver_UnsupportedType(t *testing.T) {
	out := NewDNSDriver().Probe(context.Background(), DNSTarget{Kind: ResolverUDP, Endpoint: "127.0.0.1:53"}, DNSQuery{Name: "example.com", RecordType: "HINFO"}, time.Second)
	if out.ErrorCode != domain.CodeValidation {
		t.Fatalf("want VALIDATION_ERROR, got %s", out.ErrorCode)
	}
}

func TestDNSDriver_DoHPostsWireFormat(t *testing.T) {
	var auth, ctype string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		ctype = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		q := new(dns.Msg)
		if err := q.Unpack(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		m := new(dns.Msg)
		m.SetReply(q)
		m.Answer = append(m.Answer, &dns.TXT{
			Hdr: dns.RR_Header{Name: q.Question[0].Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
			Txt: []string{"v=spf1 ", "-all"},
		})
		packed, _ := m.Pack()
		w.Header().Set("Content-Type", "application/dns-message")
		w.Write(packed)
	}))
	defer s.Close()

	out := NewDNSDriver().Probe(context.Background(), DNSTarget{Kind: ResolverDoH, Endpoint: s.URL}, DNSQuery{Name: "example.com", RecordType: "TXT", BearerToken: "tok"}, time.Second)
	if !out.OK() {
		t.Fatalf("want success, got %+v", out.Result)
	}
	if auth != "Bearer tok" || ctype != "application/dns-message" {
		t.Fatalf("unexpected doh request headers auth=%q ctype=%q", auth, ctype)
	}
	if len(out.Answers) != 1 || out.Answers[0] != "v=spf1 -all" {
		t.Fatalf("unexpected answers %v", out.Answers)
	}
}

func TestDNSDriver_DoTHandshakeThenUDP(t *testing.T) {
	udp := startDNS(t, answerA("10.9.9.9"))
	_, udpPort, _ := net.SplitHostPort(udp)
	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer tlsSrv.Close()

	d := NewDNSDriver()
	d.DoTQueryPort = udpPort
	out := d.Probe(context.Background(), DNSTarget{Kind: ResolverDoT, Endpoint: tlsSrv.Listener.Addr().String()}, DNSQuery{Name: "example.com", RecordType: "A"}, 2*time.Second)
	if !out.OK() {
		t.Fatalf("want success, got %+v", out.Result)
	}
	if len(out.TLSFingerprint) != 64 {
		t.Fatalf("want sha256 hex fingerprint, got %q", out.TLSFingerprint)
	}
}

func TestDNSDriver_SystemResolverMissingConfig(t *testing.T) {
	d := NewDNSDriver()
	d.ResolvConf = filepath.Join(t.TempDir(), "resolv.conf")
	out := d.Probe(context.Background(), DNSTarget{Kind: ResolverSystem, Endpoint: "system"}, DNSQuery{Name: "example.com", RecordType: "A"}, time.Second)
	if out.Status != domain.StatusError || out.ErrorCode != domain.CodeDNSError {
		t.Fatalf("want error/DNS_ERROR, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestAnswers_FormatsRecordTypes(t *testing.T) {
	rrs := []dns.RR{
		&dns.MX{Hdr: dns.RR_Header{Rrtype: dns.TypeMX}, Preference: 10, Mx: "mail.example.com."},
		&dns.A{Hdr: dns.RR_Header{Rrtype: dns.TypeA}, A: net.ParseIP("1.2.3.4")},
	}
	got := answers(rrs, dns.TypeMX)
	if len(got) != 1 || got[0] != "10 mail.example.com" {
		t.Fatalf("unexpected mx answers %v", got)
	}
}
