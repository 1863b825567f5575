package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

type failingQueue struct{ name string }

func (f failingQueue) Name() string                    { return f.name }
func (f failingQueue) Push(context.Context, Job) error { return errors.New("queue down") }

type countMetrics struct{ n map[string]int }

func (c *countMetrics) NotificationEnqueued(t string) {
	if c.n == nil {
		c.n = map[string]int{}
	}
	c.n[t]++
}

func intp(i int) *int { return &i }

func TestQueueName(t *testing.T) {
	cases := map[domain.ChannelType]string{
		domain.ChannelEmail:     "notifications:email",
		domain.ChannelSlack:     "notifications:slack",
		domain.ChannelPagerDuty: "notifications:pagerduty",
		domain.ChannelWebhook:   "notifications:webhook",
		domain.ChannelSMS:       "notifications:sms",
		domain.ChannelTeams:     "notifications:teams",
		domain.ChannelDiscord:   "notifications:discord",
		"carrier-pigeon":        DefaultQueue,
	}
	for typ, want := range cases {
		if got := QueueName(typ); got != want {
			t.Fatalf("%s: want %s, got %s", typ, want, got)
		}
	}
}

func TestRouter_ReusesQueues(t *testing.T) {
	opened := 0
	r := NewRouter(func(name string) Queue {
		opened++
		return NewMemoryQueue(name)
	})
	a := r.Select(domain.ChannelSlack)
	b := r.Select(domain.ChannelSlack)
	r.Select("unknown")
	r.Select("other-unknown")
	if a != b {
		t.Fatal("want same queue for same type")
	}
	if opened != 2 {
		t.Fatalf("want 2 queues opened, got %d", opened)
	}
}

func TestBuildJob(t *testing.T) {
	ch := domain.NotificationChannel{
		ID:   "ch1",
		Type: domain.ChannelWebhook,
		Config: map[string]string{
			"url":   "https://hooks.example.com/{{hook_token}}",
			"plain": "x",
		},
	}
	a := AlertContext{
		Kind:           KindMonitor,
		AlertID:        "al1",
		OrganizationID: "org1",
		MonitorID:      "m1",
		MonitorName:    "checkout",
		AlertStatus:    domain.AlertActive,
		Severity:       domain.SeverityCritical,
		Message:        "connection refused",
		ResponseTimeMS: 812,
		StatusCode:     intp(502),
		Step:           2,
		DashboardURL:   "https://app.example.com/",
	}
	j := BuildJob(ch, a, map[string]string{"hook_token": "s3cret"})

	if j.ChannelConfig["url"] != "https://hooks.example.com/s3cret" {
		t.Fatalf("credential not expanded: %q", j.ChannelConfig["url"])
	}
	if j.Link != "https://app.example.com/monitors/m1/alerts/al1" {
		t.Fatalf("unexpected link %q", j.Link)
	}
	if j.StatusCode == nil || *j.StatusCode != 502 || j.ResponseTimeMS != 812 {
		t.Fatalf("alert context not carried: %+v", j)
	}
	if !strings.Contains(j.Title, "checkout") || !strings.Contains(j.Title, "step 2") {
		t.Fatalf("unexpected title %q", j.Title)
	}
	if j.ID == "" || j.CreatedAt.IsZero() {
		t.Fatalf("want id and timestamp, got %+v", j)
	}
	if ch.Config["url"] != "https://hooks.example.com/{{hook_token}}" {
		t.Fatal("channel config must not be mutated")
	}
}

func TestBuildJob_ResolvedTitle(t *testing.T) {
	ch := domain.NotificationChannel{ID: "ch1", Type: domain.ChannelSlack}
	j := BuildJob(ch, AlertContext{
		Kind:        KindMonitor,
		MonitorID:   "m1",
		MonitorName: "checkout",
		AlertStatus: domain.AlertResolved,
		Severity:    domain.SeverityMajor,
	}, nil)
	if strings.Contains(j.Title, "down") || !strings.Contains(j.Title, "checkout") || !strings.Contains(j.Title, "RESOLVED") {
		t.Fatalf("unexpected recovery title %q", j.Title)
	}
}

func TestDashboardLink_SLO(t *testing.T) {
	got := DashboardLink(AlertContext{DashboardURL: "https://app", SLOTargetID: "slo 1", MonitorID: "m"})
	if got != "https://app/slos/slo%201" {
		t.Fatalf("unexpected link %q", got)
	}
	if DashboardLink(AlertContext{MonitorID: "m"}) != "" {
		t.Fatal("want no link without a dashboard url")
	}
}

func TestDispatcher_AggregatesErrors(t *testing.T) {
	mem := NewMemoryQueue("notifications:email")
	r := NewRouter(func(name string) Queue {
		if name == "notifications:slack" {
			return failingQueue{name}
		}
		return mem
	})
	m := &countMetrics{}
	d := NewDispatcher(r, m, zap.NewNop())

	err := d.Dispatch(context.Background(), []Job{
		{ID: "1", ChannelType: domain.ChannelSlack},
		{ID: "2", ChannelType: domain.ChannelEmail},
		{ID: "3", ChannelType: domain.ChannelSlack},
	})
	if err == nil {
		t.Fatal("want error from failing queue")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("want 2 aggregated errors, got %d", n)
	}
	if got := mem.Drain(); len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("want email job delivered despite failures, got %+v", got)
	}
	if m.n["email"] != 1 || m.n["slack"] != 0 {
		t.Fatalf("unexpected metrics %+v", m.n)
	}
}

type staticChannels []domain.NotificationChannel

func (s staticChannels) Channels(context.Context, domain.OrganizationID) ([]domain.NotificationChannel, error) {
	return s, nil
}

type staticSettings domain.OrgSettings

func (s staticSettings) Settings(context.Context, domain.OrganizationID) (domain.OrgSettings, error) {
	return domain.OrgSettings(s), nil
}

func TestBroadcaster_OnlyEnabledChannels(t *testing.T) {
	queues := map[string]*MemoryQueue{}
	r := NewRouter(func(name string) Queue {
		q := NewMemoryQueue(name)
		queues[name] = q
		return q
	})
	b := &Broadcaster{
		Channels: staticChannels{
			{ID: "a", Type: domain.ChannelSlack, Enabled: true, Config: map[string]string{"token": "{{slack}}"}},
			{ID: "b", Type: domain.ChannelEmail, Enabled: false},
			{ID: "c", Type: domain.ChannelSMS, Enabled: true},
		},
		Settings:   staticSettings{Credentials: map[string]string{"slack": "xoxb"}},
		Dispatcher: NewDispatcher(r, nil, nil),
	}
	if err := b.Notify(context.Background(), "org", AlertContext{Kind: KindSLOBreach, SLOTargetID: "s"}); err != nil {
		t.Fatal(err)
	}
	slack := queues["notifications:slack"].Drain()
	if len(slack) != 1 || slack[0].ChannelConfig["token"] != "xoxb" {
		t.Fatalf("unexpected slack jobs %+v", slack)
	}
	if len(queues["notifications:sms"].Drain()) != 1 {
		t.Fatal("want one sms job")
	}
	if _, ok := queues["notifications:email"]; ok {
		t.Fatal("disabled channel must not be notified")
	}
}
