package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/check"
	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/jobs"
)

// Evaluation is what the alert evaluator learns about one check.
type Evaluation struct {
	MonitorID      domain.MonitorID
	OrganizationID domain.OrganizationID
	CheckResultID  string
	Status         domain.Status
	ErrorCode      domain.ErrorCode
	ErrorMessage   string
	ResponseTimeMS float64
	StatusCode     *int
	IncidentID     *string
	CheckedAt      time.Time
}

type Evaluator interface {
	Evaluate(ctx context.Context, ev Evaluation) error
}

type orchestrator interface {
	Run(ctx context.Context, m domain.Monitor, settings domain.OrgSettings) check.Outcome
}

type linker interface {
	Link(ctx context.Context, resultID string, monitorID domain.MonitorID, status domain.Status) *string
}

type resultWriter interface {
	Append(ctx context.Context, r *domain.CheckResult) error
}

type statusWriter interface {
	UpdateStatus(ctx context.Context, id domain.MonitorID, status domain.MonitorStatus, checkedAt time.Time) error
}

type settingsReader interface {
	Settings(ctx context.Context, org domain.OrganizationID) (domain.OrgSettings, error)
}

type checkMetrics interface {
	ObserveCheck(protocol, status string, d time.Duration)
}

// CheckRunner executes one check job end to end: run, persist, link, evaluate.
type CheckRunner struct {
	Logger    *zap.Logger
	Settings  settingsReader
	Checks    orchestrator
	Results   resultWriter
	Monitors  statusWriter
	Incidents linker
	Evaluator Evaluator
	Metrics   checkMetrics
	Region    string
	Now       func() time.Time
}

// Execute runs the check described by j. Only a failure to persist the
// result is returned; linking and evaluation problems are logged.
func (r *CheckRunner) Execute(ctx context.Context, j jobs.CheckJob) (domain.CheckResult, error) {
	m := j.Monitor()
	log := r.Logger.With(zap.String("monitor_id", string(m.ID)), zap.String("protocol", string(m.Protocol)))

	// settings are read per run so credential changes apply to the next check
	settings, err := r.Settings.Settings(ctx, m.OrganizationID)
	if err != nil {
		log.Warn("check_settings_error", zap.Error(err))
		settings = domain.OrgSettings{OrganizationID: m.OrganizationID}
	}

	started := r.now()
	out := r.Checks.Run(ctx, m, settings)
	elapsed := r.now().Sub(started)

	res := domain.CheckResult{
		ID:             uuid.NewString(),
		MonitorID:      m.ID,
		OrganizationID: m.OrganizationID,
		Region:         r.Region,
		Kind:           domain.KindAvailability,
		Status:         out.Status,
		ResponseTimeMS: out.ResponseTimeMS,
		StatusCode:     out.StatusCode,
		ErrorCode:      out.ErrorCode,
		ErrorMessage:   out.ErrorMessage,
		Metadata:       out.Metadata,
		CheckedAt:      r.now().UTC(),
	}
	if err := r.Results.Append(ctx, &res); err != nil {
		log.Warn("check_append_error", zap.Error(err))
		return res, fmt.Errorf("append result: %w", err)
	}
	if err := r.Monitors.UpdateStatus(ctx, m.ID, domain.MonitorStatusFor(res.Status), res.CheckedAt); err != nil {
		log.Warn("check_status_update_error", zap.Error(err))
	}
	if r.Metrics != nil {
		r.Metrics.ObserveCheck(string(m.Protocol), string(res.Status), elapsed)
	}

	if r.Incidents != nil {
		res.IncidentID = r.Incidents.Link(ctx, res.ID, m.ID, res.Status)
	}
	if r.Evaluator != nil {
		err := r.Evaluator.Evaluate(ctx, Evaluation{
			MonitorID:      m.ID,
			OrganizationID: m.OrganizationID,
			CheckResultID:  res.ID,
			Status:         res.Status,
			ErrorCode:      res.ErrorCode,
			ErrorMessage:   res.ErrorMessage,
			ResponseTimeMS: res.ResponseTimeMS,
			StatusCode:     res.StatusCode,
			IncidentID:     res.IncidentID,
			CheckedAt:      res.CheckedAt,
		})
		if err != nil {
			log.Warn("alert_evaluate_error", zap.Error(err))
		}
	}

	log.Debug("check_completed",
		zap.String("status", string(res.Status)),
		zap.String("error_code", string(res.ErrorCode)),
		zap.Float64("response_time_ms", res.ResponseTimeMS),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (r *CheckRunner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, ev Evaluation) error

func (f EvaluatorFunc) Evaluate(ctx context.Context, ev Evaluation) error { return f(ctx, ev) }
