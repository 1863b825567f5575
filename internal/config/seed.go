package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

// Seed is the YAML file that populates the in-memory stores.
type Seed struct {
	Settings   []domain.OrgSettings         `yaml:"settings"`
	Monitors   []domain.Monitor             `yaml:"monitors"`
	SLOTargets []domain.SLOTarget           `yaml:"slo_targets"`
	Channels   []domain.NotificationChannel `yaml:"channels"`
	Rotations  []domain.OnCallRotation      `yaml:"rotations"`
	Policies   []domain.EscalationPolicy    `yaml:"escalation_policies"`
	Incidents  []domain.Incident            `yaml:"incidents"`
}

// LoadMonitors parses the seed file at path. An empty path or a missing
// file yields an empty seed.
func LoadMonitors(path string) (Seed, error) {
	var s Seed
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read seed file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse seed file: %w", err)
	}
	return s, s.validate()
}

func (s Seed) validate() error {
	var errs []error
	for i, m := range s.Monitors {
		switch {
		case m.ID == "":
			errs = append(errs, fmt.Errorf("monitors[%d]: id is required", i))
		case m.Target == "":
			errs = append(errs, fmt.Errorf("monitor %s: target is required", m.ID))
		case !knownProtocol(m.Protocol):
			errs = append(errs, fmt.Errorf("monitor %s: unknown protocol %q", m.ID, m.Protocol))
		}
	}
	for _, t := range s.SLOTargets {
		if t.TargetPercent <= 0 || t.TargetPercent > 100 {
			errs = append(errs, fmt.Errorf("slo target %s: target_percent must be in (0, 100]", t.ID))
		}
	}
	return errors.Join(errs...)
}

func knownProtocol(p domain.Protocol) bool {
	switch p {
	case domain.ProtocolHTTP, domain.ProtocolDNS, domain.ProtocolPing,
		domain.ProtocolBanner, domain.ProtocolBlackbox, domain.ProtocolPromQL:
		return true
	}
	return false
}

// Apply writes the seed into store.
func (s Seed) Apply(ctx context.Context, store repo.Store) error {
	for _, v := range s.Settings {
		if err := store.PutSettings(ctx, v); err != nil {
			return fmt.Errorf("seed settings %s: %w", v.OrganizationID, err)
		}
	}
	for i := range s.Monitors {
		if err := store.Add(ctx, &s.Monitors[i]); err != nil {
			return fmt.Errorf("seed monitor %s: %w", s.Monitors[i].ID, err)
		}
	}
	for i := range s.SLOTargets {
		if err := store.AddSLOTarget(ctx, &s.SLOTargets[i]); err != nil {
			return fmt.Errorf("seed slo target %s: %w", s.SLOTargets[i].ID, err)
		}
	}
	for i := range s.Channels {
		if err := store.AddChannel(ctx, &s.Channels[i]); err != nil {
			return fmt.Errorf("seed channel %s: %w", s.Channels[i].ID, err)
		}
	}
	for i := range s.Rotations {
		if err := store.AddRotation(ctx, &s.Rotations[i]); err != nil {
			return fmt.Errorf("seed rotation %s: %w", s.Rotations[i].ID, err)
		}
	}
	for i := range s.Policies {
		if err := store.AddPolicy(ctx, &s.Policies[i]); err != nil {
			return fmt.Errorf("seed policy %s: %w", s.Policies[i].ID, err)
		}
	}
	for i := range s.Incidents {
		if err := store.AddIncident(ctx, &s.Incidents[i]); err != nil {
			return fmt.Errorf("seed incident %s: %w", s.Incidents[i].ID, err)
		}
	}
	return nil
}
