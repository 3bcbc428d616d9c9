// Package maintenance runs the periodic sweeps over archived answer tables:
// retention drops artifacts past their age limit and the integrity check
// re-reads recent artifacts to catch ones that no longer decode.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/medinsight/medinsight/internal/query"
	"github.com/medinsight/medinsight/internal/storage"
)

type Archive interface {
	List(ctx context.Context, day time.Time) ([]storage.ObjectInfo, error)
	Load(ctx context.Context, key string) (query.Table, error)
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

type Config struct {
	RetentionInterval time.Duration
	RetentionAge      time.Duration
	IntegrityInterval time.Duration
	IntegrityDays     int
}

type Service struct {
	Archive Archive
	Config  Config
	Logger  *slog.Logger
	Clock   func() time.Time
}

type RetentionSummary struct {
	Cutoff           time.Time `json:"cutoff"`
	ArtifactsDeleted int       `json:"artifacts_deleted"`
}

type IntegritySummary struct {
	DaysScanned         int      `json:"days_scanned"`
	ArtifactsChecked    int      `json:"artifacts_checked"`
	CorruptArtifacts    int      `json:"corrupt_artifacts"`
	OperationalFailures int      `json:"operational_failures"`
	Issues              []string `json:"issues,omitempty"`
}

// Run blocks until ctx is cancelled, firing each sweep on its own ticker.
func (s *Service) Run(ctx context.Context) error {
	if s.Archive == nil {
		return fmt.Errorf("archive is required")
	}
	s.ensureDefaults()

	retentionTicker := time.NewTicker(s.Config.RetentionInterval)
	defer retentionTicker.Stop()
	integrityTicker := time.NewTicker(s.Config.IntegrityInterval)
	defer integrityTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retentionTicker.C:
			summary, err := s.RunRetentionOnce(ctx)
			if err != nil {
				s.Logger.Error("artifact retention failed", slog.Any("error", err))
				continue
			}
			if summary.ArtifactsDeleted > 0 {
				s.Logger.Info("artifact retention completed",
					slog.Int("artifacts_deleted", summary.ArtifactsDeleted),
					slog.Time("cutoff", summary.Cutoff),
				)
			}
		case <-integrityTicker.C:
			summary, err := s.RunIntegrityCheckOnce(ctx)
			if err != nil {
				s.Logger.Error("artifact integrity check failed",
					slog.Any("error", err),
					slog.Int("corrupt_artifacts", summary.CorruptArtifacts),
				)
				continue
			}
			s.Logger.Debug("artifact integrity check completed", slog.Int("artifacts_checked", summary.ArtifactsChecked))
		}
	}
}

func (s *Service) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	if s.Archive == nil {
		return RetentionSummary{}, fmt.Errorf("archive is required")
	}
	s.ensureDefaults()

	summary := RetentionSummary{Cutoff: s.Clock().UTC().Add(-s.Config.RetentionAge)}
	deleted, err := s.Archive.Prune(ctx, summary.Cutoff)
	summary.ArtifactsDeleted = deleted
	if deleted > 0 {
		artifactsPrunedTotal.Add(float64(deleted))
	}
	if err != nil {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("prune artifacts: %w", err)
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// RunIntegrityCheckOnce decodes every artifact written during the last
// IntegrityDays UTC days, today included.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context) (IntegritySummary, error) {
	if s.Archive == nil {
		return IntegritySummary{}, fmt.Errorf("archive is required")
	}
	s.ensureDefaults()

	summary := IntegritySummary{}
	const maxIssueSamples = 20
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(summary.Issues) < maxIssueSamples {
			summary.Issues = append(summary.Issues, message)
		}
	}

	today := s.Clock().UTC()
	for offset := 0; offset < s.Config.IntegrityDays; offset++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		day := today.AddDate(0, 0, -offset)
		summary.DaysScanned++

		objects, err := s.Archive.List(ctx, day)
		if err != nil {
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("list %s: %v", day.Format(time.DateOnly), err))
			continue
		}
		for _, object := range objects {
			summary.ArtifactsChecked++
			if _, err := s.Archive.Load(ctx, object.Key); err != nil {
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				summary.CorruptArtifacts++
				addIssue(fmt.Sprintf("%s: %v", object.Key, err))
			}
		}
	}

	if summary.ArtifactsChecked > 0 {
		integrityArtifactsCheckedTotal.Add(float64(summary.ArtifactsChecked))
	}
	if summary.CorruptArtifacts > 0 {
		integrityCorruptArtifactsTotal.Add(float64(summary.CorruptArtifacts))
	}
	if summary.CorruptArtifacts > 0 || summary.OperationalFailures > 0 {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		if extra := issueCount - len(summary.Issues); extra > 0 {
			return summary, fmt.Errorf("integrity check found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(summary.Issues, "; "), extra)
		}
		return summary, fmt.Errorf("integrity check found %d issue(s): %s", issueCount, strings.Join(summary.Issues, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = time.Hour
	}
	if s.Config.RetentionAge <= 0 {
		s.Config.RetentionAge = 30 * 24 * time.Hour
	}
	if s.Config.IntegrityInterval <= 0 {
		s.Config.IntegrityInterval = 6 * time.Hour
	}
	if s.Config.IntegrityDays <= 0 {
		s.Config.IntegrityDays = 1
	}
}
