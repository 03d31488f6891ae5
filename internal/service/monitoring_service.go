package service

import (
	"context"
	"fmt"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"

	"github.com/rs/zerolog"
)

// MonitoringConfig holds detector thresholds.
type MonitoringConfig struct {
	StuckAfter       time.Duration // PROCESSING without progress
	AgingAfter       time.Duration // PENDING_OTP never confirmed
	TimeToPaidWindow time.Duration
	TimeToPaidSample int
	Limit            int
	OpsRecipient     string
}

func (c *MonitoringConfig) applyDefaults() {
	if c.StuckAfter <= 0 {
		c.StuckAfter = 30 * time.Minute
	}
	if c.AgingAfter <= 0 {
		c.AgingAfter = 60 * time.Minute
	}
	if c.TimeToPaidWindow <= 0 {
		c.TimeToPaidWindow = 7 * 24 * time.Hour
	}
	if c.TimeToPaidSample <= 0 {
		c.TimeToPaidSample = 100
	}
	if c.Limit <= 0 {
		c.Limit = 50
	}
}

// MonitoringServiceImpl detects stuck operations and serves ops metrics.
// It never mutates the rows it reports.
type MonitoringServiceImpl struct {
	repo     ports.MonitoringRepository
	recon    ports.ReconciliationService
	slow     ports.SlowPathRecorder
	notifier ports.Notifier
	audit    ports.AuditService
	metrics  ports.MetricsRecorder
	clk      clock.Clock
	cfg      MonitoringConfig
	log      zerolog.Logger
}

// NewMonitoringService creates a new MonitoringServiceImpl. recon and slow may be nil.
func NewMonitoringService(
	repo ports.MonitoringRepository,
	recon ports.ReconciliationService,
	slow ports.SlowPathRecorder,
	notifier ports.Notifier,
	audit ports.AuditService,
	metrics ports.MetricsRecorder,
	clk clock.Clock,
	cfg MonitoringConfig,
	log zerolog.Logger,
) *MonitoringServiceImpl {
	cfg.applyDefaults()
	return &MonitoringServiceImpl{
		repo:     repo,
		recon:    recon,
		slow:     slow,
		notifier: notifier,
		audit:    audit,
		metrics:  metricsOrNop(metrics),
		clk:      clk,
		cfg:      cfg,
		log:      log,
	}
}

func (s *MonitoringServiceImpl) Detect(ctx context.Context) (*domain.StuckFindings, error) {
	now := s.clk.Now()

	stuck, err := s.repo.StuckWithdrawals(ctx, now.Add(-s.cfg.StuckAfter), s.cfg.Limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("stuck withdrawals: %w", err))
	}
	aging, err := s.repo.AgingWithdrawals(ctx, now.Add(-s.cfg.AgingAfter), s.cfg.Limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("aging withdrawals: %w", err))
	}
	exports, err := s.repo.StuckExports(ctx, now, s.cfg.Limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("stuck exports: %w", err))
	}

	f := &domain.StuckFindings{
		StuckWithdrawals: stuck,
		AgingWithdrawals: aging,
		StuckExports:     exports,
		DetectedAt:       now,
	}
	if f.StuckWithdrawals == nil {
		f.StuckWithdrawals = []domain.Withdrawal{}
	}
	if f.AgingWithdrawals == nil {
		f.AgingWithdrawals = []domain.Withdrawal{}
	}
	if f.StuckExports == nil {
		f.StuckExports = []domain.ExportJob{}
	}
	return f, nil
}

// DetectAndAlert runs Detect, exports gauges and pushes an ops
// notification when anything is found.
func (s *MonitoringServiceImpl) DetectAndAlert(ctx context.Context) (*domain.StuckFindings, error) {
	f, err := s.Detect(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveStuckFindings(f)

	if avg, err := s.averageTimeToPaid(ctx); err != nil {
		s.log.Warn().Err(err).Msg("time to paid unavailable")
	} else {
		s.metrics.ObserveTimeToPaid(avg)
	}

	if f.Empty() {
		return f, nil
	}

	s.log.Warn().
		Int("stuck_withdrawals", len(f.StuckWithdrawals)).
		Int("aging_withdrawals", len(f.AgingWithdrawals)).
		Int("stuck_exports", len(f.StuckExports)).
		Msg("stuck operations detected")

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, ports.Notification{
			Recipient: s.cfg.OpsRecipient,
			Template:  ports.TemplateStuckOperations,
			Data: map[string]any{
				"stuck_withdrawals": withdrawalRefs(f.StuckWithdrawals),
				"aging_withdrawals": withdrawalRefs(f.AgingWithdrawals),
				"stuck_exports":     len(f.StuckExports),
				"detected_at":       f.DetectedAt.Format(time.RFC3339),
			},
		})
	}
	return f, nil
}

func (s *MonitoringServiceImpl) Metrics(ctx context.Context) (*ports.OpsMetrics, error) {
	byStatus, err := s.repo.CountWithdrawalsByStatus(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count withdrawals: %w", err))
	}
	if byStatus == nil {
		byStatus = make(map[domain.WithdrawalStatus]int64)
	}
	for _, st := range []domain.WithdrawalStatus{
		domain.WithdrawalStatusPendingOTP, domain.WithdrawalStatusProcessing,
		domain.WithdrawalStatusSuccess, domain.WithdrawalStatusFailed,
	} {
		if _, ok := byStatus[st]; !ok {
			byStatus[st] = 0
		}
	}

	f, err := s.Detect(ctx)
	if err != nil {
		return nil, err
	}
	avg, err := s.averageTimeToPaid(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	out := &ports.OpsMetrics{
		ByStatus:                byStatus,
		Findings:                f,
		AverageTimeToPaidSecond: avg,
	}
	if s.recon != nil {
		out.Reconciliation = s.recon.Latest()
	}
	return out, nil
}

// LogStuckOps appends one STUCK_OPERATION audit entry per finding.
func (s *MonitoringServiceImpl) LogStuckOps(ctx context.Context, actor string) (int, error) {
	f, err := s.Detect(ctx)
	if err != nil {
		return 0, err
	}

	logFinding := func(entity, id, kind string, snapshot any) {
		s.audit.Log(ctx, &domain.AuditEntry{
			Actor:    actor,
			Action:   domain.AuditActionStuckOperation,
			Entity:   entity,
			EntityID: id,
			Before:   domain.Snapshot(map[string]string{"finding": kind}),
			After:    domain.Snapshot(snapshot),
		})
	}
	for i := range f.StuckWithdrawals {
		w := &f.StuckWithdrawals[i]
		logFinding(string(domain.LockKindWithdrawal), w.ID.String(), "stuck_processing", w)
	}
	for i := range f.AgingWithdrawals {
		w := &f.AgingWithdrawals[i]
		logFinding(string(domain.LockKindWithdrawal), w.ID.String(), "aging_pending_otp", w)
	}
	for i := range f.StuckExports {
		e := &f.StuckExports[i]
		logFinding(string(domain.LockKindExportJob), e.ID.String(), "expired_ready", e)
	}
	return f.Total(), nil
}

func (s *MonitoringServiceImpl) SlowPaths() []ports.SlowPath {
	if s.slow == nil {
		return []ports.SlowPath{}
	}
	return s.slow.Snapshot()
}

func (s *MonitoringServiceImpl) averageTimeToPaid(ctx context.Context) (*float64, error) {
	avg, err := s.repo.AverageTimeToPaid(ctx, s.clk.Now().Add(-s.cfg.TimeToPaidWindow), s.cfg.TimeToPaidSample)
	if err != nil {
		return nil, fmt.Errorf("average time to paid: %w", err)
	}
	return avg, nil
}

func withdrawalRefs(ws []domain.Withdrawal) []string {
	refs := make([]string, 0, len(ws))
	for _, w := range ws {
		refs = append(refs, w.ReferenceCode)
	}
	return refs
}
