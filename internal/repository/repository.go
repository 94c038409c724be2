package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/model"
	"github.com/blues/cfs-escrow/internal/settlement"
	"github.com/blues/cfs-escrow/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a gorm backed store.Backend.
type Repository struct {
	db *gorm.DB
}

var _ store.Backend = (*Repository)(nil)

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Atomic runs fn inside a database transaction.
func (r *Repository) Atomic(ctx context.Context, fn func(store.Batch) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&batch{state{tx}})
	})
}

// View runs fn outside a transaction. The host serializes writes, so a read
// never observes a half-applied call.
func (r *Repository) View(ctx context.Context, fn func(crowdfund.Store) error) error {
	return fn(&readOnly{state{r.db.WithContext(ctx)}})
}

// Pending returns up to limit pending records, oldest first, including those
// waiting out a retry delay.
func (r *Repository) Pending(ctx context.Context, limit int) ([]settlement.Record, error) {
	return r.findPending(r.db.WithContext(ctx), limit)
}

// Due returns up to limit pending records that may be tried at now.
func (r *Repository) Due(ctx context.Context, now time.Time, limit int) ([]settlement.Record, error) {
	q := r.db.WithContext(ctx).Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now.UTC())
	return r.findPending(q, limit)
}

func (r *Repository) findPending(q *gorm.DB, limit int) ([]settlement.Record, error) {
	var rows []model.SettlementRecordModel
	q = q.Where("status = ?", string(settlement.StatusPending)).Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query pending settlements: %w", err)
	}

	records := make([]settlement.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.ToRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *Repository) Complete(ctx context.Context, id, txHash string) error {
	now := time.Now()
	return r.update(ctx, id, settlement.StatusPending, map[string]interface{}{
		"status":          string(settlement.StatusSuccess),
		"tx_hash":         txHash,
		"settlement_time": &now,
	})
}

func (r *Repository) Retry(ctx context.Context, id, reason string, next time.Time) error {
	return r.update(ctx, id, settlement.StatusPending, map[string]interface{}{
		"attempts":        gorm.Expr("attempts + ?", 1),
		"reason":          reason,
		"next_attempt_at": next.UTC(),
	})
}

func (r *Repository) Fail(ctx context.Context, id, reason string) error {
	now := time.Now()
	return r.update(ctx, id, settlement.StatusPending, map[string]interface{}{
		"status":          string(settlement.StatusFailed),
		"reason":          reason,
		"settlement_time": &now,
	})
}

func (r *Repository) Requeue(ctx context.Context, id string) error {
	return r.update(ctx, id, settlement.StatusFailed, map[string]interface{}{
		"status":          string(settlement.StatusPending),
		"attempts":        0,
		"next_attempt_at": nil,
		"settlement_time": nil,
	})
}

// update applies updates to the record if it is currently in status from.
func (r *Repository) update(ctx context.Context, id string, from settlement.Status, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&model.SettlementRecordModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update settlement %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return settlement.ErrRecordNotFound
	}
	return nil
}

// Settlement returns an outbox record by id.
func (r *Repository) Settlement(ctx context.Context, id string) (settlement.Record, error) {
	var row model.SettlementRecordModel
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.Record{}, settlement.ErrRecordNotFound
	}
	if err != nil {
		return settlement.Record{}, err
	}
	return row.ToRecord()
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type state struct {
	db *gorm.DB
}

func (s state) Project() (*crowdfund.Project, error) {
	var row model.ProjectModel
	err := s.db.First(&row, model.ProjectRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, crowdfund.ErrNoProject
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return row.ToProject()
}

func (s state) Contribution(addr crowdfund.Address) (crowdfund.Uint128, bool, error) {
	var row model.ContributionModel
	err := s.db.Where("address = ?", string(addr)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return crowdfund.Uint128{}, false, nil
	}
	if err != nil {
		return crowdfund.Uint128{}, false, fmt.Errorf("failed to load contribution of %s: %w", addr, err)
	}
	amount, err := crowdfund.ParseUint128(row.Amount)
	if err != nil {
		return crowdfund.Uint128{}, false, fmt.Errorf("contribution of %s: %w", addr, err)
	}
	return amount, true, nil
}

type readOnly struct {
	state
}

var errReadOnly = errors.New("repository: write in read-only view")

func (readOnly) SaveProject(*crowdfund.Project) error                       { return errReadOnly }
func (readOnly) SetContribution(crowdfund.Address, crowdfund.Uint128) error { return errReadOnly }
func (readOnly) RemoveContribution(crowdfund.Address) error                 { return errReadOnly }

type batch struct {
	state
}

func (b *batch) SaveProject(p *crowdfund.Project) error {
	row := model.NewProjectModel(p)
	return b.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "organizer", "title", "description", "asset_kind", "asset_ref",
			"target_amount", "current_amount", "deadline", "status", "withdrawn",
		}),
	}).Create(&row).Error
}

func (b *batch) SetContribution(addr crowdfund.Address, amount crowdfund.Uint128) error {
	row := model.ContributionModel{Address: string(addr), Amount: amount.String()}
	return b.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&row).Error
}

func (b *batch) RemoveContribution(addr crowdfund.Address) error {
	return b.db.Where("address = ?", string(addr)).Delete(&model.ContributionModel{}).Error
}

func (b *batch) Enqueue(records []settlement.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]model.SettlementRecordModel, 0, len(records))
	for _, rec := range records {
		rows = append(rows, model.NewSettlementRecordModel(rec))
	}
	return b.db.Create(&rows).Error
}

func (b *batch) ClaimDeposit(ref string) (bool, error) {
	var count int64
	if err := b.db.Model(&model.DepositModel{}).Where("tx_hash = ?", ref).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up deposit %s: %w", ref, err)
	}
	if count > 0 {
		return false, nil
	}
	if err := b.db.Create(&model.DepositModel{TxHash: ref}).Error; err != nil {
		return false, fmt.Errorf("failed to record deposit %s: %w", ref, err)
	}
	return true, nil
}
