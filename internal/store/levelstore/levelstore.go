// Package levelstore keeps contract state and the settlement outbox in goleveldb.
package levelstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/settlement"
	"github.com/blues/cfs-escrow/internal/store"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	projectKey         = "project_info"
	contributionPrefix = "contributions/"
	pendingPrefix      = "outbox/pending/"
	settledPrefix      = "outbox/settled/"
	depositPrefix      = "deposits/"
)

// Store is a goleveldb backed store.Backend.
type Store struct {
	db *leveldb.DB
}

var _ store.Backend = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a store that lives only in memory.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn inside a leveldb transaction.
func (s *Store) Atomic(ctx context.Context, fn func(store.Batch) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("failed to open transaction: %w", err)
	}
	if err := fn(&batch{state: state{r: tr}, tr: tr}); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// View runs fn against a snapshot.
func (s *Store) View(ctx context.Context, fn func(crowdfund.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("failed to take snapshot: %w", err)
	}
	defer snap.Release()
	return fn(&readOnly{state{r: snap}})
}

// Pending returns up to limit pending settlement records, oldest first,
// including those waiting out a retry delay.
func (s *Store) Pending(ctx context.Context, limit int) ([]settlement.Record, error) {
	return s.scanPending(ctx, limit, func(settlement.Record) bool { return true })
}

// Due returns up to limit pending records that may be tried at now.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]settlement.Record, error) {
	return s.scanPending(ctx, limit, func(r settlement.Record) bool { return r.Due(now) })
}

func (s *Store) scanPending(ctx context.Context, limit int, keep func(settlement.Record) bool) ([]settlement.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter := s.db.NewIterator(util.BytesPrefix([]byte(pendingPrefix)), nil)
	defer iter.Release()

	var records []settlement.Record
	for iter.Next() {
		var r settlement.Record
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			return nil, fmt.Errorf("failed to decode settlement %s: %w", iter.Key(), err)
		}
		if keep(r) {
			records = append(records, r)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *Store) Complete(ctx context.Context, id, txHash string) error {
	return s.move(ctx, id, pendingPrefix, settledPrefix, func(r *settlement.Record) error {
		r.Status = settlement.StatusSuccess
		r.TxHash = txHash
		return nil
	})
}

func (s *Store) Retry(ctx context.Context, id, reason string, next time.Time) error {
	return s.move(ctx, id, pendingPrefix, pendingPrefix, func(r *settlement.Record) error {
		r.Attempts++
		r.Reason = reason
		r.NextAttemptAt = next.UTC()
		return nil
	})
}

func (s *Store) Fail(ctx context.Context, id, reason string) error {
	return s.move(ctx, id, pendingPrefix, settledPrefix, func(r *settlement.Record) error {
		r.Status = settlement.StatusFailed
		r.Reason = reason
		return nil
	})
}

func (s *Store) Requeue(ctx context.Context, id string) error {
	return s.move(ctx, id, settledPrefix, pendingPrefix, func(r *settlement.Record) error {
		if r.Status != settlement.StatusFailed {
			return settlement.ErrRecordNotFound
		}
		r.Status = settlement.StatusPending
		r.Attempts = 0
		r.NextAttemptAt = time.Time{}
		return nil
	})
}

// move rewrites a record found under from and stores it under to in one
// write batch.
func (s *Store) move(ctx context.Context, id, from, to string, update func(*settlement.Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.db.Get([]byte(from+id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return settlement.ErrRecordNotFound
	}
	if err != nil {
		return err
	}

	var r settlement.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("failed to decode settlement %s: %w", id, err)
	}
	if err := update(&r); err != nil {
		return err
	}
	out, err := json.Marshal(r)
	if err != nil {
		return err
	}

	b := new(leveldb.Batch)
	if from != to {
		b.Delete([]byte(from + id))
	}
	b.Put([]byte(to+id), out)
	return s.db.Write(b, &opt.WriteOptions{Sync: true})
}

// Settled returns a resolved record by id.
func (s *Store) Settled(id string) (settlement.Record, error) {
	var r settlement.Record
	data, err := s.db.Get([]byte(settledPrefix+id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return r, settlement.ErrRecordNotFound
	}
	if err != nil {
		return r, err
	}
	err = json.Unmarshal(data, &r)
	return r, err
}

type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
}

type state struct {
	r reader
}

func (s state) Project() (*crowdfund.Project, error) {
	data, err := s.r.Get([]byte(projectKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, crowdfund.ErrNoProject
	}
	if err != nil {
		return nil, err
	}
	var p crowdfund.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode project: %w", err)
	}
	return &p, nil
}

func (s state) Contribution(addr crowdfund.Address) (crowdfund.Uint128, bool, error) {
	var amount crowdfund.Uint128
	data, err := s.r.Get([]byte(contributionPrefix+string(addr)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return amount, false, nil
	}
	if err != nil {
		return amount, false, err
	}
	if err := json.Unmarshal(data, &amount); err != nil {
		return amount, false, fmt.Errorf("failed to decode contribution of %s: %w", addr, err)
	}
	return amount, true, nil
}

type readOnly struct {
	state
}

var errReadOnly = errors.New("levelstore: write in read-only view")

func (readOnly) SaveProject(*crowdfund.Project) error                       { return errReadOnly }
func (readOnly) SetContribution(crowdfund.Address, crowdfund.Uint128) error { return errReadOnly }
func (readOnly) RemoveContribution(crowdfund.Address) error                 { return errReadOnly }

type batch struct {
	state
	tr *leveldb.Transaction
}

func (b *batch) SaveProject(p *crowdfund.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.tr.Put([]byte(projectKey), data, nil)
}

func (b *batch) SetContribution(addr crowdfund.Address, amount crowdfund.Uint128) error {
	data, err := json.Marshal(amount)
	if err != nil {
		return err
	}
	return b.tr.Put([]byte(contributionPrefix+string(addr)), data, nil)
}

func (b *batch) RemoveContribution(addr crowdfund.Address) error {
	return b.tr.Delete([]byte(contributionPrefix+string(addr)), nil)
}

func (b *batch) Enqueue(records []settlement.Record) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := b.tr.Put([]byte(pendingPrefix+r.ID), data, nil); err != nil {
			return err
		}
	}
	return nil
}

func (b *batch) ClaimDeposit(ref string) (bool, error) {
	key := []byte(depositPrefix + ref)
	claimed, err := b.tr.Has(key, nil)
	if err != nil {
		return false, err
	}
	if claimed {
		return false, nil
	}
	return true, b.tr.Put(key, []byte(time.Now().UTC().Format(time.RFC3339)), nil)
}
