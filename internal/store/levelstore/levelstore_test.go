package levelstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/settlement"
	"github.com/blues/cfs-escrow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleProject() *crowdfund.Project {
	return &crowdfund.Project{
		Organizer:    "org",
		Title:        "well",
		Asset:        crowdfund.DelegatedAsset("0xToken"),
		TargetAmount: crowdfund.NewUint128(500),
		Deadline:     1000,
		Status:       crowdfund.StatusOngoing,
	}
}

func TestProjectNotInstantiated(t *testing.T) {
	s := openMemory(t)
	err := s.View(context.Background(), func(st crowdfund.Store) error {
		_, err := st.Project()
		return err
	})
	assert.ErrorIs(t, err, crowdfund.ErrNoProject)
}

func TestAtomicCommit(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	records := settlement.NewRecords(settlement.KindRefund, []crowdfund.Transfer{{Recipient: "alice", Amount: crowdfund.NewUint128(3)}}, time.Now())

	err := s.Atomic(ctx, func(b store.Batch) error {
		require.NoError(t, b.SaveProject(sampleProject()))
		require.NoError(t, b.SetContribution("alice", crowdfund.NewUint128(42)))

		amount, found, err := b.Contribution("alice")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "42", amount.String())

		return b.Enqueue(records)
	})
	require.NoError(t, err)

	err = s.View(ctx, func(st crowdfund.Store) error {
		p, err := st.Project()
		require.NoError(t, err)
		assert.Equal(t, "well", p.Title)
		assert.Equal(t, crowdfund.Address("0xToken"), p.Asset.Delegated.Administrator)

		amount, found, err := st.Contribution("alice")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "42", amount.String())

		_, found, err = st.Contribution("bob")
		require.NoError(t, err)
		assert.False(t, found)

		assert.Error(t, st.SaveProject(p))
		return nil
	})
	require.NoError(t, err)

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, records[0].ID, pending[0].ID)
	assert.Equal(t, "3", pending[0].Transfer.Amount.String())
}

func TestAtomicRollback(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	boom := errors.New("rejected")

	err := s.Atomic(ctx, func(b store.Batch) error {
		require.NoError(t, b.SaveProject(sampleProject()))
		require.NoError(t, b.SetContribution("alice", crowdfund.NewUint128(1)))
		require.NoError(t, b.Enqueue(settlement.NewRecords(settlement.KindWithdraw, []crowdfund.Transfer{{Recipient: "org"}}, time.Now())))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(st crowdfund.Store) error {
		_, err := st.Project()
		assert.ErrorIs(t, err, crowdfund.ErrNoProject)
		_, found, err := st.Contribution("alice")
		assert.False(t, found)
		return err
	})
	require.NoError(t, err)

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRemoveContribution(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.Atomic(ctx, func(b store.Batch) error {
		return b.SetContribution("alice", crowdfund.NewUint128(9))
	}))
	require.NoError(t, s.Atomic(ctx, func(b store.Batch) error {
		return b.RemoveContribution("alice")
	}))
	require.NoError(t, s.View(ctx, func(st crowdfund.Store) error {
		_, found, err := st.Contribution("alice")
		assert.False(t, found)
		return err
	}))
}

func TestOutboxLifecycle(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	var all []settlement.Record
	for i, to := range []crowdfund.Address{"c", "a", "b"} {
		all = append(all, settlement.NewRecords(settlement.KindRefund,
			[]crowdfund.Transfer{{Recipient: to, Amount: crowdfund.NewUint128(1)}},
			base.Add(time.Duration(i)*time.Second))...)
	}
	require.NoError(t, s.Atomic(ctx, func(b store.Batch) error { return b.Enqueue(all) }))

	pending, err := s.Pending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, all[0].ID, pending[0].ID)
	assert.Equal(t, all[1].ID, pending[1].ID)

	require.NoError(t, s.Complete(ctx, all[0].ID, "0xabc"))
	require.NoError(t, s.Fail(ctx, all[1].ID, "nonce too low"))
	assert.ErrorIs(t, s.Complete(ctx, all[0].ID, "0xabc"), settlement.ErrRecordNotFound)

	pending, err = s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, all[2].ID, pending[0].ID)

	done, err := s.Settled(all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusSuccess, done.Status)
	assert.Equal(t, "0xabc", done.TxHash)

	failed, err := s.Settled(all[1].ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusFailed, failed.Status)
	assert.Equal(t, "nonce too low", failed.Reason)
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Atomic(context.Background(), func(b store.Batch) error {
		return b.SaveProject(sampleProject())
	}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.View(context.Background(), func(st crowdfund.Store) error {
		p, err := st.Project()
		if err == nil {
			assert.Equal(t, "500", p.TargetAmount.String())
		}
		return err
	}))
}

func TestRetryKeepsRecordPending(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()
	records := settlement.NewRecords(settlement.KindWithdraw,
		[]crowdfund.Transfer{{Recipient: "org", Amount: crowdfund.NewUint128(7)}}, base)
	id := records[0].ID
	require.NoError(t, s.Atomic(ctx, func(b store.Batch) error { return b.Enqueue(records) }))

	due, err := s.Due(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	next := base.Add(time.Minute)
	require.NoError(t, s.Retry(ctx, id, "gas price timeout", next))

	due, err = s.Due(ctx, base.Add(30*time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "gas price timeout", pending[0].Reason)
	assert.True(t, next.Equal(pending[0].NextAttemptAt))

	due, err = s.Due(ctx, next, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
}

func TestRequeueFailedRecord(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	records := settlement.NewRecords(settlement.KindRefund,
		[]crowdfund.Transfer{{Recipient: "alice", Amount: crowdfund.NewUint128(2)}}, time.Now())
	id := records[0].ID
	require.NoError(t, s.Atomic(ctx, func(b store.Batch) error { return b.Enqueue(records) }))

	assert.ErrorIs(t, s.Requeue(ctx, id), settlement.ErrRecordNotFound, "pending records are not requeued")
	require.NoError(t, s.Retry(ctx, id, "timeout", time.Now()))
	require.NoError(t, s.Fail(ctx, id, "invalid address"))
	require.NoError(t, s.Requeue(ctx, id))

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, settlement.StatusPending, pending[0].Status)
	assert.Zero(t, pending[0].Attempts)
	assert.True(t, pending[0].NextAttemptAt.IsZero())

	_, err = s.Settled(id)
	assert.ErrorIs(t, err, settlement.ErrRecordNotFound)

	require.NoError(t, s.Complete(ctx, id, "0x1"))
	assert.ErrorIs(t, s.Requeue(ctx, id), settlement.ErrRecordNotFound, "settled records are not requeued")
}

func TestClaimDeposit(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	claim := func() (bool, error) {
		var claimed bool
		err := s.Atomic(ctx, func(b store.Batch) error {
			var err error
			claimed, err = b.ClaimDeposit("0xaaaa")
			return err
		})
		return claimed, err
	}

	boom := errors.New("rejected")
	err := s.Atomic(ctx, func(b store.Batch) error {
		claimed, err := b.ClaimDeposit("0xaaaa")
		require.NoError(t, err)
		assert.True(t, claimed)
		return boom
	})
	require.ErrorIs(t, err, boom)

	claimed, err := claim()
	require.NoError(t, err)
	assert.True(t, claimed, "a discarded claim is not kept")

	claimed, err = claim()
	require.NoError(t, err)
	assert.False(t, claimed)
}
