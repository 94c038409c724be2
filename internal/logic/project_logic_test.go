package logic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/metrics"
	"github.com/blues/cfs-escrow/internal/settlement"
	"github.com/blues/cfs-escrow/internal/store/levelstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var deadline = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newBareLogic(t *testing.T) (*ProjectLogic, *levelstore.Store, *clock, *prometheus.Registry) {
	t.Helper()
	backend, err := levelstore.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	clk := &clock{t: deadline.Add(-24 * time.Hour)}
	l := NewProjectLogic(backend, m)
	l.SetClock(clk.now)
	return l, backend, clk, reg
}

func newTestLogic(t *testing.T, asset crowdfund.AssetKind, target uint64) (*ProjectLogic, *levelstore.Store, *clock, *prometheus.Registry) {
	t.Helper()
	l, backend, clk, reg := newBareLogic(t)
	_, err := l.Instantiate(context.Background(), "organizer", crowdfund.InstantiateMsg{
		Title:        "garden",
		Asset:        asset,
		TargetAmount: crowdfund.NewUint128(target),
		Deadline:     uint64(deadline.Unix()),
	})
	require.NoError(t, err)
	return l, backend, clk, reg
}

func contribute(t *testing.T, l *ProjectLogic, from crowdfund.Address, n uint64) {
	t.Helper()
	_, err := l.Execute(context.Background(), crowdfund.MessageInfo{
		Sender: from,
		Funds:  []crowdfund.Coin{{Symbol: "wei", Amount: crowdfund.NewUint128(n)}},
	}, crowdfund.ExecuteMsg{Contribute: &struct{}{}})
	require.NoError(t, err)
}

func TestWithdrawEnqueuesSettlement(t *testing.T) {
	l, backend, clk, reg := newTestLogic(t, crowdfund.NativeAsset("wei"), 100)
	ctx := context.Background()

	contribute(t, l, "alice", 60)
	contribute(t, l, "bob", 40)

	_, err := l.Execute(ctx, crowdfund.MessageInfo{Sender: "organizer"}, crowdfund.ExecuteMsg{Withdraw: &struct{}{}})
	require.ErrorIs(t, err, crowdfund.ErrNotYetEligible)

	clk.set(deadline)
	res, err := l.Execute(ctx, crowdfund.MessageInfo{Sender: "organizer"}, crowdfund.ExecuteMsg{Withdraw: &struct{}{}})
	require.NoError(t, err)
	require.Len(t, res.Transfers, 1)

	pending, err := backend.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, settlement.KindWithdraw, pending[0].Kind)
	assert.Equal(t, crowdfund.Address("organizer"), pending[0].Transfer.Recipient)
	assert.Equal(t, "100", pending[0].Transfer.Amount.String())
	assert.True(t, deadline.Equal(pending[0].CreatedAt))

	_, err = l.Execute(ctx, crowdfund.MessageInfo{Sender: "organizer"}, crowdfund.ExecuteMsg{Withdraw: &struct{}{}})
	require.ErrorIs(t, err, crowdfund.ErrInvalidState)

	pending, err = backend.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "rejected call must not enqueue")

	assert.Equal(t, 2.0, operations(t, reg, "contribute", "ok"))
	assert.Equal(t, 2.0, operations(t, reg, "withdraw", "rejected"))
	assert.Equal(t, 1.0, operations(t, reg, "withdraw", "ok"))
}

func TestRefundFlow(t *testing.T) {
	l, backend, clk, _ := newTestLogic(t, crowdfund.DelegatedAsset("0xToken"), 100)
	ctx := context.Background()

	_, err := l.Execute(ctx, crowdfund.MessageInfo{Sender: "0xToken"}, crowdfund.ExecuteMsg{
		Receive: &crowdfund.ReceiveMsg{Sender: "alice", Amount: crowdfund.NewUint128(30)},
	})
	require.NoError(t, err)

	info, err := l.GetProjectInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, crowdfund.StatusOngoing, info.Status)

	clk.set(deadline.Add(time.Hour))
	info, err = l.GetProjectInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, crowdfund.StatusFailed, info.Status)

	_, err = l.Execute(ctx, crowdfund.MessageInfo{Sender: "alice"}, crowdfund.ExecuteMsg{Refund: &struct{}{}})
	require.NoError(t, err)

	got, err := l.GetContribution(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.Amount.IsZero())

	pending, err := backend.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, settlement.KindRefund, pending[0].Kind)
	assert.Equal(t, crowdfund.Address("0xToken"), pending[0].Transfer.Target())

	_, err = l.Execute(ctx, crowdfund.MessageInfo{Sender: "alice"}, crowdfund.ExecuteMsg{Refund: &struct{}{}})
	require.ErrorIs(t, err, crowdfund.ErrNotFound)
}

func TestConcurrentContributions(t *testing.T) {
	l, _, _, _ := newTestLogic(t, crowdfund.NativeAsset("wei"), 1_000_000)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := crowdfund.Address([]string{"alice", "bob", "carol", "dave"}[i%4])
			_, err := l.Execute(ctx, crowdfund.MessageInfo{
				Sender: from,
				Funds:  []crowdfund.Coin{{Symbol: "wei", Amount: crowdfund.NewUint128(10)}},
			}, crowdfund.ExecuteMsg{Contribute: &struct{}{}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	info, err := l.GetProjectInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "200", info.CurrentAmount.String())

	got, err := l.GetContribution(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "50", got.Amount.String())
}

func TestInstantiateOnce(t *testing.T) {
	l, _, _, reg := newTestLogic(t, crowdfund.NativeAsset("wei"), 10)
	_, err := l.Instantiate(context.Background(), "mallory", crowdfund.InstantiateMsg{
		Asset:        crowdfund.NativeAsset("wei"),
		TargetAmount: crowdfund.NewUint128(1),
		Deadline:     uint64(deadline.Unix()),
	})
	require.ErrorIs(t, err, crowdfund.ErrInvalidState)
	assert.Equal(t, 1.0, operations(t, reg, "instantiate", "rejected"))
}

func operations(t *testing.T, reg *prometheus.Registry, op, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "cfs_operations_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["operation"] == op && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
