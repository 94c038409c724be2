package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/logger"
	"github.com/blues/cfs-escrow/internal/metrics"
	"github.com/blues/cfs-escrow/internal/settlement"
	"github.com/blues/cfs-escrow/internal/store"
)

// Host-level rejections. Each wraps the contract rejection kind it is reported as.
var (
	ErrUnbackedPledge   = fmt.Errorf("pledges must reference a verified deposit: %w", crowdfund.ErrWrongAsset)
	ErrDepositsDisabled = fmt.Errorf("deposit verification is not configured: %w", crowdfund.ErrInvalidRequest)
	ErrDepositCredited  = fmt.Errorf("deposit already credited: %w", crowdfund.ErrInvalidState)
	ErrDepositSender    = fmt.Errorf("deposit was not made by the caller: %w", crowdfund.ErrUnauthorized)
	ErrAssetUnsupported = fmt.Errorf("asset cannot be settled: %w", crowdfund.ErrInvalidRequest)
)

// AssetValidator rejects assets whose payouts the host cannot settle.
type AssetValidator interface {
	ValidateAsset(asset crowdfund.AssetKind) error
}

// ProjectLogic hosts the contract: it supplies time, applies each call as one
// atomic unit against the backend and hands emitted transfers to the outbox.
// Calls are applied one at a time.
//
// With a DepositVerifier configured, pledges are credited only from verified
// deposits through Deposit; funds declared on Execute are refused.
type ProjectLogic struct {
	mu       sync.RWMutex
	backend  store.Backend
	metrics  *metrics.Collector
	now      func() time.Time
	height   uint64
	deposits settlement.DepositVerifier
	assets   AssetValidator
}

// NewProjectLogic creates the host for backend. m may be nil.
func NewProjectLogic(backend store.Backend, m *metrics.Collector) *ProjectLogic {
	return &ProjectLogic{
		backend: backend,
		metrics: m,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (p *ProjectLogic) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// SetDepositVerifier requires pledges to be backed by deposits confirmed by v.
func (p *ProjectLogic) SetDepositVerifier(v settlement.DepositVerifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deposits = v
}

// SetAssetValidator restricts the assets a project may be instantiated with.
func (p *ProjectLogic) SetAssetValidator(v AssetValidator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assets = v
}

func (p *ProjectLogic) env() crowdfund.Env {
	return crowdfund.Env{Time: uint64(p.now().Unix()), Height: p.height}
}

// Instantiate creates the project with sender as organizer.
func (p *ProjectLogic) Instantiate(ctx context.Context, sender crowdfund.Address, msg crowdfund.InstantiateMsg) (*crowdfund.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.height++

	env := p.env()
	var res *crowdfund.Response
	err := p.checkAsset(msg.Asset)
	if err == nil {
		err = p.backend.Atomic(ctx, func(b store.Batch) error {
			var err error
			res, err = crowdfund.New(b).Instantiate(env, crowdfund.MessageInfo{Sender: sender}, msg)
			return err
		})
	}
	p.record("instantiate", sender, err)
	if err != nil {
		return nil, err
	}
	logger.Info("Project %q instantiated by %s, target %s %s, deadline %d",
		msg.Title, sender, msg.TargetAmount, msg.Asset, msg.Deadline)
	return res, nil
}

// Execute applies a state-mutating message. Transfers in the response are
// enqueued for settlement in the same atomic unit as the state change.
func (p *ProjectLogic) Execute(ctx context.Context, info crowdfund.MessageInfo, msg crowdfund.ExecuteMsg) (*crowdfund.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.height++

	env := p.env()
	op := operationName(msg)
	if p.deposits != nil && (msg.Contribute != nil || msg.Receive != nil || len(info.Funds) > 0) {
		p.record(op, info.Sender, ErrUnbackedPledge)
		return nil, ErrUnbackedPledge
	}

	var res *crowdfund.Response
	err := p.backend.Atomic(ctx, func(b store.Batch) error {
		var err error
		res, err = crowdfund.New(b).Execute(env, info, msg)
		if err != nil {
			return err
		}
		if len(res.Transfers) == 0 {
			return nil
		}
		kind := settlement.KindRefund
		if msg.Withdraw != nil {
			kind = settlement.KindWithdraw
		}
		return b.Enqueue(settlement.NewRecords(kind, res.Transfers, p.now()))
	})
	p.record(op, info.Sender, err)
	if err != nil {
		return nil, err
	}
	for _, t := range res.Transfers {
		logger.Info("Queued %s of %s to %s", op, t.Amount, t.Recipient)
	}
	return res, nil
}

// Deposit credits the pledge made by the on-chain transaction txHash. The
// transaction must have moved funds into escrow from the caller's account,
// and each transaction is credited at most once.
func (p *ProjectLogic) Deposit(ctx context.Context, caller crowdfund.Address, txHash string) (*crowdfund.Response, error) {
	const op = "deposit"

	p.mu.RLock()
	verifier := p.deposits
	p.mu.RUnlock()
	if verifier == nil {
		p.record(op, caller, ErrDepositsDisabled)
		return nil, ErrDepositsDisabled
	}

	deposit, err := verifier.VerifyDeposit(ctx, txHash)
	if err == nil && !strings.EqualFold(string(deposit.From), string(caller)) {
		err = fmt.Errorf("%w: sent by %s", ErrDepositSender, deposit.From)
	}
	if err != nil {
		p.record(op, caller, err)
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.height++

	env := p.env()
	var res *crowdfund.Response
	err = p.backend.Atomic(ctx, func(b store.Batch) error {
		claimed, err := b.ClaimDeposit(deposit.TxHash)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("%w: %s", ErrDepositCredited, deposit.TxHash)
		}
		project, err := b.Project()
		if err != nil {
			return err
		}
		info, msg := pledgeFor(project, caller, deposit)
		res, err = crowdfund.New(b).Execute(env, info, msg)
		return err
	})
	p.record(op, caller, err)
	if err != nil {
		if crowdfund.IsRejection(err) && !errors.Is(err, ErrDepositCredited) {
			logger.Warn("Deposit %s of %s from %s is held in escrow but was not credited: %v",
				deposit.TxHash, deposit.Amount, caller, err)
		}
		return nil, err
	}

	res.Attributes = append(res.Attributes, crowdfund.Attribute{Key: "deposit_tx", Value: deposit.TxHash})
	logger.Info("Credited deposit %s of %s from %s", deposit.TxHash, deposit.Amount, caller)
	return res, nil
}

// pledgeFor turns a verified deposit into the contract message that credits it.
func pledgeFor(project *crowdfund.Project, caller crowdfund.Address, d *settlement.Deposit) (crowdfund.MessageInfo, crowdfund.ExecuteMsg) {
	if d.Token == "" {
		info := crowdfund.MessageInfo{
			Sender: caller,
			Funds:  []crowdfund.Coin{{Symbol: d.Symbol, Amount: d.Amount}},
		}
		return info, crowdfund.ExecuteMsg{Contribute: &struct{}{}}
	}

	// Hex addresses differ only in case; use the project's spelling of the administrator.
	notifier := d.Token
	if project.Asset.Delegated != nil && strings.EqualFold(string(project.Asset.Delegated.Administrator), string(d.Token)) {
		notifier = project.Asset.Delegated.Administrator
	}
	info := crowdfund.MessageInfo{Sender: notifier}
	return info, crowdfund.ExecuteMsg{Receive: &crowdfund.ReceiveMsg{Sender: caller, Amount: d.Amount}}
}

func (p *ProjectLogic) checkAsset(asset crowdfund.AssetKind) error {
	if p.assets == nil {
		return nil
	}
	if err := p.assets.ValidateAsset(asset); err != nil {
		return fmt.Errorf("%w: %v", ErrAssetUnsupported, err)
	}
	return nil
}

// Query answers a read-only message.
func (p *ProjectLogic) Query(ctx context.Context, msg crowdfund.QueryMsg) (interface{}, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	env := p.env()
	var out interface{}
	err := p.backend.View(ctx, func(s crowdfund.Store) error {
		var err error
		out, err = crowdfund.New(s).Query(env, msg)
		return err
	})
	return out, err
}

// GetProjectInfo returns the project with its status as of now.
func (p *ProjectLogic) GetProjectInfo(ctx context.Context) (*crowdfund.ProjectInfoResponse, error) {
	out, err := p.Query(ctx, crowdfund.QueryMsg{GetProjectInfo: &struct{}{}})
	if err != nil {
		return nil, err
	}
	return out.(*crowdfund.ProjectInfoResponse), nil
}

// GetContribution returns the amount pledged by addr.
func (p *ProjectLogic) GetContribution(ctx context.Context, addr crowdfund.Address) (*crowdfund.ContributionResponse, error) {
	out, err := p.Query(ctx, crowdfund.QueryMsg{GetContribution: &crowdfund.GetContributionQuery{Address: addr}})
	if err != nil {
		return nil, err
	}
	return out.(*crowdfund.ContributionResponse), nil
}

func (p *ProjectLogic) record(op string, caller crowdfund.Address, err error) {
	switch {
	case err == nil:
		p.metrics.ObserveOperation(op, "ok")
	case crowdfund.IsRejection(err):
		p.metrics.ObserveOperation(op, "rejected")
		logger.Info("Rejected %s from %s: %v", op, caller, err)
	default:
		p.metrics.ObserveOperation(op, "error")
		logger.Error("Failed to apply %s from %s: %v", op, caller, err)
	}
}

func operationName(msg crowdfund.ExecuteMsg) string {
	switch {
	case msg.Contribute != nil:
		return "contribute"
	case msg.Withdraw != nil:
		return "withdraw"
	case msg.Refund != nil:
		return "refund"
	case msg.Receive != nil:
		return "receive"
	default:
		return "execute"
	}
}
