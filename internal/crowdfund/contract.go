// Package crowdfund implements an escrow crowdfunding contract: pledges of a
// single asset toward a goal with a deadline, paid out to the organizer on
// success or refunded to each contributor on failure.
//
// The contract performs every guard before its first write, so a rejected call
// never touches the store. Writes of one call are expected to run inside a
// batch that the host commits or discards as a whole.
package crowdfund

import (
	"errors"
	"fmt"
	"strconv"
)

// Contract executes operations against one project's state.
type Contract struct {
	store Store
}

// New returns a contract bound to store.
func New(store Store) *Contract {
	return &Contract{store: store}
}

// Instantiate creates the project. The sender becomes the organizer.
func (c *Contract) Instantiate(env Env, info MessageInfo, msg InstantiateMsg) (*Response, error) {
	const op = "instantiate"

	if _, err := c.store.Project(); err == nil {
		return nil, reject(op, ErrInvalidState, "project already instantiated")
	} else if !errors.Is(err, ErrNoProject) {
		return nil, err
	}
	if info.Sender == "" {
		return nil, reject(op, ErrInvalidRequest, "sender is empty")
	}
	if err := msg.Asset.Validate(); err != nil {
		return nil, reject(op, ErrInvalidRequest, "%v", err)
	}
	if msg.TargetAmount.IsZero() {
		return nil, reject(op, ErrInvalidRequest, "target amount must be greater than zero")
	}
	if msg.Deadline <= env.Time {
		return nil, reject(op, ErrInvalidRequest, "deadline %d is not after current time %d", msg.Deadline, env.Time)
	}

	project := &Project{
		Organizer:    info.Sender,
		Title:        msg.Title,
		Description:  msg.Description,
		Asset:        msg.Asset,
		TargetAmount: msg.TargetAmount,
		Deadline:     msg.Deadline,
		Status:       StatusOngoing,
	}
	if err := c.store.SaveProject(project); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}

	res := &Response{}
	res.addAttribute("action", op).
		addAttribute("organizer", string(info.Sender)).
		addAttribute("asset", msg.Asset.String()).
		addAttribute("target_amount", msg.TargetAmount.String()).
		addAttribute("deadline", strconv.FormatUint(msg.Deadline, 10))
	return res, nil
}

// Execute dispatches a state-mutating message.
func (c *Contract) Execute(env Env, info MessageInfo, msg ExecuteMsg) (*Response, error) {
	if n := msg.arms(); n > 1 {
		return nil, reject("execute", ErrInvalidRequest, "message sets %d operations, expected one", n)
	}
	switch {
	case msg.Contribute != nil:
		return c.Contribute(env, info)
	case msg.Withdraw != nil:
		return c.Withdraw(env, info)
	case msg.Refund != nil:
		return c.Refund(env, info)
	case msg.Receive != nil:
		return c.Receive(env, info, *msg.Receive)
	default:
		return nil, reject("execute", ErrInvalidRequest, "unknown or empty message")
	}
}

// Contribute pledges the native funds attached to the call.
func (c *Contract) Contribute(env Env, info MessageInfo) (*Response, error) {
	const op = "contribute"

	project, err := c.store.Project()
	if err != nil {
		return nil, err
	}
	if err := checkContributable(op, project, env, info.Sender); err != nil {
		return nil, err
	}
	if project.Asset.Native == nil {
		return nil, reject(op, ErrWrongAsset, "project accepts delegated token from %s only", project.Asset.Delegated.Administrator)
	}

	symbol := project.Asset.Native.Symbol
	var pledge *Coin
	for i := range info.Funds {
		if info.Funds[i].Symbol == symbol {
			pledge = &info.Funds[i]
			break
		}
	}
	if pledge == nil || pledge.Amount.IsZero() {
		return nil, reject(op, ErrWrongAsset, "only %s accepted", symbol)
	}

	if err := c.pledge(op, project, info.Sender, pledge.Amount); err != nil {
		return nil, err
	}

	res := &Response{}
	res.addAttribute("action", op).
		addAttribute("symbol", symbol).
		addAttribute("amount", pledge.Amount.String()).
		addAttribute("sender", string(info.Sender))
	return res, nil
}

// Receive credits a delegated-token pledge. The caller is the administrator;
// the requester named in the message is the contributor.
func (c *Contract) Receive(env Env, info MessageInfo, msg ReceiveMsg) (*Response, error) {
	const op = "receive"

	project, err := c.store.Project()
	if err != nil {
		return nil, err
	}
	if msg.Sender == "" {
		return nil, reject(op, ErrInvalidRequest, "requester is empty")
	}
	if err := checkContributable(op, project, env, msg.Sender); err != nil {
		return nil, err
	}
	if project.Asset.Delegated == nil {
		return nil, reject(op, ErrWrongAsset, "only native %s accepted", project.Asset.Native.Symbol)
	}
	administrator := project.Asset.Delegated.Administrator
	if info.Sender != administrator {
		return nil, reject(op, ErrWrongAsset, "notification from %s, expected administrator %s", info.Sender, administrator)
	}
	if msg.Amount.IsZero() {
		return nil, reject(op, ErrWrongAsset, "pledged amount is zero")
	}

	if err := c.pledge(op, project, msg.Sender, msg.Amount); err != nil {
		return nil, err
	}

	res := &Response{}
	res.addAttribute("action", op).
		addAttribute("administrator", string(administrator)).
		addAttribute("amount", msg.Amount.String()).
		addAttribute("sender", string(msg.Sender))
	return res, nil
}

// checkContributable holds the guards shared by both contribution paths.
func checkContributable(op string, project *Project, env Env, contributor Address) error {
	if contributor == project.Organizer {
		return reject(op, ErrUnauthorized, "project organizer cannot contribute")
	}
	if project.Status != StatusOngoing {
		return reject(op, ErrInvalidState, "project is %s, not ongoing", project.Status)
	}
	if project.ended(env.Time) {
		return reject(op, ErrNotYetEligible, "deadline %d already exceeded", project.Deadline)
	}
	return nil
}

func (c *Contract) pledge(op string, project *Project, contributor Address, amount Uint128) error {
	balance, _, err := c.store.Contribution(contributor)
	if err != nil {
		return fmt.Errorf("load contribution: %w", err)
	}
	balance, ok := balance.Add(amount)
	if !ok {
		return reject(op, ErrInvalidRequest, "contribution of %s overflows", amount)
	}
	if !project.credit(amount) {
		return reject(op, ErrInvalidRequest, "project total overflows")
	}

	if err := c.store.SaveProject(project); err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	if err := c.store.SetContribution(contributor, balance); err != nil {
		return fmt.Errorf("save contribution: %w", err)
	}
	return nil
}

// Withdraw pays the full raised amount to the organizer of a succeeded project.
func (c *Contract) Withdraw(env Env, info MessageInfo) (*Response, error) {
	const op = "withdraw"

	project, err := c.store.Project()
	if err != nil {
		return nil, err
	}
	if info.Sender != project.Organizer {
		return nil, reject(op, ErrUnauthorized, "only project organizer can withdraw")
	}
	if !project.ended(env.Time) {
		return nil, reject(op, ErrNotYetEligible, "project not ended, deadline %d", project.Deadline)
	}
	if project.StatusAt(env.Time) != StatusSucceeded {
		return nil, reject(op, ErrInvalidState, "project not succeeded")
	}
	if project.Withdrawn {
		return nil, reject(op, ErrInvalidState, "funds already withdrawn")
	}

	project.Withdrawn = true
	if err := c.store.SaveProject(project); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}

	transfer := project.Asset.transfer(project.Organizer, project.CurrentAmount)
	res := &Response{Transfers: []Transfer{transfer}}
	res.addAttribute("action", op).
		addAttribute("recipient", string(project.Organizer)).
		addAttribute("amount", project.CurrentAmount.String())
	return res, nil
}

// Refund returns the caller's whole pledge once the project has failed.
func (c *Contract) Refund(env Env, info MessageInfo) (*Response, error) {
	const op = "refund"

	project, err := c.store.Project()
	if err != nil {
		return nil, err
	}
	if !project.ended(env.Time) {
		return nil, reject(op, ErrNotYetEligible, "project not ended, deadline %d", project.Deadline)
	}
	if status := project.settle(env.Time); !status.Refundable() {
		return nil, reject(op, ErrInvalidState, "project not failed")
	}
	amount, found, err := c.store.Contribution(info.Sender)
	if err != nil {
		return nil, fmt.Errorf("load contribution: %w", err)
	}
	if !found {
		return nil, reject(op, ErrNotFound, "no contribution found for %s", info.Sender)
	}

	if err := c.store.SaveProject(project); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	if err := c.store.RemoveContribution(info.Sender); err != nil {
		return nil, fmt.Errorf("remove contribution: %w", err)
	}

	transfer := project.Asset.transfer(info.Sender, amount)
	res := &Response{Transfers: []Transfer{transfer}}
	res.addAttribute("action", op).
		addAttribute("recipient", string(info.Sender)).
		addAttribute("amount", amount.String())
	return res, nil
}

// Query dispatches a read-only message.
func (c *Contract) Query(env Env, msg QueryMsg) (interface{}, error) {
	if n := msg.arms(); n > 1 {
		return nil, reject("query", ErrInvalidRequest, "query sets %d requests, expected one", n)
	}
	switch {
	case msg.GetProjectInfo != nil:
		return c.GetProjectInfo(env)
	case msg.GetContribution != nil:
		return c.GetContribution(msg.GetContribution.Address)
	default:
		return nil, reject("query", ErrInvalidRequest, "unknown or empty query")
	}
}

// GetProjectInfo returns the project with its status recomputed for env.Time.
// The recomputed status is not stored.
func (c *Contract) GetProjectInfo(env Env) (*ProjectInfoResponse, error) {
	project, err := c.store.Project()
	if err != nil {
		return nil, err
	}
	return &ProjectInfoResponse{
		Title:         project.Title,
		Description:   project.Description,
		Organizer:     project.Organizer,
		Asset:         project.Asset,
		TargetAmount:  project.TargetAmount,
		Deadline:      project.Deadline,
		CurrentAmount: project.CurrentAmount,
		Status:        project.StatusAt(env.Time),
		Withdrawn:     project.Withdrawn,
	}, nil
}

// GetContribution returns the amount pledged by addr, zero if none.
func (c *Contract) GetContribution(addr Address) (*ContributionResponse, error) {
	project, err := c.store.Project()
	if err != nil {
		return nil, err
	}
	amount, _, err := c.store.Contribution(addr)
	if err != nil {
		return nil, fmt.Errorf("load contribution: %w", err)
	}
	return &ContributionResponse{Asset: project.Asset, Amount: amount}, nil
}
