package crowdfund

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a project.
type Status int

const (
	StatusOngoing Status = iota
	StatusSucceeded
	StatusFailed
	// StatusExpired is the failed terminal state written by earlier revisions.
	StatusExpired
)

var statusNames = map[Status]string{
	StatusOngoing:   "Ongoing",
	StatusSucceeded: "Succeeded",
	StatusFailed:    "Failed",
	StatusExpired:   "Expired",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Refundable reports whether contributors may reclaim their pledges.
func (s Status) Refundable() bool {
	return s == StatusFailed || s == StatusExpired
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Project is the single funding campaign owned by a contract instance.
type Project struct {
	Organizer     Address   `json:"organizer"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Asset         AssetKind `json:"asset"`
	TargetAmount  Uint128   `json:"target_amount"`
	Deadline      uint64    `json:"deadline"`
	CurrentAmount Uint128   `json:"current_amount"`
	Status        Status    `json:"status"`
	// Withdrawn is set once the organizer has been paid.
	Withdrawn bool `json:"withdrawn"`
}

func (p *Project) ended(now uint64) bool {
	return now >= p.Deadline
}

func (p *Project) goalReached() bool {
	return p.CurrentAmount.Cmp(p.TargetAmount) >= 0
}

// failedAt is the single guard for deadline-driven failure, shared by the
// query path and the refund path.
func (p *Project) failedAt(now uint64) bool {
	return p.ended(now) && !p.goalReached()
}

// StatusAt returns the status as of now without modifying the record. Only an
// Ongoing project can change here; terminal states are returned as stored.
func (p *Project) StatusAt(now uint64) Status {
	if p.Status == StatusOngoing && p.failedAt(now) {
		return StatusFailed
	}
	return p.Status
}

// settle resolves an Ongoing project whose deadline has passed and stores the
// outcome in the record.
func (p *Project) settle(now uint64) Status {
	if p.Status != StatusOngoing || !p.ended(now) {
		return p.Status
	}
	if p.failedAt(now) {
		p.Status = StatusFailed
	} else {
		p.Status = StatusSucceeded
	}
	return p.Status
}

// credit adds amount to the running total and flips the project to Succeeded
// the moment the goal is reached.
func (p *Project) credit(amount Uint128) bool {
	sum, ok := p.CurrentAmount.Add(amount)
	if !ok {
		return false
	}
	p.CurrentAmount = sum
	if p.goalReached() && p.Status != StatusSucceeded {
		p.Status = StatusSucceeded
	}
	return true
}
