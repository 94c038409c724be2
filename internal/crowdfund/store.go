package crowdfund

// Store is the contract's view of its persistent state: the project record
// and the contribution ledger. Implementations return ErrNoProject from
// Project before instantiation.
type Store interface {
	Project() (*Project, error)
	SaveProject(p *Project) error

	// Contribution returns the cumulative amount pledged by addr and whether
	// a ledger entry exists.
	Contribution(addr Address) (Uint128, bool, error)
	SetContribution(addr Address, amount Uint128) error
	RemoveContribution(addr Address) error
}
