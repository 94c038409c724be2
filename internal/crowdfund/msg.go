package crowdfund

import "encoding/json"

// Env is the host-supplied execution environment of a call.
type Env struct {
	// Time is the authoritative block time in unix seconds.
	Time   uint64 `json:"time"`
	Height uint64 `json:"height"`
}

// MessageInfo carries the authenticated caller and the native funds the host
// delivered together with the call.
type MessageInfo struct {
	Sender Address `json:"sender"`
	Funds  []Coin  `json:"funds,omitempty"`
}

type InstantiateMsg struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Asset        AssetKind `json:"asset"`
	TargetAmount Uint128   `json:"target_amount"`
	Deadline     uint64    `json:"deadline"`
}

// ReceiveMsg is the notification an administrator sends after it moved
// delegated tokens into this contract's custody on behalf of Sender.
type ReceiveMsg struct {
	Sender Address         `json:"sender"`
	Amount Uint128         `json:"amount"`
	Msg    json.RawMessage `json:"msg,omitempty"`
}

// ExecuteMsg is a state-mutating request. Exactly one field is set.
type ExecuteMsg struct {
	Contribute *struct{}   `json:"contribute,omitempty"`
	Withdraw   *struct{}   `json:"withdraw,omitempty"`
	Refund     *struct{}   `json:"refund,omitempty"`
	Receive    *ReceiveMsg `json:"receive,omitempty"`
}

// arms counts the fields set on the message.
func (m ExecuteMsg) arms() int {
	return countSet(m.Contribute != nil, m.Withdraw != nil, m.Refund != nil, m.Receive != nil)
}

type GetContributionQuery struct {
	Address Address `json:"address"`
}

// QueryMsg is a read-only request. Exactly one field is set.
type QueryMsg struct {
	GetProjectInfo  *struct{}             `json:"get_project_info,omitempty"`
	GetContribution *GetContributionQuery `json:"get_contribution,omitempty"`
}

func (m QueryMsg) arms() int {
	return countSet(m.GetProjectInfo != nil, m.GetContribution != nil)
}

func countSet(set ...bool) int {
	n := 0
	for _, s := range set {
		if s {
			n++
		}
	}
	return n
}

// Attribute is a key/value record of an action, for observability.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the result of a successful execute.
type Response struct {
	Attributes []Attribute `json:"attributes"`
	Transfers  []Transfer  `json:"transfers,omitempty"`
}

func (r *Response) addAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// Attribute returns the value stored under key, or "".
func (r *Response) Attribute(key string) string {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

type ProjectInfoResponse struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Organizer     Address   `json:"organizer"`
	Asset         AssetKind `json:"asset"`
	TargetAmount  Uint128   `json:"target_amount"`
	Deadline      uint64    `json:"deadline"`
	CurrentAmount Uint128   `json:"current_amount"`
	Status        Status    `json:"status"`
	Withdrawn     bool      `json:"withdrawn"`
}

type ContributionResponse struct {
	Asset  AssetKind `json:"asset"`
	Amount Uint128   `json:"amount"`
}
