package handler

import (
	"github.com/blues/cfs-escrow/internal/crowdfund"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// ExecuteRequest carries a state-mutating message and the native funds
// delivered with it.
type ExecuteRequest struct {
	Msg   crowdfund.ExecuteMsg `json:"msg"`
	Funds []crowdfund.Coin     `json:"funds"`
}

// DepositRequest references an on-chain transaction that paid into escrow.
type DepositRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

// ExecuteResponse lists the attributes and payouts of a committed call.
type ExecuteResponse struct {
	Attributes map[string]string    `json:"attributes"`
	Transfers  []crowdfund.Transfer `json:"transfers"`
}

// ToExecuteResponse flattens the attributes of a contract response.
func ToExecuteResponse(res *crowdfund.Response) ExecuteResponse {
	out := ExecuteResponse{
		Attributes: make(map[string]string, len(res.Attributes)),
		Transfers:  res.Transfers,
	}
	if out.Transfers == nil {
		out.Transfers = []crowdfund.Transfer{}
	}
	for _, a := range res.Attributes {
		out.Attributes[a.Key] = a.Value
	}
	return out
}
