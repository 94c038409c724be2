package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", crowdfund.ErrUnauthorized, http.StatusForbidden},
		{"not yet eligible", crowdfund.ErrNotYetEligible, http.StatusTooEarly},
		{"wrong asset", crowdfund.ErrWrongAsset, http.StatusUnprocessableEntity},
		{"invalid state", crowdfund.ErrInvalidState, http.StatusConflict},
		{"not found", crowdfund.ErrNotFound, http.StatusNotFound},
		{"no project", crowdfund.ErrNoProject, http.StatusNotFound},
		{"invalid request", crowdfund.ErrInvalidRequest, http.StatusBadRequest},
		{"wrapped", fmt.Errorf("execute: %w", crowdfund.ErrInvalidState), http.StatusConflict},
		{"store failure", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestToExecuteResponse(t *testing.T) {
	res := &crowdfund.Response{Attributes: []crowdfund.Attribute{
		{Key: "action", Value: "contribute"},
		{Key: "amount", Value: "5"},
	}}

	out := ToExecuteResponse(res)
	assert.Equal(t, map[string]string{"action": "contribute", "amount": "5"}, out.Attributes)
	assert.NotNil(t, out.Transfers)
	assert.Empty(t, out.Transfers)
}
