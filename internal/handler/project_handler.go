package handler

import (
	"net/http"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/logic"
	"github.com/blues/cfs-escrow/internal/middleware"
	"github.com/gin-gonic/gin"
)

// ProjectHandler serves the contract over HTTP.
type ProjectHandler struct {
	projectLogic *logic.ProjectLogic
}

// NewProjectHandler creates a handler backed by projectLogic.
func NewProjectHandler(projectLogic *logic.ProjectLogic) *ProjectHandler {
	return &ProjectHandler{projectLogic: projectLogic}
}

// CreateProject instantiates the project with the caller as organizer.
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	caller, err := middleware.Caller(c)
	if err != nil {
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
		return
	}
	var msg crowdfund.InstantiateMsg
	if err := c.ShouldBindJSON(&msg); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.projectLogic.Instantiate(c.Request.Context(), caller, msg)
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "project created", ToExecuteResponse(res))
}

// Execute applies contribute, receive, withdraw or refund on behalf of the caller.
func (h *ProjectHandler) Execute(c *gin.Context) {
	caller, err := middleware.Caller(c)
	if err != nil {
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
		return
	}
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	info := crowdfund.MessageInfo{Sender: caller, Funds: req.Funds}
	res, err := h.projectLogic.Execute(c.Request.Context(), info, req.Msg)
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", ToExecuteResponse(res))
}

// Deposit credits the caller's pledge from a verified on-chain deposit.
func (h *ProjectHandler) Deposit(c *gin.Context) {
	caller, err := middleware.Caller(c)
	if err != nil {
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
		return
	}
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.projectLogic.Deposit(c.Request.Context(), caller, req.TxHash)
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "deposit credited", ToExecuteResponse(res))
}

// GetProject returns the project with its status as of now.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	info, err := h.projectLogic.GetProjectInfo(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", info)
}

// GetContribution returns the amount pledged by an address.
func (h *ProjectHandler) GetContribution(c *gin.Context) {
	addr := crowdfund.Address(c.Param("address"))
	if addr == "" {
		ErrorResponse(c, http.StatusBadRequest, "address is required")
		return
	}
	contribution, err := h.projectLogic.GetContribution(c.Request.Context(), addr)
	if err != nil {
		handleError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "ok", contribution)
}
