package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"authentix-backend/models"
	"authentix-backend/services"
)

// UserHandler serves the ticket holder: owned tickets and rotating QR codes.
type UserHandler struct {
	wallets *services.WalletService
	qr      *services.QRService
}

func NewUserHandler(wallets *services.WalletService, qr *services.QRService) *UserHandler {
	return &UserHandler{wallets: wallets, qr: qr}
}

func (h *UserHandler) GetTickets(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required query parameter: address"})
		return
	}

	tickets, err := h.wallets.Tickets(c.Request.Context(), address)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// IssueQRToken is polled by the ticket page every rotation interval.
func (h *UserHandler) IssueQRToken(c *gin.Context) {
	var req models.QRTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: walletAddress, eventId"})
		return
	}

	resp, err := h.qr.Issue(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
