package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"authentix-backend/models"
	"authentix-backend/services"
)

type PurchaseHandler struct {
	purchases *services.PurchaseService
}

func NewPurchaseHandler(purchases *services.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases}
}

// BuyTicket returns the unsigned transaction group for the wallet to sign.
func (h *PurchaseHandler) BuyTicket(c *gin.Context) {
	var req models.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.purchases.Prepare(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ConfirmPurchase signs the organizer leg and submits the group.
func (h *PurchaseHandler) ConfirmPurchase(c *gin.Context) {
	var req models.ConfirmPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	resp, err := h.purchases.Confirm(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(services.StatusFor(resp), resp)
}
