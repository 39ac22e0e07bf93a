package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"authentix-backend/models"
	"authentix-backend/services"
)

type CheckinHandler struct {
	verifier *services.VerificationService
}

func NewCheckinHandler(verifier *services.VerificationService) *CheckinHandler {
	return &CheckinHandler{verifier: verifier}
}

// VerifyTicket answers 200 for every scan outcome except a malformed body.
func (h *CheckinHandler) VerifyTicket(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.VerifyResponse{
			Valid:  false,
			Error:  "Invalid QR code format",
			Reason: string(services.ReasonMalformed),
		})
		return
	}

	resp := h.verifier.Verify(c.Request.Context(), req)
	status := http.StatusOK
	if resp.Reason == string(services.ReasonMalformed) {
		status = http.StatusBadRequest
	}
	c.JSON(status, resp)
}

func (h *CheckinHandler) GetCheckins(c *gin.Context) {
	checkIns, err := h.verifier.ListCheckIns(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checkins": checkIns,
		"count":    len(checkIns),
	})
}
