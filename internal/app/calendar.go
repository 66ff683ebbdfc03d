package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"scheduling-service/internal/gcal"
	"scheduling-service/internal/models"
)

// GET /api/calendar/auth starts the OAuth2 consent flow for the calling host.
func (a *App) CalendarAuthHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}
	state, err := SignState(a.JWTSecret, HostID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	url := a.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{
		"auth_url": url,
		"state":    state,
	})
}

// GET /oauth2callback stores the granted token as a calendar account of the
// host named in state.
func (a *App) OAuthCallbackHandler(c *gin.Context) {
	if a.OAuth == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}
	hostID, err := VerifyState(a.JWTSecret, c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}
	ctx := c.Request.Context()

	token, err := a.OAuth.Exchange(ctx, code)
	if err != nil {
		a.Logger.Warn("oauth code exchange failed", zap.String("hostID", hostID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}
	email := ""
	if a.Accounts != nil {
		if email, err = a.Accounts.PrimaryEmail(ctx, token); err != nil {
			a.Logger.Warn("primary calendar lookup failed", zap.String("hostID", hostID), zap.Error(err))
		}
	}
	raw, err := gcal.EncodeToken(token)
	if err != nil {
		a.writeError(c, err)
		return
	}

	acc, err := a.Store.SaveCalendarAccount(ctx, models.CalendarAccount{
		HostID:     hostID,
		Provider:   "google",
		Email:      email,
		CalendarID: "primary",
		Token:      raw,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	a.Logger.Info("calendar connected", zap.String("hostID", hostID), zap.String("accountID", acc.ID))
	c.JSON(http.StatusOK, gin.H{
		"message": "Authorization successful",
		"account": acc,
	})
}
