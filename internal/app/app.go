// Package app is the HTTP surface: public slot and booking endpoints, host
// endpoints behind bearer auth, and the Google Calendar connect flow.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"scheduling-service/internal/apperror"
	"scheduling-service/internal/availability"
	"scheduling-service/internal/booking"
	"scheduling-service/internal/models"
)

// Store is what handlers read directly, beyond the services.
type Store interface {
	HostBySlug(ctx context.Context, slug string) (models.Host, error)
	HostByID(ctx context.Context, id string) (models.Host, error)
	HostByExternalID(ctx context.Context, externalID string) (models.Host, error)
	MeetingType(ctx context.Context, hostID, slug string) (models.MeetingType, error)
	SaveCalendarAccount(ctx context.Context, a models.CalendarAccount) (models.CalendarAccount, error)
}

// AccountLookup resolves which calendar a freshly granted token belongs to.
type AccountLookup interface {
	PrimaryEmail(ctx context.Context, tok *oauth2.Token) (string, error)
}

type App struct {
	Store    Store
	Resolver *availability.Resolver
	Bookings *booking.Service
	Logger   *zap.Logger

	// OAuth is nil when the calendar integration is not configured.
	OAuth    *oauth2.Config
	Accounts AccountLookup

	JWTSecret          []byte
	StaticTokens       []string
	DefaultSlotMinutes int
	Now                func() time.Time
}

type RouterOptions struct {
	CORSOrigins     []string
	RateLimitPerMin int
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func NewRouter(a *App, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(a.Logger), RequestLogger(a.Logger), CORS(opts.CORSOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// OAuth2 callback (must be before auth middleware)
	r.GET("/oauth2callback", a.OAuthCallbackHandler)

	api := r.Group("/api")
	{
		public := api.Group("/hosts/:slug")
		public.Use(RateLimit(opts.RateLimitPerMin, a.Logger))
		{
			public.GET("/slots", a.SlotsHandler)
			public.GET("/dates", a.DatesHandler)
			public.POST("/bookings", a.CreateBookingHandler)
		}

		host := api.Group("")
		host.Use(AuthMiddleware(a.JWTSecret, a.StaticTokens), ResolveHost(a.Store))
		{
			host.GET("/availability", a.ListAvailabilityHandler)
			host.PUT("/availability", a.SaveAvailabilityHandler)
			host.GET("/bookings", a.ListBookingsHandler)
			host.DELETE("/bookings/:id", a.CancelBookingHandler)
			host.GET("/bookings/:id/ics", a.BookingICSHandler)
			host.GET("/calendar/auth", a.CalendarAuthHandler)
		}
	}
	return r
}

// writeError renders err as {"error": message} with the status of its kind.
func (a *App) writeError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperror.Message(err)})
}
