package app

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"scheduling-service/internal/apperror"
	"scheduling-service/internal/booking"
	"scheduling-service/internal/ics"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
	"scheduling-service/internal/slots"
)

// slotMinutes picks the slot length: explicit duration, then the meeting
// type's, then the configured default.
func (a *App) slotMinutes(c *gin.Context) (int, error) {
	if d := c.Query("duration"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || !models.ValidDuration(n) {
			return 0, apperror.InvalidInput(fmt.Sprintf("duration must be one of %v", models.MeetingDurations))
		}
		return n, nil
	}
	if slug := c.Query("meeting_type"); slug != "" {
		host, err := a.Store.HostBySlug(c.Request.Context(), c.Param("slug"))
		if err != nil {
			return 0, err
		}
		mt, err := a.Store.MeetingType(c.Request.Context(), host.ID, slug)
		if err != nil {
			return 0, err
		}
		return mt.DurationMinutes, nil
	}
	if a.DefaultSlotMinutes > 0 {
		return a.DefaultSlotMinutes, nil
	}
	return int(slots.DefaultLength / time.Minute), nil
}

// GET /api/hosts/:slug/slots?date=YYYY-MM-DD
func (a *App) SlotsHandler(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required (YYYY-MM-DD)"})
		return
	}
	minutes, err := a.slotMinutes(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	free, err := a.Resolver.AvailableSlots(c.Request.Context(), c.Param("slug"), date, minutes)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, free)
}

// GET /api/hosts/:slug/dates?start=YYYY-MM-DD&end=YYYY-MM-DD
func (a *App) DatesHandler(c *gin.Context) {
	start, end := c.Query("start"), c.Query("end")
	if start == "" || end == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end required (YYYY-MM-DD)"})
		return
	}
	minutes, err := a.slotMinutes(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	dates, err := a.Resolver.AvailableDates(c.Request.Context(), c.Param("slug"), start, end, minutes)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dates)
}

type createBookingReq struct {
	MeetingType string    `json:"meeting_type,omitempty"`
	Start       time.Time `json:"start" binding:"required"`
	End         time.Time `json:"end" binding:"required"`
	GuestName   string    `json:"guest_name" binding:"required"`
	GuestEmail  string    `json:"guest_email" binding:"required,email"`
	Notes       string    `json:"notes,omitempty"`
}

// POST /api/hosts/:slug/bookings
func (a *App) CreateBookingHandler(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := a.Bookings.CreateBooking(c.Request.Context(), booking.Request{
		HostSlug:        c.Param("slug"),
		MeetingTypeSlug: req.MeetingType,
		Start:           req.Start,
		End:             req.End,
		GuestName:       req.GuestName,
		GuestEmail:      req.GuestEmail,
		Notes:           req.Notes,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}

	body := gin.H{
		"id":             res.Booking.ID,
		"status":         res.Booking.Status,
		"start":          res.Booking.Start,
		"end":            res.Booking.End,
		"calendar_event": res.Calendar,
	}
	if res.Booking.ExternalMeetingLink != "" {
		body["meeting_link"] = res.Booking.ExternalMeetingLink
	}
	c.JSON(http.StatusCreated, body)
}

// GET /api/availability
func (a *App) ListAvailabilityHandler(c *gin.Context) {
	windows, err := a.Bookings.Availability(c.Request.Context(), HostID(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, windows)
}

// PUT /api/availability replaces the host's full window set.
func (a *App) SaveAvailabilityHandler(c *gin.Context) {
	var payload []models.AvailabilityWindow
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := a.Bookings.SaveAvailability(c.Request.Context(), HostID(c), payload)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GET /api/bookings?from=ISO&to=ISO
func (a *App) ListBookingsHandler(c *gin.Context) {
	fromStr, toStr := c.Query("from"), c.Query("to")

	var rng *interval.Interval
	if fromStr != "" || toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
			return
		}
		r := interval.New(from, to)
		rng = &r
	}

	bookings, err := a.Bookings.ListBookings(c.Request.Context(), HostID(c), rng)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// DELETE /api/bookings/:id
func (a *App) CancelBookingHandler(c *gin.Context) {
	if err := a.Bookings.CancelBooking(c.Request.Context(), HostID(c), c.Param("id")); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/bookings/:id/ics
func (a *App) BookingICSHandler(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := a.Bookings.Booking(ctx, HostID(c), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	host, err := a.Store.HostByID(ctx, b.HostID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	raw, err := ics.Encode(host, b, a.now())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="booking-%s.ics"`, b.ID))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", raw)
}
