// Package ics renders bookings as iCalendar documents.
package ics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"scheduling-service/internal/models"
)

const productID = "-//scheduling-service//bookings//EN"

// Encode renders b as a single-event VCALENDAR. stamp is written as DTSTAMP.
func Encode(host models.Host, b models.Booking, stamp time.Time) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropMethod, "PUBLISH")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, b.ID+"@scheduling-service")
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, b.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, b.End.UTC())
	event.Props.SetText(ical.PropSummary, fmt.Sprintf("Meeting: %s and %s", host.Name, b.GuestName))
	if b.Notes != "" {
		event.Props.SetText(ical.PropDescription, b.Notes)
	}
	if b.ExternalMeetingLink != "" {
		event.Props.SetText(ical.PropLocation, b.ExternalMeetingLink)
	}
	if b.Active() {
		event.Props.SetText(ical.PropStatus, "CONFIRMED")
	} else {
		event.Props.SetText(ical.PropStatus, "CANCELLED")
	}

	organizer := ical.NewProp(ical.PropOrganizer)
	organizer.Value = "mailto:" + host.Email
	organizer.Params.Set(ical.ParamCommonName, host.Name)
	event.Props.Set(organizer)

	guest := ical.NewProp(ical.PropAttendee)
	guest.Value = "mailto:" + b.GuestEmail
	guest.Params.Set(ical.ParamCommonName, b.GuestName)
	event.Props.Add(guest)

	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode ics: %w", err)
	}
	return buf.Bytes(), nil
}
