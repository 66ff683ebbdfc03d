// Package gcal implements the calendar collaborator over the Google Calendar
// API v3, authenticating each call with the account's stored OAuth2 token.
package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"scheduling-service/internal/calendar"
	"scheduling-service/internal/interval"
	"scheduling-service/internal/models"
)

// NewOAuthConfig builds the consent configuration, or returns nil when the
// integration is not configured.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			gcalendar.CalendarReadonlyScope,
			gcalendar.CalendarEventsScope,
		},
		Endpoint: google.Endpoint,
	}
}

// TokenSaver persists refreshed credential material for an account.
type TokenSaver interface {
	UpdateAccountToken(ctx context.Context, accountID string, token []byte) error
}

type Client struct {
	OAuth  *oauth2.Config
	Tokens TokenSaver
	Logger *zap.Logger
	// Endpoint overrides the API base URL.
	Endpoint string
}

var _ calendar.Provider = (*Client)(nil)

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func calendarID(acc models.CalendarAccount) string {
	if acc.CalendarID == "" {
		return "primary"
	}
	return acc.CalendarID
}

// DecodeToken reads an account token as stored by EncodeToken.
func DecodeToken(raw []byte) (*oauth2.Token, error) {
	if len(raw) == 0 {
		return nil, errors.New("account has no token")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}
	return &tok, nil
}

func EncodeToken(tok *oauth2.Token) ([]byte, error) {
	return json.Marshal(tok)
}

func (c *Client) service(ctx context.Context, acc models.CalendarAccount) (*gcalendar.Service, error) {
	tok, err := DecodeToken(acc.Token)
	if err != nil {
		return nil, err
	}
	cfg := c.OAuth
	if cfg == nil {
		cfg = &oauth2.Config{Endpoint: google.Endpoint}
	}
	fresh, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if fresh.AccessToken != tok.AccessToken && c.Tokens != nil {
		if raw, err := EncodeToken(fresh); err == nil {
			if err := c.Tokens.UpdateAccountToken(ctx, acc.ID, raw); err != nil {
				c.logger().Warn("failed to store refreshed token", zap.String("accountID", acc.ID), zap.Error(err))
			}
		}
	}
	return c.serviceForToken(ctx, fresh)
}

func (c *Client) serviceForToken(ctx context.Context, tok *oauth2.Token) (*gcalendar.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)))}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	srv, err := gcalendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return srv, nil
}

// BusyIntervals queries free/busy for the account's calendar over rng.
func (c *Client) BusyIntervals(ctx context.Context, acc models.CalendarAccount, rng interval.Interval) ([]interval.Interval, error) {
	srv, err := c.service(ctx, acc)
	if err != nil {
		return nil, err
	}
	id := calendarID(acc)
	resp, err := srv.Freebusy.Query(&gcalendar.FreeBusyRequest{
		TimeMin: rng.Start.UTC().Format(time.RFC3339),
		TimeMax: rng.End.UTC().Format(time.RFC3339),
		Items:   []*gcalendar.FreeBusyRequestItem{{Id: id}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query: %w", err)
	}
	fb, ok := resp.Calendars[id]
	if !ok {
		return nil, fmt.Errorf("freebusy: calendar %q missing from response", id)
	}
	if len(fb.Errors) > 0 {
		return nil, fmt.Errorf("freebusy: %s", fb.Errors[0].Reason)
	}

	out := make([]interval.Interval, 0, len(fb.Busy))
	for _, p := range fb.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("freebusy start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("freebusy end: %w", err)
		}
		out = append(out, interval.New(start, end))
	}
	return out, nil
}

// CreateEvent inserts the event with both attendees and requests a Meet
// conference keyed by ev.RequestID.
func (c *Client) CreateEvent(ctx context.Context, acc models.CalendarAccount, ev calendar.Event) (calendar.CreatedEvent, error) {
	srv, err := c.service(ctx, acc)
	if err != nil {
		return calendar.CreatedEvent{}, err
	}
	item := &gcalendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcalendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &gcalendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}
	for _, a := range ev.Attendees {
		item.Attendees = append(item.Attendees, &gcalendar.EventAttendee{Email: a.Email, DisplayName: a.Name})
	}
	if ev.RequestID != "" {
		item.ConferenceData = &gcalendar.ConferenceData{
			CreateRequest: &gcalendar.CreateConferenceRequest{
				RequestId:             ev.RequestID,
				ConferenceSolutionKey: &gcalendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}

	created, err := srv.Events.Insert(calendarID(acc), item).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return calendar.CreatedEvent{}, fmt.Errorf("insert event: %w", err)
	}
	out := calendar.CreatedEvent{EventID: created.Id, MeetingLink: created.HangoutLink}
	if out.MeetingLink == "" && created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.MeetingLink = ep.Uri
				break
			}
		}
	}
	return out, nil
}

// DeleteEvent removes the event. An event that is already gone counts as
// deleted.
func (c *Client) DeleteEvent(ctx context.Context, acc models.CalendarAccount, eventID string) error {
	srv, err := c.service(ctx, acc)
	if err != nil {
		return err
	}
	err = srv.Events.Delete(calendarID(acc), eventID).SendUpdates("all").Context(ctx).Do()
	if gone(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func (c *Client) AttendeeStatus(ctx context.Context, acc models.CalendarAccount, eventID, email string) (calendar.AttendeeStatus, error) {
	srv, err := c.service(ctx, acc)
	if err != nil {
		return "", err
	}
	ev, err := srv.Events.Get(calendarID(acc), eventID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get event: %w", err)
	}
	for _, a := range ev.Attendees {
		if strings.EqualFold(a.Email, email) {
			return calendar.AttendeeStatus(a.ResponseStatus), nil
		}
	}
	return calendar.StatusNeedsAction, nil
}

// PrimaryEmail resolves the address of the primary calendar the token grants
// access to.
func (c *Client) PrimaryEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	srv, err := c.serviceForToken(ctx, tok)
	if err != nil {
		return "", err
	}
	entry, err := srv.CalendarList.Get("primary").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to retrieve primary calendar: %w", err)
	}
	return entry.Id, nil
}

func gone(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}
