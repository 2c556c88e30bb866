package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/auth/credentials"
	"github.com/codeGROOVE-dev/retry"
	"github.com/maypok86/otter/v2"
	gcalendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/foxseedlab/rdhours/internal/calendar"
)

const (
	listCacheTTL      = 5 * time.Minute
	listCacheSize     = 256
	defaultAttempts   = 5
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

type TimestampParser interface {
	Parse(raw, sourceHint string) (time.Time, error)
}

type GoogleConfig struct {
	CalendarID      string
	CredentialsJSON string
}

type GoogleStore struct {
	service    *gcalendar.Service
	calendarID string
	parser     TimestampParser
	cache      *otter.Cache[string, []calendar.ExistingEvent]
	attempts   uint
	delay      time.Duration

	mu      sync.Mutex
	windows map[string]listWindow
}

// listWindow is the range a cached list result covers.
type listWindow struct {
	from, to time.Time
}

func NewGoogleStore(ctx context.Context, cfg GoogleConfig, parser TimestampParser) (*GoogleStore, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(cfg.CredentialsJSON),
		Scopes:          []string{gcalendar.CalendarEventsScope},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	return newGoogleStore(ctx, cfg.CalendarID, parser, option.WithAuthCredentials(creds))
}

func newGoogleStore(ctx context.Context, calendarID string, parser TimestampParser, opts ...option.ClientOption) (*GoogleStore, error) {
	service, err := gcalendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &GoogleStore{
		service:    service,
		calendarID: calendarID,
		parser:     parser,
		cache: otter.Must(&otter.Options[string, []calendar.ExistingEvent]{
			MaximumSize:      listCacheSize,
			ExpiryCalculator: otter.ExpiryWriting[string, []calendar.ExistingEvent](listCacheTTL),
		}),
		attempts: defaultAttempts,
		delay:    defaultRetryDelay,
		windows:  make(map[string]listWindow),
	}, nil
}

// ListEvents returns the timed events overlapping [from, to). All-day and
// cancelled events are skipped, as are events whose times cannot be parsed.
func (s *GoogleStore) ListEvents(ctx context.Context, from, to time.Time) ([]calendar.ExistingEvent, error) {
	key := from.UTC().Format(time.RFC3339) + "|" + to.UTC().Format(time.RFC3339)
	if cached, ok := s.cache.GetIfPresent(key); ok {
		slog.Debug("calendar list cache hit", "from", from, "to", to, "events", len(cached))
		return cached, nil
	}

	var out []calendar.ExistingEvent
	pageToken := ""
	for {
		var page *gcalendar.Events
		err := s.withRetry(ctx, "list", func() error {
			call := s.service.Events.List(s.calendarID).
				TimeMin(from.Format(time.RFC3339)).
				TimeMax(to.Format(time.RFC3339)).
				SingleEvents(true).
				OrderBy("startTime").
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			page, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list calendar events: %w", err)
		}
		for _, item := range page.Items {
			if ev, ok := s.toExisting(item); ok {
				out = append(out, ev)
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	s.cache.Set(key, out)
	s.mu.Lock()
	s.windows[key] = listWindow{from: from, to: to}
	s.mu.Unlock()
	return out, nil
}

func (s *GoogleStore) toExisting(item *gcalendar.Event) (calendar.ExistingEvent, bool) {
	if item.Status == "cancelled" || item.Start == nil || item.End == nil {
		return calendar.ExistingEvent{}, false
	}
	if item.Start.DateTime == "" || item.End.DateTime == "" {
		return calendar.ExistingEvent{}, false
	}
	start, err := s.parser.Parse(item.Start.DateTime, "iso")
	if err != nil {
		slog.Warn("skipping calendar event with unreadable start", "event_id", item.Id, "raw", item.Start.DateTime, "reason", err)
		return calendar.ExistingEvent{}, false
	}
	end, err := s.parser.Parse(item.End.DateTime, "iso")
	if err != nil {
		slog.Warn("skipping calendar event with unreadable end", "event_id", item.Id, "raw", item.End.DateTime, "reason", err)
		return calendar.ExistingEvent{}, false
	}
	if !start.Before(end) {
		return calendar.ExistingEvent{}, false
	}
	return calendar.ExistingEvent{ID: item.Id, Start: start, End: end}, true
}

func (s *GoogleStore) InsertEvent(ctx context.Context, event calendar.Event) (string, error) {
	body := &gcalendar.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start: &gcalendar.EventDateTime{
			DateTime: event.Start.Format(time.RFC3339),
			TimeZone: event.TimeZone,
		},
		End: &gcalendar.EventDateTime{
			DateTime: event.End.Format(time.RFC3339),
			TimeZone: event.TimeZone,
		},
	}
	if len(event.Properties) > 0 {
		body.ExtendedProperties = &gcalendar.EventExtendedProperties{Private: event.Properties}
	}

	var created *gcalendar.Event
	err := s.withRetry(ctx, "insert", func() error {
		var err error
		created, err = s.service.Events.Insert(s.calendarID, body).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}
	s.invalidateOverlapping(event.Start, event.End)
	return created.Id, nil
}

// invalidateOverlapping drops the cached lists whose window an event in
// [start, end) would appear in. Other windows stay cached.
func (s *GoogleStore) invalidateOverlapping(start, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.windows {
		if start.Before(w.to) && end.After(w.from) {
			s.cache.Invalidate(key)
			delete(s.windows, key)
		}
	}
}

func (s *GoogleStore) withRetry(ctx context.Context, op string, fn func() error) error {
	return retry.Do(
		func() error {
			err := fn()
			if err != nil && !transient(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("retrying calendar request", "op", op, "calendar_id", s.calendarID, "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
}

// transient reports whether a calendar API error is worth retrying.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}
