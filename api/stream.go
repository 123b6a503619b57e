package api

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"dayplan-api/domain"
)

// Broker tracks live stream subscribers keyed by (user, date) and wakes them
// when that user's tasks change. Keying on the date as well as the user means
// a late notification for a day the client has navigated away from can never
// reach a stream showing a different day.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

func streamKey(userID, date string) string {
	return userID + "|" + date
}

func (b *Broker) subscribe(userID, date string) chan struct{} {
	ch := make(chan struct{}, 1)
	key := streamKey(userID, date)
	b.mu.Lock()
	set, ok := b.subs[key]
	if !ok {
		set = make(map[chan struct{}]struct{})
		b.subs[key] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(userID, date string, ch chan struct{}) {
	key := streamKey(userID, date)
	b.mu.Lock()
	if set, ok := b.subs[key]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, key)
		}
	}
	b.mu.Unlock()
}

// Notify wakes every stream showing the given user's day. Sends never block;
// a subscriber that already has a pending wakeup coalesces the extra ones.
func (b *Broker) Notify(userID, date string) {
	b.mu.Lock()
	for ch := range b.subs[streamKey(userID, date)] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// streamTasks serves an SSE stream of full task snapshots for one (user, day).
// Every wakeup re-fetches and pushes the complete display-ordered list; there
// is no diffing, so the latest snapshot always wins.
func streamTasks(store Storage, auth Authenticator, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		date := c.QueryParam("date")
		if _, err := domain.ParseDay(date); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := broker.subscribe(userID, date)
		defer broker.unsubscribe(userID, date, ch)
		for {
			tasks, err := store.FetchTasksForDate(ctx, userID, date)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			ordered := domain.OrderForDisplay(tasks)
			data, err := sonic.Marshal(tasksResponse{Tasks: ordered, Counts: domain.CountByStatus(tasks)})
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return nil
			}
			if _, err := c.Response().Write(data); err != nil {
				return nil
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				continue
			}
		}
	}
}
