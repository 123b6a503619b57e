package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"dayplan-api/domain"
	"dayplan-api/storage"
)

// postTaskMaxSize bounds how much of a create/update body is read.
const postTaskMaxSize = 1 << 20

// maxAnalyticsDays bounds the analytics window; each day in the range costs a
// bucket, so unbounded ranges would let one request allocate without limit.
const maxAnalyticsDays = 366

// Register wires up all API routes on the provided Echo instance and returns
// the broker that wakes live streams. Feed it change notifications from the
// pub/sub listener.
func Register(e *echo.Echo, store Storage, auth Authenticator, deduper Deduper, pub Publisher, logger *log.Logger) *Broker {
	broker := NewBroker()
	e.GET("/api/tasks", getTasks(store, auth, logger))
	e.POST("/api/tasks", postTask(store, auth, deduper, pub))
	e.PATCH("/api/tasks/:id", patchTask(store, auth, pub))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth, pub))
	e.GET("/api/tasks/export", exportTasks(store, auth))
	e.GET("/api/analytics", getAnalytics(store, auth))
	e.GET("/api/me", getMe(auth))
	e.GET("/api/stream", streamTasks(store, auth, broker))
	e.GET("/healthz", healthz(store))
	return broker
}

type tasksResponse struct {
	Tasks  []domain.Task       `json:"tasks"`
	Counts domain.StatusCounts `json:"counts"`
}

type analyticsResponse struct {
	Days   []domain.DailyBucket `json:"days"`
	Totals domain.StatusCounts  `json:"totals"`
	Ratios []domain.DayRatio    `json:"ratios"`
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		//TODO: ping table storage and redis instead of returning unconditionally
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		date := c.QueryParam("date")
		if _, perr := domain.ParseDay(date); perr != nil {
			metrics.SetErrorStage("invalid_date")
			err = c.String(http.StatusBadRequest, perr.Error())
			return err
		}
		metrics.SetDate(date)

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchTasksForDate(ctx, userID, date)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}

		ordered := domain.OrderForDisplay(tasks)
		metrics.SetTasksReturned(len(ordered))
		resp := tasksResponse{Tasks: ordered, Counts: domain.CountByStatus(tasks)}
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type createTaskRequest struct {
	Title string `json:"title"`
	Notes string `json:"notes"`
	Date  string `json:"date"`
	Order *int   `json:"order"`
}

func postTask(store Storage, auth Authenticator, deduper Deduper, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postTaskMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()
		var req createTaskRequest
		if err := dec.Decode(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Title) == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}
		if _, err := domain.ParseDay(req.Date); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		idemKey := c.Request().Header.Get("Idempotency-Key")
		if idemKey != "" && deduper != nil {
			added, derr := deduper.Add(ctx, userID, idemKey)
			if derr != nil {
				c.Logger().Warnf("deduper unavailable: %v", derr)
			} else if !added {
				return c.NoContent(http.StatusAccepted)
			}
		}

		task, err := store.CreateTask(ctx, userID, domain.TaskDraft{
			Title: strings.TrimSpace(req.Title),
			Notes: req.Notes,
			Date:  req.Date,
			Order: req.Order,
		})
		if err != nil {
			if idemKey != "" && deduper != nil {
				if rerr := deduper.Remove(ctx, userID, idemKey); rerr != nil {
					c.Logger().Warnf("release idempotency key: %v", rerr)
				}
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}

		publishChange(c, pub, userID, task.Date)
		return c.JSON(http.StatusCreated, task)
	}
}

type updateTaskRequest struct {
	Title  *string `json:"title"`
	Notes  *string `json:"notes"`
	Status *string `json:"status"`
	Order  *int    `json:"order"`
}

func patchTask(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postTaskMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()
		var req updateTaskRequest
		if err := dec.Decode(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		upd := domain.TaskUpdate{Title: req.Title, Notes: req.Notes, Order: req.Order}
		if req.Status != nil {
			status, perr := domain.ParseStatus(*req.Status)
			if perr != nil {
				return c.String(http.StatusBadRequest, perr.Error())
			}
			upd.Status = &status
		}
		if upd.Empty() {
			return c.String(http.StatusBadRequest, "no fields to update")
		}

		task, err := store.UpdateTask(ctx, userID, c.Param("id"), upd)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to update task")
		}

		publishChange(c, pub, userID, task.Date)
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(store Storage, auth Authenticator, pub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		task, err := store.DeleteTask(ctx, userID, c.Param("id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to delete task")
		}

		publishChange(c, pub, userID, task.Date)
		return c.NoContent(http.StatusNoContent)
	}
}

func getAnalytics(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		end := domain.Today()
		if v := c.QueryParam("end"); v != "" {
			if end, err = domain.ParseDay(v); err != nil {
				return c.String(http.StatusBadRequest, err.Error())
			}
		}
		start := end.AddDays(-6)
		if v := c.QueryParam("start"); v != "" {
			if start, err = domain.ParseDay(v); err != nil {
				return c.String(http.StatusBadRequest, err.Error())
			}
		}
		if end.Before(start) {
			return c.String(http.StatusBadRequest, "start must not be after end")
		}
		if domain.DaysBetween(start, end) >= maxAnalyticsDays {
			return c.String(http.StatusBadRequest, "date range too large")
		}

		tasks, err := store.FetchTasksInRange(ctx, userID, start.Key(), end.Key())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		buckets := domain.AggregateByDay(tasks, start, end)
		return c.JSON(http.StatusOK, analyticsResponse{
			Days:   buckets,
			Totals: domain.CountByStatus(tasks),
			Ratios: domain.DoneRatios(buckets),
		})
	}
}

type exportedTask struct {
	Title     string        `json:"title"`
	Status    domain.Status `json:"status"`
	Notes     string        `json:"notes,omitempty"`
	Date      string        `json:"date"`
	Order     int           `json:"order"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

func exportTasks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		date := c.QueryParam("date")
		if _, err := domain.ParseDay(date); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		tasks, err := store.FetchTasksForDate(ctx, userID, date)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		records := make([]exportedTask, 0, len(tasks))
		for _, t := range domain.OrderForDisplay(tasks) {
			records = append(records, exportedTask{
				Title:     t.Title,
				Status:    t.Status,
				Notes:     t.Notes,
				Date:      t.Date,
				Order:     t.Order,
				CreatedAt: t.CreatedAt,
				UpdatedAt: t.UpdatedAt,
			})
		}
		data, err := sonic.ConfigStd.MarshalIndent(records, "", "  ")
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to encode export")
		}

		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="tasks-`+date+`.json"`)
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
	}
}

func getMe(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		return c.JSON(http.StatusOK, user)
	}
}

// publishChange notifies other instances about a mutation. Publish failures
// are logged and swallowed: the write already succeeded and streams recover on
// their next notification.
func publishChange(c echo.Context, pub Publisher, userID, date string) {
	if pub == nil {
		return
	}
	if err := pub.PublishChange(c.Request().Context(), userID, date); err != nil {
		c.Logger().Errorf("publish change: %v", err)
	}
}
