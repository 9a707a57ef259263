package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/forecast-controller/internal/controller"
	"github.com/i474232898/forecast-controller/internal/store"
	"github.com/i474232898/forecast-controller/internal/weather"
)

var validate = validator.New()

// streamKeepAlive is how often an idle event stream sends a comment line.
var streamKeepAlive = 15 * time.Second

// streamBuffer is the number of transitions queued per stream client.
const streamBuffer = 16

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the forecast view endpoints into the Fiber app.
func RegisterRoutes(app *fiber.App, ctrl *controller.Controller, history *store.MemoryStore) {
	v1 := app.Group("/api/v1")

	v1.Get("/forecast", func(c *fiber.Ctx) error {
		return c.JSON(renderState(ctrl.CurrentState()))
	})

	v1.Post("/forecast/refresh", func(c *fiber.Ctx) error {
		q, err := parseForecastQuery(c, ctrl.DefaultQuery())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		id := ctrl.Refresh(q)
		if id == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "forecast controller is shutting down")
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"cycle": id,
			"query": q,
		})
	})

	v1.Get("/forecast/stream", func(c *fiber.Ctx) error {
		events := newEventQueue(streamBuffer)
		sub, initial := ctrl.SubscribeWithState(events.push)

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer sub.Unsubscribe()

			if err := writeEvent(w, initial); err != nil {
				return
			}

			ticker := time.NewTicker(streamKeepAlive)
			defer ticker.Stop()
			for {
				select {
				case s := <-events.ch:
					if err := writeEvent(w, s); err != nil {
						return
					}
					if events.resync() {
						if err := writeEvent(w, ctrl.CurrentState()); err != nil {
							return
						}
					}
				case <-ticker.C:
					if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		})
		return nil
	})

	v1.Get("/forecast/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		transitions, err := history.GetRange(req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no state transitions for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read state history")
		}

		return c.JSON(fiber.Map{
			"from":        req.From,
			"to":          req.To,
			"transitions": transitions,
		})
	})
}

// stateView is the JSON shape of a controller state.
type stateView struct {
	State    string                  `json:"state"`
	Message  string                  `json:"message,omitempty"`
	IconURL  string                  `json:"icon_url,omitempty"`
	Forecast *weather.ForecastResult `json:"forecast,omitempty"`
}

func renderState(s controller.State) stateView {
	return controller.Match(s,
		func() stateView {
			return stateView{State: controller.KindLoading.String()}
		},
		func(r weather.ForecastResult) stateView {
			return stateView{
				State:    controller.KindSuccess.String(),
				IconURL:  iconURL(r.Current.Condition.Icon),
				Forecast: &r,
			}
		},
		func(msg string) stateView {
			return stateView{State: controller.KindError.String(), Message: msg}
		},
	)
}

// iconURL turns the provider's protocol-relative icon path into an https URL.
func iconURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return "https:" + path
}

// eventQueue buffers transitions for one stream client without ever blocking
// the controller. When the buffer is full the transition is dropped and the
// client is resynced with the current state once it catches up.
type eventQueue struct {
	ch      chan controller.State
	dropped atomic.Bool
}

func newEventQueue(size int) *eventQueue {
	return &eventQueue{ch: make(chan controller.State, size)}
}

func (q *eventQueue) push(s controller.State) {
	select {
	case q.ch <- s:
	default:
		q.dropped.Store(true)
	}
}

// resync reports, once per overflow, that transitions were dropped and the
// buffer has since drained.
func (q *eventQueue) resync() bool {
	return len(q.ch) == 0 && q.dropped.CompareAndSwap(true, false)
}

func writeEvent(w *bufio.Writer, s controller.State) error {
	data, err := json.Marshal(renderState(s))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", s.Kind(), data); err != nil {
		return err
	}
	return w.Flush()
}

// parseForecastQuery reads q and days. Both empty means the default query,
// the same as the retry action of the original view.
func parseForecastQuery(c *fiber.Ctx, def weather.Query) (weather.Query, error) {
	var q weather.Query
	q.Location = strings.TrimSpace(c.Query("q"))

	if v := c.Query("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return q, errors.New("days must be an integer")
		}
		if days < 1 {
			return q, fmt.Errorf("days must be at least 1, got %d", days)
		}
		q.Days = days
	}

	if q.Location == "" && q.Days != 0 {
		q.Location = def.Location
	}

	q = q.WithDefaults(def)
	if err := q.Validate(); err != nil {
		return q, err
	}
	return q, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time
	To   time.Time `validate:"gtefield=From"`
}

// bind defaults an absent from to the zero time and an absent to to now.
func (h *historyQuery) bind(c *fiber.Ctx) error {
	h.To = time.Now().UTC()

	if s := c.Query("from"); s != "" {
		from, err := parseTime(s)
		if err != nil {
			return err
		}
		h.From = from
	}
	if s := c.Query("to"); s != "" {
		to, err := parseTime(s)
		if err != nil {
			return err
		}
		h.To = to
	}
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
