package weather

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultLocation is central Moscow as a "lat,lon" pair.
	DefaultLocation = "55.7569,37.6151"
	// DefaultDays is the forecast horizon used when a query does not set one.
	DefaultDays = 3
)

// ErrInvalidQuery is returned for queries that fail validation.
var ErrInvalidQuery = errors.New("invalid query")

var validate = validator.New()

// Query identifies what to fetch: a free-text place name or a "lat,lon" pair,
// and the forecast horizon in days.
type Query struct {
	Location string `json:"location" validate:"required"`
	Days     int    `json:"days" validate:"gte=1"`
}

// DefaultQuery returns the query used when callers do not supply one.
func DefaultQuery() Query {
	return Query{Location: DefaultLocation, Days: DefaultDays}
}

// IsZero reports whether q carries neither a location nor a day count.
func (q Query) IsZero() bool {
	return strings.TrimSpace(q.Location) == "" && q.Days == 0
}

// WithDefaults fills the unset parts of q from def. A zero query becomes def;
// a query with a location but no day count gets def's day count.
func (q Query) WithDefaults(def Query) Query {
	if q.IsZero() {
		return def
	}
	q.Location = strings.TrimSpace(q.Location)
	if q.Days == 0 {
		q.Days = def.Days
	}
	return q
}

// Validate checks that the location is set and days is at least one.
func (q Query) Validate() error {
	q.Location = strings.TrimSpace(q.Location)
	err := validate.Struct(q)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "Location":
			msgs = append(msgs, "location is required")
		case "Days":
			msgs = append(msgs, fmt.Sprintf("days must be at least 1, got %d", q.Days))
		default:
			msgs = append(msgs, fe.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(msgs, "; "))
}

func (q Query) String() string {
	return fmt.Sprintf("%s/%dd", q.Location, q.Days)
}
