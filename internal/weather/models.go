package weather

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidFormat is returned when a caller-supplied timestamp does not
	// match the local layout exactly.
	ErrInvalidFormat = errors.New("invalid timestamp format; use YYYY-MM-DDTHH:MM:SS")
	// ErrInvalidRange is returned when the start of a range is not before its end.
	ErrInvalidRange = errors.New("start must be before end")
	// ErrUnknownStation is returned when a station identifier is not in the directory.
	ErrUnknownStation = errors.New("unknown station")
	// ErrUnknownAggregation is returned for aggregation names outside None/Hourly/Daily/Monthly.
	ErrUnknownAggregation = errors.New("unknown aggregation")
	// ErrUnknownVariable is returned for variable names outside temperature/pressure/speed.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrInvalidTimezone is returned when the requested zone name cannot be loaded.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrUpstreamMetadata is returned when the first upstream call fails or
	// carries no data pointer.
	ErrUpstreamMetadata = errors.New("upstream metadata request failed")
	// ErrUpstreamFetch is returned when the payload behind the data pointer
	// cannot be retrieved.
	ErrUpstreamFetch = errors.New("upstream payload fetch failed")
)

// Variable is one of the measured quantities served by the cache.
type Variable int

const (
	Temperature Variable = iota
	Pressure
	Speed
)

// AllVariables is the default selection when a request names none.
var AllVariables = []Variable{Temperature, Pressure, Speed}

// String returns the wire name of the variable.
func (v Variable) String() string {
	switch v {
	case Temperature:
		return "temperature"
	case Pressure:
		return "pressure"
	case Speed:
		return "speed"
	}
	return fmt.Sprintf("Variable(%d)", int(v))
}

// ParseVariable maps a wire name to a Variable.
func ParseVariable(s string) (Variable, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temperature":
		return Temperature, nil
	case "pressure":
		return Pressure, nil
	case "speed":
		return Speed, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariable, s)
}

// Aggregation is the resampling level requested by a caller.
type Aggregation int

const (
	AggregationNone Aggregation = iota
	AggregationHourly
	AggregationDaily
	AggregationMonthly
)

func (a Aggregation) String() string {
	switch a {
	case AggregationNone:
		return "None"
	case AggregationHourly:
		return "Hourly"
	case AggregationDaily:
		return "Daily"
	case AggregationMonthly:
		return "Monthly"
	}
	return fmt.Sprintf("Aggregation(%d)", int(a))
}

// ParseAggregation accepts the wire names None, Hourly, Daily and Monthly
// (case-insensitive). An empty string means None.
func ParseAggregation(s string) (Aggregation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AggregationNone, nil
	case "hourly":
		return AggregationHourly, nil
	case "daily":
		return AggregationDaily, nil
	case "monthly":
		return AggregationMonthly, nil
	}
	return AggregationNone, fmt.Errorf("%w: %q", ErrUnknownAggregation, s)
}

// Measurement is one observation at one station at one instant.
// Timestamp is always UTC with second precision.
type Measurement struct {
	Station     string
	Timestamp   time.Time
	Temperature *float64
	Pressure    *float64
	Speed       *float64
	RawPayload  json.RawMessage
}

// Value returns the measurement's value for v.
func (m Measurement) Value(v Variable) *float64 {
	switch v {
	case Temperature:
		return m.Temperature
	case Pressure:
		return m.Pressure
	case Speed:
		return m.Speed
	}
	return nil
}

// Request is a validated range query.
type Request struct {
	// Start and End are wall-clock values in Zone, as parsed by ParseLocal.
	Start time.Time
	End   time.Time
	Zone  *time.Location

	// Station is a station code or display name.
	Station     string
	Aggregation Aggregation
	// Variables is the requested subset; empty means all.
	Variables []Variable
}

// NewRequest parses and validates raw caller input. zoneName defaults to
// defaultZone when empty.
func NewRequest(startStr, endStr, zoneName, station, aggregation string, variables []string, defaultZone *time.Location) (Request, error) {
	start, err := ParseLocal(startStr)
	if err != nil {
		return Request{}, err
	}
	end, err := ParseLocal(endStr)
	if err != nil {
		return Request{}, err
	}
	if !start.Before(end) {
		return Request{}, ErrInvalidRange
	}

	zone := defaultZone
	if zoneName != "" {
		zone, err = time.LoadLocation(zoneName)
		if err != nil {
			return Request{}, fmt.Errorf("%w %q: %v", ErrInvalidTimezone, zoneName, err)
		}
	}
	if zone == nil {
		zone = time.UTC
	}

	agg, err := ParseAggregation(aggregation)
	if err != nil {
		return Request{}, err
	}

	var vars []Variable
	seen := make(map[Variable]bool)
	for _, name := range variables {
		if strings.TrimSpace(name) == "" {
			continue
		}
		v, err := ParseVariable(name)
		if err != nil {
			return Request{}, err
		}
		if !seen[v] {
			seen[v] = true
			vars = append(vars, v)
		}
	}

	return Request{
		Start:       start,
		End:         end,
		Zone:        zone,
		Station:     station,
		Aggregation: agg,
		Variables:   vars,
	}, nil
}

// selected returns the requested variables, or all of them when none were named.
func (r Request) selected() []Variable {
	if len(r.Variables) == 0 {
		return AllVariables
	}
	return r.Variables
}

// OutputRecord is one row of a query response.
type OutputRecord struct {
	Station     string   `json:"station"`
	Datetime    string   `json:"datetime"`
	Temperature *float64 `json:"temperature"`
	Pressure    *float64 `json:"pressure"`
	Speed       *float64 `json:"speed"`
}

func (o *OutputRecord) set(v Variable, val *float64) {
	switch v {
	case Temperature:
		o.Temperature = val
	case Pressure:
		o.Pressure = val
	case Speed:
		o.Speed = val
	}
}

// FetchResult is the normalized outcome of one upstream fetch.
type FetchResult struct {
	Records []Measurement
	// Dropped counts raw records that could not be placed on the time axis.
	Dropped int
}
