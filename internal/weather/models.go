package weather

// ForecastResult is the decoded forecast.json payload: place metadata, the
// current conditions snapshot and the multi-day forecast.
// Field names and JSON tags follow the provider payload so decoded values map
// one to one onto the wire fields.
type ForecastResult struct {
	Location Location `json:"location"`
	Current  Current  `json:"current"`
	Forecast Forecast `json:"forecast"`
}

// Location describes the place the forecast was resolved to.
type Location struct {
	Name      string `json:"name"`
	Region    string `json:"region"`
	Country   string `json:"country"`
	LocalTime string `json:"localtime"`
}

// Current is the current-conditions snapshot.
type Current struct {
	TempC     float64   `json:"temp_c"`
	Condition Condition `json:"condition"`
	WindKph   float64   `json:"wind_kph"`
	Humidity  int       `json:"humidity"`
}

// Condition is a textual condition plus the provider's icon path
// (protocol-relative, e.g. "//cdn.weatherapi.com/weather/64x64/day/113.png").
type Condition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

// Forecast holds daily entries ordered by date ascending.
type Forecast struct {
	ForecastDay []ForecastDay `json:"forecastday"`
}

type ForecastDay struct {
	Date string `json:"date"`
	Day  Day    `json:"day"`
	Hour []Hour `json:"hour"`
}

type Day struct {
	MaxTempC  float64   `json:"maxtemp_c"`
	MinTempC  float64   `json:"mintemp_c"`
	Condition Condition `json:"condition"`
}

type Hour struct {
	Time      string    `json:"time"`
	TempC     float64   `json:"temp_c"`
	Condition Condition `json:"condition"`
}

// Days returns the number of daily entries.
func (r ForecastResult) Days() int {
	return len(r.Forecast.ForecastDay)
}
