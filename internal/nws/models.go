package nws

import (
	"encoding/json"
	"time"
)

// QuantitativeValue is the NWS {unitCode, value} pair. Value is nil when the station did not
// report it.
type QuantitativeValue struct {
	UnitCode       string   `json:"unitCode"`
	Value          *float64 `json:"value"`
	QualityControl string   `json:"qualityControl,omitempty"`
}

type Station struct {
	URI               string            `json:"@id"`
	Type              string            `json:"@type"`
	StationIdentifier string            `json:"stationIdentifier"`
	Name              string            `json:"name"`
	TimeZone          string            `json:"timeZone"`
	Geometry          string            `json:"geometry"`
	Elevation         QuantitativeValue `json:"elevation"`
	Forecast          string            `json:"forecast,omitempty"`
	County            string            `json:"county,omitempty"`
	FireWeatherZone   string            `json:"fireWeatherZone,omitempty"`
}

type RadarLatency struct {
	Current                  QuantitativeValue `json:"current"`
	Average                  QuantitativeValue `json:"average"`
	Max                      QuantitativeValue `json:"max"`
	LevelTwoLastReceivedTime string            `json:"levelTwoLastReceivedTime"`
	MaxLatencyTime           string            `json:"maxLatencyTime"`
	ReportingHost            string            `json:"reportingHost"`
	Host                     string            `json:"host"`
}

type RadarStation struct {
	URI         string            `json:"@id"`
	Type        string            `json:"@type"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	StationType string            `json:"stationType"`
	Geometry    string            `json:"geometry"`
	Elevation   QuantitativeValue `json:"elevation"`
	TimeZone    string            `json:"timeZone"`
	Latency     *RadarLatency     `json:"latency,omitempty"`
	// RDA holds radar data acquisition status; its property set varies by station type.
	RDA json.RawMessage `json:"rda,omitempty"`
}

type Zone struct {
	URI                 string     `json:"@id"`
	LDType              string     `json:"@type,omitempty"`
	ID                  string     `json:"id"`
	Type                string     `json:"type"`
	Name                string     `json:"name"`
	State               string     `json:"state"`
	GridIdentifier      string     `json:"gridIdentifier,omitempty"`
	AWIPSLocationID     string     `json:"awipsLocationIdentifier,omitempty"`
	CWA                 []string   `json:"cwa,omitempty"`
	ForecastOffices     []string   `json:"forecastOffices,omitempty"`
	TimeZone            []string   `json:"timeZone,omitempty"`
	ObservationStations []string   `json:"observationStations,omitempty"`
	RadarStation        string     `json:"radarStation,omitempty"`
	EffectiveDate       *time.Time `json:"effectiveDate,omitempty"`
	ExpirationDate      *time.Time `json:"expirationDate,omitempty"`
	// Geometry is WKT in JSON-LD responses.
	Geometry string `json:"geometry,omitempty"`
}

// ZoneQuery filters the zone listing. Empty fields are not sent.
type ZoneQuery struct {
	Type  string
	Area  string
	Limit int
}

type CloudLayer struct {
	Base   QuantitativeValue `json:"base"`
	Amount string            `json:"amount"`
}

type Observation struct {
	URI                   string            `json:"@id"`
	Station               string            `json:"station"`
	Timestamp             time.Time         `json:"timestamp"`
	RawMessage            string            `json:"rawMessage,omitempty"`
	TextDescription       string            `json:"textDescription"`
	Icon                  string            `json:"icon,omitempty"`
	Temperature           QuantitativeValue `json:"temperature"`
	Dewpoint              QuantitativeValue `json:"dewpoint"`
	WindDirection         QuantitativeValue `json:"windDirection"`
	WindSpeed             QuantitativeValue `json:"windSpeed"`
	WindGust              QuantitativeValue `json:"windGust"`
	BarometricPressure    QuantitativeValue `json:"barometricPressure"`
	SeaLevelPressure      QuantitativeValue `json:"seaLevelPressure"`
	Visibility            QuantitativeValue `json:"visibility"`
	PrecipitationLastHour QuantitativeValue `json:"precipitationLastHour"`
	RelativeHumidity      QuantitativeValue `json:"relativeHumidity"`
	WindChill             QuantitativeValue `json:"windChill"`
	HeatIndex             QuantitativeValue `json:"heatIndex"`
	CloudLayers           []CloudLayer      `json:"cloudLayers,omitempty"`
	PresentWeather        json.RawMessage   `json:"presentWeather,omitempty"`
}

// Point is the grid metadata for a coordinate; it names the inputs of the forecast endpoints.
type Point struct {
	URI                 string          `json:"@id"`
	CWA                 string          `json:"cwa"`
	GridID              string          `json:"gridId"`
	GridX               int             `json:"gridX"`
	GridY               int             `json:"gridY"`
	Forecast            string          `json:"forecast"`
	ForecastHourly      string          `json:"forecastHourly"`
	ForecastGridData    string          `json:"forecastGridData"`
	ObservationStations string          `json:"observationStations"`
	ForecastZone        string          `json:"forecastZone"`
	County              string          `json:"county"`
	FireWeatherZone     string          `json:"fireWeatherZone"`
	TimeZone            string          `json:"timeZone"`
	RadarStation        string          `json:"radarStation"`
	RelativeLocation    json.RawMessage `json:"relativeLocation,omitempty"`
}

type ForecastPeriod struct {
	Number                     int               `json:"number"`
	Name                       string            `json:"name"`
	StartTime                  time.Time         `json:"startTime"`
	EndTime                    time.Time         `json:"endTime"`
	IsDaytime                  bool              `json:"isDaytime"`
	Temperature                float64           `json:"temperature"`
	TemperatureUnit            string            `json:"temperatureUnit"`
	TemperatureTrend           string            `json:"temperatureTrend,omitempty"`
	ProbabilityOfPrecipitation QuantitativeValue `json:"probabilityOfPrecipitation"`
	WindSpeed                  string            `json:"windSpeed"`
	WindDirection              string            `json:"windDirection"`
	Icon                       string            `json:"icon"`
	ShortForecast              string            `json:"shortForecast"`
	DetailedForecast           string            `json:"detailedForecast"`
}

type Forecast struct {
	Units             string            `json:"units"`
	ForecastGenerator string            `json:"forecastGenerator"`
	GeneratedAt       time.Time         `json:"generatedAt"`
	UpdateTime        time.Time         `json:"updateTime"`
	ValidTimes        string            `json:"validTimes"`
	Elevation         QuantitativeValue `json:"elevation"`
	Periods           []ForecastPeriod  `json:"periods"`
}
