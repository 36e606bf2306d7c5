package location

import (
	"bytes"
	"encoding/json"
)

// Code is a location identifier. The API sends codes as strings ("NAM", "US") but some
// mirrors send plain numbers; both decode.
type Code string

func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = Code(n.String())
	return nil
}

type Region struct {
	ID            Code   `json:"ID"`
	LocalizedName string `json:"LocalizedName"`
	EnglishName   string `json:"EnglishName"`
}

type Country struct {
	ID            Code   `json:"ID"`
	LocalizedName string `json:"LocalizedName"`
	EnglishName   string `json:"EnglishName"`
}

type AdminArea struct {
	ID            Code   `json:"ID"`
	LocalizedName string `json:"LocalizedName"`
	EnglishName   string `json:"EnglishName"`
	Level         int    `json:"Level,omitempty"`
	LocalizedType string `json:"LocalizedType,omitempty"`
	EnglishType   string `json:"EnglishType,omitempty"`
	CountryID     Code   `json:"CountryID,omitempty"`
}

type GeoPosition struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
}

type TimeZone struct {
	Code      string  `json:"Code"`
	Name      string  `json:"Name"`
	GmtOffset float64 `json:"GmtOffset"`
}

// City is returned by both the admin-area city search and autocomplete. Autocomplete fills only
// the identifying fields. SupplementalAdminAreas and Details are passed through as received;
// their shape depends on the request's details flag.
type City struct {
	Key                    string          `json:"Key"`
	Type                   string          `json:"Type,omitempty"`
	Rank                   int             `json:"Rank,omitempty"`
	LocalizedName          string          `json:"LocalizedName"`
	EnglishName            string          `json:"EnglishName,omitempty"`
	PrimaryPostalCode      string          `json:"PrimaryPostalCode,omitempty"`
	Region                 *Region         `json:"Region,omitempty"`
	Country                *Country        `json:"Country,omitempty"`
	AdministrativeArea     *AdminArea      `json:"AdministrativeArea,omitempty"`
	TimeZone               *TimeZone       `json:"TimeZone,omitempty"`
	GeoPosition            *GeoPosition    `json:"GeoPosition,omitempty"`
	IsAlias                bool            `json:"IsAlias,omitempty"`
	DataSets               []string        `json:"DataSets,omitempty"`
	SupplementalAdminAreas json.RawMessage `json:"SupplementalAdminAreas,omitempty"`
	Details                json.RawMessage `json:"Details,omitempty"`
}
