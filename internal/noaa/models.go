// Package noaa fetches reference data and daily measurements from the NOAA
// Climate Data Online (CDO) v2 web services.
package noaa

import (
	"net/url"
	"strconv"
	"time"
)

// DateFormat is the date layout accepted by the CDO API.
const DateFormat = "2006-01-02"

// Endpoint identifies a CDO listing endpoint.
type Endpoint string

// Supported endpoints.
const (
	EndpointDatatypes    Endpoint = "datatypes"
	EndpointStations     Endpoint = "stations"
	EndpointMeasurements Endpoint = "data"
)

// Path returns the URL path of the endpoint relative to the API base URL.
func (e Endpoint) Path() string {
	return "/" + string(e)
}

// Filter holds the query filters of a fetch. Zero values are omitted.
type Filter struct {
	LocationID string
	DatasetID  string
	StationID  string
	StartDate  time.Time
	EndDate    time.Time
	Units      string
}

// FetchRequest describes one logical fetch against a CDO endpoint.
type FetchRequest struct {
	Endpoint Endpoint
	Filter   Filter
}

// Query builds a new set of query parameters for the request. Every call returns
// a freshly allocated url.Values so pages never share parameter state.
func (r FetchRequest) Query() url.Values {
	q := url.Values{}
	f := r.Filter
	if f.LocationID != "" {
		q.Set("locationid", f.LocationID)
	}
	if f.DatasetID != "" {
		q.Set("datasetid", f.DatasetID)
	}
	if f.StationID != "" {
		q.Set("stationid", f.StationID)
	}
	if !f.StartDate.IsZero() {
		q.Set("startdate", f.StartDate.Format(DateFormat))
	}
	if !f.EndDate.IsZero() {
		q.Set("enddate", f.EndDate.Format(DateFormat))
	}
	if f.Units != "" {
		q.Set("units", f.Units)
	}
	return q
}

// pageQuery merges pagination parameters into a copy of the request query.
func (r FetchRequest) pageQuery(limit, offset int) url.Values {
	q := r.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

// Record is one datatype, station or measurement as returned by the API.
// Numbers are kept as json.Number so they are republished verbatim.
type Record map[string]any

// ID returns the record's "id" field, if present.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Page is one bounded response of a paginated listing.
type Page struct {
	Results []Record
	Count   int
	Offset  int
}

// CallCounter is notified once per logical fetch.
type CallCounter interface {
	AddCall()
}

// envelope is the CDO listing response body. Empty result sets come back as
// {} with no metadata, which decodes as a count of zero.
type envelope struct {
	Metadata struct {
		ResultSet struct {
			Offset int `json:"offset"`
			Count  int `json:"count"`
			Limit  int `json:"limit"`
		} `json:"resultset"`
	} `json:"metadata"`
	Results []Record `json:"results"`
}

func (e *envelope) page() Page {
	return Page{
		Results: e.Results,
		Count:   e.Metadata.ResultSet.Count,
		Offset:  e.Metadata.ResultSet.Offset,
	}
}
