package common

import (
	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/replication"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/cockroachdb/errors"
)

// ReplicationHeader marks requests sent by a peer's replication fan-out.
// Writes carrying it (with value "true") are applied locally only.
const ReplicationHeader = "X-Replication"

// --------------------------------------------------------------------------
// Routes
// --------------------------------------------------------------------------

const (
	PathKV         = "/kv"
	PathBatch      = "/kv/batch"
	PathHealth     = "/health"
	PathHealthLive = "/health/live"
	PathInfo       = "/info"
	PathMetrics    = "/metrics"
)

// --------------------------------------------------------------------------
// Request Bodies
// --------------------------------------------------------------------------

// PutRequest is the body of PUT /kv/{key}. Value is required but may be empty.
type PutRequest struct {
	Value *string `json:"value"`
}

// BatchRequest is the body of POST /kv/batch.
type BatchRequest struct {
	Items []store.BatchItem `json:"items"`
}

// --------------------------------------------------------------------------
// Response Bodies
// --------------------------------------------------------------------------

// RangeResponse is the body of GET /kv?start=..&end=..
type RangeResponse struct {
	Count      int           `json:"count"`
	Results    []store.Entry `json:"results"`
	HasMore    bool          `json:"has_more"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// NewRangeResponse converts a store page into its wire format.
func NewRangeResponse(page store.Page) RangeResponse {
	results := page.Entries
	if results == nil {
		results = []store.Entry{}
	}
	return RangeResponse{
		Count:      len(results),
		Results:    results,
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
	}
}

// Page converts the response back into a store page.
func (r RangeResponse) Page() store.Page {
	return store.Page{Entries: r.Results, HasMore: r.HasMore, NextCursor: r.NextCursor}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string                    `json:"status"`
	Cluster replication.ClusterStatus `json:"cluster"`
}

// LiveResponse is the body of GET /health/live.
type LiveResponse struct {
	Status string `json:"status"`
}

// InfoResponse is the body of GET /info.
type InfoResponse struct {
	Table db.TableInfo `json:"table"`
	Peers []string     `json:"peers"`
}

// ErrorResponse is the body of every non 2xx answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
	// Code is the name of the store.RetCode of the error.
	Code string `json:"code,omitempty"`
}

// NewErrorResponse creates the wire format of err.
func NewErrorResponse(err error) ErrorResponse {
	detail := err.Error()
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		detail = storeErr.Msg
	}
	return ErrorResponse{Detail: detail, Code: store.CodeOf(err).String()}
}

// Err converts the response back into a store error.
func (r ErrorResponse) Err() error {
	return store.NewError(store.ParseRetCode(r.Code), r.Detail)
}
