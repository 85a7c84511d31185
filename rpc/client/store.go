package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/replication"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/cockroachdb/errors"
)

// IRemoteStore is a store.IStore backed by one or more rKV nodes, plus the
// cluster level operations of the HTTP API.
type IRemoteStore interface {
	store.IStore
	// Status returns the cluster status as seen by the next endpoint.
	Status(ctx context.Context) (status replication.ClusterStatus, err error)
	// Close releases idle connections.
	Close() error
}

// NewRemoteStore creates a store that forwards all operations to the nodes in
// config.Endpoints, selected round-robin. Requests that fail without an
// answer are retried on the next endpoint up to config.RetryCount times.
//
// Writes with replicate=false are sent with the replication header, so the
// receiving node does not replicate them.
func NewRemoteStore(config common.ClientConfig) (IRemoteStore, error) {
	if len(config.Endpoints) == 0 {
		return nil, errors.New("at least one endpoint is required")
	}
	for _, endpoint := range config.Endpoints {
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, errors.Wrapf(err, "invalid endpoint %q", endpoint)
		}
	}
	if config.TimeoutSecond <= 0 {
		config.TimeoutSecond = 5
	}
	if config.RetryCount <= 0 {
		config.RetryCount = 1
	}
	timeout := time.Duration(config.TimeoutSecond) * time.Second
	return &remoteStore{
		config:  config,
		client:  NewHTTPClient(timeout),
		timeout: timeout,
	}, nil
}

type remoteStore struct {
	config  common.ClientConfig
	client  *http.Client
	timeout time.Duration
	counter atomic.Uint32
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (r *remoteStore) Get(ctx context.Context, key string) (store.Entry, error) {
	if err := store.ValidateKey(key); err != nil {
		return store.Entry{}, err
	}
	var entry store.Entry
	_, err := r.invoke(ctx, http.MethodGet, func(base string) string { return keyURL(base, key) }, nil, false, &entry)
	return entry, err
}

func (r *remoteStore) Put(ctx context.Context, key, value string, replicate bool) (store.Entry, bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return store.Entry{}, false, err
	}
	if err := store.ValidateValue(value); err != nil {
		return store.Entry{}, false, err
	}
	var entry store.Entry
	code, err := r.invoke(ctx, http.MethodPut, func(base string) string { return keyURL(base, key) },
		common.PutRequest{Value: &value}, !replicate, &entry)
	return entry, code == http.StatusCreated, err
}

func (r *remoteStore) Delete(ctx context.Context, key string, replicate bool) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}
	_, err := r.invoke(ctx, http.MethodDelete, func(base string) string { return keyURL(base, key) }, nil, !replicate, nil)
	if store.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (r *remoteStore) ReadRange(ctx context.Context, q store.RangeQuery) (store.Page, error) {
	params := url.Values{}
	params.Set("start", q.Start)
	params.Set("end", q.End)
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}

	var resp common.RangeResponse
	_, err := r.invoke(ctx, http.MethodGet, func(base string) string {
		return pathURL(base, common.PathKV) + "?" + params.Encode()
	}, nil, false, &resp)
	if err != nil {
		return store.Page{}, err
	}
	return resp.Page(), nil
}

func (r *remoteStore) Iterate(ctx context.Context, start, end string, fn func(entry store.Entry) error) error {
	q := store.RangeQuery{Start: start, End: end, Limit: store.ChunkSize}
	for {
		page, err := r.ReadRange(ctx, q)
		if err != nil {
			return err
		}
		for _, entry := range page.Entries {
			if err := fn(entry); err != nil {
				return err
			}
		}
		if !page.HasMore {
			return nil
		}
		q.Cursor = page.NextCursor
	}
}

func (r *remoteStore) BatchPut(ctx context.Context, items []store.BatchItem, replicate bool) ([]store.Entry, error) {
	// size limits are checked by the node, only items that JSON would alter are rejected here
	for _, item := range items {
		if err := store.ValidateKey(item.Key); err != nil {
			return nil, err
		}
		if err := store.ValidateValue(item.Value); err != nil {
			return nil, err
		}
	}
	var entries []store.Entry
	_, err := r.invoke(ctx, http.MethodPost, func(base string) string { return pathURL(base, common.PathBatch) },
		common.BatchRequest{Items: items}, !replicate, &entries)
	return entries, err
}

func (r *remoteStore) GetDBInfo() db.TableInfo {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var info common.InfoResponse
	if _, err := r.invoke(ctx, http.MethodGet, func(base string) string { return pathURL(base, common.PathInfo) }, nil, false, &info); err != nil {
		Logger.Errorf("failed to fetch table info: %v", err)
		return db.TableInfo{}
	}
	return info.Table
}

func (r *remoteStore) Status(ctx context.Context) (replication.ClusterStatus, error) {
	var resp common.HealthResponse
	_, err := r.invoke(ctx, http.MethodGet, func(base string) string { return pathURL(base, common.PathHealth) }, nil, false, &resp)
	return resp.Cluster, err
}

func (r *remoteStore) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// invoke sends a request to the next endpoint and decodes a 2xx answer into out.
// Non 2xx answers are converted into store errors. It returns the status code.
func (r *remoteStore) invoke(
	ctx context.Context,
	method string,
	target func(base string) string,
	body interface{},
	markReplicated bool,
	out interface{},
) (int, error) {
	var lastErr error
	for attempt := 0; attempt < r.config.RetryCount; attempt++ {
		idx := r.counter.Add(1) % uint32(len(r.config.Endpoints))
		base := r.config.Endpoints[idx]

		code, err := r.send(ctx, method, target(base), body, markReplicated, out)
		if err == nil || code != 0 {
			return code, err
		}
		lastErr = err
		Logger.Debugf("request to %s failed on attempt %d: %v", base, attempt+1, err)
		if ctx.Err() != nil {
			break
		}
	}
	return 0, lastErr
}

func (r *remoteStore) send(ctx context.Context, method, target string, body interface{}, markReplicated bool, out interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := newRequest(ctx, method, target, body)
	if err != nil {
		return 0, err
	}
	if markReplicated {
		req.Header.Set(common.ReplicationHeader, "true")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp common.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Detail == "" {
			return resp.StatusCode, store.Errorf(codeForStatus(resp.StatusCode), "http error: %s", resp.Status)
		}
		if errResp.Code == "" {
			errResp.Code = codeForStatus(resp.StatusCode).String()
		}
		return resp.StatusCode, errResp.Err()
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, errors.Wrapf(err, "decoding response of %s %s", method, target)
		}
	}
	return resp.StatusCode, nil
}

// codeForStatus maps a http status without error body to a RetCode
func codeForStatus(status int) store.RetCode {
	switch {
	case status == http.StatusNotFound:
		return store.RetCNotFound
	case status >= 400 && status < 500:
		return store.RetCValidation
	default:
		return store.RetCInternalError
	}
}
