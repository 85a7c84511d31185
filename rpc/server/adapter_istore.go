package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ValentinKolb/rKV/lib/replication"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/cockroachdb/errors"
)

// maxBodyBytes bounds request bodies, a full batch of long keys and values fits easily
const maxBodyBytes = 64 << 20

// iStoreAdapter translates HTTP requests into store.IStore calls
type iStoreAdapter struct {
	store  store.IStore
	health *replication.HealthMonitor
}

// register adds all routes of the adapter to mux. wrap is applied to every handler.
func (a *iStoreAdapter) register(mux *http.ServeMux, wrap func(route string, h http.HandlerFunc) http.HandlerFunc) {
	mux.HandleFunc("GET "+common.PathKV+"/{key...}", wrap("get", a.handleGet))
	mux.HandleFunc("PUT "+common.PathKV+"/{key...}", wrap("put", a.handlePut))
	mux.HandleFunc("DELETE "+common.PathKV+"/{key...}", wrap("delete", a.handleDelete))
	mux.HandleFunc("GET "+common.PathKV, wrap("range", a.handleRange))
	mux.HandleFunc("POST "+common.PathBatch, wrap("batch", a.handleBatch))
	mux.HandleFunc("GET "+common.PathHealth, wrap("health", a.handleHealth))
	mux.HandleFunc("GET "+common.PathHealthLive, wrap("live", a.handleLive))
	mux.HandleFunc("GET "+common.PathInfo, wrap("info", a.handleInfo))
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

func (a *iStoreAdapter) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := a.store.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *iStoreAdapter) handlePut(w http.ResponseWriter, r *http.Request) {
	var req common.PutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Value == nil {
		writeError(w, store.NewError(store.RetCValidation, "value is required"))
		return
	}

	entry, created, err := a.store.Put(r.Context(), r.PathValue("key"), *req.Value, replicate(r))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, entry)
}

func (a *iStoreAdapter) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	deleted, err := a.store.Delete(r.Context(), key, replicate(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, store.Errorf(store.RetCNotFound, "key %q not found", key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *iStoreAdapter) handleRange(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := store.RangeQuery{
		Start:  params.Get("start"),
		End:    params.Get("end"),
		Cursor: params.Get("cursor"),
	}
	var err error
	if q.Limit, err = intParam(params.Get("limit"), "limit"); err != nil {
		writeError(w, err)
		return
	}
	if q.Offset, err = intParam(params.Get("offset"), "offset"); err != nil {
		writeError(w, err)
		return
	}

	page, err := a.store.ReadRange(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, common.NewRangeResponse(page))
}

func (a *iStoreAdapter) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req common.BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	entries, err := a.store.BatchPut(r.Context(), req.Items, replicate(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *iStoreAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, common.HealthResponse{
		Status:  "healthy",
		Cluster: a.health.ClusterStatus(r.Context()),
	})
}

// handleLive answers without contacting peers, it is the target of peer probes
func (a *iStoreAdapter) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, common.LiveResponse{Status: "ok"})
}

func (a *iStoreAdapter) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, common.InfoResponse{
		Table: a.store.GetDBInfo(),
		Peers: a.health.Peers(),
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// replicate reports whether a write has to be replicated, which is the case
// for all requests not sent by a peer
func replicate(r *http.Request) bool {
	return !strings.EqualFold(r.Header.Get(common.ReplicationHeader), "true")
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, store.Errorf(store.RetCValidation, "%s must be an integer", name)
	}
	return v, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return store.Errorf(store.RetCValidation, "request body exceeds %d bytes", maxErr.Limit)
		}
		return store.Errorf(store.RetCValidation, "invalid request body: %v", err)
	}
	return nil
}

// statusFor maps a store error to a http status code
func statusFor(err error) int {
	switch store.CodeOf(err) {
	case store.RetCNotFound:
		return http.StatusNotFound
	case store.RetCValidation, store.RetCBatchTooLarge:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError && !store.IsQuorumFailure(err) {
		Logger.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, common.NewErrorResponse(err))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Warningf("failed to write response: %v", err)
	}
}
