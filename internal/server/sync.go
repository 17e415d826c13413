package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/udl-dev/udl/internal/deletions"
	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/types"
)

// SyncResponse is the wire shape of GET /_sync.
type SyncResponse struct {
	Updated    []*types.Node          `json:"updated"`
	Deleted    []types.DeletionRecord `json:"deleted"`
	ServerTime string                 `json:"serverTime"`
	HasMore    bool                   `json:"hasMore"`
}

// SyncHandler serves incremental delta sync: every node modified after
// `since`, plus the deletion-log tombstones after `since`, optionally
// filtered by type. Clients feed the returned serverTime back as the
// next since so the windows tile without gaps.
type SyncHandler struct {
	store     *store.Store
	deletions *deletions.Log
}

// NewSyncHandler builds the /_sync handler.
func NewSyncHandler(st *store.Store, del *deletions.Log) *SyncHandler {
	return &SyncHandler{store: st, deletions: del}
}

// ServeHTTP implements http.Handler.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed: use GET")
		return
	}

	sinceParam := r.URL.Query().Get("since")
	if sinceParam == "" {
		writeError(w, http.StatusBadRequest, "Missing required query parameter: since")
		return
	}
	since, err := time.Parse(time.RFC3339, sinceParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid since timestamp: must be RFC 3339")
		return
	}

	var typeFilter []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				typeFilter = append(typeFilter, t)
			}
		}
	}

	resp := SyncResponse{
		Updated:    h.updatedSince(since, typeFilter),
		Deleted:    []types.DeletionRecord{},
		ServerTime: time.Now().Format(time.RFC3339Nano),
	}
	if h.deletions != nil {
		if deleted := h.deletions.Since(since, typeFilter...); deleted != nil {
			resp.Deleted = deleted
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// updatedSince collects nodes with modifiedAt strictly after since,
// ordered by (modifiedAt, id) so responses are deterministic.
func (h *SyncHandler) updatedSince(since time.Time, typeFilter []string) []*types.Node {
	cutoff := since.UnixMilli()

	var nodes []*types.Node
	if len(typeFilter) == 0 {
		nodes = h.store.GetAll()
	} else {
		for _, t := range typeFilter {
			nodes = append(nodes, h.store.GetByType(t)...)
		}
	}

	updated := make([]*types.Node, 0)
	for _, n := range nodes {
		if n.Internal.ModifiedAt > cutoff {
			updated = append(updated, n)
		}
	}
	sort.Slice(updated, func(i, j int) bool {
		if updated[i].Internal.ModifiedAt != updated[j].Internal.ModifiedAt {
			return updated[i].Internal.ModifiedAt < updated[j].Internal.ModifiedAt
		}
		return updated[i].Internal.ID < updated[j].Internal.ID
	})
	return updated
}
