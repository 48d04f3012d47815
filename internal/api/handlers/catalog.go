// Package handlers implements the HTTP surface of the API role: the
// handful of catalog listings, the two admission endpoints, the
// polling endpoints, and the optional live-push WebSocket upgrade.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gsaplatform/orchestrator/internal/api"
	"github.com/gsaplatform/orchestrator/internal/blackboard"
	"github.com/gsaplatform/orchestrator/internal/catalog"
	"github.com/gsaplatform/orchestrator/internal/domain"
	"github.com/gsaplatform/orchestrator/internal/search"
)

// CatalogHandlers serves the statically compiled listings plus the
// search facet derived from the SearchIndex: /methods, /types,
// /data/sources, /data/examples, /data/summary/{dataset_id}.
type CatalogHandlers struct {
	cat    *catalog.Catalog
	index  search.Index
	bb     *blackboard.Blackboard
}

// NewCatalogHandlers builds the catalog handlers. index may be nil if
// the search facet is unavailable; queries then fall back to returning
// the full, unfiltered listing.
func NewCatalogHandlers(cat *catalog.Catalog, index search.Index, bb *blackboard.Blackboard) *CatalogHandlers {
	return &CatalogHandlers{cat: cat, index: index, bb: bb}
}

// Methods handles GET /0.1/methods.
func (h *CatalogHandlers) Methods() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, h.cat.Methods())
	})
}

// Types handles GET /0.1/types.
func (h *CatalogHandlers) Types() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, h.cat.DataTypes())
	})
}

// DataSources handles GET /0.1/data/sources. An optional ?q= filters
// through the search index the same way /data/examples does.
func (h *CatalogHandlers) DataSources() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			api.JSON(w, http.StatusOK, h.cat.Datasources())
			return
		}

		ids, matched := h.searchIDs(r, query)
		if !matched {
			api.JSON(w, http.StatusOK, h.cat.Datasources())
			return
		}
		out := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			if ds, err := h.cat.Datasource(id); err == nil {
				out = append(out, ds)
			}
		}
		api.JSON(w, http.StatusOK, out)
	})
}

// Examples handles GET /0.1/data/examples, with the same optional ?q=
// search facet, recording the query to the durable search-history table
// on a best-effort basis (it never blocks or fails the response).
func (h *CatalogHandlers) Examples() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			api.JSON(w, http.StatusOK, h.cat.Examples())
			return
		}

		ids, matched := h.searchIDs(r, query)
		if !matched {
			api.JSON(w, http.StatusOK, h.cat.Examples())
			return
		}
		out := make([]interface{}, 0, len(ids))
		for _, id := range ids {
			if ex, err := h.cat.Example(id); err == nil {
				out = append(out, ex)
			}
		}
		h.recordSearch(r, query, len(out))
		api.JSON(w, http.StatusOK, out)
	})
}

// Summary handles GET /0.1/data/summary/{dataset_id}.
func (h *CatalogHandlers) Summary() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		datasetID := mux.Vars(r)["dataset_id"]

		var ex domain.ExternalData
		if err := h.bb.GetJSON(r.Context(), blackboard.DatasetRecordKey(datasetID), &ex); err == nil {
			api.JSON(w, http.StatusOK, ex)
			return
		}

		if built, err := h.cat.Example(datasetID); err == nil {
			api.JSON(w, http.StatusOK, built)
			return
		}

		api.Error(w, http.StatusNotFound, api.ErrCodeNotFound, "dataset not found")
	})
}

func (h *CatalogHandlers) searchIDs(r *http.Request, query string) ([]string, bool) {
	if h.index == nil {
		return nil, false
	}
	ids, err := h.index.Search(query, 50)
	if err != nil {
		return nil, false
	}
	return ids, true
}

// recordSearch logs the query asynchronously, detached from the
// request context: the write is best-effort and must not be cancelled
// the instant the response is flushed.
func (h *CatalogHandlers) recordSearch(r *http.Request, query string, resultCount int) {
	if h.bb.Durable == nil {
		return
	}
	at := time.Now()
	go func() {
		_ = h.bb.Durable.RecordSearchQuery(context.Background(), query, resultCount, at)
	}()
}
