package main

import (
	"context"
	"encoding/json"
	"net/http"

	"cryptoengine/internal/indicator"
)

// createInstanceRequest is the body for POST /instances.
type createInstanceRequest struct {
	Provider    string         `json:"provider"`
	Symbol      string         `json:"symbol"`
	Interval    string         `json:"interval"`
	IndicatorID string         `json:"indicatorId"`
	Params      map[string]any `json:"params"`
}

// newInstanceAPI builds the small HTTP surface for creating and destroying
// indicator instances on demand (C5 has no auto-discovery: a caller must
// explicitly request an instance for a given provider/symbol/interval).
func newInstanceAPI(manager *indicator.Manager) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req createInstanceRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
				return
			}
			key, err := manager.Create(context.Background(), req.Provider, req.Symbol, req.Interval, req.IndicatorID, req.Params)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"instanceKey": key})

		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"instances": manager.Instances()})

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/instances/destroy", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		manager.Destroy(req.Key)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return mux
}
