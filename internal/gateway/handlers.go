package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"cryptoengine/internal/candlestore"
	"cryptoengine/internal/indicator"
	"cryptoengine/internal/model"

	"github.com/gorilla/websocket"
)

// allowedOrigins holds the configured allowed origins, parsed from
// ALLOWED_ORIGINS (comma-separated). Default "*" allows all origins.
var allowedOrigins = parseAllowedOrigins(os.Getenv("ALLOWED_ORIGINS"))

func parseAllowedOrigins(s string) []string {
	if s == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func checkOrigin(r *http.Request) bool {
	for _, o := range allowedOrigins {
		if o == "*" || o == r.Header.Get("Origin") {
			return true
		}
	}
	return false
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkOrigin,
}

// Server wires the Hub to HTTP: WebSocket upgrades for the three logical
// endpoints, and the historical-query REST endpoint.
type Server struct {
	Hub      *Hub
	Store    *candlestore.Store
	Registry *indicator.Registry
}

func NewServer(hub *Hub, store *candlestore.Store, registry *indicator.Registry) *Server {
	return &Server{Hub: hub, Store: store, Registry: registry}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/orderflow", s.handleUpgrade(EndpointOrderFlow))
	mux.HandleFunc("/ws/trading", s.handleUpgrade(EndpointTrading))
	mux.HandleFunc("/ws/indicator", s.handleUpgrade(EndpointIndicator))
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleUpgrade(endpoint Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.Hub.Upgrade(conn, endpoint)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.Hub.ClientCount(),
	})
}

// handleHistory answers a historical indicator query (§6): metadata plus
// either a line-series `data`/`series` pair or, for shape-producing
// indicators, `supportsShapes`/`shapes`/`shapesSummary`.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var q HistoryQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ind, err := s.Registry.New(q.IndicatorID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	params, err := indicator.ValidateAndFill(ind.ParamSchema(), q.Params)
	if err != nil {
		http.Error(w, "invalid params: "+err.Error(), http.StatusBadRequest)
		return
	}

	count := q.Count
	if count <= 0 {
		count = 500
	}
	key := candlestore.Key(q.Provider, q.Symbol, q.Interval)
	candles := s.Store.LastN(key, count)

	points := indicator.CalculateHistorical(ind, candles, params)

	resp := HistoryResponse{Metadata: visualMetadataJSON(ind)}

	if hasShapes(points) {
		resp.SupportsShapes = true
		resp.Shapes = groupShapes(points)
		for _, shapes := range resp.Shapes {
			resp.ShapesSummary += len(shapes)
		}
	} else {
		resp.Data = make([]HistoryPoint, len(points))
		resp.Series = make(map[string][]float64)
		for i, p := range points {
			resp.Data[i] = HistoryPoint{Time: p.TS, Values: p.Values}
			for k, v := range p.Values {
				resp.Series[k] = append(resp.Series[k], v)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func visualMetadataJSON(ind indicator.Indicator) map[string]any {
	out := make(map[string]any)
	for k, v := range ind.VisualMetadata() {
		out[k] = v
	}
	return out
}

func hasShapes(points []indicator.Point) bool {
	for _, p := range points {
		if len(p.Shapes) > 0 {
			return true
		}
	}
	return false
}

func groupShapes(points []indicator.Point) map[string][]model.Shape {
	grouped := make(map[string][]model.Shape)
	for _, p := range points {
		for _, sh := range p.Shapes {
			grouped[string(sh.Kind)] = append(grouped[string(sh.Kind)], sh)
		}
	}
	return grouped
}
