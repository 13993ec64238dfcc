package endpoints

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/admeshlabs/mediation-bridge/internal/events"
	"github.com/admeshlabs/mediation-bridge/pkg/logger"
)

// statsReadTimeout bounds the Redis reads behind a stats request
const statsReadTimeout = 2 * time.Second

// EventCounters is the slice of the Redis client the stats handler reads
type EventCounters interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Get(ctx context.Context, key string) (string, error)
}

// StatsHandler serves the per-placement delivery counters written by the
// Redis event sink
type StatsHandler struct {
	counters  EventCounters
	keyPrefix string
}

// NewStatsHandler creates a stats handler reading under the given key
// prefix. counters may be nil when no Redis is configured.
func NewStatsHandler(counters EventCounters, keyPrefix string) *StatsHandler {
	if keyPrefix == "" {
		keyPrefix = events.DefaultKeyPrefix
	}
	return &StatsHandler{counters: counters, keyPrefix: keyPrefix}
}

// statsResponse reports delivery counters for one placement
type statsResponse struct {
	PlacementID  string           `json:"placement_id"`
	Events       map[string]int64 `json:"events"`
	RewardAmount float64          `json:"reward_amount"`
}

// HandleStats handles GET /v1/stats?placement_id=...
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.counters == nil {
		writeError(w, "event counters not configured", http.StatusServiceUnavailable)
		return
	}

	placementID := r.URL.Query().Get("placement_id")
	if placementID == "" {
		writeError(w, "placement_id is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), statsReadTimeout)
	defer cancel()

	raw, err := h.counters.HGetAll(ctx, events.EventsKey(h.keyPrefix, placementID))
	if err != nil {
		lg := logger.HTTP()
		lg.Error().Err(err).Str("placement_id", placementID).Msg("Event counter read failed")
		writeError(w, "counter read failed", http.StatusBadGateway)
		return
	}

	counts := make(map[string]int64, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[field] = n
	}

	var reward float64
	if value, err := h.counters.Get(ctx, events.RewardsKey(h.keyPrefix, placementID)); err != nil {
		lg := logger.HTTP()
		lg.Error().Err(err).Str("placement_id", placementID).Msg("Reward counter read failed")
		writeError(w, "counter read failed", http.StatusBadGateway)
		return
	} else if value != "" {
		reward, _ = strconv.ParseFloat(value, 64)
	}

	writeJSON(w, http.StatusOK, statsResponse{
		PlacementID:  placementID,
		Events:       counts,
		RewardAmount: reward,
	})
}
