package scheduler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"

	"github.com/NordCoder/pingwatch/internal/domain/service"
)

type serviceView struct {
	service.Service
	UptimeRatio float64 `json:"uptime_ratio"`
}

type errorBody struct {
	Error string `json:"error"`
}

// RegisterAdminRoutes exposes cycle inspection and manual triggering on mux.
func RegisterAdminRoutes(mux *runtime.ServeMux, r *Runner, reader service.Reader) error {
	if err := mux.HandlePath(http.MethodGet, "/v1/cycles/last", func(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
		sum, ok := r.Last()
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "no cycle has run yet"})
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}); err != nil {
		return err
	}

	if err := mux.HandlePath(http.MethodPost, "/v1/cycles", func(w http.ResponseWriter, req *http.Request, _ map[string]string) {
		writeJSON(w, http.StatusOK, r.Trigger(req.Context()))
	}); err != nil {
		return err
	}

	return mux.HandlePath(http.MethodGet, "/v1/services/{id}", func(w http.ResponseWriter, req *http.Request, params map[string]string) {
		id, err := uuid.Parse(params["id"])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid service id"})
			return
		}
		s, err := reader.GetByID(req.Context(), id)
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody{Error: "service not found"})
		case err != nil:
			r.Log.Error("get service", zap.String("service_id", id.String()), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		default:
			writeJSON(w, http.StatusOK, serviceView{Service: *s, UptimeRatio: s.UptimeRatio()})
		}
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
