package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grafana/ruleflow/pkg/engine"
	"github.com/grafana/ruleflow/pkg/store/postgres"
	"github.com/grafana/ruleflow/pkg/util/log"
)

func (a *App) registerRoutes(h handler) {
	h.HandleFunc("/api/v1/rules", a.listRules).Methods(http.MethodGet)
	h.HandleFunc("/api/v1/rules", a.upsertRule).Methods(http.MethodPost)
	h.HandleFunc("/api/v1/rules/{id}", a.getRule).Methods(http.MethodGet)
	h.HandleFunc("/api/v1/rules/{id}", a.deleteRule).Methods(http.MethodDelete)
	h.HandleFunc("/api/v1/rules/{id}/execute", a.executeRule).Methods(http.MethodPost)
	h.HandleFunc("/api/v1/rules/simulate", a.simulateRule).Methods(http.MethodPost)
	h.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	h.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForKind maps an engine error Kind to an HTTP status code (spec §7).
func statusForKind(kind engine.Kind) int {
	switch kind {
	case engine.KindMalformedRule:
		return http.StatusBadRequest
	case engine.KindGatewayFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		writeJSON(w, statusForKind(engErr.Kind), map[string]string{"error": engErr.Error(), "kind": engErr.Kind.String()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (a *App) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.rules.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type summary struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		HasJSON bool   `json:"has_json"`
	}
	out := make([]summary, len(rules))
	for i, ru := range rules {
		out[i] = summary{ID: ru.ID, Name: ru.Name, HasJSON: ru.RuleJSON != ""}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) getRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ru, err := a.rules.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if ru == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
		return
	}
	writeJSON(w, http.StatusOK, ru)
}

func (a *App) upsertRule(w http.ResponseWriter, r *http.Request) {
	var body postgres.RuleRecord
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if _, err := engine.ParseRule([]byte(body.RuleJSON)); err != nil {
		writeEngineError(w, err)
		return
	}

	id, err := a.rules.Upsert(r.Context(), body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// deleteRule clears a rule's JSON text rather than removing the row,
// matching the original Flask prototype's soft-delete behavior.
func (a *App) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ru, err := a.rules.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if ru == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
		return
	}

	ru.RuleJSON = ""
	if _, err := a.rules.Upsert(r.Context(), *ru); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) executeRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ru, err := a.rules.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if ru == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
		return
	}

	summary, err := a.runExecution(r.Context(), ru.RuleJSON, true)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *App) simulateRule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RuleJSON json.RawMessage `json:"json_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	summary, err := a.runExecution(r.Context(), string(body.RuleJSON), false)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// runExecution runs the engine inside a transaction and either commits
// (commit=true) or always rolls back (commit=false), matching spec.md §9's
// "execute and simulate are the same call, only the caller's commit/rollback
// decision differs."
func (a *App) runExecution(ctx context.Context, ruleJSON string, commit bool) (engine.Summary, error) {
	runID := uuid.New().String()
	level.Info(log.Logger).Log("msg", "executing rule", "run_id", runID, "commit", commit)

	tx, err := postgres.BeginTx(ctx, a.pool)
	if err != nil {
		return engine.Summary{}, err
	}

	gw := postgres.NewGatewayTx(tx)
	summary, execErr := engine.Execute(ctx, gw, []byte(ruleJSON))

	if !commit || execErr != nil {
		_ = tx.Rollback(ctx)
		if execErr != nil {
			level.Warn(log.Logger).Log("msg", "execution failed", "run_id", runID, "err", execErr)
		}
		return summary, execErr
	}

	if err := tx.Commit(ctx); err != nil {
		level.Error(log.Logger).Log("msg", "commit failed", "run_id", runID, "err", err)
		return engine.Summary{}, errors.Wrap(err, "committing execution")
	}
	return summary, nil
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid id %q", raw)
	}
	return id, nil
}
