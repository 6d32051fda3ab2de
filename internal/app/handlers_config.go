package app

import (
	"net/http"

	"logvault/internal/extraction"
	apperrors "logvault/pkg/errors"
	"logvault/pkg/types"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// registerConfigHandlers wires the hot-editable configuration CRUD
// surfaces: log directories, field configurations, retention policies,
// and the redaction ruleset.
func (app *App) registerConfigHandlers(router *mux.Router) {
	router.HandleFunc("/logDirectoryConfigs", app.listDirectoryConfigs).Methods(http.MethodGet)
	router.HandleFunc("/logDirectoryConfigs", app.createDirectoryConfig).Methods(http.MethodPost)
	router.HandleFunc("/logDirectoryConfigs/{id}", app.getDirectoryConfig).Methods(http.MethodGet)
	router.HandleFunc("/logDirectoryConfigs/{id}", app.updateDirectoryConfig).Methods(http.MethodPut)
	router.HandleFunc("/logDirectoryConfigs/{id}", app.deleteDirectoryConfig).Methods(http.MethodDelete)
	router.HandleFunc("/logDirectoryConfigs/{id}/scan", app.scanDirectoryConfig).Methods(http.MethodPost)

	router.HandleFunc("/fieldConfigurations", app.listFieldConfigs).Methods(http.MethodGet)
	router.HandleFunc("/fieldConfigurations", app.createFieldConfig).Methods(http.MethodPost)
	router.HandleFunc("/fieldConfigurations/test", app.testFieldConfig).Methods(http.MethodPost)
	router.HandleFunc("/fieldConfigurations/{id}", app.getFieldConfig).Methods(http.MethodGet)
	router.HandleFunc("/fieldConfigurations/{id}", app.updateFieldConfig).Methods(http.MethodPut)
	router.HandleFunc("/fieldConfigurations/{id}", app.deleteFieldConfig).Methods(http.MethodDelete)

	router.HandleFunc("/retentionPolicies", app.listRetentionPolicies).Methods(http.MethodGet)
	router.HandleFunc("/retentionPolicies", app.createRetentionPolicy).Methods(http.MethodPost)
	router.HandleFunc("/retentionPolicies/{id}", app.getRetentionPolicy).Methods(http.MethodGet)
	router.HandleFunc("/retentionPolicies/{id}", app.updateRetentionPolicy).Methods(http.MethodPut)
	router.HandleFunc("/retentionPolicies/{id}", app.deleteRetentionPolicy).Methods(http.MethodDelete)
	router.HandleFunc("/retentionPolicies/{id}/apply", app.applyRetentionPolicy).Methods(http.MethodPost)

	router.HandleFunc("/redaction/config", app.getRedactionConfig).Methods(http.MethodGet)
	router.HandleFunc("/redaction/config", app.putRedactionConfig).Methods(http.MethodPut)
	router.HandleFunc("/redaction/reload", app.reloadRedactionConfig).Methods(http.MethodPost)
}

// --- log directory configs ---

func (app *App) listDirectoryConfigs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.dirConfigStore.List())
}

func (app *App) getDirectoryConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := app.dirConfigStore.Get(muxVar(r, "id"))
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "app", "getDirectoryConfig", "not found"))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (app *App) createDirectoryConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.LogDirectoryConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	app.putDirectoryConfig(w, cfg)
}

func (app *App) updateDirectoryConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.LogDirectoryConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	cfg.ID = muxVar(r, "id")
	app.putDirectoryConfig(w, cfg)
}

func (app *App) putDirectoryConfig(w http.ResponseWriter, cfg types.LogDirectoryConfig) {
	if err := app.dirConfigStore.Put(cfg); err != nil {
		writeError(w, err)
		return
	}
	if cfg.Enabled {
		if err := app.fileScanner.AddDirectory(cfg); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (app *App) deleteDirectoryConfig(w http.ResponseWriter, r *http.Request) {
	if err := app.dirConfigStore.Delete(muxVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) scanDirectoryConfig(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	n, err := app.fileScanner.ScanNow(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Scanned int `json:"scanned"`
	}{n})
}

// --- field configurations ---

func (app *App) listFieldConfigs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.fieldConfigStore.List())
}

func (app *App) getFieldConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := app.fieldConfigStore.Get(muxVar(r, "id"))
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "app", "getFieldConfig", "not found"))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (app *App) createFieldConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.FieldConfiguration
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	app.putFieldConfig(w, cfg)
}

func (app *App) updateFieldConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.FieldConfiguration
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	cfg.ID = muxVar(r, "id")
	app.putFieldConfig(w, cfg)
}

func (app *App) putFieldConfig(w http.ResponseWriter, cfg types.FieldConfiguration) {
	if err := app.fieldConfigStore.Put(cfg); err != nil {
		writeError(w, err)
		return
	}
	app.extractor.Reload(app.fieldConfigStore.List())
	writeJSON(w, http.StatusOK, cfg)
}

func (app *App) deleteFieldConfig(w http.ResponseWriter, r *http.Request) {
	if err := app.fieldConfigStore.Delete(muxVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	app.extractor.Reload(app.fieldConfigStore.List())
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) testFieldConfig(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Config types.FieldConfiguration `json:"config"`
		Sample string                   `json:"sample"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	extracted, err := extraction.TestExtract(body.Config, body.Sample)
	if err != nil {
		writeError(w, apperrors.Wrapf(err, apperrors.CodeExtractionInvalid, "app", "testFieldConfig", "extraction test failed"))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Extracted string `json:"extracted"`
	}{extracted})
}

// --- retention policies ---

func (app *App) listRetentionPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.retentionPolicyStore.List())
}

func (app *App) getRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := app.retentionPolicyStore.Get(muxVar(r, "id"))
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "app", "getRetentionPolicy", "not found"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (app *App) createRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	var p types.RetentionPolicy
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := app.retentionPolicyStore.Put(p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (app *App) updateRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	var p types.RetentionPolicy
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	p.ID = muxVar(r, "id")
	if err := app.retentionPolicyStore.Put(p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (app *App) deleteRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	if err := app.retentionPolicyStore.Delete(muxVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) applyRetentionPolicy(w http.ResponseWriter, r *http.Request) {
	n, err := app.retentionExecutor.Apply(r.Context(), muxVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Deleted int `json:"deleted"`
	}{n})
}

// --- redaction ---

func (app *App) getRedactionConfig(w http.ResponseWriter, r *http.Request) {
	app.redactionMu.RLock()
	defer app.redactionMu.RUnlock()
	writeJSON(w, http.StatusOK, app.redactionCfg)
}

func (app *App) putRedactionConfig(w http.ResponseWriter, r *http.Request) {
	var cfg types.RedactionConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, err)
		return
	}

	app.redactionMu.Lock()
	defer app.redactionMu.Unlock()

	if err := saveRedactionConfig(app.redactionPath, cfg); err != nil {
		writeError(w, err)
		return
	}
	app.redactionCfg = cfg
	app.redactionEngine.Reload(cfg)
	writeJSON(w, http.StatusOK, cfg)
}

func (app *App) reloadRedactionConfig(w http.ResponseWriter, r *http.Request) {
	app.redactionMu.Lock()
	defer app.redactionMu.Unlock()

	cfg, err := loadRedactionConfig(app.redactionPath)
	if err != nil {
		writeError(w, err)
		return
	}
	app.redactionCfg = cfg
	app.redactionEngine.Reload(cfg)
	writeJSON(w, http.StatusOK, cfg)
}
