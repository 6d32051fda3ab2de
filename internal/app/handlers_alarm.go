package app

import (
	"net/http"

	apperrors "logvault/pkg/errors"
	"logvault/pkg/types"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// registerAlarmHandlers wires the saved-query alarm CRUD surface plus
// its event lifecycle (acknowledge/resolve) and summary statistics.
func (app *App) registerAlarmHandlers(router *mux.Router) {
	router.HandleFunc("/alarms", app.listAlarms).Methods(http.MethodGet)
	router.HandleFunc("/alarms", app.createAlarm).Methods(http.MethodPost)
	router.HandleFunc("/alarms/statistics", app.alarmStatistics).Methods(http.MethodGet)
	router.HandleFunc("/alarms/events", app.listAlarmEvents).Methods(http.MethodGet)
	router.HandleFunc("/alarms/events/{alarmId}/acknowledge", app.acknowledgeAlarm).Methods(http.MethodPost)
	router.HandleFunc("/alarms/events/{alarmId}/resolve", app.resolveAlarm).Methods(http.MethodPost)
	router.HandleFunc("/alarms/{id}", app.getAlarm).Methods(http.MethodGet)
	router.HandleFunc("/alarms/{id}", app.updateAlarm).Methods(http.MethodPut)
	router.HandleFunc("/alarms/{id}", app.deleteAlarm).Methods(http.MethodDelete)
	router.HandleFunc("/alarms/{id}/toggle", app.toggleAlarm).Methods(http.MethodPost)
}

func (app *App) listAlarms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.alarmStore.ListAlarms())
}

func (app *App) getAlarm(w http.ResponseWriter, r *http.Request) {
	a, ok := app.alarmStore.GetAlarm(muxVar(r, "id"))
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "app", "getAlarm", "not found"))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (app *App) createAlarm(w http.ResponseWriter, r *http.Request) {
	var a types.Alarm
	if err := decodeBody(r, &a); err != nil {
		writeError(w, err)
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	app.alarmStore.PutAlarm(a)
	writeJSON(w, http.StatusOK, a)
}

func (app *App) updateAlarm(w http.ResponseWriter, r *http.Request) {
	var a types.Alarm
	if err := decodeBody(r, &a); err != nil {
		writeError(w, err)
		return
	}
	a.ID = muxVar(r, "id")
	app.alarmStore.PutAlarm(a)
	writeJSON(w, http.StatusOK, a)
}

func (app *App) deleteAlarm(w http.ResponseWriter, r *http.Request) {
	app.alarmStore.DeleteAlarm(muxVar(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) toggleAlarm(w http.ResponseWriter, r *http.Request) {
	id := muxVar(r, "id")
	a, ok := app.alarmStore.GetAlarm(id)
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "app", "toggleAlarm", "not found"))
		return
	}
	a.Enabled = !a.Enabled
	app.alarmStore.PutAlarm(a)
	writeJSON(w, http.StatusOK, a)
}

func (app *App) listAlarmEvents(w http.ResponseWriter, r *http.Request) {
	if alarmID := r.URL.Query().Get("alarmId"); alarmID != "" {
		writeJSON(w, http.StatusOK, app.alarmStore.Events(alarmID))
		return
	}
	writeJSON(w, http.StatusOK, app.alarmStore.AllEvents())
}

func (app *App) acknowledgeAlarm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AckBy string `json:"ackBy"`
	}
	_ = decodeBody(r, &body)
	event, err := app.alarmEvaluator.Acknowledge(muxVar(r, "alarmId"), body.AckBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (app *App) resolveAlarm(w http.ResponseWriter, r *http.Request) {
	event, err := app.alarmEvaluator.Resolve(muxVar(r, "alarmId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (app *App) alarmStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.alarmEvaluator.Statistics())
}
