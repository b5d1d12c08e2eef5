package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/prefsets/internal/preset"
)

// Deps holds what the HTTP API needs.
type Deps struct {
	Registry *preset.Registry
	Token    string
	Logger   *slog.Logger
}

// NewHandler returns the management API. Everything except /health requires
// the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/presets", handleListPresets(deps))
		r.Post("/presets", handleAddPreset(deps))
		r.Put("/presets/active", handleSetActive(deps))
		r.Delete("/presets/{name}", handleRemovePreset(deps))

		r.Get("/presets/{name}/settings", handleListSettings(deps))
		r.Get("/presets/{name}/settings/{key}", handleGetSetting(deps))
		r.Put("/presets/{name}/settings/{key}", handlePutSetting(deps))
		r.Delete("/presets/{name}/settings/{key}", handleDeleteSetting(deps))

		r.Get("/watch", handleWatch(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PresetList is the body of GET /presets.
type PresetList struct {
	Presets []string `json:"presets"`
	Active  string   `json:"active"`
}

// NameRequest carries a preset name.
type NameRequest struct {
	Name string `json:"name"`
}

func presetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, preset.ErrPresetExists), errors.Is(err, preset.ErrNameCollision):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, preset.ErrReservedName), errors.Is(err, preset.ErrInvalidName):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// knownView returns the view for the {name} URL parameter, or writes a 404
// when the preset is not registered.
func knownView(deps Deps, w http.ResponseWriter, r *http.Request) (*preset.View, bool) {
	name := chi.URLParam(r, "name")
	ok, err := deps.Registry.Has(name)
	if err != nil {
		presetError(w, err)
		return nil, false
	}
	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "preset %q not found", name)
		return nil, false
	}
	return deps.Registry.Preset(name), true
}

func handleListPresets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := deps.Registry.Presets()
		if err != nil {
			presetError(w, err)
			return
		}
		active, err := deps.Registry.ActiveName()
		if err != nil {
			presetError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, PresetList{Presets: names, Active: active})
	}
}

func handleAddPreset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NameRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Registry.Add(req.Name); err != nil {
			presetError(w, err)
			return
		}
		deps.Logger.Info("preset added", "preset", req.Name)
		writeJSON(w, http.StatusCreated, map[string]string{"name": req.Name, "prefix": preset.PrefixFor(req.Name)})
	}
}

func handleRemovePreset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if _, ok := knownView(deps, w, r); !ok {
			return
		}
		if err := deps.Registry.Remove(name); err != nil {
			presetError(w, err)
			return
		}
		deps.Logger.Info("preset removed", "preset", name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleSetActive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NameRequest
		if !decodeBody(w, r, &req) {
			return
		}
		ok, err := deps.Registry.Has(req.Name)
		if err != nil {
			presetError(w, err)
			return
		}
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "preset %q not found", req.Name)
			return
		}
		if err := deps.Registry.Preset(req.Name).SaveAsActive(); err != nil {
			presetError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"active": req.Name})
	}
}

func handleListSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := knownView(deps, w, r)
		if !ok {
			return
		}
		effective, _ := strconv.ParseBool(r.URL.Query().Get("effective"))

		all, err := v.All()
		if effective {
			all, err = preset.Effective(v)
		}
		if err != nil {
			presetError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWireMap(all))
	}
}

func handleGetSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := knownView(deps, w, r)
		if !ok {
			return
		}
		key := chi.URLParam(r, "key")
		res, err := v.Resolve(key)
		if err != nil {
			presetError(w, err)
			return
		}
		if !res.Found {
			httpError(w, http.StatusNotFound, "not_found", "key %q not set in preset %q", key, v.Name())
			return
		}
		writeJSON(w, http.StatusOK, Setting{
			Key:       key,
			Type:      res.Value.Kind.String(),
			Value:     res.Value.Interface(),
			Inherited: res.Inherited,
		})
	}
}

func handlePutSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := knownView(deps, w, r)
		if !ok {
			return
		}
		var req PutRequest
		if !decodeBody(w, r, &req) {
			return
		}
		val, err := decodeValue(req.Type, req.Value)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		key := chi.URLParam(r, "key")
		if err := v.Edit().Put(key, val).Commit(); err != nil {
			presetError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Setting{Key: key, Type: val.Kind.String(), Value: val.Interface()})
	}
}

func handleDeleteSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := knownView(deps, w, r)
		if !ok {
			return
		}
		if err := v.Edit().Remove(chi.URLParam(r, "key")).Commit(); err != nil {
			presetError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
