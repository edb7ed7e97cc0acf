package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vixlabs/vix/cache"
	"github.com/vixlabs/vix/idgen"
	"github.com/vixlabs/vix/invalidate"
	"github.com/vixlabs/vix/kit"
	"github.com/vixlabs/vix/relevance"
	"github.com/vixlabs/vix/settings"
	"github.com/vixlabs/vix/state"
)

// sessionStatus is the GET /status payload.
type sessionStatus struct {
	Session     state.Snapshot   `json:"session"`
	Coordinator invalidate.Stats `json:"coordinator"`
	Cache       cache.Stats      `json:"cache"`
}

// settingsPayload is the GET /settings shape. Persistent reports whether
// writes will survive a restart.
type settingsPayload struct {
	Language   string               `json:"language"`
	Exclusions relevance.Exclusions `json:"exclusions"`
	Persistent bool                 `json:"persistent"`
}

// Routes builds the local panel handler. Everything speaks JSON, and the
// operations that touch the page or the backend are POST so a stray
// prefetch cannot start a batch.
func (a *Agent) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(a.instrument)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, sessionStatus{
			Session:     a.state.Get(),
			Coordinator: a.coord.Stats(),
			Cache:       a.cache.Stats(),
		})
	})

	r.Get("/progress", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, a.orch.Progress())
	})

	r.Post("/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Force bool `json:"force"`
		}
		decodeOptional(r, &req)
		if req.Force {
			a.cache.Delete(cache.Key(cache.NSSummary, a.doc.URL()))
		}
		page, err := a.AnalyzePage(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, page)
	})

	r.Post("/describe", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Retry bool `json:"retry"`
		}
		decodeOptional(r, &req)
		run := a.DescribeImages
		if req.Retry {
			run = a.RetryDescriptions
		}
		prog, applied, err := run(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, describeResponse{Progress: prog, Applied: applied})
	})

	r.Get("/audit", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"violations": a.state.Get().Violations})
	})

	r.Post("/audit", func(w http.ResponseWriter, r *http.Request) {
		out, err := a.RunAudit(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, out)
	})

	r.Post("/task", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSON(w, 400, map[string]string{"error": "prompt is required"})
			return
		}
		out, err := a.RunPageTask(r.Context(), req.Prompt)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, out)
	})

	r.Get("/settings", func(w http.ResponseWriter, r *http.Request) {
		lang := settings.DefaultLanguage
		if a.store != nil {
			if v, err := a.store.Language(r.Context()); err == nil {
				lang = v
			}
		}
		writeJSON(w, 200, settingsPayload{
			Language:   lang,
			Exclusions: a.exclusions(r.Context()),
			Persistent: a.store != nil,
		})
	})

	r.Put("/settings", func(w http.ResponseWriter, r *http.Request) {
		if a.store == nil {
			writeJSON(w, 409, map[string]string{"error": "no settings store configured"})
			return
		}
		var req struct {
			Language   string                `json:"language"`
			Exclusions *relevance.Exclusions `json:"exclusions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		ctx := r.Context()
		if req.Language != "" {
			if err := a.store.SetLanguage(ctx, req.Language); err != nil {
				writeError(w, 500, err)
				return
			}
		}
		if req.Exclusions != nil {
			if err := a.saveExclusions(ctx, *req.Exclusions); err != nil {
				writeError(w, 500, err)
				return
			}
		}
		lang, err := a.store.Language(ctx)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, settingsPayload{
			Language:   lang,
			Exclusions: a.exclusions(ctx),
			Persistent: true,
		})
	})

	return r
}

func (a *Agent) saveExclusions(ctx context.Context, ex relevance.Exclusions) error {
	for _, t := range []struct {
		key string
		val bool
	}{
		{settings.KeyExcludeNavigation, ex.Navigation},
		{settings.KeyExcludeHeader, ex.Header},
		{settings.KeyExcludeFooter, ex.Footer},
		{settings.KeyExcludeSidebar, ex.Sidebar},
		{settings.KeyExcludeLogo, ex.Logo},
		{settings.KeyExcludeIcons, ex.Icons},
		{settings.KeyExcludeDecorative, ex.Decorative},
	} {
		if err := a.store.SetBool(ctx, t.key, t.val); err != nil {
			return err
		}
	}
	return nil
}

// instrument tags each panel request with a short request ID, echoed in
// the response headers and carried through the context for handlers and
// endpoint middleware downstream.
func (a *Agent) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := idgen.Element()
		ctx := kit.WithRequestID(r.Context(), id)
		ctx = kit.WithTransport(ctx, "http")
		w.Header().Set("X-Request-ID", id)
		a.logger.Info("panel: request",
			"request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// decodeOptional fills v from the request body when one is present. An
// absent or empty body leaves v zero-valued.
func decodeOptional(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
