package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// Middleware wires capability checks into HTTP handlers. Denied
// privileged mutations are written to the activity log.
type Middleware struct {
	Service  *Service
	Logger   *slog.Logger
	Activity *shared.ActivityRecorder
}

// RequireAny ensures the current user has at least one of the required capabilities.
func (m Middleware) RequireAny(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(caps) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := m.Service.EffectiveCapabilities(r.Context(), userID)
			if err != nil {
				m.fail(w, r, userID, caps, err)
				return
			}
			for _, c := range caps {
				if _, ok := granted[c]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r, userID, caps)
		})
	}
}

// RequireAll ensures the current user has all required capabilities.
func (m Middleware) RequireAll(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(caps) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := m.currentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			granted, err := m.Service.EffectiveCapabilities(r.Context(), userID)
			if err != nil {
				m.fail(w, r, userID, caps, err)
				return
			}
			for _, c := range caps {
				if _, ok := granted[c]; !ok {
					m.deny(w, r, userID, caps)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) fail(w http.ResponseWriter, r *http.Request, userID int64, caps []Capability, err error) {
	if m.Logger != nil {
		m.Logger.Error("rbac capability lookup", slog.Int64("user", userID), slog.Any("error", err))
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, userID int64, caps []Capability) {
	if m.Activity != nil {
		names := make([]string, len(caps))
		for i, c := range caps {
			names[i] = string(c)
		}
		_ = m.Activity.Record(r.Context(), shared.ActivityEntry{
			ActorID:   userID,
			Action:    "DENIED",
			Entity:    "authz",
			Reference: r.URL.Path,
			IP:        r.RemoteAddr,
			Meta:      map[string]any{"capabilities": strings.Join(names, ",")},
		})
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}
