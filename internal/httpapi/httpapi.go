// Package httpapi wires the core components (Model Store, Change-Set
// Applier, Reservation Manager, Tunnel Manager, Telemetry Sampler) onto
// the HTTP API surface, re-pointing internal/router's declarative
// registration at this domain's handlers instead of loading its route
// table from an operator-editable JSON file.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/auth"
	"wgquickrs/internal/changeset"
	"wgquickrs/internal/config"
	"wgquickrs/internal/router"
	"wgquickrs/internal/store"
	"wgquickrs/internal/telemetry"
	"wgquickrs/internal/tunnel"
	"wgquickrs/internal/wgmodel"
	"wgquickrs/internal/ws"
)

// Deps bundles everything a handler needs; the zero value is not usable.
type Deps struct {
	Store   *store.Store
	Tunnel  *tunnel.Manager
	Sampler *telemetry.Sampler
	Hub     *ws.Hub
	Auth    *auth.Service // nil if Agent.Web.Password.Enabled is false
	Version string
}

// New builds the HTTP handler for the whole API surface.
func New(d Deps) http.Handler {
	cfg := routeConfig(d.Version)
	config.Set(cfg)

	if d.Auth != nil {
		router.SetAuthValidator(d.Auth.Validator())
	}

	r := router.New(cfg)
	r.RegisterService("network", networkHandlers(d))
	r.RegisterService("wireguard", wireguardHandlers(d))
	r.RegisterService("system", systemHandlers(d))
	if d.Auth != nil {
		r.RegisterService("auth", d.Auth.Handlers())
	}
	return withWebSocket(r.Build(), d)
}

// withWebSocket intercepts GET /api/ws/telemetry before it reaches the
// declarative router, since a WebSocket upgrade doesn't fit the
// request/response handler shape router.ServiceHandlers models.
func withWebSocket(next http.Handler, d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/ws/telemetry" {
			ws.ServeTelemetry(d.Hub, w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routeConfig(version string) *config.Config {
	return &config.Config{
		Version: version,
		Middleware: config.MiddlewareConfig{
			CORS: config.CORSConfig{
				Enabled:      true,
				AllowOrigins: []string{"*"},
				AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
				AllowHeaders: []string{"Content-Type", "Authorization"},
			},
			Logging: config.LoggingConfig{Enabled: true, Format: "text"},
		},
		Services: map[string]config.ServiceConfig{
			"auth": {
				Prefix:  "/auth",
				Enabled: true,
				Endpoints: []config.EndpointConfig{
					{Path: "/token", Methods: []string{"POST"}, Handler: "IssueToken", Description: "exchange the administrative password for a bearer token"},
				},
			},
			"network": {
				Prefix:  "/network",
				Enabled: true,
				Endpoints: []config.EndpointConfig{
					{Path: "/summary", Methods: []string{"GET"}, Handler: "Summary", Description: "network summary, optionally digest-only"},
					{Path: "/config", Methods: []string{"PATCH"}, Handler: "ApplyChangeSum", Description: "apply a ChangeSum to the Network"},
					{Path: "/reservation", Methods: []string{"POST"}, Handler: "MintReservation", Description: "reserve the next free subnet address"},
				},
			},
			"wireguard": {
				Prefix:  "/wireguard",
				Enabled: true,
				Endpoints: []config.EndpointConfig{
					{Path: "/status", Methods: []string{"POST"}, Handler: "SetStatus", Description: "toggle the Tunnel Manager up or down"},
				},
			},
			"system": {
				Prefix:  "",
				Enabled: true,
				Endpoints: []config.EndpointConfig{
					{Path: "/version", Methods: []string{"GET"}, Handler: "Version", Description: "build version string"},
				},
			},
		},
	}
}

func systemHandlers(d Deps) router.ServiceHandlers {
	return router.ServiceHandlers{
		"Version": func(w http.ResponseWriter, r *http.Request) {
			router.JSON(w, map[string]string{"version": d.Version})
		},
	}
}

// tunnelStatus maps tunnel.State onto the wire encoding {UNKNOWN:0, DOWN:1, UP:2}.
func tunnelStatus(s tunnel.State) int {
	switch s {
	case tunnel.StateDown:
		return 1
	case tunnel.StateUp:
		return 2
	default:
		return 0
	}
}

func networkHandlers(d Deps) router.ServiceHandlers {
	return router.ServiceHandlers{
		"Summary":         summaryHandler(d),
		"ApplyChangeSum":  applyChangeSumHandler(d),
		"MintReservation": mintReservationHandler(d),
	}
}

type summaryResponse struct {
	Digest    string              `json:"digest"`
	Status    int                 `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Telemetry *telemetry.Telemetry `json:"telemetry,omitempty"`
	Network   *wgmodel.Network    `json:"network,omitempty"`
}

func summaryHandler(d Deps) router.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		onlyDigest := r.URL.Query().Get("only_digest") == "true"

		status := tunnel.StateDown
		if d.Tunnel != nil {
			if d.Tunnel.IsUp() {
				status = tunnel.StateUp
			}
		}

		resp := summaryResponse{
			Digest:    d.Store.Digest(),
			Status:    tunnelStatus(status),
			Timestamp: time.Now(),
		}
		if d.Sampler != nil {
			t := d.Sampler.GetTelemetry()
			resp.Telemetry = &t
		}
		if !onlyDigest {
			snap := d.Store.Snapshot()
			resp.Network = &snap.Network
		}
		router.JSON(w, resp)
	}
}

func applyChangeSumHandler(d Deps) router.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cs changeset.ChangeSum
		if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
			router.JSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		_, err := changeset.Apply(d.Store, d.Tunnel, cs)
		if err != nil {
			writeAppErr(w, err)
			return
		}
		router.JSON(w, map[string]string{"status": "ok"})
	}
}

type mintReservationRequest struct {
	PeerID string `json:"peer_id,omitempty"`
	TTL    int    `json:"ttl_seconds,omitempty"`
}

type mintReservationResponse struct {
	Address    string    `json:"address"`
	PeerID     uuid.UUID `json:"peer_id"`
	ValidUntil time.Time `json:"valid_until"`
}

const defaultReservationTTL = 5 * time.Minute

func mintReservationHandler(d Deps) router.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mintReservationRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				router.JSONError(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}

		var peerID uuid.UUID
		if req.PeerID != "" {
			id, err := uuid.Parse(req.PeerID)
			if err != nil {
				router.JSONError(w, "invalid peer_id", http.StatusBadRequest)
				return
			}
			peerID = id
		}
		ttl := defaultReservationTTL
		if req.TTL > 0 {
			ttl = time.Duration(req.TTL) * time.Second
		}

		res, err := d.Store.MintReservation(peerID, ttl)
		if err != nil {
			writeAppErr(w, err)
			return
		}
		router.JSON(w, mintReservationResponse{Address: res.Address, PeerID: res.PeerID, ValidUntil: res.ValidUntil})
	}
}

func wireguardHandlers(d Deps) router.ServiceHandlers {
	return router.ServiceHandlers{
		"SetStatus": setStatusHandler(d),
	}
}

type setStatusRequest struct {
	Up bool `json:"up"`
}

func setStatusHandler(d Deps) router.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			router.JSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		snap := d.Store.Snapshot()
		var err error
		if req.Up {
			err = d.Tunnel.Start(&snap)
		} else {
			err = d.Tunnel.Stop(&snap)
		}
		if err != nil {
			writeAppErr(w, err)
			return
		}
		router.JSON(w, map[string]string{"status": "ok"})
	}
}

// writeAppErr translates an *apperr.Error into the {status, message}
// response body; any other error is an unforeseen internal failure.
func writeAppErr(w http.ResponseWriter, err error) {
	if ae, ok := apperr.As(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apperr.HTTPStatus(ae.Kind))
		json.NewEncoder(w).Encode(map[string]string{
			"status":  apperr.StatusTag(ae.Kind),
			"message": ae.Message,
		})
		return
	}
	router.JSONError(w, fmt.Sprintf("internal error: %v", err), http.StatusInternalServerError)
}
