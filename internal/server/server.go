// Package server implements the Server Orchestrator: it seeds the
// Model Store, starts the Telemetry Sampler, and runs up to three
// servers — HTTP web, HTTPS web, and VPN — concurrently, joining them on
// a shutdown signal. Signal handling follows the familiar pattern of
// os/signal.Notify plus a context.WithTimeout shutdown and a
// sync.WaitGroup join, generalized from a single HTTP server to the
// three-server fan-out this agent's Agent sub-model describes.
package server

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/auth"
	"wgquickrs/internal/httpapi"
	"wgquickrs/internal/procconfig"
	"wgquickrs/internal/store"
	"wgquickrs/internal/telemetry"
	"wgquickrs/internal/tunnel"
	"wgquickrs/internal/wgmodel"
	"wgquickrs/internal/ws"
)

const shutdownTimeout = 30 * time.Second

// Run boots the agent: loads the Model Store at procCfg.ConfigFile,
// starts the Telemetry Sampler, and runs the enabled servers until a
// SIGINT/SIGTERM arrives, then shuts down the HTTP server, the HTTPS
// server and the VPN tunnel, in that order.
func Run(procCfg procconfig.Config, version string) error {
	st, err := store.Load(procCfg.ConfigFile, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindCommitFailed, err, "loading model store")
	}
	snap := st.Snapshot()

	tun := tunnel.New(tunnel.Config{
		InterfaceName:   procCfg.InterfaceName,
		WgToolPath:      procCfg.WgToolPath,
		UserspaceBinary: procCfg.UserspaceBinary,
		DataDir:         procCfg.DataDir,
	})

	hub := ws.NewHub()
	sampler := telemetry.New(procCfg.WgToolPath, tun, func() wgmodel.Network {
		return st.Snapshot().Network
	}, func(s telemetry.Sample) {
		hub.Broadcast(ws.TelemetryChannel, s)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sampler.Run(ctx)

	var authSvc *auth.Service
	if snap.Agent.Web.Password.Enabled {
		authSvc = auth.New(snap.Agent.Web.Password.Hash)
	}

	handler := httpapi.New(httpapi.Deps{
		Store:   st,
		Tunnel:  tun,
		Sampler: sampler,
		Hub:     hub,
		Auth:    authSvc,
		Version: version,
	})

	var wg sync.WaitGroup
	var httpSrv, httpsSrv *http.Server

	if snap.Agent.Web.HTTP.Enabled {
		tunnel.RunWebHooks(snap.Agent.Firewall.HTTP, "pre_up", snap.Agent.Web.HTTP.Port)
		httpSrv = &http.Server{
			Addr:         procCfg.HTTPAddr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		wg.Add(1)
		go runHTTPServer(&wg, "http", httpSrv, func() error { return httpSrv.ListenAndServe() })
	}

	if snap.Agent.Web.HTTPS.Enabled {
		cert, err := tls.LoadX509KeyPair(snap.Agent.Web.HTTPS.TLSCert, snap.Agent.Web.HTTPS.TLSKey)
		if err != nil {
			return apperr.Wrap(apperr.KindCommandFailed, err, "loading TLS certificate")
		}
		httpsSrv = &http.Server{
			Addr:         procCfg.HTTPSAddr,
			Handler:      handler,
			TLSConfig:    &tls.Config{Certificates: []tls.Certificate{cert}},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		tunnel.RunWebHooks(snap.Agent.Firewall.HTTPS, "pre_up", snap.Agent.Web.HTTPS.Port)
		wg.Add(1)
		go runHTTPServer(&wg, "https", httpsSrv, func() error { return httpsSrv.ListenAndServeTLS("", "") })
	}

	if snap.Agent.VPN.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			current := st.Snapshot()
			if err := tun.Start(&current); err != nil {
				log.Printf("server: vpn: start failed: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("server: received signal %v, shutting down", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: http shutdown: %v", err)
		}
		tunnel.RunWebHooks(snap.Agent.Firewall.HTTP, "post_down", snap.Agent.Web.HTTP.Port)
	}
	if httpsSrv != nil {
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: https shutdown: %v", err)
		}
		tunnel.RunWebHooks(snap.Agent.Firewall.HTTPS, "post_down", snap.Agent.Web.HTTPS.Port)
	}
	if snap.Agent.VPN.Enabled {
		final := st.Snapshot()
		if err := tun.Stop(&final); err != nil {
			log.Printf("server: vpn stop: %v", err)
		}
	}

	wg.Wait()
	log.Println("server: graceful shutdown complete")
	return nil
}

func runHTTPServer(wg *sync.WaitGroup, name string, srv *http.Server, listen func() error) {
	defer wg.Done()
	log.Printf("server: %s listening on %s", name, srv.Addr)
	if err := listen(); err != nil && err != http.ErrServerClosed {
		log.Printf("server: %s: %v", name, err)
	}
}
