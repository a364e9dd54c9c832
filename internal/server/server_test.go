package server

import (
	"errors"
	"net/http"
	"sync"
	"testing"
)

func TestRunHTTPServerAlwaysSignalsDone(t *testing.T) {
	var wg sync.WaitGroup
	srv := &http.Server{Addr: ":0"}

	wg.Add(1)
	runHTTPServer(&wg, "http", srv, func() error { return http.ErrServerClosed })
	wg.Wait() // returns immediately: runHTTPServer's deferred Done() already ran
}

func TestRunHTTPServerSignalsDoneOnError(t *testing.T) {
	var wg sync.WaitGroup
	srv := &http.Server{Addr: ":0"}

	wg.Add(1)
	runHTTPServer(&wg, "https", srv, func() error { return errors.New("bind failed") })
	wg.Wait()
}
