// Command healthcheck exits non-zero unless the fiscalkeeper server in the
// same container answers its health endpoint with status "ok". It is the
// HEALTHCHECK binary for scratch images, so it only imports the standard
// library.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	fallbackAddr = "127.0.0.1:8080"
	healthPath   = "/api/v1/health"
	deadline     = 2 * time.Second
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	target := healthURL(os.Getenv("FISCALKEEPER_LISTEN_ADDR"))
	if err := checkHealth(ctx, &http.Client{Timeout: deadline}, target); err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		os.Exit(1)
	}
}

// healthURL builds the endpoint from the server's listen address. Wildcard
// hosts are dialed on loopback.
func healthURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + fallbackAddr + healthPath
	}

	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + healthPath
}

func checkHealth(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: HTTP %d", target, resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<10)).Decode(&body); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if body.Status != "ok" {
		return errors.New("server reports status " + body.Status)
	}
	return nil
}
