// ABOUTME: Tailscale tsnet listener for the webhook receiver
// ABOUTME: Lets a remote API reach the bridge over a tailnet or the public Funnel

package webhook

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"tailscale.com/tsnet"
)

func (r *Receiver) listenTailscale(ctx context.Context) (net.Listener, string, *tsnet.Server, error) {
	tsCfg := r.cfg.Tailscale

	stateDir, err := resolveStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, "", nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, "", nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey := tsCfg.AuthKey
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}

	srv := &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	r.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "funnel", tsCfg.Funnel)
	status, err := srv.Up(ctx)
	if err != nil {
		_ = srv.Close()
		return nil, "", nil, fmt.Errorf("starting tailscale: %w", err)
	}

	host := tsCfg.Hostname
	if status.Self != nil && status.Self.DNSName != "" {
		host = strings.TrimSuffix(status.Self.DNSName, ".")
	}

	var ln net.Listener
	var url string
	if tsCfg.Funnel {
		ln, err = srv.ListenFunnel("tcp", ":443")
		url = "https://" + host + r.cfg.Path
	} else {
		ln, err = srv.Listen("tcp", ":80")
		url = "http://" + host + r.cfg.Path
	}
	if err != nil {
		_ = srv.Close()
		return nil, "", nil, fmt.Errorf("listening on tailscale: %w", err)
	}
	return ln, url, srv, nil
}

func resolveStateDir(dir string) (string, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolving tailscale state dir: %w", err)
		}
		return filepath.Join(base, "knowledge-bridge", "tsnet"), nil
	}
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding tailscale state dir: %w", err)
		}
		return filepath.Join(home, dir[2:]), nil
	}
	return dir, nil
}
