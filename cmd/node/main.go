// Package main implements the nimbusdb node service: a single binary
// that is simultaneously a query coordinator and a data replica,
// gossiping membership and schema with its peers and serving both a
// TLS client protocol and a plaintext internode protocol.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                  Node                    │
//	├─────────────────────────────────────────┤
//	│  Listeners:                              │
//	│    client-listen      - TLS client wire  │
//	│    internode-listen    - plaintext query/│
//	│                          response/gossip │
//	│    debug-listen         - operator JSON  │
//	├─────────────────────────────────────────┤
//	│  Background loops:                      │
//	│    gossiper.Run         - Syn/Ack/Ack2    │
//	│    RunReconcile          - ring + schema  │
//	└─────────────────────────────────────────┘
//
// Configuration is resolved from flags, NIMBUS_* environment
// variables, and an optional TOML file, in that priority order (see
// config.go).
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dreamware/nimbusdb/internal/nodeops"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a nimbusdb node",
		Long:  "node starts a nimbusdb node: a gossiping peer that is both a query coordinator and a data replica.",
		RunE:  runServe,
	}
	bindConfigFlags(cmd)
	cmd.AddCommand(newSchemaCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	n, err := nodeops.New(cfg, log)
	if err != nil {
		return fmt.Errorf("building node: %w", err)
	}

	clientLis, err := newClientListener(cfg)
	if err != nil {
		return fmt.Errorf("client listener: %w", err)
	}
	internodeLis, err := net.Listen("tcp", cfg.InternodeListen)
	if err != nil {
		return fmt.Errorf("internode listener: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 3)
	go func() { errCh <- n.ServeClient(ctx, clientLis) }()
	go func() { errCh <- n.ServeInternode(ctx, internodeLis) }()
	go func() { errCh <- n.ServeDebug(ctx, cfg.DebugListen) }()
	go n.Gossiper().Run(ctx, n.Transport())
	go n.RunReconcile(ctx)

	log.WithFields(logrus.Fields{
		"self":      cfg.Self,
		"client":    cfg.ClientListen,
		"internode": cfg.InternodeListen,
		"debug":     cfg.DebugListen,
	}).Info("node started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig).Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Warn("a listener exited unexpectedly")
		}
	}

	cancel()
	_, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = clientLis.Close()
	_ = internodeLis.Close()

	return nil
}

func newClientListener(cfg nodeops.Config) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertsDir+"/node.crt", cfg.CertsDir+"/node.key")
	if err != nil {
		return nil, fmt.Errorf("loading TLS cert from %s: %w", cfg.CertsDir, err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	return tls.Listen("tcp", cfg.ClientListen, tlsCfg)
}
