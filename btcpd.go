// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"

	"github.com/btcpsuite/btcpd/internal/limits"
	"github.com/btcpsuite/btcpd/internal/log"
	"github.com/btcpsuite/btcpd/internal/version"
	"github.com/btcpsuite/btcpd/mempool"
)

// btcpdMain is the real main function for btcpd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.
func btcpdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	err = log.InitLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer func() {
		if log.LogRotator != nil {
			log.LogRotator.Close()
		}
	}()

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := interruptListener()
	defer log.BtpdLog.Info("Shutdown complete")

	// Show version at startup.
	log.BtpdLog.Infof("Version %s", version.String())

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		go func() {
			listenAddr := net.JoinHostPort("", cfg.Profile)
			log.BtpdLog.Infof("Profile server listening on %s",
				listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			log.BtpdLog.Errorf("%v", http.ListenAndServe(listenAddr, nil))
		}()
	}

	// Write cpu profile if requested.
	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			log.BtpdLog.Errorf("Unable to create cpu profile: %v", err)
			return err
		}
		pprof.StartCPUProfile(f)
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	// Return now if an interrupt signal was triggered.
	if interruptRequested(interrupt) {
		return nil
	}

	// Load the node state kept between runs.
	state, err := openStateDB(cfg.DataDir)
	if err != nil {
		log.BtpdLog.Errorf("%v", err)
		return err
	}
	defer func() {
		log.BtpdLog.Infof("Gracefully shutting down the state database...")
		state.Close()
	}()

	var feeEstimator *mempool.FeeEstimator
	if !cfg.NoFeeEstimator {
		feeEstimator, err = state.loadFeeEstimator(cfg.minRelayTxFee)
		if err != nil {
			log.BtpdLog.Errorf("Unable to load fee estimator: %v", err)
			return err
		}
	}

	// Create server and start it.
	server, err := newServer(cfg, feeEstimator)
	if err != nil {
		log.BtpdLog.Errorf("Unable to start server: %v", err)
		return err
	}
	defer func() {
		log.BtpdLog.Infof("Gracefully shutting down the server...")
		server.Stop()

		if feeEstimator != nil {
			if err := state.saveFeeEstimator(feeEstimator); err != nil {
				log.BtpdLog.Errorf("Unable to save fee "+
					"estimator: %v", err)
			}
		}
	}()
	server.Start()

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	return nil
}

func main() {
	// Up some limits.
	if err := limits.SetLimits(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set limits: %v\n", err)
		os.Exit(1)
	}

	// Work around defer not working after os.Exit()
	if err := btcpdMain(); err != nil {
		os.Exit(1)
	}
}
