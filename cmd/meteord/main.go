/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// meteord is the long-running counterpart to meteor: it programs the TC
// tree for every peer in a topology and then holds it open, taking live
// add/update/delete mutations over a control connection instead of
// replaying a scenario file.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/facebook/meteor/meteor/control"
	"github.com/facebook/meteor/meteor/metrics"
	"github.com/facebook/meteor/meteor/ruletable"
	"github.com/facebook/meteor/meteor/tcprog"
	"github.com/facebook/meteor/meteor/topology"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "c", "", "Path to the meteord JSON config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "meteord: hold open a live-controllable TC tree for this node\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "meteord: -c is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cfg.Interface == "" || cfg.Settings == "" {
		log.Fatal("config must set interface and settings")
	}

	topo, err := topology.Load(cfg.Settings)
	if err != nil {
		log.Fatalf("loading topology: %v", err)
	}

	prog, err := tcprog.Open(cfg.Interface, fmt.Sprintf("ifb%d", cfg.SelfID))
	if err != nil {
		log.Fatalf("opening tc programmer: %v", err)
	}
	defer prog.Close()

	if err := prog.Init(); err != nil {
		log.Fatalf("initializing tc tree: %v", err)
	}

	registry := metrics.NewRegistry()
	table := ruletable.New(prog).WithObserver(registry)

	if err := installDefaultSlots(table, topo, cfg.SelfID, !cfg.UseMAC); err != nil {
		log.Fatalf("installing default slots: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	eg, ctx := errgroup.WithContext(ctx)

	server := control.NewServer(cfg.ListenAddr, table, !cfg.UseMAC)
	eg.Go(func() error {
		return server.Run(ctx)
	})

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: registry.Handler()}
	eg.Go(func() error {
		return metricsSrv.ListenAndServe()
	})
	eg.Go(func() error {
		<-ctx.Done()
		return metricsSrv.Close()
	})

	if err := sdNotifyReady(); err != nil {
		log.Warnf("sd_notify: %v", err)
	}

	log.Infof("meteord listening for control connections on %s, metrics on %s", cfg.ListenAddr, cfg.MetricsAddr)

	if err := eg.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalf("meteord: %v", err)
	}

	if err := prog.Teardown(); err != nil {
		log.Errorf("tearing down tc tree: %v", err)
	}
}

// sdNotifyReady tells systemd the TC tree is programmed and meteord is
// ready to take control connections.
func sdNotifyReady() error {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if !supported && err != nil {
		return err
	} else if !supported {
		log.Warning("sd_notify not supported")
	} else {
		log.Info("successfully sent sd_notify event")
	}
	return nil
}

func installDefaultSlots(table *ruletable.Table, topo *topology.Topology, selfID int32, useIPv4 bool) error {
	for _, node := range topo.List() {
		if node.ID == selfID {
			continue
		}
		src := ruletable.Endpoint{Prefix: node.Prefix}
		if useIPv4 {
			src.IP = node.IPv4
		} else {
			src.MAC = node.MAC
		}
		if err := table.Add(node.ID, useIPv4, src, ruletable.Endpoint{}); err != nil {
			return fmt.Errorf("peer %d: %w", node.ID, err)
		}
	}
	return nil
}
