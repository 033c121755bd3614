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

// meteor replays a binary deltaQ scenario file against the kernel's TC
// stack, continuously reshaping one node's view of the network as
// authored by the scenario.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/meteor/meteor/deadline"
	"github.com/facebook/meteor/meteor/player"
	"github.com/facebook/meteor/meteor/ruletable"
	"github.com/facebook/meteor/meteor/scenario"
	"github.com/facebook/meteor/meteor/tcprog"
	"github.com/facebook/meteor/meteor/topology"
)

func main() {
	var (
		scenarioPath   string
		settingsPath   string
		connectionPath string
		selfID         int
		ifaceName      string
		modeFlag       string
		useMAC         bool
		loop           bool
		daemonize      bool
		verbose        bool
		dump           bool
	)

	flag.StringVar(&scenarioPath, "q", "", "Path to the binary deltaQ scenario file")
	flag.StringVar(&settingsPath, "s", "", "Path to the node settings JSON file")
	flag.IntVar(&selfID, "i", -1, "This node's id in the topology")
	flag.StringVar(&ifaceName, "I", "", "Physical interface to shape")
	flag.StringVar(&modeFlag, "m", "ingress", "Replay mode: ingress or bridge")
	flag.StringVar(&connectionPath, "c", "", "Bridge mode connection list (required when -m bridge)")
	flag.BoolVar(&useMAC, "M", false, "Classify by MAC address instead of IPv4")
	flag.BoolVar(&loop, "l", false, "Loop the scenario instead of exiting at the end")
	flag.BoolVar(&daemonize, "d", false, "Include caller locations in log lines; the process is not detached and stays in the foreground")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&dump, "dump", false, "Periodically dump the rule table to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "meteor: replay a network quality scenario against this node's TC state\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if verbose {
		log.SetLevel(log.DebugLevel)
	}
	if daemonize {
		log.SetReportCaller(true)
	}

	if scenarioPath == "" || settingsPath == "" || selfID < 0 || ifaceName == "" {
		fmt.Fprintln(os.Stderr, "meteor: -q, -s, -i and -I are required")
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(scenarioPath)
	if err != nil {
		log.Fatalf("opening scenario file: %v", err)
	}
	defer f.Close()

	topo, err := topology.Load(settingsPath)
	if err != nil {
		log.Fatalf("loading topology: %v", err)
	}

	prog, err := tcprog.Open(ifaceName, fmt.Sprintf("ifb%d", selfID))
	if err != nil {
		log.Fatalf("opening tc programmer: %v", err)
	}
	defer prog.Close()

	if err := prog.Init(); err != nil {
		log.Fatalf("initializing tc tree: %v", err)
	}

	table := ruletable.New(prog)
	if err := installDefaultSlots(table, topo, int32(selfID), !useMAC); err != nil {
		log.Fatalf("installing default slots: %v", err)
	}

	restart := make(chan struct{}, 1)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	go func() {
		for range sigCh {
			log.Info("received SIGUSR1, restarting scenario")
			select {
			case restart <- struct{}{}:
			default:
			}
		}
	}()

	sched := deadline.New(restart)
	reader := scenario.NewReader(f)

	opts := []player.Option{player.WithLoop(loop)}
	if strings.EqualFold(modeFlag, "bridge") {
		if connectionPath == "" {
			log.Fatal("bridge mode requires -c")
		}
		connFile, err := os.Open(connectionPath)
		if err != nil {
			log.Fatalf("opening connection list: %v", err)
		}
		defer connFile.Close()
		conns, err := player.ParseConnections(connFile)
		if err != nil {
			log.Fatalf("parsing connection list: %v", err)
		}
		opts = append(opts, player.WithBridgeConnections(conns))
	}

	p := player.New(reader, topo, table, sched, int32(selfID), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if dump {
		go dumpPeriodically(ctx, table)
	}

	if err := p.Run(ctx); err != nil {
		log.Fatalf("replaying scenario: %v", err)
	}
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

func dumpPeriodically(ctx context.Context, table *ruletable.Table) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			table.DumpTable(os.Stderr)
		}
	}
}
