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

package control

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/facebook/meteor/meteor/ruletable"
)

// DefaultPort is the live control listener port.
const DefaultPort = 10000

// applier is the mutation surface the control server drives. A
// ruletable.Table satisfies it; tests substitute a fake.
type applier interface {
	Add(peerID int32, useIPv4 bool, src, dst ruletable.Endpoint) error
	Change(peerID int32, bandwidth, delayMicros, lossPercent float64) error
	Remove(peerID int32) error
}

// Server accepts control connections and applies their requests
// serially to a single applier.
type Server struct {
	listenAddr string
	table      applier
	useIPv4    bool

	mu chan struct{} // 1-buffered mutex: only one request mutates the table at a time
}

// NewServer builds a control Server bound to addr (host:port, port
// defaults to DefaultPort if addr has none) driving table. useIPv4
// selects how an add request's address field is parsed into the
// peer's classifier endpoint: an IPv4 address when true, a MAC
// address when false.
func NewServer(addr string, table applier, useIPv4 bool) *Server {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	s := &Server{
		listenAddr: addr,
		table:      table,
		useIPv4:    useIPv4,
		mu:         make(chan struct{}, 1),
	}
	s.mu <- struct{}{}
	return s
}

// Run listens and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("control: listening on %s: %w", s.listenAddr, err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	eg.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("control: accept: %w", err)
			}
			go s.handle(conn)
		}
	})

	return eg.Wait()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		req, err := DecodeRequest(line)
		if err != nil {
			log.Errorf("control: %v", err)
			continue
		}
		s.apply(req)
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("control: reading connection: %v", err)
	}
}

// apply serializes mutations against the table: each add creates the
// peer's slot before configuring it, each update and delete act on an
// existing slot.
func (s *Server) apply(req *Request) {
	<-s.mu
	defer func() { s.mu <- struct{}{} }()

	for idStr, params := range req.Add {
		s.applyAdd(idStr, params)
	}
	for idStr, params := range req.Update {
		s.applyLinkParams(idStr, params)
	}
	for _, idStr := range req.Delete {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			log.Errorf("control: delete: invalid peer id %q: %v", idStr, err)
			continue
		}
		if err := s.table.Remove(int32(id)); err != nil {
			log.Errorf("control: delete peer %d: %v", id, err)
		}
	}
	for k, v := range req.Opts {
		log.Debugf("control: opts %s=%s", k, v)
	}
}

func (s *Server) applyAdd(idStr string, params LinkParams) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		log.Errorf("control: add: invalid peer id %q: %v", idStr, err)
		return
	}
	src, err := parseEndpoint(s.useIPv4, params.Address)
	if err != nil {
		log.Errorf("control: add peer %d: %v", id, err)
		return
	}
	if err := s.table.Add(int32(id), s.useIPv4, src, ruletable.Endpoint{}); err != nil {
		log.Errorf("control: add peer %d: %v", id, err)
		return
	}
	s.applyLinkParams(idStr, params)
}

func (s *Server) applyLinkParams(idStr string, params LinkParams) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		log.Errorf("control: invalid peer id %q: %v", idStr, err)
		return
	}
	if err := s.table.Change(int32(id), float64(params.Bandwidth), float64(params.Delay)*1_000, float64(params.LossRate)*100); err != nil {
		log.Errorf("control: configuring peer %d: %v", id, err)
	}
}

// parseEndpoint turns an add request's address field into the
// classifier endpoint for its peer. An empty address yields a
// zero-value Endpoint, which matches every packet on the class.
func parseEndpoint(useIPv4 bool, address string) (ruletable.Endpoint, error) {
	if address == "" {
		return ruletable.Endpoint{}, nil
	}
	if useIPv4 {
		ip := net.ParseIP(address).To4()
		if ip == nil {
			return ruletable.Endpoint{}, fmt.Errorf("invalid IPv4 address %q", address)
		}
		return ruletable.Endpoint{IP: ip, Prefix: 32}, nil
	}
	mac, err := net.ParseMAC(address)
	if err != nil {
		return ruletable.Endpoint{}, fmt.Errorf("invalid MAC address %q: %w", address, err)
	}
	return ruletable.Endpoint{MAC: mac}, nil
}
