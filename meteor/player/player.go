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

// Package player drives scenario replay: for each tick it
// reads the due LinkRecords, selects the ones bound for this node, and
// pushes the resulting (bandwidth, delay, loss) triples into a
// ruletable.Table.
package player

import (
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/facebook/meteor/meteor/deadline"
	"github.com/facebook/meteor/meteor/ruletable"
	"github.com/facebook/meteor/meteor/scenario"
	"github.com/facebook/meteor/meteor/topology"
)

// Mode selects how incoming LinkRecords are routed to rule slots.
type Mode int

const (
	// ModeIngress selects records by to_id == selfID.
	ModeIngress Mode = iota
	// ModeBridge consults a (src_id, dst_id) -> slot mapping instead.
	ModeBridge
)

// Table is the subset of ruletable.Table the player drives.
type Table interface {
	Change(peerID int32, bandwidth, delayMicros, lossPercent float64) error
}

// Player replays one scenario stream against a Table.
type Player struct {
	reader *scenario.Reader
	topo   *topology.Topology
	table  Table
	sched  *deadline.Scheduler
	selfID int32
	mode   Mode
	loop   bool

	// conns maps (src_id, dst_id) -> slot index for bridge mode.
	conns map[connKey]int32
}

type connKey struct {
	src, dst int32
}

// Option configures a Player at construction time.
type Option func(*Player)

// WithLoop enables loop mode: playback restarts from t=0 after the last
// tick instead of exiting.
func WithLoop(loop bool) Option {
	return func(p *Player) { p.loop = loop }
}

// WithBridgeConnections sets the bridge-mode (src, dst) -> slot mapping
// and switches the player into ModeBridge.
func WithBridgeConnections(conns map[[2]int32]int32) Option {
	return func(p *Player) {
		p.mode = ModeBridge
		p.conns = make(map[connKey]int32, len(conns))
		for k, v := range conns {
			p.conns[connKey{k[0], k[1]}] = v
		}
	}
}

// New builds a Player for selfID, replaying from reader, filtering and
// programming through table, paced by sched against topo.
func New(reader *scenario.Reader, topo *topology.Topology, table Table, sched *deadline.Scheduler, selfID int32, opts ...Option) *Player {
	p := &Player{
		reader: reader,
		topo:   topo,
		table:  table,
		sched:  sched,
		selfID: selfID,
		mode:   ModeIngress,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the driver loop until the scenario is exhausted (and loop
// mode is off) or ctx is canceled.
func (p *Player) Run(ctx context.Context) error {
	header, err := p.reader.ReadHeader()
	if err != nil {
		return fmt.Errorf("player: %w", err)
	}
	if int(header.InterfaceCount) != p.topo.Count() {
		return fmt.Errorf("player: %w: scenario declares %d interfaces, topology has %d",
			scenario.ErrInputFormat, header.InterfaceCount, p.topo.Count())
	}
	if err := scenario.CheckVersion(header); err != nil {
		return fmt.Errorf("player: %w", err)
	}

	for {
		if err := p.playOnce(ctx, header); err != nil {
			return err
		}
		if !p.loop {
			return nil
		}
		if err := p.reader.RewindToDataStart(); err != nil {
			return fmt.Errorf("player: restarting loop: %w", err)
		}
		p.sched.Reset()
	}
}

func (p *Player) playOnce(ctx context.Context, header *scenario.Header) error {
	for t := int32(0); t < header.TimeRecordCount; t++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("player: %w", err)
		}
		tr, err := p.reader.ReadTimeRecord()
		if err != nil {
			return fmt.Errorf("player: reading time record %d: %w", t, err)
		}
		recs, err := p.reader.ReadRecords(tr.RecordCount)
		if err != nil {
			return fmt.Errorf("player: reading records for t=%d: %w", t, err)
		}

		if t == 0 {
			p.sched.Reset()
		} else {
			outcome := p.sched.WaitUntil(ctx, float64(tr.Time))
			deadline.LogOutcome(os.Stderr, outcome, float64(tr.Time))

			switch outcome {
			case deadline.Missed:
				continue
			case deadline.Restart:
				if err := p.reader.RewindToDataStart(); err != nil {
					return fmt.Errorf("player: restart seek: %w", err)
				}
				p.sched.Reset()
				return p.playOnce(ctx, header)
			}
		}

		p.applyRecords(recs)
	}
	return nil
}

func (p *Player) applyRecords(recs []scenario.LinkRecord) {
	for i := range recs {
		rec := &recs[i]

		var slot int32
		switch p.mode {
		case ModeBridge:
			idx, ok := p.conns[connKey{rec.FromID, rec.ToID}]
			if !ok {
				continue
			}
			slot = idx
		default:
			if !rec.AppliesTo(p.selfID) {
				continue
			}
			slot = rec.FromID
		}

		bw := float64(rec.Bandwidth)
		delayUs := rec.DelayMicros()
		lossPct := rec.LossPercent()

		if err := p.table.Change(slot, bw, delayUs, lossPct); err != nil {
			log.Errorf("player: applying rule for peer %d: %v", slot, err)
		}
	}
}

// ParseConnections parses a plaintext "src dst" per line connection
// list used by bridge mode, assigning slot indices in file order.
func ParseConnections(r io.Reader) (map[[2]int32]int32, error) {
	var src, dst int32
	conns := make(map[[2]int32]int32)
	var idx int32
	for {
		n, err := fmt.Fscan(r, &src, &dst)
		if n == 0 || err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("player: parsing connection list: %w", err)
		}
		conns[[2]int32{src, dst}] = idx
		idx++
	}
	return conns, nil
}
