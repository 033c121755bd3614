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

// Package ruletable is the authoritative peer_id -> slot state machine.
// It keeps the kernel's TC tree in sync with the last triple applied
// per peer, collapsing redundant programmer calls.
package ruletable

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultBandwidthBitsPerSec is substituted whenever a caller passes the
// undefined-bandwidth sentinel.
const DefaultBandwidthBitsPerSec = 1_000_000_000

// UndefinedBandwidth is the sentinel a scenario uses to mean "no
// degradation" for a link's bandwidth.
const UndefinedBandwidth = -1.0

// MaxPeerID bounds peer ids so that handle = 10 + peer_id stays within a
// 16-bit minor number.
const MaxPeerID = 65525

// Endpoint identifies one side of a classifier match: a MAC address
// (MAC classification) or an IPv4 network (IPv4 classification, the
// default); the Add caller's useIPv4 flag selects which. A zero-value MAC/IP
// means "don't filter on this side".
type Endpoint struct {
	MAC    []byte
	IP     []byte
	Prefix int
}

// Programmer is the kernel-programming surface ruletable drives. tcprog.
// Programmer satisfies it; tests substitute MockProgrammer.
type Programmer interface {
	AddRule(peerID int32, useIPv4 bool, src, dst Endpoint) error
	ConfigureRule(peerID int32, bandwidthBitsPerSec uint64, delayUs, jitterUs uint32, lossPercent float64) error
	DeleteRule(peerID int32) error
}

// Triple is the last (bandwidth, delay, loss) applied to a peer.
type Triple struct {
	BandwidthBitsPerSec uint64
	DelayMicros         uint32
	LossPercent         float64
}

type slot struct {
	present bool
	triple  Triple
}

// Observer receives notifications for metrics export. All methods are
// optional; NoopObserver satisfies the interface with no-ops.
type Observer interface {
	RuleApplied()
	DelayApplied(delayMicros float64)
	KernelError()
}

// NoopObserver discards every notification.
type NoopObserver struct{}

// RuleApplied implements Observer.
func (NoopObserver) RuleApplied() {}

// DelayApplied implements Observer.
func (NoopObserver) DelayApplied(float64) {}

// KernelError implements Observer.
func (NoopObserver) KernelError() {}

// Table is the peer_id -> slot map. A zero Table is not usable; use New.
type Table struct {
	mu       sync.Mutex
	prog     Programmer
	slots    map[int32]*slot
	observer Observer
}

// New returns a Table that programs the kernel through prog.
func New(prog Programmer) *Table {
	return &Table{
		prog:     prog,
		slots:    make(map[int32]*slot),
		observer: NoopObserver{},
	}
}

// WithObserver attaches an Observer that receives a notification per
// applied rule, delay value, and kernel error. metrics.Registry
// satisfies Observer through the adapter in package metrics.
func (t *Table) WithObserver(o Observer) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer = o
	return t
}

func clampDelay(delayUs float64) uint32 {
	if delayUs < 0 {
		return 0
	}
	return uint32(delayUs)
}

func clampLoss(lossPercent float64) float64 {
	if lossPercent < 0 {
		return 0
	}
	if lossPercent > 100 {
		return 100
	}
	return lossPercent
}

func resolveBandwidth(bw float64) uint64 {
	if bw == UndefinedBandwidth {
		return DefaultBandwidthBitsPerSec
	}
	if bw < 0 {
		return DefaultBandwidthBitsPerSec
	}
	return uint64(bw)
}

// Add installs the default slot for peer (bw=1Gbit, delay=0, loss=100%)
// and its classifier. Idempotent: a peer already present returns success
// without touching the kernel.
func (t *Table) Add(peerID int32, useIPv4 bool, src, dst Endpoint) error {
	if peerID < 0 || peerID >= MaxPeerID {
		return fmt.Errorf("ruletable: peer id %d out of range [0, %d)", peerID, MaxPeerID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.slots[peerID]; ok && s.present {
		return nil
	}

	if err := t.prog.AddRule(peerID, useIPv4, src, dst); err != nil {
		t.observer.KernelError()
		return fmt.Errorf("ruletable: add peer %d: %w", peerID, err)
	}

	t.slots[peerID] = &slot{
		present: true,
		triple: Triple{
			BandwidthBitsPerSec: DefaultBandwidthBitsPerSec,
			DelayMicros:         0,
			LossPercent:         100,
		},
	}
	log.Debugf("ruletable: added peer %d", peerID)
	return nil
}

// Change applies a new (bandwidth, delay, loss) triple to an existing
// peer. Idempotent up to the triple: a request matching the cached
// triple does not touch the kernel. bandwidth accepts
// UndefinedBandwidth for "no degradation".
func (t *Table) Change(peerID int32, bandwidth float64, delayMicros, lossPercent float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[peerID]
	if !ok || !s.present {
		return fmt.Errorf("ruletable: change on absent peer %d", peerID)
	}

	want := Triple{
		BandwidthBitsPerSec: resolveBandwidth(bandwidth),
		DelayMicros:         clampDelay(delayMicros),
		LossPercent:         clampLoss(lossPercent),
	}
	if want == s.triple {
		return nil
	}

	if err := t.prog.ConfigureRule(peerID, want.BandwidthBitsPerSec, want.DelayMicros, 0, want.LossPercent); err != nil {
		t.observer.KernelError()
		return fmt.Errorf("ruletable: change peer %d: %w", peerID, err)
	}

	s.triple = want
	t.observer.RuleApplied()
	t.observer.DelayApplied(float64(want.DelayMicros))
	return nil
}

// Remove deletes peer's netem qdisc, u32 filter, and HTB class, in that
// order. tcprog.Programmer tolerates ENOENT on each of the three deletes;
// Remove itself only updates the cached state once the programmer call
// succeeds.
func (t *Table) Remove(peerID int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[peerID]
	if !ok || !s.present {
		return nil
	}

	if err := t.prog.DeleteRule(peerID); err != nil {
		return fmt.Errorf("ruletable: remove peer %d: %w", peerID, err)
	}

	delete(t.slots, peerID)
	log.Debugf("ruletable: removed peer %d", peerID)
	return nil
}

// Present reports whether peerID currently has a slot.
func (t *Table) Present(peerID int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[peerID]
	return ok && s.present
}

// Snapshot returns the peer ids and triples currently present, for
// debug dumping (DumpTable) and tests. The returned map is a copy.
func (t *Table) Snapshot() map[int32]Triple {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int32]Triple, len(t.slots))
	for id, s := range t.slots {
		if s.present {
			out[id] = s.triple
		}
	}
	return out
}
