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

// Package tcprog programs kernel traffic control (qdisc/class/filter)
// through rtnetlink. It owns the IFB redirection plumbing and
// the HTB+netem rule tree that ruletable drives.
package tcprog

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"github.com/florianl/go-tc"
	"github.com/florianl/go-tc/core"
	"github.com/jsimonetti/rtnetlink/rtnl"
	errors "github.com/pkg/errors"

	"github.com/facebook/meteor/meteor/ruletable"
)

const (
	// HandleRoot is the HTB root class, 1:1, carrying the default
	// bandwidth ceiling. Peer classes are attached to the qdisc 1:0, not
	// under this class.
	HandleRoot = 0x1<<16 | 0x1
	// HandleDrop is the fallback class all unmatched traffic lands in.
	HandleDrop = 0x1<<16 | 0xffff
	// handleOffset is added to a peer id to derive its minor number.
	handleOffset = 10

	ethPAll = 0x0003
	ethPIP  = 0x0800

	defaultBandwidthBitsPerSec = 1_000_000_000
	dropRateBitsPerSec         = 1_000_000
	fullLossPercent            = 100
	netemLimit                 = 1000
)

// PeerHandle derives the HTB minor / netem major number for a peer id.
func PeerHandle(peerID int32) uint16 {
	return uint16(peerID + handleOffset)
}

// Programmer applies TC state for one physical interface and its IFB
// shadow. It is the only component in this repo that talks rtnetlink and
// go-tc directly; ruletable drives it through the Programmer interface so
// that it can be mocked in tests.
type Programmer struct {
	ifaceName string
	ifbName   string
	ifIndex   uint32
	ifbIndex  uint32

	rt *rtnl.Conn
	tc *tc.Tc
}

// Open resolves ifaceName's index, creates (or reuses) its IFB shadow
// device ifbName, and opens the rtnetlink and go-tc sockets used for the
// lifetime of the Programmer.
func Open(ifaceName, ifbName string) (*Programmer, error) {
	rt, err := rtnl.Dial(nil)
	if err != nil {
		return nil, errors.Wrap(err, "can't establish rtnetlink connection")
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		rt.Close()
		return nil, errors.Wrapf(err, "resolving interface %q", ifaceName)
	}

	sock, err := tc.Open(&tc.Config{})
	if err != nil {
		rt.Close()
		return nil, errors.Wrap(err, "can't establish tc netlink connection")
	}

	p := &Programmer{
		ifaceName: ifaceName,
		ifbName:   ifbName,
		ifIndex:   uint32(iface.Index),
		rt:        rt,
		tc:        sock,
	}

	if err := p.ensureIFB(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// Close releases the netlink sockets.
func (p *Programmer) Close() error {
	var firstErr error
	if p.tc != nil {
		if err := p.tc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.rt != nil {
		if err := p.rt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Programmer) ensureIFB() error {
	link, err := p.rt.LinkByName(p.ifbName)
	if err != nil {
		link, err = p.rt.LinkCreate(&rtnl.LinkOptions{
			Name: p.ifbName,
			Type: "ifb",
		})
		if err != nil {
			return errors.Wrapf(err, "creating IFB device %q", p.ifbName)
		}
	}
	if link.Flags&net.FlagUp == 0 {
		if err := p.rt.LinkUp(link); err != nil {
			return errors.Wrapf(err, "bringing up IFB device %q", p.ifbName)
		}
	}
	p.ifbIndex = uint32(link.Index)
	return nil
}

// teardownIFB removes the IFB device. Called from Teardown; Init keeps
// an existing IFB device and only replaces its root qdisc.
func (p *Programmer) teardownIFB() error {
	link, err := p.rt.LinkByName(p.ifbName)
	if err != nil {
		return nil
	}
	if err := p.rt.LinkDelete(link); err != nil {
		return errors.Wrapf(err, "deleting IFB device %q", p.ifbName)
	}
	return nil
}

// Init tears down any stale rule tree and installs the base skeleton:
// an ingress qdisc + mirred redirect on the physical interface, and an
// HTB root (1:0) with a default 1Gbit passthrough class (1:1) and a
// 100%-loss drop class (1:65535) on the IFB.
func (p *Programmer) Init() error {
	if err := p.deleteQdisc(p.ifIndex, tc.HandleIngress, 0); err != nil {
		return err
	}
	if err := p.addIngressQdisc(p.ifIndex); err != nil {
		return err
	}
	if err := p.addMirredFilter(p.ifIndex, p.ifbIndex); err != nil {
		return err
	}

	if err := p.deleteQdisc(p.ifbIndex, tc.HandleRoot, 0); err != nil {
		return err
	}
	if err := p.addHTBQdisc(p.ifbIndex, tc.HandleRoot, core.BuildHandle(0x1, 0x0)); err != nil {
		return err
	}
	if err := p.addHTBClass(p.ifbIndex, core.BuildHandle(0x1, 0x0), HandleRoot, defaultBandwidthBitsPerSec); err != nil {
		return err
	}
	if err := p.addHTBClass(p.ifbIndex, core.BuildHandle(0x1, 0x0), HandleDrop, dropRateBitsPerSec); err != nil {
		return err
	}
	return p.addNetem(p.ifbIndex, HandleDrop, core.BuildHandle(0xffff, 0x0), 0, 0, fullLossPercent)
}

// Teardown removes the ingress qdisc from the physical interface and
// deletes the IFB device, undoing everything Init and AddRule installed.
func (p *Programmer) Teardown() error {
	if err := p.deleteQdisc(p.ifIndex, tc.HandleIngress, 0); err != nil {
		return err
	}
	return p.teardownIFB()
}

// AddRule installs a new peer's HTB class, classifier, and (100%-loss)
// netem leaf. peerID derives the handle; src/dst select the classifier.
// A zero-value dst means "match on src only" (broadcast/any destination).
func (p *Programmer) AddRule(peerID int32, useIPv4 bool, src, dst ruletable.Endpoint) error {
	minor := PeerHandle(peerID)
	classHandle := core.BuildHandle(0x1, uint32(minor))

	if err := p.addHTBClass(p.ifbIndex, core.BuildHandle(0x1, 0x0), classHandle, defaultBandwidthBitsPerSec); err != nil {
		return err
	}

	if useIPv4 {
		if err := p.addIPv4Filter(p.ifbIndex, classHandle, src, dst); err != nil {
			return err
		}
	} else {
		if err := p.addMACFilter(p.ifbIndex, classHandle, src, dst); err != nil {
			return err
		}
	}

	netemHandle := core.BuildHandle(uint32(minor), 0x0)
	return p.addNetem(p.ifbIndex, classHandle, netemHandle, 0, 0, fullLossPercent)
}

// ConfigureRule changes an existing peer's bandwidth, delay, jitter and
// loss without touching its classifier. bandwidthBitsPerSec of 0 means
// "leave unbounded" (UndefinedBandwidth sentinel, mapped to the default
// 1Gbit ceiling by ruletable before calling here).
func (p *Programmer) ConfigureRule(peerID int32, bandwidthBitsPerSec uint64, delayUs, jitterUs uint32, lossPercent float64) error {
	minor := PeerHandle(peerID)
	classHandle := core.BuildHandle(0x1, uint32(minor))
	netemHandle := core.BuildHandle(uint32(minor), 0x0)

	if err := p.changeHTBClass(p.ifbIndex, core.BuildHandle(0x1, 0x0), classHandle, bandwidthBitsPerSec); err != nil {
		return err
	}
	return p.changeNetem(p.ifbIndex, classHandle, netemHandle, delayUs, jitterUs, lossPercent)
}

// DeleteRule removes a peer's netem leaf, classifier, and HTB class.
func (p *Programmer) DeleteRule(peerID int32) error {
	minor := PeerHandle(peerID)
	classHandle := core.BuildHandle(0x1, uint32(minor))
	netemHandle := core.BuildHandle(uint32(minor), 0x0)

	if err := p.deleteQdisc(p.ifbIndex, classHandle, netemHandle); err != nil {
		return err
	}
	if err := p.deleteFilter(p.ifbIndex, tc.HandleRoot, classHandle); err != nil {
		return err
	}
	return p.deleteClass(p.ifbIndex, tc.HandleRoot, classHandle)
}

// LossFraction converts a [0,100] percentage into netem's 32-bit loss
// encoding: round(fraction * (2^32 - 1)).
func LossFraction(lossPercent float64) uint32 {
	frac := lossPercent / 100.0
	if frac <= 0 {
		return 0
	}
	if frac >= 1 {
		return math.MaxUint32
	}
	return uint32(math.Round(frac * float64(math.MaxUint32)))
}

// IPv4Mask returns the big-endian /prefix netmask used by u32 IP filters.
func IPv4Mask(prefix int) uint32 {
	if prefix <= 0 {
		return 0
	}
	if prefix >= 32 {
		return math.MaxUint32
	}
	return uint32(math.MaxUint32) << (32 - prefix)
}

// ipToUint32 converts an IPv4 address into the big-endian uint32 u32
// filters expect.
func ipToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	return binary.BigEndian.Uint32(v4)
}
