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

package tcprog

import (
	"github.com/florianl/go-tc"
	"github.com/florianl/go-tc/core"
	errors "github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/facebook/meteor/meteor/ruletable"
)

// microsPerSec converts netem's microsecond latency fields.
const microsPerSec = 1_000_000

func (p *Programmer) msg(ifIndex uint32, parent, handle uint32) tc.Msg {
	return tc.Msg{
		Family:  unix.AF_UNSPEC,
		Ifindex: ifIndex,
		Handle:  handle,
		Parent:  parent,
	}
}

func (p *Programmer) addIngressQdisc(ifIndex uint32) error {
	obj := tc.Object{
		Msg: p.msg(ifIndex, tc.HandleIngress, core.BuildHandle(0xffff, 0)),
		Attribute: tc.Attribute{
			Kind: "ingress",
		},
	}
	if err := p.tc.Qdisc().Add(&obj); err != nil {
		return errors.Wrap(err, "adding ingress qdisc")
	}
	return nil
}

func (p *Programmer) addMirredFilter(ifIndex, ifbIndex uint32) error {
	action := tc.Action{
		Kind: "mirred",
		Mirred: &tc.Mirred{
			Parms: &tc.MirredParam{
				Eaction: tc.EgressRedir,
				Ifindex: ifbIndex,
				Action:  tc.ActStolen,
			},
		},
	}
	obj := tc.Object{
		Msg: p.msg(ifIndex, tc.HandleIngress, core.BuildHandle(0xffff, 0)),
		Attribute: tc.Attribute{
			Kind: "u32",
			U32: &tc.U32{
				Sel: &tc.U32Sel{
					Flags: tc.TcU32Terminal,
					Keys:  []tc.U32Key{{Mask: 0x0, Val: 0x0}},
				},
				Actions: &[]*tc.Action{&action},
			},
		},
	}
	if err := p.tc.Filter().Add(&obj); err != nil {
		return errors.Wrap(err, "adding mirred redirect filter")
	}
	return nil
}

func (p *Programmer) addHTBQdisc(ifIndex uint32, parent, handle uint32) error {
	defCls := uint32(HandleDrop & 0xffff)
	obj := tc.Object{
		Msg: p.msg(ifIndex, parent, handle),
		Attribute: tc.Attribute{
			Kind: "htb",
			Htb: &tc.Htb{
				Init: &tc.HtbGlob{
					Version:      3,
					Defcls:       defCls,
					Rate2Quantum: 10,
				},
			},
		},
	}
	if err := p.tc.Qdisc().Add(&obj); err != nil {
		return errors.Wrap(err, "adding htb qdisc")
	}
	return nil
}

func htbClassObject(ifIndex, parent, handle uint32, rateBitsPerSec uint64) tc.Object {
	rate := uint32(rateBitsPerSec / 8)
	return tc.Object{
		Msg: tc.Msg{
			Family:  unix.AF_UNSPEC,
			Ifindex: ifIndex,
			Parent:  parent,
			Handle:  handle,
		},
		Attribute: tc.Attribute{
			Kind: "htb",
			Htb: &tc.Htb{
				Parms: &tc.HtbOpt{
					Rate:    tc.RateSpec{Rate: rate},
					Ceil:    tc.RateSpec{Rate: rate},
					Buffer:  uint32(rate / 8),
					Cbuffer: uint32(rate / 8),
					Quantum: 1514,
				},
			},
		},
	}
}

func (p *Programmer) addHTBClass(ifIndex, parent, handle uint32, rateBitsPerSec uint64) error {
	obj := htbClassObject(ifIndex, parent, handle, rateBitsPerSec)
	if err := p.tc.Class().Add(&obj); err != nil {
		return errors.Wrap(err, "adding htb class")
	}
	return nil
}

func (p *Programmer) changeHTBClass(ifIndex, parent, handle uint32, rateBitsPerSec uint64) error {
	if rateBitsPerSec == 0 {
		rateBitsPerSec = defaultBandwidthBitsPerSec
	}
	obj := htbClassObject(ifIndex, parent, handle, rateBitsPerSec)
	if err := p.tc.Class().Change(&obj); err != nil {
		return errors.Wrap(err, "changing htb class")
	}
	return nil
}

func netemObject(ifIndex, parent, handle uint32, delayUs, jitterUs uint32, lossPercent float64) tc.Object {
	return tc.Object{
		Msg: tc.Msg{
			Family:  unix.AF_UNSPEC,
			Ifindex: ifIndex,
			Parent:  parent,
			Handle:  handle,
		},
		Attribute: tc.Attribute{
			Kind: "netem",
			Netem: &tc.Netem{
				Qopt: tc.NetemQopt{
					Latency: delayUs,
					Jitter:  jitterUs,
					Loss:    LossFraction(lossPercent),
					Limit:   netemLimit,
				},
			},
		},
	}
}

func (p *Programmer) addNetem(ifIndex, parent, handle uint32, delayUs, jitterUs uint32, lossPercent float64) error {
	obj := netemObject(ifIndex, parent, handle, delayUs, jitterUs, lossPercent)
	if err := p.tc.Qdisc().Add(&obj); err != nil {
		return errors.Wrap(err, "adding netem qdisc")
	}
	return nil
}

func (p *Programmer) changeNetem(ifIndex, parent, handle uint32, delayUs, jitterUs uint32, lossPercent float64) error {
	obj := netemObject(ifIndex, parent, handle, delayUs, jitterUs, lossPercent)
	if err := p.tc.Qdisc().Change(&obj); err != nil {
		return errors.Wrap(err, "changing netem qdisc")
	}
	return nil
}

// u32IPv4Keys builds the match keys for a source/destination IPv4 filter.
// Source address sits at offset 12 of the IP header, destination at 16.
func u32IPv4Keys(src, dst ruletable.Endpoint) []tc.U32Key {
	keys := make([]tc.U32Key, 0, 2)
	if src.IP != nil {
		keys = append(keys, tc.U32Key{
			Mask: IPv4Mask(src.Prefix),
			Val:  ipToUint32(src.IP) & IPv4Mask(src.Prefix),
			Off:  12,
		})
	}
	if dst.IP != nil {
		keys = append(keys, tc.U32Key{
			Mask: IPv4Mask(dst.Prefix),
			Val:  ipToUint32(dst.IP) & IPv4Mask(dst.Prefix),
			Off:  16,
		})
	}
	return keys
}

// u32MACKeys builds match keys for a source/destination MAC filter. The
// ethernet addresses sit before the IP offset 0 reference point used by
// the u32 classifier attached to the mirred-redirected ifb qdisc, at
// offsets -8 (source) and -4+2 (destination high/low halves); meteor
// only needs to match the 4 low bytes of each MAC.
func u32MACKeys(src, dst ruletable.Endpoint) []tc.U32Key {
	keys := make([]tc.U32Key, 0, 2)
	if len(src.MAC) == 6 {
		keys = append(keys, tc.U32Key{
			Mask: 0xffffffff,
			Val:  macLow4(src.MAC),
			Off:  -8,
		})
	}
	if len(dst.MAC) == 6 {
		keys = append(keys, tc.U32Key{
			Mask: 0xffffffff,
			Val:  macLow4(dst.MAC),
			Off:  -4,
		})
	}
	return keys
}

func macLow4(mac []byte) uint32 {
	return uint32(mac[2])<<24 | uint32(mac[3])<<16 | uint32(mac[4])<<8 | uint32(mac[5])
}

func (p *Programmer) addIPv4Filter(ifIndex, classHandle uint32, src, dst ruletable.Endpoint) error {
	action := tc.Action{
		Kind: "gact",
		Gact: &tc.Gact{
			Parms: &tc.GactParms{Action: tc.ActPipe},
		},
	}
	obj := tc.Object{
		Msg: p.msg(ifIndex, tc.HandleRoot, 0),
		Attribute: tc.Attribute{
			Kind: "u32",
			U32: &tc.U32{
				Sel: &tc.U32Sel{
					Flags: tc.TcU32Terminal,
					Keys:  u32IPv4Keys(src, dst),
				},
				Classid: &classHandle,
				Actions: &[]*tc.Action{&action},
			},
		},
	}
	if err := p.tc.Filter().Add(&obj); err != nil {
		return errors.Wrap(err, "adding ipv4 classifier")
	}
	return nil
}

func (p *Programmer) addMACFilter(ifIndex, classHandle uint32, src, dst ruletable.Endpoint) error {
	action := tc.Action{
		Kind: "gact",
		Gact: &tc.Gact{
			Parms: &tc.GactParms{Action: tc.ActPipe},
		},
	}
	obj := tc.Object{
		Msg: p.msg(ifIndex, tc.HandleRoot, 0),
		Attribute: tc.Attribute{
			Kind: "u32",
			U32: &tc.U32{
				Sel: &tc.U32Sel{
					Flags: tc.TcU32Terminal,
					Keys:  u32MACKeys(src, dst),
				},
				Classid: &classHandle,
				Actions: &[]*tc.Action{&action},
			},
		},
	}
	if err := p.tc.Filter().Add(&obj); err != nil {
		return errors.Wrap(err, "adding mac classifier")
	}
	return nil
}

func (p *Programmer) deleteQdisc(ifIndex, parent, handle uint32) error {
	obj := tc.Object{Msg: p.msg(ifIndex, parent, handle)}
	if err := p.tc.Qdisc().Delete(&obj); err != nil && !errors.Is(err, unix.ENOENT) {
		return errors.Wrap(err, "deleting qdisc")
	}
	return nil
}

func (p *Programmer) deleteClass(ifIndex, parent, handle uint32) error {
	obj := tc.Object{Msg: p.msg(ifIndex, parent, handle)}
	if err := p.tc.Class().Delete(&obj); err != nil && !errors.Is(err, unix.ENOENT) {
		return errors.Wrap(err, "deleting class")
	}
	return nil
}

func (p *Programmer) deleteFilter(ifIndex, parent, handle uint32) error {
	obj := tc.Object{Msg: p.msg(ifIndex, parent, handle)}
	if err := p.tc.Filter().Delete(&obj); err != nil && !errors.Is(err, unix.ENOENT) {
		return errors.Wrap(err, "deleting filter")
	}
	return nil
}
