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

// Package scenario decodes the binary deltaQ scenario stream: a header
// followed by time-indexed groups of per-link quality records.
package scenario

import "fmt"

// UndefinedBandwidth is the sentinel value meaning "no degradation"; the
// Rule Table maps it onto the configured default bandwidth.
const UndefinedBandwidth float32 = -1.0

// SignatureSize is the length in bytes of the header signature field.
const SignatureSize = 4

// Header is the fixed-layout binary scenario header.
type Header struct {
	Signature       [SignatureSize]byte
	Major           int32
	Minor           int32
	Subminor        int32
	Revision        int32
	InterfaceCount  int32
	TimeRecordCount int32
}

// Validate checks the header invariants: N >= 2, T >= 1.
func (h *Header) Validate() error {
	if h.InterfaceCount < 2 {
		return fmt.Errorf("%w: interface_count must be >= 2, got %d", ErrInputFormat, h.InterfaceCount)
	}
	if h.TimeRecordCount < 1 {
		return fmt.Errorf("%w: time_record_count must be >= 1, got %d", ErrInputFormat, h.TimeRecordCount)
	}
	return nil
}

// VersionString renders the major.minor.subminor triple for diagnostics and
// for the hashicorp/go-version compatibility check.
func (h *Header) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", h.Major, h.Minor, h.Subminor)
}

// TimeRecord is one scenario tick: a timestamp and the count of LinkRecords
// that follow it.
type TimeRecord struct {
	Time        float32
	RecordCount int32
}

// Validate checks 0 <= R <= N*(N-1).
func (t *TimeRecord) Validate(interfaceCount int32) error {
	maxRecords := interfaceCount * (interfaceCount - 1)
	if t.RecordCount < 0 || t.RecordCount > maxRecords {
		return fmt.Errorf("%w: record_count %d out of range [0, %d]", ErrInputFormat, t.RecordCount, maxRecords)
	}
	return nil
}

// LinkRecord describes the quality of one directed link at one scenario
// instant.
type LinkRecord struct {
	FromID             int32
	ToID               int32
	FrameErrorRate     float32
	NumRetransmissions float32
	Standard           int32
	OperatingRate      float32
	Bandwidth          float32
	LossRate           float32
	Delay              float32
}

// Validate checks from_id != to_id and both in [0, N).
func (r *LinkRecord) Validate(interfaceCount int32) error {
	if r.FromID == r.ToID {
		return fmt.Errorf("%w: from_id == to_id (%d)", ErrInputFormat, r.FromID)
	}
	if r.FromID < 0 || r.FromID >= interfaceCount {
		return fmt.Errorf("%w: from_id %d out of range [0, %d)", ErrInputFormat, r.FromID, interfaceCount)
	}
	if r.ToID < 0 || r.ToID >= interfaceCount {
		return fmt.Errorf("%w: to_id %d out of range [0, %d)", ErrInputFormat, r.ToID, interfaceCount)
	}
	return nil
}

// AppliesTo reports whether this record is "applicable to this node" in
// ingress mode: to_id equals the configured self id.
func (r *LinkRecord) AppliesTo(selfID int32) bool {
	return r.ToID == selfID
}

// DelayMicros converts the record's delay (seconds) to the microseconds
// netem expects.
func (r *LinkRecord) DelayMicros() float64 {
	return float64(r.Delay) * 1e6
}

// LossPercent converts the record's loss rate ([0,1]) to a percent, matching
// the convention the TC Programmer expects at its boundary.
func (r *LinkRecord) LossPercent() float64 {
	return float64(r.LossRate) * 100
}
