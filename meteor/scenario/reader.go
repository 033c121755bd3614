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

package scenario

import (
	"encoding/binary"
	"fmt"
	"io"

	version "github.com/hashicorp/go-version"
)

// SupportedVersions is the scenario format version range meteor knows how
// to replay. Scenario files produced by a deltaQ generator outside this
// range are rejected at startup.
var SupportedVersions = mustConstraint(">= 0.1.0, < 3.0.0")

func mustConstraint(c string) version.Constraints {
	cs, err := version.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// Reader decodes a little-endian, length-prefixed scenario stream. It
// performs no filtering: records are returned in the order written.
type Reader struct {
	r         io.ReadSeeker
	headerLen int64
}

// NewReader wraps r. The underlying stream must support Seek so that loop
// mode can rewind to the data start.
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{r: r}
}

// ReadHeader decodes the scenario header and records its length so that
// RewindToDataStart can return here later.
func (rd *Reader) ReadHeader() (*Header, error) {
	var h Header
	if err := binary.Read(rd.r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrInputFormat, err)
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	rd.headerLen = int64(binary.Size(h))

	return &h, nil
}

// CheckVersion rejects a header whose major.minor.subminor falls outside
// SupportedVersions.
func CheckVersion(h *Header) error {
	v, err := version.NewVersion(h.VersionString())
	if err != nil {
		return fmt.Errorf("%w: unparsable scenario version %q: %v", ErrInputFormat, h.VersionString(), err)
	}
	if !SupportedVersions.Check(v) {
		return fmt.Errorf("scenario version %s does not satisfy %s", v, SupportedVersions)
	}
	return nil
}

// ReadTimeRecord decodes the next (timestamp, record count) pair.
func (rd *Reader) ReadTimeRecord() (*TimeRecord, error) {
	var t TimeRecord
	if err := binary.Read(rd.r, binary.LittleEndian, &t); err != nil {
		return nil, fmt.Errorf("%w: reading time record: %v", ErrInputFormat, err)
	}
	return &t, nil
}

// ReadRecords decodes exactly n LinkRecords.
func (rd *Reader) ReadRecords(n int32) ([]LinkRecord, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative record count %d", ErrInputFormat, n)
	}
	recs := make([]LinkRecord, n)
	for i := range recs {
		if err := binary.Read(rd.r, binary.LittleEndian, &recs[i]); err != nil {
			return nil, fmt.Errorf("%w: reading record %d/%d: %v", ErrInputFormat, i, n, err)
		}
	}
	return recs, nil
}

// RewindToDataStart seeks back to the first byte following the header, for
// loop mode and for restart handling.
func (rd *Reader) RewindToDataStart() error {
	if rd.headerLen == 0 {
		return fmt.Errorf("%w: ReadHeader must be called before rewinding", ErrInputFormat)
	}
	if _, err := rd.r.Seek(rd.headerLen, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewinding to data start: %v", ErrInputFormat, err)
	}
	return nil
}
