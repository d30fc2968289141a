// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"

	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/vectorstore"
)

// Records are encoded as a flat sequence of MUS fields in declaration
// order. Times are stored as Unix microseconds, so the zero time
// round-trips as zero.

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	return encode(func(e *encoder) { e.uint64(uint64(id)) })
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	d := &decoder{bs: data}
	id := core.ID(d.uint64())
	return id, d.result()
}

// MarshalIngestedDocument serializes an IngestedDocument to bytes.
func MarshalIngestedDocument(doc *IngestedDocument) []byte {
	return encode(func(e *encoder) {
		e.string(doc.SourceID)
		e.string(doc.SourceType)
		e.string(doc.Title)
		e.strings(doc.Path)
		e.string(doc.SourceURL)
		e.int64(doc.UpdatedAt)
		e.string(doc.Content)
		e.uint64(uint64(doc.ContentHash))
		e.time(doc.IngestedAt)
	})
}

// UnmarshalIngestedDocument deserializes an IngestedDocument from bytes.
func UnmarshalIngestedDocument(data []byte) (*IngestedDocument, error) {
	d := &decoder{bs: data}
	doc := &IngestedDocument{
		SourceID:    d.string(),
		SourceType:  d.string(),
		Title:       d.string(),
		Path:        d.strings(),
		SourceURL:   d.string(),
		UpdatedAt:   d.int64(),
		Content:     d.string(),
		ContentHash: core.ID(d.uint64()),
		IngestedAt:  d.time(),
	}
	if err := d.result(); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalSyncJob serializes a SyncJob to bytes.
func MarshalSyncJob(job *core.SyncJob) []byte {
	return encode(func(e *encoder) {
		e.uint64(uint64(job.Id))
		e.string(string(job.Mode))
		e.string(string(job.Status))
		e.int(job.ItemsTotal)
		e.int(job.ItemsProcessed)
		e.string(job.Error)
		e.time(job.StartedAt)
		e.time(job.CompletedAt)
		e.time(job.UpdatedAt)
	})
}

// UnmarshalSyncJob deserializes a SyncJob from bytes.
func UnmarshalSyncJob(data []byte) (*core.SyncJob, error) {
	d := &decoder{bs: data}
	job := &core.SyncJob{
		Id:             core.ID(d.uint64()),
		Mode:           core.SyncMode(d.string()),
		Status:         core.SyncStatus(d.string()),
		ItemsTotal:     d.int(),
		ItemsProcessed: d.int(),
		Error:          d.string(),
		StartedAt:      d.time(),
		CompletedAt:    d.time(),
		UpdatedAt:      d.time(),
	}
	if err := d.result(); err != nil {
		return nil, err
	}
	return job, nil
}

// MarshalPoint serializes a vector point to bytes.
func MarshalPoint(p *vectorstore.Point) []byte {
	return encode(func(e *encoder) {
		e.string(p.ID)
		e.float32s(p.Vector)
		e.string(p.Payload.Text)
		e.string(p.Payload.DocumentID)
		e.string(p.Payload.CategoryID)
		e.string(p.Payload.Title)
	})
}

// UnmarshalPoint deserializes a vector point from bytes.
func UnmarshalPoint(data []byte) (*vectorstore.Point, error) {
	d := &decoder{bs: data}
	p := &vectorstore.Point{
		ID:     d.string(),
		Vector: d.float32s(),
		Payload: vectorstore.Payload{
			Text:       d.string(),
			DocumentID: d.string(),
			CategoryID: d.string(),
			Title:      d.string(),
		},
	}
	if err := d.result(); err != nil {
		return nil, err
	}
	return p, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *Checkpoint) []byte {
	return encode(func(e *encoder) {
		e.string(checkpoint.ProcessorType)
		e.string(checkpoint.LastKey)
		e.int(checkpoint.Processed)
		e.time(checkpoint.UpdatedAt)
	})
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*Checkpoint, error) {
	d := &decoder{bs: data}
	checkpoint := &Checkpoint{
		ProcessorType: d.string(),
		LastKey:       d.string(),
		Processed:     d.int(),
		UpdatedAt:     d.time(),
	}
	if err := d.result(); err != nil {
		return nil, err
	}
	return checkpoint, nil
}

// encoder runs twice per record: once with a nil buffer to size it, then
// again to fill an exactly sized buffer.
type encoder struct {
	bs []byte
	n  int
}

func encode(fn func(e *encoder)) []byte {
	sizer := &encoder{}
	fn(sizer)
	e := &encoder{bs: make([]byte, sizer.n)}
	fn(e)
	return e.bs
}

func (e *encoder) string(v string) {
	if e.bs == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int(v int) {
	if e.bs == nil {
		e.n += varint.Int.Size(v)
		return
	}
	e.n += varint.Int.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int64(v int64) {
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) uint64(v uint64) {
	if e.bs == nil {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) time(t time.Time) {
	e.int64(t.UnixMicro())
}

func (e *encoder) strings(vs []string) {
	e.int(len(vs))
	for _, v := range vs {
		e.string(v)
	}
}

func (e *encoder) float32s(vs []float32) {
	e.int(len(vs))
	for _, v := range vs {
		if e.bs == nil {
			e.n += raw.Float32.Size(v)
			continue
		}
		e.n += raw.Float32.Marshal(v, e.bs[e.n:])
	}
}

// decoder reads fields in order and keeps the first error.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) result() error {
	if d.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return nil
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int() int {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) time() time.Time {
	micros := d.int64()
	if d.err != nil {
		return time.Time{}
	}
	t := time.UnixMicro(micros).UTC()
	if t.IsZero() {
		return time.Time{}
	}
	return t
}

// length reads a slice length and rejects values the remaining input
// cannot hold.
func (d *decoder) length(elemSize int) int {
	l := d.int()
	if d.err != nil {
		return 0
	}
	if l < 0 || l*elemSize > len(d.bs)-d.n {
		d.err = ErrTruncatedData
		return 0
	}
	return l
}

func (d *decoder) strings() []string {
	l := d.length(1)
	if d.err != nil || l == 0 {
		return nil
	}
	vs := make([]string, l)
	for i := range vs {
		vs[i] = d.string()
	}
	return vs
}

func (d *decoder) float32s() []float32 {
	l := d.length(4)
	if d.err != nil || l == 0 {
		return nil
	}
	vs := make([]float32, l)
	for i := range vs {
		if d.err != nil {
			return nil
		}
		v, n, err := raw.Float32.Unmarshal(d.bs[d.n:])
		d.n += n
		d.err = err
		vs[i] = v
	}
	return vs
}
