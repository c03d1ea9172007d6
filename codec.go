package lww

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MarshalJSON encodes an entry as [timestamp, data].
func (e Entry[V]) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(data)+24)
	buf = append(buf, '[')
	buf = strconv.AppendInt(buf, e.Timestamp, 10)
	buf = append(buf, ',')
	buf = append(buf, data...)
	buf = append(buf, ']')
	return buf, nil
}

// UnmarshalJSON decodes an entry from [timestamp, data].
func (e *Entry[V]) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	err := json.Unmarshal(b, &pair)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: want [timestamp, data], got %d elements", ErrMalformedRecord, len(pair))
	}
	ts, err := decodeTimestamp(pair[0])
	if err != nil {
		return err
	}
	var data V
	err = json.Unmarshal(pair[1], &data)
	if err != nil {
		return fmt.Errorf("%w: data: %v", ErrMalformedRecord, err)
	}
	e.Timestamp = ts
	e.Data = data
	return nil
}

// MarshalJSON encodes the state as {"entries": {...}, "deletedKeys": {...}}.
func (s State[V]) MarshalJSON() ([]byte, error) {
	out := struct {
		Entries     map[string]Entry[V] `json:"entries"`
		DeletedKeys map[string]int64    `json:"deletedKeys"`
	}{s.Entries, s.DeletedKeys}
	if out.Entries == nil {
		out.Entries = map[string]Entry[V]{}
	}
	if out.DeletedKeys == nil {
		out.DeletedKeys = map[string]int64{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a state strictly: any malformed record fails the whole state.
func (s *State[V]) UnmarshalJSON(b []byte) error {
	raw, err := decodeSnapshot(b)
	if err != nil {
		return err
	}
	n := newState[V]()
	for key, rec := range raw.entries {
		var e Entry[V]
		err = json.Unmarshal(rec, &e)
		if err != nil {
			return fmt.Errorf("entry %q: %w", key, err)
		}
		n.Entries[key] = e
	}
	for key, rec := range raw.deletedKeys {
		ts, err := decodeTimestamp(rec)
		if err != nil {
			return fmt.Errorf("tombstone %q: %w", key, err)
		}
		n.DeletedKeys[key] = ts
	}
	*s = *n
	return nil
}

type rawSnapshot struct {
	entries     map[string]json.RawMessage
	deletedKeys map[string]json.RawMessage
}

func decodeSnapshot(b []byte) (*rawSnapshot, error) {
	var top map[string]json.RawMessage
	err := json.Unmarshal(b, &top)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	entries, err := decodeObject(top, "entries")
	if err != nil {
		return nil, err
	}
	deletedKeys, err := decodeObject(top, "deletedKeys")
	if err != nil {
		return nil, err
	}
	return &rawSnapshot{entries, deletedKeys}, nil
}

func decodeObject(top map[string]json.RawMessage, field string) (map[string]json.RawMessage, error) {
	b, ok := top[field]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedSnapshot, field)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("%w: %q is not an object", ErrMalformedSnapshot, field)
	}
	var m map[string]json.RawMessage
	err := json.Unmarshal(b, &m)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedSnapshot, field, err)
	}
	return m, nil
}

// decodeTimestamp accepts any JSON number with an integral value that fits
// in an int64, so 1000, 1e3 and 1000.0 are the same timestamp.
func decodeTimestamp(b json.RawMessage) (int64, error) {
	b = bytes.TrimSpace(b)
	notInteger := fmt.Errorf("%w: timestamp %s is not an integer", ErrMalformedRecord, b)
	if len(b) == 0 || b[0] == '"' {
		return 0, notInteger
	}
	var n json.Number
	err := json.Unmarshal(b, &n)
	if err != nil || n == "" {
		return 0, notInteger
	}
	if ts, err := n.Int64(); err == nil {
		return ts, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, notInteger
	}
	return int64(f), nil
}

// SkippedRecord describes an imported entry or tombstone that was not applied.
type SkippedRecord struct {
	Key       string
	Tombstone bool
	Err       error
}

// ImportReport summarizes an Import.
type ImportReport struct {
	// Applied counts entries and tombstones that changed the collection.
	Applied int
	Skipped []SkippedRecord
}

func (r *ImportReport) skip(log Logger, key string, tombstone bool, err error) {
	kind := "entry"
	if tombstone {
		kind = "tombstone"
	}
	log.Warn("skipping imported "+kind, "key", key, "err", err)
	r.Skipped = append(r.Skipped, SkippedRecord{key, tombstone, err})
}

type importEntry[V any] struct {
	key   string
	entry Entry[V]
	err   error
}

type importTombstone struct {
	key string
	ts  int64
	err error
}

// Export serializes the live entries and tombstones (not the pending updates).
func (c *Collection[V]) Export() ([]byte, error) {
	return json.Marshal(State[V]{c.entries, c.deletedKeys})
}

// Import merges a snapshot produced by Export. If clearFirst, the collection
// is emptied first. A payload without an "entries" and a "deletedKeys" object
// is rejected with ErrMalformedSnapshot before anything changes; individual
// records that are malformed, invalid or stale are skipped and reported.
func (c *Collection[V]) Import(data []byte, clearFirst bool) (*ImportReport, error) {
	raw, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	entries := make([]importEntry[V], 0, len(raw.entries))
	for key, rec := range raw.entries {
		ie := importEntry[V]{key: key}
		ie.err = json.Unmarshal(rec, &ie.entry)
		entries = append(entries, ie)
	}
	tombstones := make([]importTombstone, 0, len(raw.deletedKeys))
	for key, rec := range raw.deletedKeys {
		it := importTombstone{key: key}
		it.ts, it.err = decodeTimestamp(rec)
		tombstones = append(tombstones, it)
	}
	return c.apply(entries, tombstones, clearFirst), nil
}

// ImportState is Import for an already-decoded snapshot.
func (c *Collection[V]) ImportState(s *State[V], clearFirst bool) (*ImportReport, error) {
	if s == nil || s.Entries == nil || s.DeletedKeys == nil {
		return nil, fmt.Errorf("%w: missing entries or deletedKeys", ErrMalformedSnapshot)
	}
	entries := make([]importEntry[V], 0, len(s.Entries))
	for key, e := range s.Entries {
		entries = append(entries, importEntry[V]{key: key, entry: e})
	}
	tombstones := make([]importTombstone, 0, len(s.DeletedKeys))
	for key, ts := range s.DeletedKeys {
		tombstones = append(tombstones, importTombstone{key: key, ts: ts})
	}
	return c.apply(entries, tombstones, clearFirst), nil
}

// apply replays entries through Add and then tombstones. A tombstone for a
// key that has a live entry goes through Remove, whose outcome is ignored;
// any other tombstone is written as is.
func (c *Collection[V]) apply(entries []importEntry[V], tombstones []importTombstone, clearFirst bool) *ImportReport {
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	sort.Slice(tombstones, func(i, j int) bool { return tombstones[i].key < tombstones[j].key })
	if clearFirst {
		c.Clear()
	}
	report := &ImportReport{}
	for _, ie := range entries {
		if ie.err != nil {
			report.skip(c.log, ie.key, false, ie.err)
			continue
		}
		ok, err := c.Add(ie.key, ie.entry.Timestamp, ie.entry.Data)
		if err != nil {
			report.skip(c.log, ie.key, false, err)
			continue
		}
		if !ok {
			report.skip(c.log, ie.key, false, fmt.Errorf("%w: timestamp %d", ErrStale, ie.entry.Timestamp))
			continue
		}
		report.Applied++
	}
	for _, it := range tombstones {
		if it.err == nil && it.ts <= 0 {
			it.err = fmt.Errorf("%w: timestamp %d is not positive", ErrMalformedRecord, it.ts)
		}
		if it.err != nil {
			report.skip(c.log, it.key, true, it.err)
			continue
		}
		if _, live := c.entries[it.key]; live {
			if c.mergeRemove(it.key, it.ts) {
				report.Applied++
			}
			continue
		}
		c.putTombstone(it.key, it.ts)
		report.Applied++
	}
	return report
}

// ExportProto serializes the same snapshot as Export as a protobuf Struct.
func (c *Collection[V]) ExportProto() ([]byte, error) {
	b, err := c.Export()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	err = json.Unmarshal(b, &m)
	if err != nil {
		return nil, fmt.Errorf("unmarshal export: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("struct: %w", err)
	}
	return proto.Marshal(s)
}

// ImportProto is Import for a snapshot produced by ExportProto.
func (c *Collection[V]) ImportProto(b []byte, clearFirst bool) (*ImportReport, error) {
	var s structpb.Struct
	err := proto.Unmarshal(b, &s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	j, err := json.Marshal(s.AsMap())
	if err != nil {
		return nil, fmt.Errorf("marshal struct: %w", err)
	}
	return c.Import(j, clearFirst)
}
