package lww

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportFormat(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	c.Add("a", 100, "x")
	c.Add("b", 110, "y")
	c.Remove("b", 120)
	b, err := c.Export()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"entries": {"a": [100, "x"]},
		"deletedKeys": {"b": 120}
	}`, string(b))

	empty, err := newTestCollection().Export()
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":{},"deletedKeys":{}}`, string(empty))
}

func TestExportExcludesNothingPending(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	c.Add("a", 1, "x")
	c.ClearUpdates(nil)
	b, err := c.Export()
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":{"a":[1,"x"]},"deletedKeys":{}}`, string(b))
}

func TestImportRoundTrip(t *testing.T) {
	t.Parallel()
	type point struct {
		X, Y int
	}
	src := New[point](&Config[point]{Logger: NopLogger()})
	src.Add("p1", 3, point{1, 2})
	src.Add("p2", 4, point{3, 4})
	src.Remove("p2", 5)
	src.Remove("p3", 6)
	b, err := src.Export()
	require.NoError(t, err)

	dst := New[point](&Config[point]{Logger: NopLogger()})
	report, err := dst.Import(b, true)
	require.NoError(t, err)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 3, report.Applied)
	assert.Equal(t, src.ExportState(), dst.ExportState())

	h1, _ := src.Hash()
	h2, _ := dst.Hash()
	assert.Equal(t, h1, h2)
}

func TestImportMalformedSnapshot(t *testing.T) {
	t.Parallel()
	for _, payload := range []string{
		`not json`,
		`[]`,
		`{"deletedKeys": {}}`,
		`{"entries": {}}`,
		`{"entries": [], "deletedKeys": {}}`,
		`{"entries": {}, "deletedKeys": null}`,
		`{"entries": "x", "deletedKeys": {}}`,
		`{"entries": {}, "deletedKeys": 4}`,
	} {
		c := newTestCollection()
		c.Add("keep", 1, "me")
		c.ClearUpdates(nil)
		notified := 0
		c.Subscribe(func() { notified++ })
		report, err := c.Import([]byte(payload), true)
		require.ErrorIs(t, err, ErrMalformedSnapshot, payload)
		require.Nil(t, report)
		require.Equal(t, 0, notified, payload)
		requireEntry(t, c, "keep", 1, "me")
		require.Empty(t, c.Updates().Entries)
	}
}

func TestImportStateMalformed(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	_, err := c.ImportState(nil, true)
	require.ErrorIs(t, err, ErrMalformedSnapshot)
	_, err = c.ImportState(&State[string]{Entries: map[string]Entry[string]{}}, true)
	require.ErrorIs(t, err, ErrMalformedSnapshot)
	_, err = c.ImportState(&State[string]{DeletedKeys: map[string]int64{}}, true)
	require.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestImportSkipsBadRecords(t *testing.T) {
	t.Parallel()
	c := New[string](&Config[string]{
		Logger:        NopLogger(),
		ValidateEntry: func(key, data string) bool { return data != "bad" },
	})
	report, err := c.Import([]byte(`{
		"entries": {
			"good": [5, "ok"],
			"short": [1],
			"notanumber": ["a", "b"],
			"fraction": [1.5, "q"],
			"wrongtype": [1, 2],
			"invalid": [1, "bad"]
		},
		"deletedKeys": {
			"zero": 0,
			"negative": -3,
			"fractional": 1.5,
			"text": "str",
			"fine": 9
		}
	}`), true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)

	skipped := map[string]SkippedRecord{}
	for _, s := range report.Skipped {
		skipped[s.Key] = s
	}
	assert.Len(t, skipped, 9)
	for _, key := range []string{"short", "notanumber", "fraction", "wrongtype"} {
		assert.False(t, skipped[key].Tombstone, key)
		assert.ErrorIs(t, skipped[key].Err, ErrMalformedRecord, key)
	}
	assert.ErrorIs(t, skipped["invalid"].Err, ErrInvalidEntry)
	for _, key := range []string{"zero", "negative", "fractional", "text"} {
		assert.True(t, skipped[key].Tombstone, key)
		assert.ErrorIs(t, skipped[key].Err, ErrMalformedRecord, key)
	}

	requireEntry(t, c, "good", 5, "ok")
	ts, ok := c.DeletedAt("fine")
	require.True(t, ok)
	assert.Equal(t, int64(9), ts)
	assert.Equal(t, []string{"good"}, c.Keys())
}

func TestImportMergesWithoutClearing(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	c.Add("a", 10, "local")
	c.Add("b", 1, "local")
	report, err := c.Import([]byte(`{
		"entries": {"a": [5, "remote"], "b": [2, "remote"], "c": [1, "remote"]},
		"deletedKeys": {}
	}`), false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "a", report.Skipped[0].Key)
	assert.True(t, errors.Is(report.Skipped[0].Err, ErrStale))

	requireEntry(t, c, "a", 10, "local")
	requireEntry(t, c, "b", 2, "remote")
	requireEntry(t, c, "c", 1, "remote")
}

func TestImportClearFirst(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	c.Add("a", 10, "local")
	c.Remove("z", 10)
	_, err := c.Import([]byte(`{"entries": {"b": [1, "remote"]}, "deletedKeys": {}}`), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, c.Keys())
	_, ok := c.DeletedAt("z")
	assert.False(t, ok)
}

func TestImportConflictingTombstone(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	report, err := c.Import([]byte(`{
		"entries": {"older": [5, "v"], "newer": [9, "v"]},
		"deletedKeys": {"older": 7, "newer": 7}
	}`), true)
	require.NoError(t, err)
	assert.Empty(t, report.Skipped)

	_, live := c.Lookup("older")
	assert.False(t, live)
	ts, _ := c.DeletedAt("older")
	assert.Equal(t, int64(7), ts)

	requireEntry(t, c, "newer", 9, "v")
	_, deleted := c.DeletedAt("newer")
	assert.False(t, deleted)
}

func TestImportTombstoneWithoutEntryIsWrittenAsIs(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	c.Remove("k", 10)
	_, err := c.Import([]byte(`{"entries": {}, "deletedKeys": {"k": 5}}`), false)
	require.NoError(t, err)
	ts, ok := c.DeletedAt("k")
	require.True(t, ok)
	assert.Equal(t, int64(5), ts)
}

func TestImportRecordsPendingUpdates(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	_, err := c.Import([]byte(`{"entries": {"a": [1, "x"]}, "deletedKeys": {"b": 2}}`), true)
	require.NoError(t, err)
	u := c.Updates()
	assert.Equal(t, map[string]Entry[string]{"a": {1, "x"}}, u.Entries)
	assert.Equal(t, map[string]int64{"b": 2}, u.DeletedKeys)
}

func TestImportState(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	report, err := c.ImportState(&State[string]{
		Entries:     map[string]Entry[string]{"a": {3, "x"}, "b": {4, "y"}},
		DeletedKeys: map[string]int64{"b": 5, "c": 0, "d": 6},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Applied)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, SkippedRecord{"c", true, report.Skipped[0].Err}, report.Skipped[0])
	assert.Equal(t, []string{"a"}, c.Keys())
}

func TestStateJSON(t *testing.T) {
	t.Parallel()
	var s State[int]
	err := json.Unmarshal([]byte(`{"entries": {"a": [1, 2]}, "deletedKeys": {"b": 3}}`), &s)
	require.NoError(t, err)
	assert.Equal(t, State[int]{
		Entries:     map[string]Entry[int]{"a": {1, 2}},
		DeletedKeys: map[string]int64{"b": 3},
	}, s)

	err = json.Unmarshal([]byte(`{"entries": {"a": [1]}, "deletedKeys": {}}`), &s)
	assert.ErrorIs(t, err, ErrMalformedRecord)
	err = json.Unmarshal([]byte(`{"entries": {}}`), &s)
	assert.ErrorIs(t, err, ErrMalformedSnapshot)

	b, err := json.Marshal(State[int]{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries":{},"deletedKeys":{}}`, string(b))
}

func TestUpdatesJSONFeedsClearUpdates(t *testing.T) {
	t.Parallel()
	c := New[map[string]interface{}](&Config[map[string]interface{}]{Logger: NopLogger()})
	c.Add("doc", 1, map[string]interface{}{"title": "hi"})
	b, err := json.Marshal(c.Updates())
	require.NoError(t, err)

	var ack State[map[string]interface{}]
	require.NoError(t, json.Unmarshal(b, &ack))
	c.ClearUpdates(&ack)
	assert.Empty(t, c.Updates().Entries)
}

func TestProtoRoundTrip(t *testing.T) {
	t.Parallel()
	src := New[map[string]interface{}](&Config[map[string]interface{}]{Logger: NopLogger()})
	src.Add("doc", 1700000000000, map[string]interface{}{"title": "hi", "n": 2.5})
	src.Remove("gone", 1700000000001)
	b, err := src.ExportProto()
	require.NoError(t, err)

	dst := New[map[string]interface{}](&Config[map[string]interface{}]{Logger: NopLogger()})
	report, err := dst.ImportProto(b, true)
	require.NoError(t, err)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, src.ExportState(), dst.ExportState())

	_, err = dst.ImportProto([]byte{0xff, 0xff}, true)
	assert.ErrorIs(t, err, ErrMalformedSnapshot)
}

func TestImportIntegralTimestamps(t *testing.T) {
	t.Parallel()
	c := newTestCollection()
	report, err := c.Import([]byte(`{
		"entries": {"a": [1e3, "x"], "b": [1000.0, "y"], "c": [2.5e0, "z"]},
		"deletedKeys": {"d": 2e3, "e": 1e19, "f": 7.25}
	}`), false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Applied)
	requireEntry(t, c, "a", 1000, "x")
	requireEntry(t, c, "b", 1000, "y")
	ts, ok := c.DeletedAt("d")
	require.True(t, ok)
	assert.Equal(t, int64(2000), ts)

	skipped := map[string]bool{}
	for _, s := range report.Skipped {
		assert.ErrorIs(t, s.Err, ErrMalformedRecord, s.Key)
		skipped[s.Key] = true
	}
	assert.Equal(t, map[string]bool{"c": true, "e": true, "f": true}, skipped)
}

func TestEntryTimestampEncodings(t *testing.T) {
	t.Parallel()
	for _, good := range []string{`[1700000000000,"x"]`, `[1.7e12,"x"]`, `[ 1700000000000.0 ,"x"]`} {
		var e Entry[string]
		require.NoError(t, json.Unmarshal([]byte(good), &e), good)
		assert.Equal(t, Entry[string]{1700000000000, "x"}, e, good)
	}
	for _, bad := range []string{`["5","x"]`, `[null,"x"]`, `[true,"x"]`, `[0.5,"x"]`, `[9223372036854775808,"x"]`} {
		var e Entry[string]
		assert.ErrorIs(t, json.Unmarshal([]byte(bad), &e), ErrMalformedRecord, bad)
	}
}
