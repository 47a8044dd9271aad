package listkeeper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "data.json"), nil)
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := newTestStore(t)
	store.Load()
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, store.ChannelIDs())
}

func TestStoreLoadMalformedFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.path, []byte("{not json"), 0o644))
	store.Load()
	assert.Equal(t, 0, store.Len())
}

func TestStoreLoadBareArray(t *testing.T) {
	store := newTestStore(t)
	raw := `[["Frostbite", "Aeldra", "2", 1700000000.5], ["Oathbreaker", "Tam", "1"]]`
	require.NoError(t, os.WriteFile(store.path, []byte(raw), 0o644))

	store.Load()
	require.Equal(t, 2, store.Len())

	entries := store.Entries()
	assert.Equal(t, "Frostbite", entries[0].Item)
	assert.Equal(t, "Aeldra", entries[0].Owner)
	assert.Equal(t, "2", entries[0].Cost)
	assert.Equal(t, 1700000000.5, entries[0].UpdatedAt)

	// three-element row: timestamp backfilled with zero
	assert.Equal(t, float64(0), entries[1].UpdatedAt)
	assert.Empty(t, store.ChannelIDs())
}

func TestStoreLoadDocument(t *testing.T) {
	store := newTestStore(t)
	raw := `{
        "list_data": [["Frostbite", "Aeldra", 3, 1700000000]],
        "state_data": {
            "channel_list_states": {
                "123": {
                    "message_ids": ["900", "901"],
                    "default_sort_key_for_display": "sort_config_cost"
                },
                "456": {
                    "message_ids": [],
                    "default_sort_key_for_display": "bogus"
                }
            }
        }
    }`
	require.NoError(t, os.WriteFile(store.path, []byte(raw), 0o644))

	store.Load()
	require.Equal(t, 1, store.Len())

	// numeric cost coerced to string form
	assert.Equal(t, "3", store.Entries()[0].Cost)

	state := store.ChannelState("123")
	assert.Equal(t, []string{"900", "901"}, state.MessageIDs)
	assert.Equal(t, SortByCost, state.DefaultSortKey)

	// invalid persisted sort keys fall back to the default policy
	assert.Equal(t, SortByItem, store.ChannelState("456").DefaultSortKey)
}

func TestStoreSaveRoundTrip(t *testing.T) {
	store := newTestStore(t)
	store.Load()
	store.append(Entry{Item: "Frostbite", Owner: "Aeldra", Cost: "1", UpdatedAt: 1700000000})
	state := store.ChannelState("123")
	state.MessageIDs = []string{"900"}
	state.DefaultSortKey = SortByRecent
	store.SetLastChange("Frostbite", "Aeldra", "1")

	require.NoError(t, store.Save())

	// no temp file left behind
	_, err := os.Stat(store.path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reloaded := NewStore(store.path, nil)
	reloaded.Load()
	require.Equal(t, 1, reloaded.Len())
	assert.Equal(t, store.Entries(), reloaded.Entries())
	assert.Equal(t, []string{"900"}, reloaded.ChannelState("123").MessageIDs)
	assert.Equal(t, SortByRecent, reloaded.ChannelState("123").DefaultSortKey)

	// the last-change slot is in-memory only
	assert.True(t, reloaded.LastChange().Empty())
}

func TestStoreSaveEmptyList(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save())

	data, err := os.ReadFile(store.path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, "[]", string(doc["list_data"]))
}

func TestEntryMarshalPositional(t *testing.T) {
	e := Entry{Item: "Frostbite", Owner: "Aeldra", Cost: "2", UpdatedAt: 1700000000.5}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `["Frostbite", "Aeldra", "2", 1700000000.5]`, string(data))
}

func TestEntryFromRowErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		row  []any
	}{
		{"too short", []any{"Frostbite", "Aeldra"}},
		{"non-string item", []any{1.0, "Aeldra", "2"}},
		{"non-string owner", []any{"Frostbite", 2.0, "2"}},
		{"bad cost type", []any{"Frostbite", "Aeldra", true}},
		{"bad timestamp", []any{"Frostbite", "Aeldra", "2", "yesterday"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := entryFromRow(tc.row)
			assert.Error(t, err)
		})
	}
}

func TestStoreFindIndexCaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	store.append(Entry{Item: "Frostbite", Owner: "Aeldra", Cost: "1"})
	assert.Equal(t, 0, store.findIndex("frostbite"))
	assert.Equal(t, 0, store.findIndex("FROSTBITE"))
	assert.Equal(t, -1, store.findIndex("Oathbreaker"))
}
