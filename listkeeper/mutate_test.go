package listkeeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMutator(t *testing.T) (*Mutator, *Store) {
	t.Helper()
	store := newTestStore(t)
	store.Load()
	m := NewMutator(store, nil)
	m.clock = func() time.Time { return time.Unix(1700000000, 0) }
	return m, store
}

func TestUpsertAutoNewItem(t *testing.T) {
	m, store := newTestMutator(t)

	result := m.UpsertAuto("Frostbite", "Aeldra")
	assert.True(t, result.Created)
	assert.Equal(t, "1", result.Cost)

	require.Equal(t, 1, store.Len())
	e := store.Entries()[0]
	assert.Equal(t, "Frostbite", e.Item)
	assert.Equal(t, "Aeldra", e.Owner)
	assert.Equal(t, "1", e.Cost)
	assert.Equal(t, float64(1700000000), e.UpdatedAt)

	lc := store.LastChange()
	assert.Equal(t, LastChange{Item: "Frostbite", Owner: "Aeldra", Cost: "1"}, lc)
}

func TestUpsertAutoExistingItem(t *testing.T) {
	m, store := newTestMutator(t)
	m.UpsertAuto("Frostbite", "Aeldra")
	m.UpsertAuto("Oathbreaker", "Tam")

	// case-insensitive match, owner replaced, cost incremented, entry
	// moved to the end of store order
	result := m.UpsertAuto("frostbite", "Bo")
	assert.False(t, result.Created)
	assert.Equal(t, "2", result.Cost)

	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Oathbreaker", entries[0].Item)
	assert.Equal(t, "Frostbite", entries[1].Item)
	assert.Equal(t, "Bo", entries[1].Owner)
}

func TestUpsertNonNumericCostResets(t *testing.T) {
	m, store := newTestMutator(t)
	store.append(Entry{Item: "Frostbite", Owner: "Aeldra", Cost: "priceless"})

	result := m.UpsertAuto("Frostbite", "Bo")
	assert.Equal(t, "1", result.Cost)
}

func TestUpsertAdminExplicitCost(t *testing.T) {
	m, store := newTestMutator(t)
	m.UpsertAuto("Frostbite", "Aeldra")

	cost := 7
	result := m.UpsertAdmin("Frostbite", "Bo", &cost)
	assert.Equal(t, "7", result.Cost)
	assert.Equal(t, "7", store.Entries()[0].Cost)
}

func TestUpsertPersists(t *testing.T) {
	m, store := newTestMutator(t)
	m.UpsertAuto("Frostbite", "Aeldra")

	reloaded := NewStore(store.path, nil)
	reloaded.Load()
	require.Equal(t, 1, reloaded.Len())
	assert.Equal(t, "Frostbite", reloaded.Entries()[0].Item)
}

func TestDelete(t *testing.T) {
	m, store := newTestMutator(t)
	m.UpsertAuto("Frostbite", "Aeldra")
	m.UpsertAuto("Oathbreaker", "Tam")

	assert.False(t, m.Delete("Nonexistent"))
	assert.True(t, m.Delete("FROSTBITE"))
	assert.Equal(t, 1, store.Len())

	// deleting the item that wasn't last-changed keeps the slot
	_, ok := m.ReannounceLast()
	assert.True(t, ok)

	assert.True(t, m.Delete("Oathbreaker"))
	_, ok = m.ReannounceLast()
	assert.False(t, ok)
}

func TestBulkReplaceValid(t *testing.T) {
	m, store := newTestMutator(t)
	m.UpsertAuto("Frostbite", "Aeldra")
	m.UpsertAuto("Oathbreaker", "Tam")

	report, err := m.BulkReplace(
		`[["Frostbite", "Bo", "3", 1690000000], ["Dirk", "Tam", 2]]`,
	)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Entries)
	assert.True(t, report.Changed())
	assert.Contains(t, report.Transferred, "Frostbite: Aeldra -> Bo")
	assert.Contains(t, report.Transferred, "Dirk: (none) -> Tam")

	entries := store.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, float64(1690000000), entries[0].UpdatedAt)
	// rows without a timestamp get the import time
	assert.Equal(t, float64(1700000000), entries[1].UpdatedAt)
	// numeric cost coerced
	assert.Equal(t, "2", entries[1].Cost)
}

func TestBulkReplaceCountChanges(t *testing.T) {
	m, _ := newTestMutator(t)
	m.UpsertAuto("Frostbite", "Aeldra")
	m.UpsertAuto("Oathbreaker", "Aeldra")

	report, err := m.BulkReplace(
		`[["Frostbite", "Aeldra", "1"], ["Oathbreaker", "Bo", "1"]]`,
	)
	require.NoError(t, err)
	assert.Contains(t, report.CountChanges, "Aeldra: 2 uniques -> 1 uniques")
	assert.Contains(t, report.CountChanges, "Bo: 0 uniques -> 1 uniques")
}

func TestBulkReplaceNoChanges(t *testing.T) {
	m, _ := newTestMutator(t)
	m.UpsertAuto("Frostbite", "Aeldra")

	report, err := m.BulkReplace(`[["Frostbite", "Aeldra", "9"]]`)
	require.NoError(t, err)
	assert.False(t, report.Changed())
}

func TestBulkReplaceInvalidLeavesStoreUntouched(t *testing.T) {
	m, store := newTestMutator(t)
	m.UpsertAuto("Frostbite", "Aeldra")

	for name, payload := range map[string]string{
		"not json":      `{nope`,
		"not an array":  `{"a": 1}`,
		"row not array": `[42]`,
		"row too short": `[["Frostbite", "Aeldra"]]`,
		"bad item type": `[[1, "Aeldra", "1"]]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.BulkReplace(payload)
			require.Error(t, err)
			require.Equal(t, 1, store.Len())
			assert.Equal(t, "Frostbite", store.Entries()[0].Item)
		})
	}

	// a later row failing must not leave earlier rows applied
	_, err := m.BulkReplace(`[["Dirk", "Tam", "1"], ["bad"]]`)
	require.Error(t, err)
	assert.Equal(t, "Frostbite", store.Entries()[0].Item)
}

func TestReannounceLast(t *testing.T) {
	m, _ := newTestMutator(t)
	_, ok := m.ReannounceLast()
	assert.False(t, ok)

	m.UpsertAuto("Frostbite", "Aeldra")
	lc, ok := m.ReannounceLast()
	require.True(t, ok)
	assert.Equal(t, "Frostbite", lc.Item)
}
