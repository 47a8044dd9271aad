package listkeeper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// MutationResult describes the outcome of an upsert.
type MutationResult struct {
	// Created is true when the item didn't exist before.
	Created bool
	Item    string
	Owner   string
	Cost    string
}

// BulkReplaceReport is the informational diff produced by a bulk import:
// which items changed owner, and which owners' totals changed.
type BulkReplaceReport struct {
	Transferred  []string
	CountChanges []string
	Entries      int
}

// Changed reports whether the import moved any item or changed any count.
func (r BulkReplaceReport) Changed() bool {
	return len(r.Transferred) > 0 || len(r.CountChanges) > 0
}

// Mutator applies all entry mutations to the store. Every mutation stamps
// the entry's update time, moves it to the end of the store order, records
// the last-change slot and persists. Persistence failures are logged, not
// surfaced: the in-memory state stays authoritative.
type Mutator struct {
	store  *Store
	logger *slog.Logger
	clock  func() time.Time
}

// NewMutator returns a Mutator over the given store.
func NewMutator(store *Store, logger *slog.Logger) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{
		store:  store,
		logger: logger.With(loggerNameKey, "mutator"),
		clock:  time.Now,
	}
}

// UpsertAuto applies an automated forge event: an existing item (matched
// case-insensitively) gets its owner replaced and cost incremented by one
// (reset to "1" if the stored cost isn't numeric); a new item starts at
// cost "1". Always succeeds.
func (m *Mutator) UpsertAuto(item string, owner string) MutationResult {
	return m.upsert(item, owner, nil)
}

// UpsertAdmin is UpsertAuto with an optional explicit cost overriding the
// increment.
func (m *Mutator) UpsertAdmin(item string, owner string, explicitCost *int) MutationResult {
	return m.upsert(item, owner, explicitCost)
}

func (m *Mutator) upsert(item string, owner string, explicitCost *int) MutationResult {
	now := float64(m.clock().UnixNano()) / 1e9

	cost := "1"
	if explicitCost != nil {
		cost = strconv.Itoa(*explicitCost)
	}

	idx := m.store.findIndex(item)
	if idx >= 0 {
		e := m.store.remove(idx)
		e.Owner = owner
		if explicitCost == nil {
			if n, err := strconv.Atoi(e.Cost); err == nil {
				cost = strconv.Itoa(n + 1)
			} else {
				cost = "1"
			}
		}
		e.Cost = cost
		e.UpdatedAt = now
		m.store.append(e)
	} else {
		m.store.append(Entry{Item: item, Owner: owner, Cost: cost, UpdatedAt: now})
	}

	m.store.SetLastChange(item, owner, cost)
	m.save()

	result := MutationResult{
		Created: idx < 0,
		Item:    item,
		Owner:   owner,
		Cost:    cost,
	}
	m.logger.Info("upserted entry", "created", result.Created, "item", item,
		"owner", owner, "cost", cost)
	return result
}

// Delete removes the entry matching the item name case-insensitively and
// reports whether anything was removed. Deleting the last-changed item
// clears the last-change slot.
func (m *Mutator) Delete(item string) bool {
	idx := m.store.findIndex(item)
	if idx < 0 {
		return false
	}
	removed := m.store.remove(idx)
	if lc := m.store.LastChange(); !lc.Empty() && strings.EqualFold(lc.Item, item) {
		m.store.ClearLastChange()
	}
	m.save()
	m.logger.Info("deleted entry", "item", removed.Item, "owner", removed.Owner)
	return true
}

// BulkReplace atomically replaces the entire entry list from a serialized
// JSON array of positional rows. The payload is validated in full before
// any assignment: a malformed payload leaves the store untouched and
// returns a descriptive error. On success it returns a diff of owner
// transfers and per-owner count changes against the previous list.
func (m *Mutator) BulkReplace(rawJSON string) (*BulkReplaceReport, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(rawJSON), &rows); err != nil {
		return nil, fmt.Errorf("invalid JSON: payload must be a JSON array")
	}

	now := float64(m.clock().Unix())
	newEntries := make([]Entry, 0, len(rows))
	for i, raw := range rows {
		var row []any
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf(
				"row %d is invalid: each row must be a list of at least 3 elements [item, owner, cost]",
				i,
			)
		}
		e, hadTimestamp, err := entryFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d is invalid: %s", i, err)
		}
		if !hadTimestamp {
			e.UpdatedAt = now
		}
		newEntries = append(newEntries, e)
	}

	previous := m.store.Entries()
	m.store.setEntries(newEntries)
	m.save()

	report := diffEntries(previous, newEntries)
	m.logger.Info(
		"replaced entry list",
		"entries", len(newEntries),
		"transfers", len(report.Transferred),
	)
	return report, nil
}

// ReannounceLast returns the last recorded change, and whether there is
// one to announce.
func (m *Mutator) ReannounceLast() (LastChange, bool) {
	lc := m.store.LastChange()
	return lc, !lc.Empty()
}

func (m *Mutator) save() {
	if err := m.store.Save(); err != nil {
		m.logger.Error("error persisting store after mutation", tint.Err(err))
	}
}

// diffEntries reports every item whose owner changed between the two
// lists, and every affected owner whose total count changed.
func diffEntries(previous []Entry, current []Entry) *BulkReplaceReport {
	oldOwners := make(map[string]string, len(previous))
	oldCounts := make(map[string]int, len(previous))
	for _, e := range previous {
		oldOwners[e.Item] = e.Owner
		oldCounts[e.Owner]++
	}
	newCounts := make(map[string]int, len(current))
	for _, e := range current {
		newCounts[e.Owner]++
	}

	report := &BulkReplaceReport{Entries: len(current)}
	affected := make(map[string]bool)
	seenOwner := make(map[string]bool)
	for _, e := range current {
		oldOwner, existed := oldOwners[e.Item]
		if existed && oldOwner == e.Owner {
			continue
		}
		if !existed {
			oldOwner = "(none)"
		} else {
			affected[oldOwner] = true
		}
		affected[e.Owner] = true
		report.Transferred = append(
			report.Transferred,
			fmt.Sprintf("%s: %s -> %s", e.Item, oldOwner, e.Owner),
		)
	}
	for _, e := range append(append([]Entry{}, previous...), current...) {
		owner := e.Owner
		if seenOwner[owner] || !affected[owner] {
			continue
		}
		seenOwner[owner] = true
		if oldCounts[owner] != newCounts[owner] {
			report.CountChanges = append(
				report.CountChanges,
				fmt.Sprintf(
					"%s: %d uniques -> %d uniques",
					owner, oldCounts[owner], newCounts[owner],
				),
			)
		}
	}
	return report
}
