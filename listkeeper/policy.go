package listkeeper

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// secondsInWeek is the "by Recent" cutoff window.
const secondsInWeek = 604800

// SortKey identifies one of the fixed sort/filter policies. The string
// values are persisted in channel states, so they match the original data
// file format.
type SortKey string

const (
	SortByItem   SortKey = "sort_config_item"
	SortByName   SortKey = "sort_config_name"
	SortByCost   SortKey = "sort_config_cost"
	SortByRecent SortKey = "sort_config_recent"
	SortByOwner  SortKey = "sort_config_owner"
)

// AllSortKeys returns every policy, in display (button) order.
func AllSortKeys() []SortKey {
	return []SortKey{SortByItem, SortByName, SortByCost, SortByRecent, SortByOwner}
}

// Valid reports whether k names a known policy.
func (k SortKey) Valid() bool {
	switch k {
	case SortByItem, SortByName, SortByCost, SortByRecent, SortByOwner:
		return true
	}
	return false
}

// entryColumn selects one of the entry's display fields.
type entryColumn int

const (
	columnItem entryColumn = iota
	columnOwner
	columnCost
)

// Policy is the display configuration of a sort key: its labels and which
// entry columns appear, in what order.
type Policy struct {
	Key         SortKey
	Label       string
	ButtonLabel string
	Headers     []string
	Columns     []entryColumn
}

// Policy returns the display configuration for the key. Unknown keys fall
// back to the "by Item" policy.
func (k SortKey) Policy() Policy {
	switch k {
	case SortByName:
		return Policy{
			Key:         k,
			Label:       "by Name",
			ButtonLabel: "Sort: Name",
			Headers:     []string{"Name", "Item", "Cost"},
			Columns:     []entryColumn{columnOwner, columnItem, columnCost},
		}
	case SortByCost:
		return Policy{
			Key:         k,
			Label:       "by Cost",
			ButtonLabel: "Sort: Cost",
			Headers:     []string{"Cost", "Item", "Name"},
			Columns:     []entryColumn{columnCost, columnItem, columnOwner},
		}
	case SortByRecent:
		return Policy{
			Key:         k,
			Label:       "by Recent (Last 7 Days)",
			ButtonLabel: "Sort: Recent",
			Headers:     []string{"Item", "Name", "Cost (7 Days)"},
			Columns:     []entryColumn{columnItem, columnOwner, columnCost},
		}
	case SortByOwner:
		return Policy{
			Key:         k,
			Label:       "by Owner Count",
			ButtonLabel: "Sort: Owner",
			Headers:     []string{"Name", "Item", "Cost"},
			Columns:     []entryColumn{columnOwner, columnItem, columnCost},
		}
	default:
		return Policy{
			Key:         SortByItem,
			Label:       "by Item",
			ButtonLabel: "Sort: Item",
			Headers:     []string{"Item", "Name", "Cost"},
			Columns:     []entryColumn{columnItem, columnOwner, columnCost},
		}
	}
}

// cell returns the display value of one entry column.
func (Policy) cell(e Entry, c entryColumn) string {
	switch c {
	case columnOwner:
		return e.Owner
	case columnCost:
		return e.Cost
	default:
		return e.Item
	}
}

// Apply returns the entries ordered (and, for "by Recent", filtered)
// according to the policy. The input is never mutated; unknown keys order
// "by Item". Every ordering tolerates empty input and non-numeric costs
// (treated as 0).
func (k SortKey) Apply(entries []Entry, now time.Time) []Entry {
	switch k {
	case SortByName:
		out := copyEntries(entries)
		sort.SliceStable(out, func(i, j int) bool {
			a, b := strings.ToLower(out[i].Owner), strings.ToLower(out[j].Owner)
			if a != b {
				return a < b
			}
			return strings.ToLower(out[i].Item) < strings.ToLower(out[j].Item)
		})
		return out
	case SortByCost:
		out := copyEntries(entries)
		sort.SliceStable(out, func(i, j int) bool {
			a, b := costValue(out[i].Cost), costValue(out[j].Cost)
			if a != b {
				return a < b
			}
			return strings.ToLower(out[i].Item) < strings.ToLower(out[j].Item)
		})
		return out
	case SortByRecent:
		cutoff := float64(now.Unix()) - secondsInWeek
		var recent []Entry
		for _, e := range entries {
			if e.UpdatedAt >= cutoff {
				recent = append(recent, e)
			}
		}
		// store order is mutation order, so reversing puts the most
		// recently changed entries first
		for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
			recent[i], recent[j] = recent[j], recent[i]
		}
		return recent
	case SortByOwner:
		return sortByOwnerTally(entries)
	default:
		out := copyEntries(entries)
		sort.SliceStable(out, func(i, j int) bool {
			a, b := strings.ToLower(out[i].Item), strings.ToLower(out[j].Item)
			if a != b {
				return a < b
			}
			return strings.ToLower(out[i].Owner) < strings.ToLower(out[j].Owner)
		})
		return out
	}
}

// sortByOwnerTally orders entries by descending count of entries held by
// each owner, breaking ties by owner name ascending, then cost descending.
// Counts are computed once over the full input.
func sortByOwnerTally(entries []Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		counts[strings.ToLower(e.Owner)]++
	}
	out := copyEntries(entries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Owner), strings.ToLower(out[j].Owner)
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		if a != b {
			return a < b
		}
		return costValue(out[i].Cost) > costValue(out[j].Cost)
	})
	return out
}

// costValue parses a cost counter for sorting. Anything that isn't a plain
// non-negative integer counts as 0.
func costValue(s string) int {
	if s == "" {
		return 0
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func copyEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
