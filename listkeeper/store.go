package listkeeper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/lmittmann/tint"
)

// Entry is one tracked unique item. Entries are serialized as positional
// 4-element rows ([item, owner, cost, updatedAt]) for compatibility with
// the original data file format.
type Entry struct {
	// Item is the case-insensitively unique item name.
	Item string

	// Owner is the display name of the current holder.
	Owner string

	// Cost is a cumulative transfer counter, kept in string form.
	Cost string

	// UpdatedAt is the epoch time of the last mutation, in seconds.
	// Entries written before this field existed load as 0.
	UpdatedAt float64
}

// MarshalJSON serializes the entry as a positional row.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Item, e.Owner, e.Cost, e.UpdatedAt})
}

// UnmarshalJSON parses a positional row. Rows must have at least
// [item, owner, cost]; a numeric cost is coerced to its string form, and a
// missing timestamp is backfilled with 0.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var row []any
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	parsed, _, err := entryFromRow(row)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// entryFromRow converts a positional row to an Entry, reporting whether the
// row carried its own timestamp.
func entryFromRow(row []any) (Entry, bool, error) {
	if len(row) < 3 {
		return Entry{}, false, fmt.Errorf(
			"row must have at least 3 elements [item, owner, cost], got %d",
			len(row),
		)
	}
	item, ok := row[0].(string)
	if !ok {
		return Entry{}, false, fmt.Errorf("item must be a string, got %T", row[0])
	}
	owner, ok := row[1].(string)
	if !ok {
		return Entry{}, false, fmt.Errorf("owner must be a string, got %T", row[1])
	}

	var cost string
	switch v := row[2].(type) {
	case string:
		cost = v
	case float64:
		cost = strconv.FormatInt(int64(v), 10)
	default:
		return Entry{}, false, fmt.Errorf("cost must be a string or number, got %T", row[2])
	}

	e := Entry{Item: item, Owner: owner, Cost: cost}
	if len(row) < 4 {
		return e, false, nil
	}
	ts, ok := row[3].(float64)
	if !ok {
		return Entry{}, false, fmt.Errorf("updated_at must be a number, got %T", row[3])
	}
	e.UpdatedAt = ts
	return e, true, nil
}

func (e Entry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("item", e.Item),
		slog.String("owner", e.Owner),
		slog.String("cost", e.Cost),
		slog.Float64("updated_at", e.UpdatedAt),
	)
}

// ChannelState tracks which messages currently display the list in one
// channel. MessageIDs[i] corresponds to page i of the last successful
// render; only MessageIDs[0] carries the interactive sort controls.
type ChannelState struct {
	MessageIDs     []string `json:"message_ids"`
	DefaultSortKey SortKey  `json:"default_sort_key_for_display"`
}

// LastChange records the most recent mutation, so it can be re-announced.
// The zero value means "nothing to announce".
type LastChange struct {
	Item  string
	Owner string
	Cost  string
}

// Empty reports whether there is no recorded change.
func (lc LastChange) Empty() bool {
	return lc == LastChange{}
}

// storeDocument is the on-disk shape: both the entry list and the
// per-channel render state live in one JSON document.
type storeDocument struct {
	ListData  []Entry   `json:"list_data"`
	StateData stateData `json:"state_data"`
}

type stateData struct {
	ChannelListStates map[string]*ChannelState `json:"channel_list_states"`
}

// Store owns the canonical entry list, per-channel render state and the
// last-change slot, along with their durable persistence. It has no
// knowledge of rendering or transport. All access is assumed to happen
// from the bot's single event flow; the Store itself takes no locks.
type Store struct {
	path          string
	logger        *slog.Logger
	entries       []Entry
	channelStates map[string]*ChannelState
	lastChange    LastChange
}

// NewStore creates a Store persisting to the given path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:          path,
		logger:        logger.With(loggerNameKey, "store"),
		channelStates: map[string]*ChannelState{},
	}
}

// Load reads the data file into memory. A missing file, malformed JSON or
// unexpected shape falls back to an empty list and empty channel states -
// these conditions are logged, never returned as errors. A legacy bare
// JSON array is accepted as the entry list with empty state.
func (s *Store) Load() {
	s.entries = nil
	s.channelStates = map[string]*ChannelState{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("error reading data file", tint.Err(err), "path", s.path)
		}
		return
	}

	var doc storeDocument
	if err = json.Unmarshal(data, &doc); err != nil {
		var rows []Entry
		if arrErr := json.Unmarshal(data, &rows); arrErr != nil {
			s.logger.Error(
				"malformed data file, starting with empty list",
				tint.Err(err),
				"path", s.path,
			)
			return
		}
		s.entries = rows
		return
	}

	s.entries = doc.ListData
	if doc.StateData.ChannelListStates != nil {
		s.channelStates = doc.StateData.ChannelListStates
	}
	for _, state := range s.channelStates {
		if !state.DefaultSortKey.Valid() {
			state.DefaultSortKey = SortByItem
		}
	}
	s.logger.Info(
		"loaded data file",
		"path", s.path,
		"entries", len(s.entries),
		"channels", len(s.channelStates),
	)
}

// Save writes the entry list and channel states to the data file as one
// document, atomically (temp file, then rename). The error is logged here
// and also returned; callers treat a failure as non-fatal, since the
// in-memory state remains authoritative until the next successful save.
func (s *Store) Save() error {
	doc := storeDocument{
		ListData:  s.entries,
		StateData: stateData{ChannelListStates: s.channelStates},
	}
	if doc.ListData == nil {
		doc.ListData = []Entry{}
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		s.logger.Error("error serializing data", tint.Err(err))
		return err
	}

	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("error writing data file", tint.Err(err), "path", tmp)
		return err
	}
	if err = os.Rename(tmp, s.path); err != nil {
		s.logger.Error("error replacing data file", tint.Err(err), "path", s.path)
		return err
	}
	return nil
}

// Entries returns a copy of the current entry list, in store order.
func (s *Store) Entries() []Entry {
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return entries
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// setEntries replaces the entire entry list.
func (s *Store) setEntries(entries []Entry) {
	s.entries = entries
}

// findIndex returns the index of the entry matching the given item name
// case-insensitively, or -1.
func (s *Store) findIndex(item string) int {
	for i, e := range s.entries {
		if strings.EqualFold(e.Item, item) {
			return i
		}
	}
	return -1
}

// remove deletes and returns the entry at the given index.
func (s *Store) remove(idx int) Entry {
	e := s.entries[idx]
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	return e
}

// append adds an entry at the end of the store order. Mutated entries are
// re-appended, so store order doubles as recency order.
func (s *Store) append(e Entry) {
	s.entries = append(s.entries, e)
}

// ChannelState returns the render state for the given channel, creating it
// with the default sort key if the channel isn't tracked yet.
func (s *Store) ChannelState(channelID string) *ChannelState {
	state, ok := s.channelStates[channelID]
	if !ok {
		state = &ChannelState{
			MessageIDs:     []string{},
			DefaultSortKey: SortByItem,
		}
		s.channelStates[channelID] = state
	}
	return state
}

// ChannelIDs returns the IDs of all tracked channels.
func (s *Store) ChannelIDs() []string {
	ids := make([]string, 0, len(s.channelStates))
	for id := range s.channelStates {
		ids = append(ids, id)
	}
	return ids
}

// LastChange returns the most recent recorded mutation.
func (s *Store) LastChange() LastChange {
	return s.lastChange
}

// SetLastChange records a mutation for later re-announcement.
func (s *Store) SetLastChange(item string, owner string, cost string) {
	s.lastChange = LastChange{Item: item, Owner: owner, Cost: cost}
}

// ClearLastChange empties the last-change slot.
func (s *Store) ClearLastChange() {
	s.lastChange = LastChange{}
}
