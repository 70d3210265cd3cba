// Package session holds the conversation history of a single keystone run.
//
// The Store is an append-only, size-bounded log of role-tagged entries. It is
// owned by one control goroutine and does no locking of its own.
package session

import (
	"sort"
	"time"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidRole         = errors.Sentinel("invalid conversation role")
	ErrMissingToolMetadata = errors.Sentinel("tool_result entries require tool_name and tool_call_id")
)

// DefaultMaxLength bounds the history when no limit is configured.
const DefaultMaxLength = 100

// Options configures a Store.
type Options struct {
	MaxLength        int
	PrioritizeSystem bool
	Now              func() time.Time
	Logger           zerolog.Logger
}

// Filter selects entries by role. IncludeRoles is applied first (empty means
// every role), then ExcludeRoles removes from what is left.
type Filter struct {
	IncludeRoles []Role
	ExcludeRoles []Role
}

type record struct {
	Entry
	seq uint64
}

// Store is the conversation history.
type Store struct {
	records          []record
	nextSeq          uint64
	maxLength        int
	prioritizeSystem bool
	now              func() time.Time
	logger           zerolog.Logger
}

// NewStore creates an empty history.
func NewStore(opts Options) *Store {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		maxLength:        opts.MaxLength,
		prioritizeSystem: opts.PrioritizeSystem,
		now:              opts.Now,
		logger:           opts.Logger.With().Str("component", "session").Logger(),
	}
}

// Append adds an entry stamped with the current time. tool_result entries must
// carry extra with both ToolName and ToolCallID.
func (s *Store) Append(role Role, content string, extra *Extra) (Entry, error) {
	e := Entry{Role: role, Content: content, CreatedAt: s.now()}

	switch role {
	case RoleToolResult:
		if extra == nil || extra.ToolName == "" || extra.ToolCallID == "" {
			return Entry{}, ErrMissingToolMetadata
		}
		e.ToolName = extra.ToolName
		e.ToolCallID = extra.ToolCallID
	case RoleSystem, RoleUser, RoleAssistant:
		// tool metadata is only meaningful on tool results
	default:
		return Entry{}, errors.Wrapf(ErrInvalidRole, "%q", role)
	}

	s.records = append(s.records, record{Entry: e, seq: s.nextSeq})
	s.nextSeq++

	s.logger.Debug().
		Str("role", string(role)).
		Int("length", len(s.records)).
		Msg("Entry appended")
	return e, nil
}

// Read returns the entries selected by filter in insertion order. A nil
// filter selects everything.
func (s *Store) Read(filter *Filter) []Entry {
	out := make([]Entry, 0, len(s.records))
	for _, r := range s.records {
		if filter.matches(r.Role) {
			out = append(out, r.Entry)
		}
	}
	return out
}

// ReadForModel returns the selected entries in their model-facing shape.
// Only the per-entry shape changes; order is the same as Read.
func (s *Store) ReadForModel(filter *Filter) []WireMessage {
	entries := s.Read(filter)
	out := make([]WireMessage, len(entries))
	for i, e := range entries {
		out[i] = ToWire(e)
	}
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int { return len(s.records) }

// MaxLength returns the configured bound.
func (s *Store) MaxLength() int { return s.maxLength }

// Counts returns the number of entries per role.
func (s *Store) Counts() map[Role]int {
	counts := make(map[Role]int, len(Roles))
	for _, r := range Roles {
		counts[r] = 0
	}
	for _, r := range s.records {
		counts[r.Role]++
	}
	return counts
}

// Clear removes every entry, or every non-system entry when preserveSystem is
// set.
func (s *Store) Clear(preserveSystem bool) {
	if !preserveSystem {
		s.records = nil
		s.logger.Debug().Msg("History cleared")
		return
	}
	kept := s.records[:0]
	for _, r := range s.records {
		if r.Role == RoleSystem {
			kept = append(kept, r)
		}
	}
	s.records = kept
	s.logger.Debug().Int("kept", len(kept)).Msg("History cleared, system entries preserved")
}

// Prune bounds the history to MaxLength by dropping the oldest entries and
// returns how many were removed.
//
// With preserveSystem and system prioritization both enabled, every system
// entry survives and the remaining budget goes to the newest non-system
// entries. If the system entries alone exceed MaxLength they are all kept and
// the history stays over the bound.
func (s *Store) Prune(preserveSystem bool) int {
	before := len(s.records)
	if before <= s.maxLength {
		return 0
	}

	if preserveSystem && s.prioritizeSystem {
		s.records = s.pruneKeepingSystem()
	} else {
		s.records = append([]record(nil), s.records[before-s.maxLength:]...)
	}

	removed := before - len(s.records)
	s.logger.Debug().
		Int("removed", removed).
		Int("length", len(s.records)).
		Msg("History pruned")
	return removed
}

func (s *Store) pruneKeepingSystem() []record {
	var system, rest []record
	for _, r := range s.records {
		if r.Role == RoleSystem {
			system = append(system, r)
		} else {
			rest = append(rest, r)
		}
	}

	budget := s.maxLength - len(system)
	if budget < 0 {
		s.logger.Warn().
			Int("system_entries", len(system)).
			Int("max_length", s.maxLength).
			Msg("System entries exceed history bound, keeping all of them")
		budget = 0
	}

	// Newest first; the insertion sequence breaks timestamp ties.
	sort.SliceStable(rest, func(i, j int) bool {
		if !rest[i].CreatedAt.Equal(rest[j].CreatedAt) {
			return rest[i].CreatedAt.After(rest[j].CreatedAt)
		}
		return rest[i].seq > rest[j].seq
	})
	if len(rest) > budget {
		rest = rest[:budget]
	}

	kept := append(system, rest...)
	sort.Slice(kept, func(i, j int) bool { return kept[i].seq < kept[j].seq })
	return kept
}

func (f *Filter) matches(role Role) bool {
	if f == nil {
		return true
	}
	if len(f.IncludeRoles) > 0 && !containsRole(f.IncludeRoles, role) {
		return false
	}
	return !containsRole(f.ExcludeRoles, role)
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
