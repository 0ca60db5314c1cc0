// Package filingset implements Set, a collection of filings keyed by
// api_id with set algebra and merge-on-insert.
//
// Membership is decided by api_id only: two filing objects with the same
// api_id are the same member. The operations returning a new Set copy
// members with Filing.Clone and never modify their inputs; the *Update
// variants modify the receiver in place.
package filingset

import (
	"regexp"
	"slices"
	"sort"
	"strconv"

	"github.com/derickschaefer/filings/internal/model"
)

// Set is an api_id-keyed collection of filings. The zero value is not
// usable; create sets with New. A Set is not safe for concurrent use.
type Set struct {
	m map[string]*model.Filing
}

// New returns a set holding filings, merged by api_id in the given order.
func New(filings ...*model.Filing) *Set {
	s := &Set{m: make(map[string]*model.Filing, len(filings))}
	for _, f := range filings {
		s.Add(f)
	}
	return s
}

// ─── Membership ───────────────────────────────────────────────────────────────

// Add inserts f. When a member with the same api_id exists, f is merged
// into it and the existing object stays the member.
func (s *Set) Add(f *model.Filing) {
	if f == nil {
		return
	}
	if cur, ok := s.m[f.APIID]; ok {
		cur.Merge(f)
		return
	}
	s.m[f.APIID] = f
}

// Contains reports whether a filing with apiID is a member.
func (s *Set) Contains(apiID string) bool {
	if s == nil {
		return false
	}
	_, ok := s.m[apiID]
	return ok
}

// Get returns the member with apiID.
func (s *Set) Get(apiID string) (*model.Filing, bool) {
	f, ok := s.m[apiID]
	return f, ok
}

// Remove deletes the member with apiID and reports whether it was present.
func (s *Set) Remove(apiID string) bool {
	if _, ok := s.m[apiID]; !ok {
		return false
	}
	delete(s.m, apiID)
	return true
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}

// Filings returns the members sorted by api_id. The slice is a snapshot;
// later changes to the set do not affect it.
func (s *Set) Filings() []*model.Filing {
	out := make([]*model.Filing, 0, len(s.m))
	for _, f := range s.m {
		out = append(out, f)
	}
	sortFilings(out)
	return out
}

// Entities returns the loaded entities of the members, one per api_id,
// sorted by api_id. When queries produced separate objects for the same
// entity, the one observed last (by QueryTime, then by member api_id)
// represents it, and the filings linked to the others are added to it.
func (s *Set) Entities() []*model.Entity {
	byID := make(map[string]*model.Entity)
	var variants []*model.Entity
	for _, f := range s.Filings() {
		e, err := f.Entity()
		if err != nil || e == nil {
			continue
		}
		cur, ok := byID[e.APIID]
		switch {
		case !ok:
			byID[e.APIID] = e
		case cur == e:
		case !e.QueryTime.Before(cur.QueryTime):
			byID[e.APIID] = e
			variants = append(variants, cur)
		default:
			variants = append(variants, e)
		}
	}
	for _, v := range variants {
		e := byID[v.APIID]
		if e == v {
			continue
		}
		for _, f := range v.Filings() {
			e.AddFiling(f)
		}
	}
	out := make([]*model.Entity, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIID < out[j].APIID })
	return out
}

// ValidationMessages returns the loaded validation messages of the
// members, one per api_id, sorted by api_id. The first member in api_id
// order carrying a message supplies it.
func (s *Set) ValidationMessages() []*model.ValidationMessage {
	byID := make(map[string]*model.ValidationMessage)
	for _, f := range s.Filings() {
		msgs, err := f.ValidationMessages()
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if _, dup := byID[m.APIID]; !dup {
				byID[m.APIID] = m
			}
		}
	}
	out := make([]*model.ValidationMessage, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APIID < out[j].APIID })
	return out
}

// ─── Comparison ───────────────────────────────────────────────────────────────

// Equal reports whether both sets have the same api_ids. A nil set is
// empty.
func (s *Set) Equal(other *Set) bool {
	return s.Len() == other.Len() && s.IsSubset(other)
}

// IsSubset reports whether every member of s is a member of other.
func (s *Set) IsSubset(other *Set) bool {
	if s == nil {
		return true
	}
	for id := range s.m {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// members returns the member map of s; nil for a nil set.
func members(s *Set) map[string]*model.Filing {
	if s == nil {
		return nil
	}
	return s.m
}

// IsSuperset reports whether every member of other is a member of s.
func (s *Set) IsSuperset(other *Set) bool { return other.IsSubset(s) }

// IsDisjoint reports whether the sets share no api_id.
func (s *Set) IsDisjoint(other *Set) bool {
	if s == nil {
		return true
	}
	for id := range s.m {
		if other.Contains(id) {
			return false
		}
	}
	return true
}

// ─── Pure operations ──────────────────────────────────────────────────────────

// Union returns the members of s and all others. Members found in more
// than one set are merged, later sets winning.
func (s *Set) Union(others ...*Set) *Set {
	out := s.clone()
	for _, o := range others {
		for id, f := range members(o) {
			if cur, ok := out.m[id]; ok {
				out.m[id] = cur.Merged(f)
			} else {
				out.m[id] = f.Clone()
			}
		}
	}
	return out
}

// Intersection returns the members of s found in every other set, merged
// across the sets.
func (s *Set) Intersection(others ...*Set) *Set {
	out := &Set{m: make(map[string]*model.Filing)}
	for id, f := range s.m {
		if !inAll(id, others) {
			continue
		}
		merged := f.Clone()
		for _, o := range others {
			merged = merged.Merged(o.m[id])
		}
		out.m[id] = merged
	}
	return out
}

// Difference returns the members of s found in none of the others.
func (s *Set) Difference(others ...*Set) *Set {
	out := &Set{m: make(map[string]*model.Filing)}
	for id, f := range s.m {
		if !inAny(id, others) {
			out.m[id] = f.Clone()
		}
	}
	return out
}

// SymmetricDifference returns the members found in exactly one of s and
// other.
func (s *Set) SymmetricDifference(other *Set) *Set {
	out := s.Difference(other)
	for id, f := range members(other) {
		if !s.Contains(id) {
			out.m[id] = f.Clone()
		}
	}
	return out
}

// ─── In-place operations ──────────────────────────────────────────────────────

// Update adds the members of all others to s. Existing members absorb the
// incoming ones; new members are clones.
func (s *Set) Update(others ...*Set) {
	for _, o := range others {
		if o == s {
			continue
		}
		for id, f := range members(o) {
			if cur, ok := s.m[id]; ok {
				cur.Merge(f)
			} else {
				s.m[id] = f.Clone()
			}
		}
	}
}

// IntersectionUpdate keeps only the members of s found in every other set
// and merges the other sets' versions into them.
func (s *Set) IntersectionUpdate(others ...*Set) {
	for id, f := range s.m {
		if !inAll(id, others) {
			delete(s.m, id)
			continue
		}
		for _, o := range others {
			if o != s {
				f.Merge(o.m[id])
			}
		}
	}
}

// DifferenceUpdate removes the members found in any of the others.
func (s *Set) DifferenceUpdate(others ...*Set) {
	for id := range s.m {
		if inAny(id, others) {
			delete(s.m, id)
		}
	}
}

// SymmetricDifferenceUpdate keeps the members found in exactly one of s
// and other.
func (s *Set) SymmetricDifferenceUpdate(other *Set) {
	if other == s {
		clear(s.m)
		return
	}
	for id, f := range members(other) {
		if _, ok := s.m[id]; ok {
			delete(s.m, id)
		} else {
			s.m[id] = f.Clone()
		}
	}
}

// ─── Language versions ────────────────────────────────────────────────────────

var seqSuffix = regexp.MustCompile(`^(.*)-(\d+)$`)

// PopDuplicates keeps one language version of each report and removes the
// rest. Filings are versions of the same report when their filing_index
// differs only in the trailing sequence number. Within a group the filing
// whose language comes earliest in languages is kept; on a tie, or when
// no member has a listed language, the lowest sequence number wins, then
// the lowest api_id. The removed filings are returned sorted by api_id.
func (s *Set) PopDuplicates(languages []string) []*model.Filing {
	rank := func(f *model.Filing) int {
		if i := slices.Index(languages, f.Language); i >= 0 && f.Language != "" {
			return i
		}
		return len(languages)
	}

	groups := make(map[string][]*model.Filing)
	for _, f := range s.m {
		key, _ := splitIndex(f)
		groups[key] = append(groups[key], f)
	}

	var removed []*model.Filing
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			a, b := members[i], members[j]
			if ra, rb := rank(a), rank(b); ra != rb {
				return ra < rb
			}
			_, sa := splitIndex(a)
			_, sb := splitIndex(b)
			if sa != sb {
				return sa < sb
			}
			return a.APIID < b.APIID
		})
		for _, f := range members[1:] {
			delete(s.m, f.APIID)
			removed = append(removed, f)
		}
	}
	sortFilings(removed)
	return removed
}

// splitIndex returns the group key and sequence number of a filing.
// Filings without a filing_index form a group of their own.
func splitIndex(f *model.Filing) (string, int) {
	if f.FilingIndex == "" {
		return "api_id:" + f.APIID, 0
	}
	m := seqSuffix.FindStringSubmatch(f.FilingIndex)
	if m == nil {
		return f.FilingIndex, 0
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return f.FilingIndex, 0
	}
	return m[1], n
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func (s *Set) clone() *Set {
	out := &Set{m: make(map[string]*model.Filing, len(s.m))}
	for id, f := range s.m {
		out.m[id] = f.Clone()
	}
	return out
}

func inAll(id string, sets []*Set) bool {
	for _, o := range sets {
		if !o.Contains(id) {
			return false
		}
	}
	return true
}

func inAny(id string, sets []*Set) bool {
	for _, o := range sets {
		if o.Contains(id) {
			return true
		}
	}
	return false
}

func sortFilings(fs []*model.Filing) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].APIID < fs[j].APIID })
}
