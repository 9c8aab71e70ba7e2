package journal

import apperrors "github.com/louisbranch/rulecore/internal/platform/errors"

// Group batches commands into one notification. It never rolls back.
type Group struct {
	journal *Journal
	ended   bool
}

// BeginGroup opens a group scope. Callers must End it, usually with defer.
func (j *Journal) BeginGroup() (*Group, error) {
	if err := j.usable(); err != nil {
		return nil, err
	}
	g := &Group{journal: j}
	j.scopes = append(j.scopes, &scope{kind: KindGroup, group: g})
	return g, nil
}

// End closes the group, merging its commands into the parent scope. Ending a
// group twice is a no-op.
func (g *Group) End() error {
	if g == nil || g.ended {
		return nil
	}
	j := g.journal
	if err := j.usable(); err != nil {
		return err
	}
	n := len(j.scopes)
	if n == 0 || j.scopes[n-1].group != g {
		return j.poison(apperrors.New(apperrors.CodeScopeOutOfOrder, "group ended out of order"))
	}
	g.ended = true
	top := j.scopes[n-1]
	j.scopes = j.scopes[:n-1]
	j.merge(top)
	return nil
}
