// Package capability projects the directory's relationship flag set into
// the validated capability list embedded in access tokens. The mapping is
// a declarative table plus a closed whitelist, so it stays data-driven
// and testable independently of the flag source.
package capability

// Flag is a single boolean relationship type resolved by the member
// directory at query time. The core never persists flags.
type Flag string

// Relationship flags, grouped as the grant table evaluates them:
// leadership first, then administrative, then operational.
const (
	FlagChapterLead      Flag = "chapter_lead"
	FlagBoardMember      Flag = "board_member"
	FlagOrgAdmin         Flag = "org_admin"
	FlagMemberManager    Flag = "member_manager"
	FlagEventCoordinator Flag = "event_coordinator"
	FlagContentEditor    Flag = "content_editor"
	FlagFinanceOfficer   Flag = "finance_officer"
)

// FlagSet is the sparse boolean relationship set for one identity.
type FlagSet map[Flag]bool

// Capability names embedded in access tokens.
const (
	CapChapterLead   = "chapter:lead"
	CapOrgBoard      = "org:board"
	CapOrgAdmin      = "org:admin"
	CapMembersManage = "members:manage"
	CapEventsManage  = "events:manage"
	CapContentEdit   = "content:edit"
	CapFinanceManage = "finance:manage"
)

type grant struct {
	flag       Flag
	capability string
}

// grantTable is evaluated top to bottom: leadership flags, administrative
// flags, then operational flags. Output order is not semantically
// meaningful; the derived set is what matters.
var grantTable = []grant{
	{FlagChapterLead, CapChapterLead},
	{FlagBoardMember, CapOrgBoard},
	{FlagOrgAdmin, CapOrgAdmin},
	{FlagMemberManager, CapMembersManage},
	{FlagEventCoordinator, CapEventsManage},
	{FlagContentEditor, CapContentEdit},
	{FlagFinanceOfficer, CapFinanceManage},
}

// DefaultRegistry returns a frozen Registry containing every capability
// the grant table can produce.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, g := range grantTable {
		// Duplicate grants mapping to one capability are fine.
		_ = r.Register(g.capability)
	}
	r.Freeze()
	return r
}

// Deriver maps flag sets to capability lists. Zero-dependency and
// side-effect free; safe for concurrent use once built.
type Deriver struct {
	registry *Registry
}

// NewDeriver creates a Deriver filtering against the given registry.
// A nil registry uses DefaultRegistry.
func NewDeriver(registry *Registry) *Deriver {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Deriver{registry: registry}
}

// Derive projects flags into a deduplicated, whitelist-filtered
// capability list. Total: unknown flags contribute nothing, never an
// error. Idempotent and independent of the input map's iteration order.
func (d *Deriver) Derive(flags FlagSet) []string {
	out := make([]string, 0, len(grantTable))
	seen := make(map[string]struct{}, len(grantTable))

	for _, g := range grantTable {
		if !flags[g.flag] {
			continue
		}
		if !d.registry.Known(g.capability) {
			continue
		}
		if _, dup := seen[g.capability]; dup {
			continue
		}
		seen[g.capability] = struct{}{}
		out = append(out, g.capability)
	}

	return out
}

// Registry exposes the whitelist backing this deriver.
func (d *Deriver) Registry() *Registry {
	return d.registry
}
