package query

import (
	"context"

	"github.com/datastax/custom-tables/meta"
	"github.com/datastax/custom-tables/types"
)

// MetaQuery hands a meta_query to the metadata collaborator.
type MetaQuery struct {
	cc         ClauseContext
	querier    meta.Querier
	objectType string
}

func NewMetaQuery(cc ClauseContext, querier meta.Querier, objectType string) *MetaQuery {
	return &MetaQuery{cc: cc, querier: querier, objectType: objectType}
}

// SQL returns the join and where fragments for raw, or false when there is
// no querier or it contributes nothing.
func (m *MetaQuery) SQL(ctx context.Context, raw interface{}, vars Vars) (meta.Fragments, bool) {
	if m.querier == nil || raw == nil {
		return meta.Fragments{}, false
	}
	fragments, ok := m.querier.GetSQL(ctx, meta.Request{
		ObjectType:    m.objectType,
		TableAlias:    m.cc.Alias,
		PrimaryColumn: m.cc.Primary,
		Query:         raw,
		Context:       vars,
	})
	if !ok || (fragments.Join.IsEmpty() && fragments.Where.IsEmpty()) {
		m.cc.debug("meta query contributed nothing", "objectType", m.objectType)
		return meta.Fragments{}, false
	}
	return fragments, true
}

func mergeMetaFragments(join, where *[]types.Fragment, f meta.Fragments) {
	if !f.Join.IsEmpty() {
		*join = append(*join, f.Join)
	}
	if !f.Where.IsEmpty() {
		*where = append(*where, f.Where.Wrap())
	}
}
