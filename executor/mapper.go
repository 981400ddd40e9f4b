package executor

import (
	"fmt"

	"github.com/syssam/strata/query"
	"github.com/syssam/strata/rdbms"
	"github.com/syssam/strata/statement"
)

// mapper turns the rows of one select into the payloads of its targets.
type mapper struct {
	m       *query.Model
	sel     *query.Select
	columns []rdbms.Column
	index   map[query.FeatureID]int
	// fields lists the projected attributes of each target.
	fields map[query.TargetID][]field
}

type field struct {
	name   string
	column int
}

func newMapper(m *query.Model, sel *query.Select, columns []rdbms.Column) *mapper {
	mp := &mapper{
		m:       m,
		sel:     sel,
		columns: columns,
		index:   make(map[query.FeatureID]int, len(columns)),
		fields:  make(map[query.TargetID][]field),
	}
	for i, c := range columns {
		mp.index[c.Feature] = i
		for _, mapping := range m.Feature(c.Feature).Mappings {
			mp.fields[mapping.Target] = append(mp.fields[mapping.Target], field{name: mapping.Name, column: i})
		}
	}
	return mp
}

func (mp *mapper) value(row []any, i int) (any, error) {
	c := mp.columns[i]
	v, err := decode(row[i], c.Type, mp.m.Feature(c.Feature).Attribute)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.Label, err)
	}
	return v, nil
}

// row maps one row. Targets of outer joined instances that are absent map
// to nil and leave a nil relation in their parent.
func (mp *mapper) row(row []any) (map[query.TargetID]statement.Payload, error) {
	out := make(map[query.TargetID]statement.Payload, len(mp.sel.Targets))
	for _, tid := range mp.sel.Targets {
		tg := mp.m.Target(tid)
		id, err := mp.value(row, mp.index[tg.Identifier])
		if err != nil {
			return nil, err
		}
		var p statement.Payload
		if id != nil {
			p = statement.Payload{
				statement.KeyIdentifier: id,
				statement.KeyEntityType: tg.Transfer.Entity.Name,
			}
			if !tg.Referenced {
				v, err := mp.value(row, mp.index[tg.Version])
				if err != nil {
					return nil, err
				}
				p[statement.KeyVersion] = v
			}
			for _, f := range mp.fields[tid] {
				if p[f.name], err = mp.value(row, f.column); err != nil {
					return nil, err
				}
			}
		}
		out[tid] = p
		if tg.Parent == 0 || mp.m.Target(tg.Parent).Select != mp.sel.ID() {
			continue
		}
		if parent := out[tg.Parent]; parent != nil {
			if p == nil {
				parent[tg.Relation.Name] = nil
			} else {
				parent[tg.Relation.Name] = p
			}
		}
	}
	return out, nil
}
