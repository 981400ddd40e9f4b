package metamodel

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/strata/expr"
)

type document struct {
	Entities   []entityDoc    `yaml:"entities"`
	Transfers  []transferDoc  `yaml:"transfers"`
	Operations []operationDoc `yaml:"operations"`
}

type entityDoc struct {
	Name       string         `yaml:"name"`
	Abstract   bool           `yaml:"abstract"`
	Supertypes []string       `yaml:"supertypes"`
	Attributes []attributeDoc `yaml:"attributes"`
	References []referenceDoc `yaml:"references"`
}

type attributeDoc struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Precision int      `yaml:"precision"`
	Scale     int      `yaml:"scale"`
	MaxLength int      `yaml:"maxLength"`
	Enum      []string `yaml:"enum"`
	Required  bool     `yaml:"required"`
	Unique    bool     `yaml:"unique"`
}

// multiplicity is shared by references and relations. Many is a shorthand
// for an unbounded upper bound.
type multiplicity struct {
	Lower int  `yaml:"lower"`
	Upper *int `yaml:"upper"`
	Many  bool `yaml:"many"`
}

func (m multiplicity) bounds() (int, int) {
	switch {
	case m.Many:
		return m.Lower, Many
	case m.Upper != nil:
		return m.Lower, *m.Upper
	}
	return m.Lower, 0
}

type referenceDoc struct {
	Name         string `yaml:"name"`
	Target       string `yaml:"target"`
	multiplicity `yaml:",inline"`
	Containment  bool   `yaml:"containment"`
	Opposite     string `yaml:"opposite"`
	Storage      string `yaml:"storage"`
}

type transferDoc struct {
	Name        string                `yaml:"name"`
	Entity      string                `yaml:"entity"`
	Permissions *Permissions          `yaml:"permissions"`
	Attributes  []transferAttrDoc     `yaml:"attributes"`
	Relations   []transferRelationDoc `yaml:"relations"`
}

type transferAttrDoc struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Binding  string `yaml:"binding"`
	Required bool   `yaml:"required"`
}

type transferRelationDoc struct {
	Name         string `yaml:"name"`
	Target       string `yaml:"target"`
	Binding      string `yaml:"binding"`
	multiplicity `yaml:",inline"`
	Embedded     bool         `yaml:"embedded"`
	Containment  bool         `yaml:"containment"`
	Permissions  *Permissions `yaml:"permissions"`
	OrderBy      []Order      `yaml:"orderBy"`
	Range        string       `yaml:"range"`
}

type operationDoc struct {
	Name      string `yaml:"name"`
	Behaviour string `yaml:"behaviour"`
	Owner     string `yaml:"owner"`
	Relation  string `yaml:"relation"`
	Public    bool   `yaml:"public"`
}

// LoadFile reads, decodes and links the model file at path.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metamodel: read model file: %w", err)
	}
	m, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Load decodes and links a YAML model. Unknown fields are rejected.
func Load(r io.Reader) (*Model, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("metamodel: parse model: %w", err)
	}
	m, err := doc.model()
	if err != nil {
		return nil, err
	}
	if err := m.Link(); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *document) model() (*Model, error) {
	entities := make([]*EntityType, 0, len(d.Entities))
	for _, ed := range d.Entities {
		e := &EntityType{Name: ed.Name, Abstract: ed.Abstract, SupertypeNames: ed.Supertypes}
		for _, ad := range ed.Attributes {
			t, err := ParseType(ad.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", ed.Name, ad.Name, err)
			}
			e.Attributes = append(e.Attributes, &Attribute{
				Name:      ad.Name,
				Type:      t,
				Precision: ad.Precision,
				Scale:     ad.Scale,
				MaxLength: ad.MaxLength,
				Enum:      ad.Enum,
				Required:  ad.Required,
				Unique:    ad.Unique,
			})
		}
		for _, rd := range ed.References {
			storage, err := parseStorage(rd.Storage)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", ed.Name, rd.Name, err)
			}
			lower, upper := rd.bounds()
			e.References = append(e.References, &Reference{
				Name:         rd.Name,
				TargetName:   rd.Target,
				Lower:        lower,
				Upper:        upper,
				Containment:  rd.Containment,
				OppositeName: rd.Opposite,
				Storage:      storage,
			})
		}
		entities = append(entities, e)
	}
	transfers := make([]*TransferType, 0, len(d.Transfers))
	for _, td := range d.Transfers {
		t := &TransferType{Name: td.Name, EntityName: td.Entity, Permissions: td.Permissions}
		for _, ad := range td.Attributes {
			a := &TransferAttribute{Name: ad.Name, Required: ad.Required}
			if ad.Type != "" {
				typ, err := ParseType(ad.Type)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", td.Name, ad.Name, err)
				}
				a.Type = typ
			}
			b, err := parseOptional(ad.Binding)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: binding: %w", td.Name, ad.Name, err)
			}
			a.Binding = b
			t.Attributes = append(t.Attributes, a)
		}
		for _, rd := range td.Relations {
			lower, upper := rd.bounds()
			r := &TransferRelation{
				Name:        rd.Name,
				TargetName:  rd.Target,
				Lower:       lower,
				Upper:       upper,
				Embedded:    rd.Embedded,
				Containment: rd.Containment,
				Permissions: rd.Permissions,
				OrderBy:     rd.OrderBy,
			}
			var err error
			if r.Binding, err = parseOptional(rd.Binding); err != nil {
				return nil, fmt.Errorf("%s.%s: binding: %w", td.Name, rd.Name, err)
			}
			if r.Range, err = parseOptional(rd.Range); err != nil {
				return nil, fmt.Errorf("%s.%s: range: %w", td.Name, rd.Name, err)
			}
			t.Relations = append(t.Relations, r)
		}
		transfers = append(transfers, t)
	}
	operations := make([]*Operation, 0, len(d.Operations))
	for _, od := range d.Operations {
		b, err := ParseBehaviour(od.Behaviour)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", od.Name, err)
		}
		operations = append(operations, &Operation{
			Name:         od.Name,
			Behaviour:    b,
			OwnerName:    od.Owner,
			RelationName: od.Relation,
			Public:       od.Public,
		})
	}
	return NewModel(entities, transfers, operations), nil
}

func parseOptional(src string) (expr.Expr, error) {
	if src == "" {
		return nil, nil
	}
	return expr.Parse(src)
}
