package importer

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/reelmatch/reelmatch/internal/models"
)

// Field-map directive grammar:
//
//	''                       ignore the column
//	'external_object_id'     column holds a canonical entity id
//	'attribute.<TYPE>'       column holds one attribute value
//	'attribute_list.<TYPE>'  column holds a comma-separated value list
//	'link.<PLATFORM_SLUG>'   column holds an external id on that platform
const (
	directiveIgnore        = ""
	directiveObjectID      = "external_object_id"
	directiveAttribute     = "attribute"
	directiveAttributeList = "attribute_list"
	directiveLink          = "link"
)

// Directive is one parsed field-map entry.
type Directive struct {
	Kind      string
	ValueType models.ValueType // attribute / attribute_list
	Slug      string           // link
}

// ParseDirective validates one raw directive string.
func ParseDirective(raw string) (Directive, error) {
	name, arg, hasArg := strings.Cut(raw, ".")
	switch name {
	case directiveIgnore, directiveObjectID:
		if hasArg {
			return Directive{}, fmt.Errorf("directive %q takes no argument", name)
		}
		return Directive{Kind: name}, nil
	case directiveAttribute, directiveAttributeList:
		if !hasArg || arg == "" {
			return Directive{}, fmt.Errorf("directive %q needs a value type", name)
		}
		typ, ok := models.ParseValueType(arg)
		if !ok {
			return Directive{}, fmt.Errorf("directive %q: unknown value type %q", name, arg)
		}
		return Directive{Kind: name, ValueType: typ}, nil
	case directiveLink:
		if !hasArg || arg == "" {
			return Directive{}, fmt.Errorf("directive %q needs a platform slug", name)
		}
		return Directive{Kind: name, Slug: arg}, nil
	default:
		return Directive{}, fmt.Errorf("unknown directive %q", raw)
	}
}

// FieldIndex maps every directive to the header columns that carry it.
type FieldIndex struct {
	ObjectID       []int
	Attributes     map[models.ValueType][]int
	AttributeLists map[models.ValueType][]int
	Links          map[string][]int // platform slug → columns
}

// ResolveFields resolves a file's column→directive map against the header.
// Every non-ignored directive must match at least one header column.
func ResolveFields(fields map[string]string, header []string) (*FieldIndex, error) {
	byName := map[string][]int{}
	for i, name := range header {
		byName[name] = append(byName[name], i)
	}

	idx := &FieldIndex{
		Attributes:     map[models.ValueType][]int{},
		AttributeLists: map[models.ValueType][]int{},
		Links:          map[string][]int{},
	}
	for column, raw := range fields {
		directive, err := ParseDirective(raw)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", column, err)
		}
		if directive.Kind == directiveIgnore {
			continue
		}
		cols := byName[column]
		if len(cols) == 0 {
			return nil, fmt.Errorf("column %q (%s) not present in header", column, raw)
		}
		switch directive.Kind {
		case directiveObjectID:
			idx.ObjectID = append(idx.ObjectID, cols...)
		case directiveAttribute:
			idx.Attributes[directive.ValueType] = append(idx.Attributes[directive.ValueType], cols...)
		case directiveAttributeList:
			idx.AttributeLists[directive.ValueType] = append(idx.AttributeLists[directive.ValueType], cols...)
		case directiveLink:
			idx.Links[directive.Slug] = append(idx.Links[directive.Slug], cols...)
		}
	}
	return idx, nil
}

// Slugs lists the platform slugs the file references, for up-front
// resolution and per-file caching.
func (idx *FieldIndex) Slugs() []string {
	out := make([]string, 0, len(idx.Links))
	for slug := range idx.Links {
		out = append(out, slug)
	}
	return out
}

// HasAttributes reports whether any attribute directive is mapped; such
// files need a source platform to credit assertions to.
func (idx *FieldIndex) HasAttributes() bool {
	return len(idx.Attributes) > 0 || len(idx.AttributeLists) > 0
}

// RowData is the typed content of one data row.
type RowData struct {
	ObjectIDs  []int64
	Attributes map[models.ValueType][]string
	Links      map[string][]string // slug → external ids
}

// Empty reports whether the row carries no identity at all.
func (d RowData) Empty() bool {
	if len(d.ObjectIDs) > 0 {
		return false
	}
	for _, ids := range d.Links {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// Extract pulls the mapped cells out of one row. List columns split on
// comma; empty cells and empty list items are dropped.
func (idx *FieldIndex) Extract(row []string) (RowData, error) {
	data := RowData{
		Attributes: map[models.ValueType][]string{},
		Links:      map[string][]string{},
	}

	for _, col := range idx.ObjectID {
		text := strings.TrimSpace(cell(row, col))
		if text == "" {
			continue
		}
		id, err := cast.ToInt64E(text)
		if err != nil {
			return data, fmt.Errorf("column %d: bad external_object_id %q", col, text)
		}
		data.ObjectIDs = append(data.ObjectIDs, id)
	}

	for typ, cols := range idx.Attributes {
		for _, col := range cols {
			if text := strings.TrimSpace(cell(row, col)); text != "" {
				data.Attributes[typ] = append(data.Attributes[typ], text)
			}
		}
	}
	for typ, cols := range idx.AttributeLists {
		for _, col := range cols {
			for _, item := range strings.Split(cell(row, col), ",") {
				if text := strings.TrimSpace(item); text != "" {
					data.Attributes[typ] = append(data.Attributes[typ], text)
				}
			}
		}
	}

	for slug, cols := range idx.Links {
		for _, col := range cols {
			if text := strings.TrimSpace(cell(row, col)); text != "" {
				data.Links[slug] = append(data.Links[slug], text)
			}
		}
	}
	return data, nil
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}
