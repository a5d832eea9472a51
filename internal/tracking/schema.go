package tracking

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
	"github.com/stoewer/go-strcase"
)

// TableNamer provides a custom table name for a tracked struct.
type TableNamer interface {
	TableName() string
}

// Field is a persisted struct field, described by its tags:
//
//	ID     int64  `db:"id" audit:"key,generated"`
//	Secret string `db:"secret" audit:"-"`
type Field struct {
	Column    string
	Key       bool
	Generated bool
	// Audited is false for fields tagged audit:"-"; they are persisted but
	// never reported to the capture engine.
	Audited bool
	index   []int
}

// Schema is the cached reflection metadata of a tracked struct type.
type Schema struct {
	Type   reflect.Type
	Table  string
	Fields []Field
}

// Field returns the field mapped to column.
func (s *Schema) Field(column string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return Field{}, false
}

// Keys returns the key fields in declaration order.
func (s *Schema) Keys() []Field {
	var keys []Field
	for _, f := range s.Fields {
		if f.Key {
			keys = append(keys, f)
		}
	}
	return keys
}

// Value reads the field from a struct value.
func (f Field) Value(rv reflect.Value) any {
	return rv.FieldByIndex(f.index).Interface()
}

// Addr returns a pointer to the field inside an addressable struct value.
func (f Field) Addr(rv reflect.Value) any {
	return rv.FieldByIndex(f.index).Addr().Interface()
}

var schemaCache sync.Map // map[reflect.Type]*Schema

// SchemaOf returns the cached schema for the struct behind v.
func SchemaOf(v any) (*Schema, error) {
	t := reflect.TypeOf(v)
	if t == nil {
		return nil, fmt.Errorf("tracking: nil entity")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tracking: unsupported entity type %v", t)
	}

	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*Schema), nil
	}

	s := &Schema{Type: t, Table: tableName(t)}
	collectFields(t, nil, &s.Fields)
	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("tracking: %v has no db-tagged fields", t)
	}
	if len(s.Keys()) == 0 {
		return nil, fmt.Errorf("tracking: %v has no key field (tag audit:\"key\")", t)
	}

	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*Schema), nil
}

// collectFields walks embedded structs recursively, like the column
// extraction used by the repositories.
func collectFields(t reflect.Type, parent []int, out *[]Field) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), parent...), i)

		if sf.Anonymous {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				continue
			}
			if ft.Kind() == reflect.Struct {
				collectFields(ft, index, out)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		column := sf.Tag.Get("db")
		if column == "" || column == "-" {
			continue
		}

		f := Field{Column: column, Audited: true, index: index}
		for _, opt := range strings.Split(sf.Tag.Get("audit"), ",") {
			switch strings.TrimSpace(opt) {
			case "key":
				f.Key = true
			case "generated":
				f.Generated = true
			case "-":
				f.Audited = false
			}
		}
		*out = append(*out, f)
	}
}

func tableName(t reflect.Type) string {
	if namer, ok := reflect.New(t).Interface().(TableNamer); ok {
		if name := strings.TrimSpace(namer.TableName()); name != "" {
			return name
		}
	}
	return inflection.Plural(strcase.SnakeCase(t.Name()))
}
