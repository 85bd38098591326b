package ogm

import (
	"fmt"
	"strings"

	"github.com/armchr/graphogm/internal/cypher"
	"github.com/armchr/graphogm/internal/storage"

	"github.com/google/uuid"
)

// UUIDKey is the property every node and edge is identified by.
const UUIDKey = "uuid"

// Property declares one property of a node or relationship type.
type Property struct {
	Name     string
	Required bool
	Unique   bool
	// Default is used when no value is given. DefaultFunc takes precedence
	// and is called once per write.
	Default     any
	DefaultFunc func() any
	// ExternallyStored properties hold a public URL in the graph while the
	// file itself lives in the configured storage.
	ExternallyStored bool
}

// NewUUID returns a random identifier as 32 lowercase hex digits.
func NewUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func uuidProperty() Property {
	return Property{Name: UUIDKey, Unique: true, DefaultFunc: func() any { return NewUUID() }}
}

// HasDefault reports whether a static or computed default is declared.
func (p Property) HasDefault() bool {
	return p.Default != nil || p.DefaultFunc != nil
}

func (p Property) check(owner string) error {
	if err := cypher.CheckIdentifier("property", p.Name); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchema, owner, err)
	}
	if p.Name == UUIDKey {
		return fmt.Errorf("%w: %s: property %q is declared automatically", ErrSchema, owner, UUIDKey)
	}
	if p.Required && p.HasDefault() {
		return fmt.Errorf("%w: %s.%s: required and default are mutually exclusive", ErrSchema, owner, p.Name)
	}
	return nil
}

func (p Property) defaultValue() any {
	if p.DefaultFunc != nil {
		return p.DefaultFunc()
	}
	return p.Default
}

// propertySet is an ordered set of declarations. The uuid property always
// comes first; later declarations replace earlier ones with the same name.
type propertySet struct {
	list  []Property
	index map[string]int
}

func newPropertySet(owner string, inherited []Property, own []Property) (propertySet, error) {
	s := propertySet{index: make(map[string]int)}
	s.put(uuidProperty())
	for _, p := range inherited {
		if p.Name != UUIDKey {
			s.put(p)
		}
	}
	for _, p := range own {
		if err := p.check(owner); err != nil {
			return propertySet{}, err
		}
		s.put(p)
	}
	return s, nil
}

func (s *propertySet) put(p Property) {
	if i, ok := s.index[p.Name]; ok {
		s.list[i] = p
		return
	}
	s.index[p.Name] = len(s.list)
	s.list = append(s.list, p)
}

func (s propertySet) get(name string) (Property, bool) {
	i, ok := s.index[name]
	if !ok {
		return Property{}, false
	}
	return s.list[i], true
}

func (s propertySet) declared() []Property {
	return append([]Property(nil), s.list...)
}

// resolve computes the value of every declared property of a new node or
// edge: the input, else the default, else a required error. Uploads for
// externally stored properties are left in the result for the caller to
// store once the unique checks have passed.
func (s propertySet) resolve(owner string, input map[string]any) (map[string]any, error) {
	for name := range input {
		if _, ok := s.index[name]; !ok {
			return nil, fmt.Errorf("%w: %s has no property %q", ErrProperty, owner, name)
		}
	}

	values := make(map[string]any, len(s.list))
	for _, p := range s.list {
		value := call(input[p.Name])
		if p.ExternallyStored {
			upload, ok, err := asUpload(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrProperty, owner, p.Name, err)
			}
			if ok {
				values[p.Name] = upload
				continue
			}
			value = nil
		}
		if value == nil && p.HasDefault() {
			value = p.defaultValue()
		}
		if value == nil {
			if p.Required {
				return nil, fmt.Errorf("%w: %s.%s", ErrRequiredConstraint, owner, p.Name)
			}
			continue
		}
		normalized, err := normalizeValue(owner, p.Name, value)
		if err != nil {
			return nil, err
		}
		values[p.Name] = normalized
	}
	return values, nil
}

// call invokes value when it is a factory.
func call(value any) any {
	switch f := value.(type) {
	case func() any:
		return f()
	case func() string:
		return f()
	default:
		return value
	}
}

// normalizeValue maps value onto a type the driver can store as a property.
func normalizeValue(owner, name string, value any) (any, error) {
	normalized, err := cypher.Normalize(call(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrProperty, owner, name, err)
	}
	return normalized, nil
}

// asUpload accepts what may be written to an externally stored property. The
// second result is false for empty values.
func asUpload(value any) (storage.Upload, bool, error) {
	switch v := value.(type) {
	case nil:
		return storage.Upload{}, false, nil
	case string:
		if v == "" {
			return storage.Upload{}, false, nil
		}
	case storage.Upload:
		return v, true, nil
	case *storage.Upload:
		if v == nil {
			return storage.Upload{}, false, nil
		}
		return *v, true, nil
	}
	return storage.Upload{}, false, fmt.Errorf("expected a storage.Upload, got %T", value)
}
