// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package serializer turns response values into role filtered JSON trees.

A type controls the visibility of its JSON fields by implementing Visible:

	func (User) VisibilityRules() serializer.Rules {
		return serializer.Rules{
			"password": serializer.Exclude(),
			"roles":    serializer.Roles(access.RoleAdmin),
		}
	}

Fields without a rule are visible to everybody. Serialize walks the value
recursively, so nested and embedded types apply their own rules. Types
marked as RawDocument must never be serialized; they are internal
persistence records which may carry secrets.
*/
package serializer

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"github.com/goccy/go-json"
)

// Rule is the visibility rule of a single field
type Rule struct {
	roles   []string
	exclude bool
}

// Exclude hides a field from everybody
func Exclude() Rule {
	return Rule{exclude: true}
}

// Roles makes a field visible only to callers with at least one of the roles.
// Without roles the field is visible to nobody.
func Roles(roles ...string) Rule {
	return Rule{roles: roles}
}

// Rules maps JSON field names to their visibility rules
type Rules map[string]Rule

// Visible is implemented by types which restrict the visibility of their fields
type Visible interface {
	VisibilityRules() Rules
}

// RawDocument marks persistence records which must not reach a client
type RawDocument interface {
	RawDocument()
}

// SafetyError is returned when a RawDocument is found in a response value
type SafetyError struct {
	Path string
	Type string
}

func (e *SafetyError) Error() string {
	return "Invalid return DTO"
}

// StatusCode returns http.StatusInternalServerError
func (e *SafetyError) StatusCode() int {
	return 500
}

// Member is a key value pair of an Object
type Member struct {
	Key   string
	Value interface{}
}

// Object is a JSON object with a fixed key order
type Object []Member

// MarshalJSON encodes the members in order
func (o Object) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.MarshalNoEscape(m.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.MarshalNoEscape(m.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", m.Key, err)
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(value)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// Get returns the value of a key
func (o Object) Get(key string) (interface{}, bool) {
	for _, m := range o {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in order
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, m := range o {
		keys[i] = m.Key
	}
	return keys
}

var (
	rawDocumentType   = reflect.TypeOf((*RawDocument)(nil)).Elem()
	visibleType       = reflect.TypeOf((*Visible)(nil)).Elem()
	marshalerType     = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// Serialize returns value as a tree of Object, []interface{} and scalar
// leaves, with every field removed that the roles may not see. It fails with
// *SafetyError if a RawDocument is found anywhere in the value.
//
// Values implementing json.Marshaler or encoding.TextMarshaler are leaves
// and are not inspected, unless they implement Visible.
func Serialize(value interface{}, roles []string) (interface{}, error) {
	w := &walker{roles: roles}
	return w.walk(reflect.ValueOf(value), "$")
}

type walker struct {
	roles []string
}

func isRaw(t reflect.Type) bool {
	if t.Implements(rawDocumentType) {
		return true
	}
	return t.Kind() != reflect.Ptr && reflect.PtrTo(t).Implements(rawDocumentType)
}

func isLeaf(t reflect.Type) bool {
	if t.Implements(visibleType) || (t.Kind() != reflect.Ptr && reflect.PtrTo(t).Implements(visibleType)) {
		return false
	}
	return t.Implements(marshalerType) || t.Implements(textMarshalerType)
}

func (w *walker) walk(v reflect.Value, path string) (interface{}, error) {
	if !v.IsValid() {
		return nil, nil
	}
	t := v.Type()
	if isRaw(t) {
		return nil, &SafetyError{Path: path, Type: t.String()}
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			return nil, nil
		}
		if v.Kind() == reflect.Ptr && isLeaf(t) {
			return v.Interface(), nil
		}
		return w.walk(v.Elem(), path)
	}

	if isLeaf(t) {
		return v.Interface(), nil
	}

	switch v.Kind() {
	case reflect.Struct:
		if !v.CanAddr() {
			c := reflect.New(t).Elem()
			c.Set(v)
			v = c
		}
		obj := &object{members: Object{}, depth: map[string]int{}}
		if err := w.appendFields(obj, v, rulesOf(v), path, 0); err != nil {
			return nil, err
		}
		return obj.members, nil

	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		return w.walkMap(v, path)

	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return v.Interface(), nil
		}
		fallthrough
	case reflect.Array:
		array := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			element, err := w.walk(v.Index(i), path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			array[i] = element
		}
		return array, nil

	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, fmt.Errorf("cannot serialize %s at %s", t, path)
	}
	return v.Interface(), nil
}

func (w *walker) walkMap(v reflect.Value, path string) (interface{}, error) {
	type entry struct {
		key   string
		value reflect.Value
	}
	var entries []entry
	iter := v.MapRange()
	for iter.Next() {
		key, err := mapKey(iter.Key())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		entries = append(entries, entry{key: key, value: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	obj := make(Object, 0, len(entries))
	for _, e := range entries {
		value, err := w.walk(e.value, path+"."+e.key)
		if err != nil {
			return nil, err
		}
		obj = append(obj, Member{Key: e.key, Value: value})
	}
	return obj, nil
}

func mapKey(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		b, err := tm.MarshalText()
		return string(b), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", fmt.Errorf("unsupported map key type %s", k.Type())
}

// object collects struct members. Like encoding/json, a field from a less
// deeply embedded struct wins over one with the same name further down.
type object struct {
	members Object
	depth   map[string]int
}

func (o *object) set(key string, value interface{}, depth int) {
	have, ok := o.depth[key]
	if !ok {
		o.depth[key] = depth
		o.members = append(o.members, Member{Key: key, Value: value})
		return
	}
	if depth < have {
		o.depth[key] = depth
		for i := range o.members {
			if o.members[i].Key == key {
				o.members[i].Value = value
			}
		}
	}
}

func (w *walker) appendFields(obj *object, v reflect.Value, rules Rules, path string, depth int) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := v.Field(i)

		if !f.IsExported() {
			// like encoding/json, exported fields of unexported embedded
			// structs are promoted
			if !f.Anonymous || name != "" || indirect(f.Type).Kind() != reflect.Struct {
				continue
			}
			fv = reflect.NewAt(f.Type, unsafe.Pointer(fv.UnsafeAddr())).Elem()
		}

		if f.Anonymous && name == "" {
			inner, ft := fv, f.Type
			if ft.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				inner, ft = fv.Elem(), ft.Elem()
			}
			if ft.Kind() == reflect.Struct && !isLeaf(ft) {
				if isRaw(ft) {
					return &SafetyError{Path: path, Type: ft.String()}
				}
				if err := w.appendFields(obj, inner, mergeRules(rulesOf(inner), rules), path, depth+1); err != nil {
					return err
				}
				continue
			}
		}
		if !f.IsExported() {
			continue
		}

		if name == "" {
			name = f.Name
		}
		if !w.visible(rules, name) {
			continue
		}
		if hasOption(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}
		value, err := w.walk(fv, path+"."+name)
		if err != nil {
			return err
		}
		obj.set(name, value, depth)
	}
	return nil
}

func (w *walker) visible(rules Rules, name string) bool {
	rule, ok := rules[name]
	if !ok {
		return true
	}
	if rule.exclude {
		return false
	}
	for _, want := range rule.roles {
		for _, have := range w.roles {
			if want == have {
				return true
			}
		}
	}
	return false
}

func rulesOf(v reflect.Value) Rules {
	t := v.Type()
	if t.Implements(visibleType) {
		return v.Interface().(Visible).VisibilityRules()
	}
	if reflect.PtrTo(t).Implements(visibleType) {
		if v.CanAddr() {
			return v.Addr().Interface().(Visible).VisibilityRules()
		}
		p := reflect.New(t)
		p.Elem().Set(v)
		return p.Interface().(Visible).VisibilityRules()
	}
	return nil
}

// mergeRules returns inner overlaid with outer
func mergeRules(inner, outer Rules) Rules {
	if len(inner) == 0 {
		return outer
	}
	merged := Rules{}
	for k, r := range inner {
		merged[k] = r
	}
	for k, r := range outer {
		merged[k] = r
	}
	return merged
}

func indirect(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}

func hasOption(opts, option string) bool {
	for opts != "" {
		var o string
		o, opts, _ = strings.Cut(opts, ",")
		if o == option {
			return true
		}
	}
	return false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}
