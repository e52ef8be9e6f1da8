package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wanmail/uiharness"
	"github.com/wanmail/uiharness/cases"
)

// Case is one entry of the cases list. The type field selects the test case;
// the other fields are those of the matching type in package cases.
type Case struct {
	uiharness.TestCase
}

// caseTypes maps the type field to a constructor of the zero case.
var caseTypes = map[string]func() interface{}{
	"title":         func() interface{} { return &cases.Title{} },
	"login":         func() interface{} { return &cases.ValidLogin{} },
	"invalid_login": func() interface{} { return &cases.InvalidLogin{} },
	"search":        func() interface{} { return &cases.Search{} },
}

func caseTypeNames() string {
	names := make([]string, 0, len(caseTypes))
	for n := range caseTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func (c *Case) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: case must be a mapping", n.Line)
	}
	var head struct {
		Type string `yaml:"type"`
	}
	if err := n.Decode(&head); err != nil {
		return err
	}
	newCase, ok := caseTypes[head.Type]
	if !ok {
		return fmt.Errorf("line %d: unknown case type %q, want one of %s", n.Line, head.Type, caseTypeNames())
	}
	v := newCase()
	if err := checkKeys(n, v); err != nil {
		return err
	}
	if err := n.Decode(v); err != nil {
		return err
	}
	c.TestCase = reflect.ValueOf(v).Elem().Interface().(uiharness.TestCase)
	return nil
}

// checkKeys rejects keys of n that are neither "type" nor a yaml field of v.
// Decoding through a node does not honor the decoder's KnownFields setting.
func checkKeys(n *yaml.Node, v interface{}) error {
	known := map[string]bool{"type": true}
	t := reflect.TypeOf(v).Elem()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name == "" {
			name = strings.ToLower(t.Field(i).Name)
		}
		known[name] = true
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if !known[k.Value] {
			return fmt.Errorf("line %d: field %s not found in %s case", k.Line, k.Value, t.Name())
		}
	}
	return nil
}
