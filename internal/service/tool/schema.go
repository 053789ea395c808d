package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Kind 参数类型
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	// KindAny 接受任意值
	KindAny Kind = ""
)

// ParseKind 解析存储的类型名，无法识别时返回 KindAny
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text":
		return KindString
	case "number", "float", "double":
		return KindNumber
	case "integer", "int":
		return KindInteger
	case "boolean", "bool":
		return KindBoolean
	case "array", "list":
		return KindArray
	case "object", "map":
		return KindObject
	default:
		return KindAny
	}
}

// Param 参数的内部表示
type Param struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool
	// Enum 仅对字符串生效
	Enum []string
	// Items 数组元素类型
	Items Kind
}

// Schema 编译后的 JSON Schema，同时保留参数列表供 LLM 函数描述使用
type Schema struct {
	doc      map[string]interface{}
	params   []*Param
	compiled *jsonschema.Schema
}

// NewSchema 从 JSON Schema 文档创建
func NewSchema(doc map[string]interface{}) (*Schema, error) {
	compiled, err := compile(doc)
	if err != nil {
		return nil, err
	}
	return &Schema{doc: doc, params: paramsFromDocument(doc), compiled: compiled}, nil
}

// MustSchema 同 NewSchema，出错时 panic，用于内置工具的静态 schema
func MustSchema(doc map[string]interface{}) *Schema {
	s, err := NewSchema(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// ObjectSchema 从参数列表构建对象 schema
func ObjectSchema(params ...*Param) (*Schema, error) {
	doc := documentFromParams(params)
	compiled, err := compile(doc)
	if err != nil {
		return nil, err
	}
	return &Schema{doc: doc, params: params, compiled: compiled}, nil
}

// MustObjectSchema 同 ObjectSchema，出错时 panic
func MustObjectSchema(params ...*Param) *Schema {
	s, err := ObjectSchema(params...)
	if err != nil {
		panic(err)
	}
	return s
}

// Document 返回 JSON Schema 文档
func (s *Schema) Document() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return s.doc
}

// Params 返回参数列表
func (s *Schema) Params() []*Param {
	if s == nil {
		return nil
	}
	return s.params
}

// Validate 校验参数
func (s *Schema) Validate(v map[string]interface{}) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	if v == nil {
		v = map[string]interface{}{}
	}
	inst, err := normalize(v)
	if err != nil {
		return fmt.Errorf("failed to normalize value: %w", err)
	}
	return s.compiled.Validate(inst)
}

// compile 先经过一次 JSON 编解码，保证文档只包含 JSON 基本类型
func compile(doc map[string]interface{}) (*jsonschema.Schema, error) {
	normalized, err := normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", normalized); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

func normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

func documentFromParams(params []*Param) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := make([]interface{}, 0)
	for _, p := range params {
		if p == nil || p.Name == "" {
			continue
		}
		properties[p.Name] = propertyFromParam(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func propertyFromParam(p *Param) map[string]interface{} {
	prop := map[string]interface{}{}
	if p.Description != "" {
		prop["description"] = p.Description
	}
	switch p.Kind {
	case KindString:
		prop["type"] = "string"
		if len(p.Enum) > 0 {
			enum := make([]interface{}, len(p.Enum))
			for i, e := range p.Enum {
				enum[i] = e
			}
			prop["enum"] = enum
		}
	case KindNumber, KindInteger, KindBoolean, KindObject:
		prop["type"] = string(p.Kind)
	case KindArray:
		prop["type"] = "array"
		if p.Items != KindAny {
			prop["items"] = map[string]interface{}{"type": string(p.Items)}
		}
	}
	return prop
}

// paramsFromDocument 从顶层 properties 推导参数列表
func paramsFromDocument(doc map[string]interface{}) []*Param {
	props, _ := doc["properties"].(map[string]interface{})
	if len(props) == 0 {
		return nil
	}

	required := map[string]bool{}
	switch req := doc["required"].(type) {
	case []string:
		for _, r := range req {
			required[r] = true
		}
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]*Param, 0, len(names))
	for _, name := range names {
		prop, _ := props[name].(map[string]interface{})
		p := &Param{Name: name, Required: required[name]}
		if prop != nil {
			t, _ := prop["type"].(string)
			p.Kind = ParseKind(t)
			p.Description, _ = prop["description"].(string)
			p.Enum = stringList(prop["enum"])
			if items, ok := prop["items"].(map[string]interface{}); ok {
				it, _ := items["type"].(string)
				p.Items = ParseKind(it)
			}
		}
		params = append(params, p)
	}
	return params
}

func stringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
