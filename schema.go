// schema.go: YAML data-format schemas
//
// A schema file describes the wire format of every data ID a driver can
// produce: one descriptor per ID, each with an ordered list of fields
// (name, unit, type). The core hands parsed descriptors to the driver when
// it declares which IDs its hardware actually supports; consumers can fetch
// them to decode record payloads.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

import (
	"fmt"
	"os"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// FieldType enumerates the primitive types a schema field can carry.
type FieldType int

const (
	FieldTypeBool FieldType = iota
	FieldTypeInt8
	FieldTypeInt16
	FieldTypeInt32
	FieldTypeInt64
	FieldTypeUint8
	FieldTypeUint16
	FieldTypeUint32
	FieldTypeUint64
	FieldTypeFloat32
	FieldTypeFloat64
	FieldTypeBytes  // variable length, must be the last field
	FieldTypeString // variable length; driver init args only
)

// fieldTypeNames maps the spellings accepted in schema and config files.
var fieldTypeNames = map[string]FieldType{
	"bool":    FieldTypeBool,
	"int8":    FieldTypeInt8,
	"int16":   FieldTypeInt16,
	"int32":   FieldTypeInt32,
	"int64":   FieldTypeInt64,
	"uint8":   FieldTypeUint8,
	"uint16":  FieldTypeUint16,
	"uint32":  FieldTypeUint32,
	"uint64":  FieldTypeUint64,
	"float":   FieldTypeFloat32,
	"float32": FieldTypeFloat32,
	"double":  FieldTypeFloat64,
	"float64": FieldTypeFloat64,
	"bytes":   FieldTypeBytes,
	"string":  FieldTypeString,
}

// String returns the canonical schema-file spelling of the type.
func (t FieldType) String() string {
	switch t {
	case FieldTypeBool:
		return "bool"
	case FieldTypeInt8:
		return "int8"
	case FieldTypeInt16:
		return "int16"
	case FieldTypeInt32:
		return "int32"
	case FieldTypeInt64:
		return "int64"
	case FieldTypeUint8:
		return "uint8"
	case FieldTypeUint16:
		return "uint16"
	case FieldTypeUint32:
		return "uint32"
	case FieldTypeUint64:
		return "uint64"
	case FieldTypeFloat32:
		return "float32"
	case FieldTypeFloat64:
		return "float64"
	case FieldTypeBytes:
		return "bytes"
	case FieldTypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Size returns the encoded size of the type in bytes, or -1 for
// variable-length types.
func (t FieldType) Size() int {
	switch t {
	case FieldTypeBool, FieldTypeInt8, FieldTypeUint8:
		return 1
	case FieldTypeInt16, FieldTypeUint16:
		return 2
	case FieldTypeInt32, FieldTypeUint32, FieldTypeFloat32:
		return 4
	case FieldTypeInt64, FieldTypeUint64, FieldTypeFloat64:
		return 8
	default:
		return -1
	}
}

// parseFieldType resolves a schema-file type spelling.
func parseFieldType(s string) (FieldType, error) {
	t, ok := fieldTypeNames[s]
	if !ok {
		return 0, errors.New(ErrCodeInvalidSchema, "unknown field type").
			WithContext("type", s)
	}
	return t, nil
}

// FieldFmt describes one field of a record payload. Offset is computed from
// the sizes of the preceding fields.
type FieldFmt struct {
	Name   string
	Unit   string
	Type   FieldType
	Offset int
	Size   int
}

// SchemaDesc describes the payload format of one data ID.
type SchemaDesc struct {
	DataID DataID
	Name   string
	Fields []FieldFmt
}

// rawSchemaFile mirrors the YAML layout of a schema file.
type rawSchemaFile struct {
	Descriptors []struct {
		ID     uint64 `yaml:"id"`
		Name   string `yaml:"name"`
		Fields []struct {
			Name string `yaml:"name"`
			Unit string `yaml:"unit"`
			Type string `yaml:"type"`
		} `yaml:"fields"`
	} `yaml:"descriptors"`
}

// ParseSchemaFile reads and validates a schema file. Descriptors come back
// in file order with field offsets filled in.
func ParseSchemaFile(path string) ([]SchemaDesc, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- schema path comes from the operator's config
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidSchema, "failed to read schema file").
			WithContext("path", path)
	}
	return parseSchema(data)
}

// parseSchema parses schema YAML from memory. Split from ParseSchemaFile so
// tests and embedders can feed schemas without touching the filesystem.
func parseSchema(data []byte) ([]SchemaDesc, error) {
	var raw rawSchemaFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidSchema, "malformed schema YAML")
	}
	if len(raw.Descriptors) == 0 {
		return nil, errors.New(ErrCodeInvalidSchema, "schema contains no descriptors")
	}

	seen := make(map[DataID]bool, len(raw.Descriptors))
	descs := make([]SchemaDesc, 0, len(raw.Descriptors))
	for _, rd := range raw.Descriptors {
		id := DataID(rd.ID)
		if seen[id] {
			return nil, errors.New(ErrCodeInvalidSchema, "duplicate data ID in schema").
				WithContext("data_id", rd.ID)
		}
		seen[id] = true

		if rd.Name == "" {
			return nil, errors.New(ErrCodeInvalidSchema, "descriptor missing name").
				WithContext("data_id", rd.ID)
		}
		if len(rd.Name) >= DeviceNameMax {
			return nil, errors.New(ErrCodeInvalidString, "descriptor name too long").
				WithContext("name", rd.Name)
		}
		if len(rd.Fields) == 0 {
			return nil, errors.New(ErrCodeInvalidSchema, "descriptor has no fields").
				WithContext("data_id", rd.ID)
		}

		desc := SchemaDesc{
			DataID: id,
			Name:   rd.Name,
			Fields: make([]FieldFmt, 0, len(rd.Fields)),
		}
		offset := 0
		for i, rf := range rd.Fields {
			if rf.Name == "" {
				return nil, errors.New(ErrCodeInvalidSchema, "field missing name").
					WithContext("descriptor", rd.Name).
					WithContext("index", i)
			}
			t, err := parseFieldType(rf.Type)
			if err != nil {
				return nil, err
			}
			size := t.Size()
			if size < 0 && i != len(rd.Fields)-1 {
				return nil, errors.New(ErrCodeInvalidSchema,
					fmt.Sprintf("variable-length field %q must be last", rf.Name)).
					WithContext("descriptor", rd.Name)
			}
			desc.Fields = append(desc.Fields, FieldFmt{
				Name:   rf.Name,
				Unit:   rf.Unit,
				Type:   t,
				Offset: offset,
				Size:   size,
			})
			if size > 0 {
				offset += size
			}
		}
		descs = append(descs, desc)
	}

	return descs, nil
}
