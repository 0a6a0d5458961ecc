package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/itgen"
)

// sigFile is the JSON description of a module's typed interface, the input
// of the embed command.
type sigFile struct {
	Records []struct {
		Name   string     `json:"name"`
		Fields []sigField `json:"fields"`
	} `json:"records"`
	Imports []struct {
		Namespace string     `json:"namespace"`
		Name      string     `json:"name"`
		Arguments []sigField `json:"arguments"`
		Outputs   []string   `json:"outputs"`
	} `json:"imports"`
	Functions []struct {
		Name      string     `json:"name"`
		Arguments []sigField `json:"arguments"`
		Outputs   []string   `json:"outputs"`
	} `json:"functions"`
}

type sigField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// buildResolver parses a signature file into a generator Resolver.
func buildResolver(data []byte) (*itgen.Resolver, error) {
	var sf sigFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("invalid signature file: %w", err)
	}

	gen := itgen.NewResolver()
	recordIDs := map[string]uint64{}
	for _, rec := range sf.Records {
		fields, err := parseFields(rec.Fields, recordIDs)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", rec.Name, err)
		}
		id, err := gen.AddRecord(rec.Name, fields)
		if err != nil {
			return nil, err
		}
		recordIDs[rec.Name] = id
	}
	for _, imp := range sf.Imports {
		args, err := parseFields(imp.Arguments, recordIDs)
		if err != nil {
			return nil, fmt.Errorf("import %s.%s: %w", imp.Namespace, imp.Name, err)
		}
		outputs, err := parseTypeList(imp.Outputs, recordIDs)
		if err != nil {
			return nil, fmt.Errorf("import %s.%s: %w", imp.Namespace, imp.Name, err)
		}
		argList := make([]api.FunctionArg, len(args))
		for i, f := range args {
			argList[i] = api.FunctionArg{Name: f.Name, Type: f.Type}
		}
		if err := gen.AddImport(imp.Namespace, imp.Name, argList, outputs); err != nil {
			return nil, err
		}
	}
	for _, fn := range sf.Functions {
		args, err := parseFields(fn.Arguments, recordIDs)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", fn.Name, err)
		}
		outputs, err := parseTypeList(fn.Outputs, recordIDs)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", fn.Name, err)
		}
		argList := make([]api.FunctionArg, len(args))
		for i, f := range args {
			argList[i] = api.FunctionArg{Name: f.Name, Type: f.Type}
		}
		if err := gen.AddFunc(fn.Name, argList, outputs); err != nil {
			return nil, err
		}
	}
	return gen, nil
}

func parseFields(fields []sigField, recordIDs map[string]uint64) ([]api.RecordField, error) {
	ret := make([]api.RecordField, len(fields))
	for i, f := range fields {
		ty, err := parseType(f.Type, recordIDs)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		ret[i] = api.RecordField{Name: f.Name, Type: ty}
	}
	return ret, nil
}

func parseTypeList(types []string, recordIDs map[string]uint64) ([]api.IType, error) {
	ret := make([]api.IType, len(types))
	for i, s := range types {
		ty, err := parseType(s, recordIDs)
		if err != nil {
			return nil, err
		}
		ret[i] = ty
	}
	return ret, nil
}

var scalarTypes = map[string]api.IType{
	"bool":       api.TypeBool,
	"s8":         api.TypeS8,
	"s16":        api.TypeS16,
	"s32":        api.TypeS32,
	"s64":        api.TypeS64,
	"u8":         api.TypeU8,
	"u16":        api.TypeU16,
	"u32":        api.TypeU32,
	"u64":        api.TypeU64,
	"f32":        api.TypeF32,
	"f64":        api.TypeF64,
	"string":     api.TypeString,
	"byte_array": api.TypeByteArray,
}

// parseType parses the textual type grammar, e.g. "u32", "array(string)",
// "record(point)" (by name) or "record(0)" (by id).
func parseType(s string, recordIDs map[string]uint64) (api.IType, error) {
	s = strings.TrimSpace(s)
	if ty, ok := scalarTypes[s]; ok {
		return ty, nil
	}
	switch {
	case strings.HasPrefix(s, "array(") && strings.HasSuffix(s, ")"):
		elem, err := parseType(s[len("array(") : len(s)-1], recordIDs)
		if err != nil {
			return api.IType{}, err
		}
		return api.TypeArrayOf(elem), nil
	case strings.HasPrefix(s, "record(") && strings.HasSuffix(s, ")"):
		ref := strings.TrimSpace(s[len("record(") : len(s)-1])
		if id, ok := recordIDs[ref]; ok {
			return api.TypeRecordOf(id), nil
		}
		id, err := strconv.ParseUint(ref, 10, 64)
		if err != nil {
			return api.IType{}, fmt.Errorf("unknown record %q", ref)
		}
		return api.TypeRecordOf(id), nil
	default:
		return api.IType{}, fmt.Errorf("unknown type %q", s)
	}
}
