package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

var yamlLine = regexp.MustCompile(`^line (\d+): (.*)$`)

// decodeYAML decodes a YAML (or JSON) plant document. Unknown keys are errors.
func decodeYAML(data []byte, path string) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Path: path, Errors: []ValidationError{{File: path, Message: "empty document"}}}
		}
		return nil, &LoadError{Path: path, Errors: yamlErrors(err, path)}
	}
	return &doc, nil
}

// yamlErrors splits a yaml.v3 error into located entries.
func yamlErrors(err error, path string) []ValidationError {
	var msgs []string
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		msgs = typeErr.Errors
	} else {
		msgs = []string{err.Error()}
	}

	out := make([]ValidationError, 0, len(msgs))
	for _, msg := range msgs {
		ve := ValidationError{File: path, Message: msg}
		if m := yamlLine.FindStringSubmatch(trimYAMLPrefix(msg)); m != nil {
			ve.Line, _ = strconv.Atoi(m[1])
			ve.Message = m[2]
		}
		out = append(out, ve)
	}
	return out
}

func trimYAMLPrefix(msg string) string {
	const prefix = "yaml: "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

// EncodeYAML renders a document as YAML.
func EncodeYAML(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
