// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"fmt"
	"sort"

	"github.com/stacklok/toolgate/pkg/domain"
)

// validateArgs checks args against schema for required fields and
// top-level JSON types (spec §4.10 step 4: "at least for required
// fields and top-level types"), returning one message per violation in
// field-name order for deterministic error text.
func validateArgs(schema domain.InputSchema, args map[string]any) []string {
	var msgs []string

	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		param := schema[name]
		value, present := args[name]
		if !present {
			if param.Required {
				msgs = append(msgs, fmt.Sprintf("%s: required field is missing", name))
			}
			continue
		}
		if msg, ok := checkType(name, param, value); !ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func checkType(name string, param domain.ParamSchema, value any) (string, bool) {
	switch param.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("%s: expected string, got %T", name, value), false
		}
	case "number", "integer":
		switch value.(type) {
		case float64, float32, int, int32, int64:
		default:
			return fmt.Sprintf("%s: expected number, got %T", name, value), false
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("%s: expected boolean, got %T", name, value), false
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Sprintf("%s: expected array, got %T", name, value), false
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("%s: expected object, got %T", name, value), false
		}
	}
	return "", true
}
