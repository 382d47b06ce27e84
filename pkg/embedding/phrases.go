// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package embedding

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed domain_phrases.yaml
var defaultPhrasesYAML []byte

// LoadDefaultAugmentation returns the built-in category -> phrases map
// shipped with the binary (spec §4.5).
func LoadDefaultAugmentation() (map[string][]string, error) {
	return parseAugmentation(defaultPhrasesYAML)
}

// LoadAugmentationFile reads a category -> phrases map from a
// user-supplied YAML file, letting an operator override or extend the
// defaults without a rebuild.
func LoadAugmentationFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading augmentation phrases %q: %w", path, err)
	}
	return parseAugmentation(data)
}

func parseAugmentation(data []byte) (map[string][]string, error) {
	var m map[string][]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing augmentation phrases: %w", err)
	}
	return m, nil
}
