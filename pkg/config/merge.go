package config

import (
	"fmt"

	"dario.cat/mergo"
)

// mergeSection merges src (parsed from the user's YAML, may be nil) onto a
// copy of the built-in default, with non-zero fields in src taking
// precedence. Used for every section of Config so that a user only has to
// specify the fields they want to override.
func mergeSection[T any](dst *T, src *T) (*T, error) {
	if src == nil {
		return dst, nil
	}
	if err := mergo.Merge(dst, src, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config section: %w", err)
	}
	return dst, nil
}
