package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/preserve/pkg/preserve/filter"
)

// addFilterFlags registers the source selection flags.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("include", nil, "only files matching these glob patterns")
	cmd.Flags().StringSliceP("exclude", "e", nil, "skip files matching these glob patterns")
	cmd.Flags().StringArray("regex", nil, "only files whose path matches this regular expression (repeatable)")
	cmd.Flags().String("ext", "", "comma-separated extensions to keep (e.g., log,txt)")
	cmd.Flags().String("newer-than", "", "only files modified within this duration (e.g., 7d, 2w)")
	cmd.Flags().String("older-than", "", "only files not modified within this duration")
	cmd.Flags().String("min-size", "", "minimum file size (e.g., 1K, 100M)")
	cmd.Flags().String("max-size", "", "maximum file size")
}

// buildFilter creates a filter.Filter from the flags added by
// addFilterFlags.
func buildFilter(cmd *cobra.Command) (*filter.Filter, error) {
	var opts []filter.Option
	flags := cmd.Flags()

	if include, _ := flags.GetStringSlice("include"); len(include) > 0 {
		opts = append(opts, filter.WithInclude(include...))
	}
	if exclude, _ := flags.GetStringSlice("exclude"); len(exclude) > 0 {
		opts = append(opts, filter.WithExclude(exclude...))
	}

	if exprs, _ := flags.GetStringArray("regex"); len(exprs) > 0 {
		opts = append(opts, filter.WithRegex(exprs...))
	}

	if extStr, _ := flags.GetString("ext"); extStr != "" {
		opts = append(opts, filter.WithExtensions(parseCommaSeparated(extStr)...))
	}

	if s, _ := flags.GetString("newer-than"); s != "" {
		d, err := filter.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid newer-than %q: %w", s, err)
		}
		opts = append(opts, filter.WithNewerThan(d))
	}
	if s, _ := flags.GetString("older-than"); s != "" {
		d, err := filter.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid older-than %q: %w", s, err)
		}
		opts = append(opts, filter.WithOlderThan(d))
	}

	var minSize, maxSize int64
	if s, _ := flags.GetString("min-size"); s != "" {
		n, err := filter.ParseSize(s)
		if err != nil {
			return nil, fmt.Errorf("invalid min-size %q: %w", s, err)
		}
		minSize = n
	}
	if s, _ := flags.GetString("max-size"); s != "" {
		n, err := filter.ParseSize(s)
		if err != nil {
			return nil, fmt.Errorf("invalid max-size %q: %w", s, err)
		}
		maxSize = n
	}
	if minSize > 0 || maxSize > 0 {
		opts = append(opts, filter.WithSizeRange(minSize, maxSize))
	}

	return filter.New(opts...)
}

// parseCommaSeparated splits s on commas, trimming blanks.
func parseCommaSeparated(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
