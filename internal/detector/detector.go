// Package detector maps post content to the tracked tools it mentions.
package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wasilibs/go-re2"
)

// ErrTransient marks detector failures that may succeed on retry
var ErrTransient = errors.New("transient detector error")

// Detector classifies content into a set of tool identifiers. Implementations
// must be free of side effects.
type Detector interface {
	Classify(ctx context.Context, content string) ([]string, error)
}

// Tool is one tracked tool and the phrases that indicate a mention of it
type Tool struct {
	ID       string   `mapstructure:"id"`
	Keywords []string `mapstructure:"keywords"`
}

type toolPattern struct {
	id string
	re *re2.Regexp
}

// KeywordDetector reports a tool when any of its keywords appears as a whole word
type KeywordDetector struct {
	patterns []toolPattern
}

// NewKeywordDetector compiles one case-insensitive pattern per tool
func NewKeywordDetector(tools []Tool) (*KeywordDetector, error) {
	d := &KeywordDetector{}
	for _, tool := range tools {
		if tool.ID == "" {
			return nil, fmt.Errorf("tool id is required")
		}

		var alts []string
		for _, kw := range tool.Keywords {
			kw = strings.TrimSpace(kw)
			if kw != "" {
				alts = append(alts, re2.QuoteMeta(kw))
			}
		}
		if len(alts) == 0 {
			alts = append(alts, re2.QuoteMeta(tool.ID))
		}

		expr := `(?i)(?:^|[^\pL\pN_])(?:` + strings.Join(alts, "|") + `)(?:$|[^\pL\pN_])`
		re, err := re2.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile keywords for tool %s: %w", tool.ID, err)
		}
		d.patterns = append(d.patterns, toolPattern{id: tool.ID, re: re})
	}
	return d, nil
}

// Classify returns the ids of every tool mentioned in content
func (d *KeywordDetector) Classify(ctx context.Context, content string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	for _, p := range d.patterns {
		if p.re.MatchString(content) {
			ids = append(ids, p.id)
		}
	}
	return ids, nil
}
