// -----------------------------------------------------------------------
// Structure Extractor - heading-annotated text to outline forest
// -----------------------------------------------------------------------

package structure

import (
	"regexp"
	"strings"

	"github.com/ternarybob/libris/internal/models"
)

// headingPattern matches ATX headings of depth 1-6
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Extract turns heading-annotated markdown into an ordered outline forest.
//
// An explicit stack holds the path from the implicit root to the most
// recently opened heading. A heading of level L pops every open node with
// level >= L, then attaches under the new top (or at the top level when the
// stack empties). Skipped levels nest directly under the nearest open
// ancestor without placeholder nodes. Content before the first heading is
// emitted as an untitled level-0 preamble node, first, only when non-empty.
//
// The function is deterministic and side-effect-free, safe to call
// concurrently from multiple workers.
func Extract(markdown string) []*models.OutlineNode {
	forest := []*models.OutlineNode{}
	if markdown == "" {
		return forest
	}

	var stack []*models.OutlineNode
	var buf []string
	var preamble *models.OutlineNode

	flush := func() {
		if len(buf) == 0 {
			return
		}
		content := trimBlankLines(strings.Join(buf, "\n"))
		buf = buf[:0]
		if content == "" {
			return
		}
		if len(stack) > 0 {
			stack[len(stack)-1].Content = content
			return
		}
		// Content before any heading
		if preamble == nil {
			preamble = &models.OutlineNode{Level: 0, Children: []*models.OutlineNode{}}
			preamble.Content = content
		} else {
			preamble.Content += "\n" + content
		}
	}

	for _, line := range strings.Split(markdown, "\n") {
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			buf = append(buf, line)
			continue
		}

		flush()

		level := len(m[1])
		title := strings.TrimSpace(m[2])
		node := &models.OutlineNode{
			Title:    title,
			Level:    level,
			Children: []*models.OutlineNode{},
		}

		// Pop same-level siblings and deeper open headings
		for len(stack) > 0 && stack[len(stack)-1].Level >= level {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			forest = append(forest, node)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
		}

		stack = append(stack, node)
	}

	flush()

	if preamble != nil {
		forest = append([]*models.OutlineNode{preamble}, forest...)
	}

	return forest
}

// trimBlankLines strips leading and trailing blank lines while preserving
// internal whitespace
func trimBlankLines(content string) string {
	lines := strings.Split(content, "\n")

	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}

	return strings.Join(lines[start:end], "\n")
}
