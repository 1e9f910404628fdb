package llm

import (
	"strings"
)

// Sections is the structured part of a summarization reply.
type Sections struct {
	Summary    string   // raw SUMMARY text, may still contain markdown
	Categories []string // CATEGORIES entries in reply order, unvalidated
}

// ParseSections extracts the SUMMARY: and CATEGORIES: blocks from a free-text
// reply. Headers are matched case-insensitively and may be decorated with
// markdown emphasis or heading marks. A block runs until the next header.
func ParseSections(text string) Sections {
	text = stripCodeFence(strings.TrimSpace(text))

	var summary, categories []string
	var current *[]string
	for _, line := range strings.Split(text, "\n") {
		if name, rest, ok := sectionHeader(line); ok {
			switch name {
			case "summary":
				current = &summary
			case "categories":
				current = &categories
			}
			if rest != "" {
				*current = append(*current, rest)
			}
			continue
		}
		if current != nil {
			*current = append(*current, line)
		}
	}

	return Sections{
		Summary:    strings.TrimSpace(strings.Join(summary, "\n")),
		Categories: splitCategories(categories),
	}
}

// sectionHeader recognizes "SUMMARY: ..." style lines, returning the lowered
// section name and the remainder after the colon.
func sectionHeader(line string) (string, string, bool) {
	trimmed := strings.TrimLeft(strings.TrimSpace(line), "#*_ ")
	colon := strings.IndexByte(trimmed, ':')
	if colon < 0 {
		return "", "", false
	}
	name := strings.ToLower(strings.TrimRight(trimmed[:colon], "*_ "))
	if name != "summary" && name != "categories" {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimLeft(trimmed[colon+1:], "*_"))
	return name, rest, true
}

func splitCategories(lines []string) []string {
	var out []string
	for _, line := range lines {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			part = strings.TrimLeft(part, "-*•0123456789. ")
			part = strings.Trim(part, "\"'`*_[] ")
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.Join(lines[1:endIdx], "\n")
}
