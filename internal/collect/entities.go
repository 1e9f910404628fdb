package collect

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxEntityLen bounds the distance between '&' and ';' ("#x10FFFF" is the longest).
const maxEntityLen = 9

// DecodeEntities decodes the five XML named entities (&amp; &lt; &gt; &quot;
// &apos;) and decimal/hexadecimal numeric references in one pass. Anything
// else, including malformed references, is left untouched.
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '&' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i+1:], ';')
		if end < 0 || end > maxEntityLen {
			b.WriteByte('&')
			i++
			continue
		}
		if decoded, ok := decodeReference(s[i+1 : i+1+end]); ok {
			b.WriteString(decoded)
			i += end + 2
			continue
		}
		b.WriteByte('&')
		i++
	}
	return b.String()
}

func decodeReference(ref string) (string, bool) {
	switch ref {
	case "amp":
		return "&", true
	case "lt":
		return "<", true
	case "gt":
		return ">", true
	case "quot":
		return `"`, true
	case "apos":
		return "'", true
	}

	if len(ref) < 2 || ref[0] != '#' {
		return "", false
	}
	digits, base := ref[1:], 10
	if digits[0] == 'x' || digits[0] == 'X' {
		digits, base = digits[1:], 16
	}
	if digits == "" {
		return "", false
	}
	n, err := strconv.ParseUint(digits, base, 32)
	if err != nil || n == 0 || !utf8.ValidRune(rune(n)) {
		return "", false
	}
	return string(rune(n)), true
}

// stripHTML removes markup and collapses whitespace. Entities are left encoded.
func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' && inTag {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}
	return collapseSpace(result.String())
}

// cdataMark tags text gofeed copied verbatim out of a CDATA section. gofeed
// decodes the entities of all other element text itself.
const cdataMark = "\uE000"

var textCDATA = regexp.MustCompile(`(?i)(<(?:title|description|summary|content|content:encoded)(?:\s[^>]*)?>\s*)<!\[CDATA\[`)

// markCDATA tags the CDATA sections of title and body elements.
func markCDATA(doc string) string {
	if !strings.Contains(doc, "<![CDATA[") {
		return doc
	}
	return textCDATA.ReplaceAllString(doc, "${1}<![CDATA["+cdataMark)
}

// unmark removes the CDATA mark and reports whether s still needs decoding.
// raw marks documents whose text the parser never decodes (JSON feeds).
func unmark(s string, raw bool) (string, bool) {
	if strings.Contains(s, cdataMark) {
		return strings.ReplaceAll(s, cdataMark, ""), true
	}
	return s, raw
}

// feedTitle returns a parsed item title with entities decoded exactly once.
func feedTitle(s string, raw bool) string {
	s, decode := unmark(s, raw)
	if decode {
		s = DecodeEntities(s)
	}
	return collapseSpace(s)
}

// feedBody is cleanText for parsed item bodies.
func feedBody(s string, raw bool) string {
	s, decode := unmark(s, raw)
	s = stripHTML(s)
	if decode {
		s = DecodeEntities(s)
	}
	return collapseSpace(s)
}

// cleanText strips markup, decodes entities and normalizes whitespace.
func cleanText(text string) string {
	return collapseSpace(DecodeEntities(stripHTML(text)))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanLink trims whitespace and a CDATA wrapper; no entity decoding.
func cleanLink(link string) string {
	link = strings.TrimSpace(link)
	if strings.HasPrefix(link, "<![CDATA[") && strings.HasSuffix(link, "]]>") {
		link = strings.TrimSpace(link[len("<![CDATA[") : len(link)-len("]]>")])
	}
	return link
}
