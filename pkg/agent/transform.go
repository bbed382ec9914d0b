package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The model streams articles token by token, so the XML code blocks it
// emits are routinely half-formed: unclosed tags, truncated closing tags,
// inconsistently escaped entities. The helpers here repair that output far
// enough to parse, convert the XML blocks to a markdown form the UI
// renders, and split off the [^summary] conclusion footnote.

var (
	openTagRe     = regexp.MustCompile(`\n\s*(<(\w+)>)`)
	halfTagRe     = regexp.MustCompile(`<[^>]*$`)
	commentRe     = regexp.MustCompile(`<!--(?s:.*?)-->`)
	codeSectionRe = regexp.MustCompile(`(?s)<(Generated|Quoted)Code>\s*<Code>(.*)`)
	linkAnchorRe  = regexp.MustCompile(`\]\(([^()\s#]+)#L(\d+)(-L(\d+))?\)`)
)

// codeBlockTags is the closing order used when repairing missing tags.
var codeBlockTags = []string{
	"Code", "Language", "Path", "StartLine", "EndLine", "QuotedCode", "GeneratedCode",
}

// xmlForEach walks every top-level XML block in the article and replaces it
// with f's output; a nil return keeps the block as is.
func xmlForEach(article string, f func(xml string) *string) string {
	var out strings.Builder
	rest := article

	for {
		loc := openTagRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}

		tagStart := loc[2]
		name := rest[loc[4]:loc[5]]

		out.WriteString(rest[:tagStart])

		var xml string
		closeTag := "</" + name + ">"
		if end := strings.Index(rest[tagStart:], closeTag); end >= 0 {
			xml = rest[tagStart : tagStart+end+len(closeTag)]
			rest = rest[tagStart+end+len(closeTag):]
		} else {
			xml = rest[tagStart:]
			rest = ""
		}

		if update := f(xml); update != nil {
			out.WriteString(*update)
		} else {
			out.WriteString(xml)
		}
	}

	out.WriteString(rest)
	return out.String()
}

// fixupXMLCode repairs a single code-block XML fragment: entities inside
// <Code> are unescaped then re-escaped so mixed input normalizes, trailing
// half-open tags are removed, and missing closing tags are appended in the
// order they are expected to appear.
func fixupXMLCode(xml string) string {
	if !strings.HasPrefix(strings.TrimSpace(xml), "<") {
		return xml
	}

	m := codeSectionRe.FindStringSubmatchIndex(xml)
	if m == nil {
		return xml
	}

	var buf strings.Builder
	buf.WriteString(xml[:m[4]])

	section := xml[m[4]:]
	codeLen := len(section)
	if end := strings.Index(section, "</Code>"); end >= 0 {
		codeLen = end
	}
	code, tail := section[:codeLen], section[codeLen:]

	// Naively unescape then re-escape: the model mixes escaped and raw
	// entities, and normalizing in two passes fixes both.
	code = strings.ReplaceAll(code, "&lt;", "<")
	code = strings.ReplaceAll(code, "&gt;", ">")
	code = strings.ReplaceAll(code, "&amp;", "&")

	code = strings.ReplaceAll(code, "&", "&amp;")
	code = strings.ReplaceAll(code, "<", "&lt;")
	code = strings.ReplaceAll(code, ">", "&gt;")

	buf.WriteString(code)
	buf.WriteString(tail)

	repaired := halfTagRe.ReplaceAllString(buf.String(), "")

	for _, tag := range codeBlockTags {
		opening := "<" + tag + ">"
		closing := "</" + tag + ">"
		if strings.Contains(repaired, opening) && !strings.Contains(repaired, closing) {
			repaired += closing
		}
	}

	return repaired
}

// xmlField extracts the text between <tag> and </tag>, unescaping code
// entities.
func xmlField(xml, tag string) string {
	opening := "<" + tag + ">"
	closing := "</" + tag + ">"

	start := strings.Index(xml, opening)
	if start < 0 {
		return ""
	}
	start += len(opening)
	end := strings.Index(xml[start:], closing)
	if end < 0 {
		return ""
	}

	v := xml[start : start+end]
	v = strings.ReplaceAll(v, "&lt;", "<")
	v = strings.ReplaceAll(v, "&gt;", ">")
	v = strings.ReplaceAll(v, "&amp;", "&")
	return strings.Trim(v, "\n")
}

// xmlToMarkdown renders a repaired code-block XML fragment as a fenced
// markdown block tagged with its metadata.
func xmlToMarkdown(xml string) *string {
	fixed := fixupXMLCode(xml)

	var ty string
	switch {
	case strings.Contains(fixed, "<QuotedCode>"):
		ty = "Quoted"
	case strings.Contains(fixed, "<GeneratedCode>"):
		ty = "Generated"
	default:
		return nil
	}

	code := xmlField(fixed, "Code")
	lang := xmlField(fixed, "Language")
	path := xmlField(fixed, "Path")

	start, _ := strconv.Atoi(xmlField(fixed, "StartLine"))
	end, _ := strconv.Atoi(xmlField(fixed, "EndLine"))
	if start > 0 {
		start--
	}
	if end > 0 {
		end--
	}

	out := fmt.Sprintf("```type:%s,lang:%s,path:%s,lines:%d-%d\n%s\n```", ty, lang, path, start, end, code)
	return &out
}

// redactCodeXML rewrites a code block with its code replaced by [REDACTED],
// used when summarizing past answers into history.
func redactCodeXML(xml string) *string {
	fixed := fixupXMLCode(xml)

	lang := xmlField(fixed, "Language")

	switch {
	case strings.Contains(fixed, "<QuotedCode>"):
		path := xmlField(fixed, "Path")
		var lines string
		if s := xmlField(fixed, "StartLine"); s != "" {
			lines += "<StartLine>" + s + "</StartLine>\n"
		}
		if e := xmlField(fixed, "EndLine"); e != "" {
			lines += "<EndLine>" + e + "</EndLine>\n"
		}
		out := fmt.Sprintf("<QuotedCode>\n<Code>[REDACTED]</Code>\n<Language>%s</Language>\n<Path>%s</Path>\n%s</QuotedCode>", lang, path, lines)
		return &out

	case strings.Contains(fixed, "<GeneratedCode>"):
		out := fmt.Sprintf("<GeneratedCode>\n<Code>[REDACTED]</Code>\n<Language>%s</Language>\n</GeneratedCode>", lang)
		return &out
	}

	return nil
}

// offsetEmbeddedLinks shifts the L anchors of markdown links by offset; the
// model speaks 1-based line numbers, storage is 0-based.
func offsetEmbeddedLinks(text string, offset int) string {
	return linkAnchorRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := linkAnchorRe.FindStringSubmatch(m)
		start, err := strconv.Atoi(sub[2])
		if err != nil {
			return m
		}
		if sub[4] != "" {
			end, err := strconv.Atoi(sub[4])
			if err != nil {
				return m
			}
			return fmt.Sprintf("](%s#L%d-L%d)", sub[1], start+offset, end+offset)
		}
		return fmt.Sprintf("](%s#L%d)", sub[1], start+offset)
	})
}

// sanitize repairs every XML block, strips comments and normalizes a
// dangling summary marker.
func sanitize(article string) string {
	fixed := xmlForEach(article, func(xml string) *string {
		out := fixupXMLCode(xml)
		return &out
	})
	fixed = commentRe.ReplaceAllString(fixed, "")
	return strings.ReplaceAll(fixed, "\n\n[^summary]:\n", "\n\n[^summary]: ")
}

// DecodeArticle parses a model answer into its rendered body and the
// [^summary] conclusion, if present.
func DecodeArticle(llmMessage string) (string, string) {
	sanitized := sanitize(llmMessage)
	markdown := xmlForEach(sanitized, xmlToMarkdown)
	markdown = offsetEmbeddedLinks(markdown, -1)

	marker := "[^summary]:"
	idx := strings.LastIndex(markdown, marker)
	if idx < 0 {
		return strings.TrimSpace(markdown), ""
	}

	body := strings.TrimSpace(markdown[:idx])
	conclusion := strings.TrimSpace(markdown[idx+len(marker):])
	return body, conclusion
}

// summaryTokenLimit bounds how much of a past answer survives into
// history.
const summaryTokenLimit = 500

// EncodeSummarized re-encodes a decoded article for history: fenced code
// blocks return to XML with their code redacted, links return to 1-based
// anchors and the result is clipped to the summary token budget.
func EncodeSummarized(markdown string) string {
	encoded := encodeArticle(markdown)
	redacted := xmlForEach(encoded, redactCodeXML)

	limit := summaryTokenLimit * 4
	if len(redacted) > limit {
		redacted = redacted[:limit]
	}
	return redacted
}

var fencedBlockRe = regexp.MustCompile("(?s)```type:(\\w+),lang:([^,\n]*),path:([^,\n]*),lines:(\\d+)-(\\d+)\n(.*?)\n?```")

// encodeArticle converts the internal markdown form back into the XML
// article dialect, shifting link anchors back to 1-based.
func encodeArticle(markdown string) string {
	out := fencedBlockRe.ReplaceAllStringFunc(markdown, func(m string) string {
		sub := fencedBlockRe.FindStringSubmatch(m)
		ty, lang, path, code := sub[1], sub[2], sub[3], sub[6]
		start, _ := strconv.Atoi(sub[4])
		end, _ := strconv.Atoi(sub[5])

		if ty == "Quoted" {
			return fmt.Sprintf("<QuotedCode>\n<Code>\n%s\n</Code>\n<Language>%s</Language>\n<Path>%s</Path>\n<StartLine>%d</StartLine>\n<EndLine>%d</EndLine>\n</QuotedCode>",
				code, lang, path, start+1, end+1)
		}
		return fmt.Sprintf("<GeneratedCode>\n<Code>\n%s\n</Code>\n<Language>%s</Language>\n</GeneratedCode>", code, lang)
	})

	return offsetEmbeddedLinks(out, 1)
}
