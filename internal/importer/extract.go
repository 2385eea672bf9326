package importer

import (
	"bufio"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// extractMarkdown returns the markdown body with YAML frontmatter stripped.
// Everything else passes through verbatim: HTML comments, zero-width
// characters, and any hidden markup stay in the text.
func extractMarkdown(data []byte) string {
	_, body := splitFrontmatter(string(data))
	return body
}

// frontmatterTitle returns the frontmatter "title" field of a markdown file,
// or "" when absent.
func frontmatterTitle(filename string, data []byte) string {
	if strings.ToLower(filepath.Ext(filename)) != ".md" {
		return ""
	}
	fm, _ := splitFrontmatter(string(data))
	if title, ok := fm["title"].(string); ok {
		return strings.TrimSpace(title)
	}
	return ""
}

// splitFrontmatter separates YAML frontmatter (between --- delimiters) from
// the markdown body. Returns an empty map and the full text when no
// frontmatter is found or the YAML is invalid.
func splitFrontmatter(text string) (map[string]interface{}, string) {
	scanner := bufio.NewScanner(strings.NewReader(text))

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return map[string]interface{}{}, text
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return map[string]interface{}{}, text
	}

	fmText := strings.Join(lines[1:closeIdx], "\n")
	fm := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(fmText), &fm); err != nil {
		return map[string]interface{}{}, text
	}

	return fm, strings.Join(lines[closeIdx+1:], "\n")
}

var (
	htmlTagPattern       = regexp.MustCompile(`<[^>]*>`)
	whitespaceRunPattern = regexp.MustCompile(`[ \t]+`)
	blankLineRunPattern  = regexp.MustCompile(`\n{3,}`)
)

// extractHTML strips markup and returns the text content of an HTML file.
// There is no CSS evaluation: text inside display:none containers, white
// text, and zero-size fonts all end up in the result.
func extractHTML(data []byte) string {
	text := string(data)

	text = htmlTagPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = whitespaceRunPattern.ReplaceAllString(text, " ")

	// Trim per-line, then collapse runs of blank lines.
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		b.WriteString(strings.TrimSpace(line))
		b.WriteString("\n")
	}
	out := blankLineRunPattern.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out)
}
