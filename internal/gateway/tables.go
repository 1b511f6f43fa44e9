package gateway

import (
	"strings"

	"github.com/ie2718/clawdbot-feishu/internal/config"
)

// ConvertTables rewrites markdown tables in text according to mode. Feishu
// cards do not render pipe tables, so the default mode fences them as code;
// bullets mode flattens each data row into a labeled bullet line; markdown
// mode passes the text through untouched.
func ConvertTables(text string, mode config.TableMode) string {
	if mode == config.TableModeMarkdown {
		return text
	}
	lines := strings.Split(text, "\n")
	var out []string
	for i := 0; i < len(lines); {
		end := tableEnd(lines, i)
		if end < 0 {
			out = append(out, lines[i])
			i++
			continue
		}
		block := lines[i:end]
		switch mode {
		case config.TableModeBullets:
			out = append(out, tableToBullets(block)...)
		default:
			out = append(out, "```")
			out = append(out, block...)
			out = append(out, "```")
		}
		i = end
	}
	return strings.Join(out, "\n")
}

// tableEnd returns the exclusive end index of a table starting at i, or -1
// when lines[i] does not open one. A table is a pipe row followed by a
// separator row and any number of further pipe rows.
func tableEnd(lines []string, i int) int {
	if i+1 >= len(lines) || !isPipeRow(lines[i]) || !isSeparatorRow(lines[i+1]) {
		return -1
	}
	end := i + 2
	for end < len(lines) && isPipeRow(lines[end]) {
		end++
	}
	return end
}

func isPipeRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") && strings.Count(trimmed, "|") >= 2
}

func isSeparatorRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !isPipeRow(trimmed) {
		return false
	}
	for _, cell := range splitRow(trimmed) {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			return false
		}
		for _, r := range cell {
			if r != '-' && r != ':' {
				return false
			}
		}
	}
	return true
}

func splitRow(line string) []string {
	trimmed := strings.Trim(strings.TrimSpace(line), "|")
	cells := strings.Split(trimmed, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func tableToBullets(block []string) []string {
	headers := splitRow(block[0])
	var out []string
	for _, row := range block[2:] {
		cells := splitRow(row)
		var parts []string
		for i, cell := range cells {
			if cell == "" {
				continue
			}
			if i < len(headers) && headers[i] != "" {
				parts = append(parts, headers[i]+": "+cell)
			} else {
				parts = append(parts, cell)
			}
		}
		if len(parts) > 0 {
			out = append(out, "- "+strings.Join(parts, ", "))
		}
	}
	return out
}
