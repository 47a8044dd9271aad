package listkeeper

import (
	"fmt"
	"strings"
	"time"
)

const (
	// paddingShrinkMargin: if a full table row would land within this many
	// characters of the page budget, inter-column padding shrinks from 2
	// spaces to 1 before any content is emitted.
	paddingShrinkMargin = 50

	// rowPackingHeadroom is reserved while packing rows into a page, so the
	// banner and code-block framing always fit afterwards.
	rowPackingHeadroom = 100

	// codeBlockOverhead is the framing cost of wrapping a page body in a
	// fenced code block.
	codeBlockOverhead = 8

	messageListEmpty      = "The list is currently empty."
	messageFilteredEmpty  = "The list is empty after applying the sort/filter."
	messageNoRecentItems  = "No items have been updated in the last 7 days."
	messagePageTooLarge   = "List is too large to display. Please contact an admin."
	bannerListEmptySuffix = "(List is Empty)"
)

// formatTable renders the ordered entries as fixed-width text, split into
// parts that each fit the page budget. Column widths are computed over the
// whole input, so they are identical on every part, and each part repeats
// the header line.
func formatTable(entries []Entry, p Policy, maxLen int) []string {
	if len(entries) == 0 {
		return nil
	}

	widths := make([]int, len(p.Headers))
	for i, h := range p.Headers {
		widths[i] = len(h)
	}
	for _, e := range entries {
		for i, c := range p.Columns {
			if l := len(p.cell(e, c)); l > widths[i] {
				widths[i] = l
			}
		}
	}

	// one-time global decision: shrink padding if a full row would run
	// too close to the page budget
	padding := 2
	lineLength := sumInts(widths) + padding*(len(widths)-1)
	if lineLength > maxLen-paddingShrinkMargin {
		padding = 1
	}
	sep := strings.Repeat(" ", padding)

	formatRow := func(cells []string) string {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}
		return strings.Join(padded, sep)
	}

	headerLine := formatRow(p.Headers)

	var parts []string
	currentLines := []string{headerLine}
	currentLength := len(headerLine)

	for _, e := range entries {
		cells := make([]string, len(p.Columns))
		for i, c := range p.Columns {
			cells[i] = p.cell(e, c)
		}
		line := formatRow(cells)
		if currentLength+len(line)+1+rowPackingHeadroom > maxLen {
			parts = append(parts, strings.Join(currentLines, "\n"))
			currentLines = []string{headerLine, line}
			currentLength = len(headerLine) + len(line) + 1
		} else {
			currentLines = append(currentLines, line)
			currentLength += len(line) + 1
		}
	}
	if len(currentLines) > 0 {
		parts = append(parts, strings.Join(currentLines, "\n"))
	}
	return parts
}

// RenderPages renders the entries under the given policy into a sequence
// of page strings, each within maxLen characters. An empty store, an empty
// filter result and a quiet week each produce a single, distinct
// informational message. Rendering is pure: the same entries, key and
// clock always produce the same pages.
func RenderPages(entries []Entry, key SortKey, now time.Time, maxLen int) []string {
	policy := key.Policy()
	epoch := now.Unix()
	timestampBase := fmt.Sprintf("<t:%d:F> (<t:%d:R>)", epoch, epoch)

	var ordered []Entry
	if key == SortByRecent {
		ordered = key.Apply(entries, now)
		if len(ordered) == 0 {
			return []string{fmt.Sprintf(
				"%s\nLast Updated: %s (Sorted %s)",
				messageNoRecentItems, timestampBase, policy.Label,
			)}
		}
	} else {
		if len(entries) == 0 {
			return []string{fmt.Sprintf(
				"%s\nLast Updated: %s %s",
				messageListEmpty, timestampBase, bannerListEmptySuffix,
			)}
		}
		ordered = key.Apply(entries, now)
		if len(ordered) == 0 {
			return []string{fmt.Sprintf(
				"%s\nLast Updated: %s %s",
				messageFilteredEmpty, timestampBase, bannerListEmptySuffix,
			)}
		}
	}

	parts := formatTable(ordered, policy, maxLen)

	var pages []string
	for i, part := range parts {
		partHeader := ""
		if len(parts) > 1 {
			partHeader = fmt.Sprintf("Part %d/%d - ", i+1, len(parts))
		}
		banner := fmt.Sprintf(
			"Last Updated: %s | %s(Sorted %s)",
			timestampBase, partHeader, policy.Label,
		)
		if len(banner)+len(part)+codeBlockOverhead+1 > maxLen {
			pages = append(pages, messagePageTooLarge)
			break
		}
		pages = append(pages, fmt.Sprintf("%s\n```\n%s\n```", banner, part))
	}

	if len(pages) == 0 {
		return []string{messageListEmpty}
	}
	return pages
}

func sumInts(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
