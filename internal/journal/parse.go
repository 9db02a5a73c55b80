package journal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a single log block that could not be parsed into an
// [Entry]. Parse failures are recorded and skipped, never fatal to the file
// or directory that contains them.
type ParseError struct {
	Path   string // day file the block came from
	ID     string // entry ID from the block header
	Line   int    // 1-based line of the block header
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (%s:%d): %s", e.ID, e.Path, e.Line, e.Reason)
}

// metaPattern matches a "**Key**: value" metadata line.
var metaPattern = regexp.MustCompile(`^\*\*([A-Za-z-]+)\*\*:\s*(.*)$`)

// durationPattern matches the wire form of the Duration metadata value.
var durationPattern = regexp.MustCompile(`^(\d+)ms$`)

// sectionNames maps "### Name" headings to entry fields. Unknown headings
// are tolerated and their content ignored.
var sectionNames = map[string]bool{
	"Context":     true,
	"Intent":      true,
	"Action":      true,
	"Observation": true,
	"Analysis":    true,
	"Next Steps":  true,
	"Correction":  true,
	"Actual":      true,
	"Impact":      true,
	"References":  true,
}

// ParseFile parses a day file into entries using the same grammar the write
// path renders: blocks begin at a "## <entry-id>" heading and run to the
// next heading or EOF; metadata lines and named subsections may appear in
// any order after the heading. Optional fields and sections may be absent.
//
// Blocks that violate the grammar (missing or malformed Timestamp, Author,
// or Type) yield a [ParseError] and are skipped; well-formed blocks in the
// same file are still returned.
func ParseFile(path string, content []byte) ([]Entry, []*ParseError) {
	lines := strings.Split(string(content), "\n")

	var (
		entries   []Entry
		parseErrs []*ParseError
	)

	blockStart := -1
	blockID := ""

	flush := func(end int) {
		if blockStart < 0 {
			return
		}

		entry, perr := parseBlock(path, blockID, blockStart, lines[blockStart+1:end])
		if perr != nil {
			parseErrs = append(parseErrs, perr)
		} else {
			entries = append(entries, *entry)
		}
	}

	for i, line := range lines {
		id, ok := headerID(line)
		if !ok {
			continue
		}

		flush(i)

		blockStart = i
		blockID = id
	}

	flush(len(lines))

	return entries, parseErrs
}

// headerID extracts the entry ID from a "## <id>" block heading.
func headerID(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "## ")
	if !ok {
		return "", false
	}

	id := strings.TrimSpace(rest)
	if !ValidID(id) {
		return "", false
	}

	return id, true
}

// parseBlock parses the body lines of a single entry block (everything after
// the heading, up to the next heading).
func parseBlock(path, id string, headerLine int, body []string) (*Entry, *ParseError) {
	entry := Entry{ID: id}

	fail := func(reason string) (*Entry, *ParseError) {
		return nil, &ParseError{Path: path, ID: id, Line: headerLine + 1, Reason: reason}
	}

	var (
		section      string
		sectionLines []string
		sawTimestamp bool
		sawAuthor    bool
		sawKind      bool
		badReason    string
	)

	closeSection := func() {
		if section == "" {
			return
		}

		text := strings.TrimSpace(strings.Join(sectionLines, "\n"))

		switch section {
		case "Context":
			entry.Context = text
		case "Intent":
			entry.Intent = text
		case "Action":
			entry.Action = text
		case "Observation":
			entry.Observation = text
		case "Analysis":
			entry.Analysis = text
		case "Next Steps":
			entry.NextSteps = text
		case "Correction":
			entry.Correction = text
		case "Actual":
			entry.Actual = text
		case "Impact":
			entry.Impact = text
		case "References":
			for _, line := range sectionLines {
				trimmed := strings.TrimSpace(line)
				if ref, ok := strings.CutPrefix(trimmed, "- "); ok {
					entry.References = append(entry.References, strings.TrimSpace(ref))
				}
			}
		}

		section = ""
		sectionLines = nil
	}

	for _, line := range body {
		if heading, ok := strings.CutPrefix(line, "### "); ok {
			closeSection()

			name := strings.TrimSpace(heading)
			if sectionNames[name] {
				section = name
			}

			continue
		}

		if strings.TrimSpace(line) == "---" {
			closeSection()

			continue
		}

		if section != "" {
			sectionLines = append(sectionLines, line)

			continue
		}

		m := metaPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		key, value := m[1], strings.TrimSpace(m[2])

		switch key {
		case "Timestamp":
			ts, err := ParseTimestamp(value)
			if err != nil {
				badReason = fmt.Sprintf("malformed timestamp %q", value)

				continue
			}

			entry.Timestamp = ts
			sawTimestamp = true
		case "Author":
			if value != "" {
				entry.Author = value
				sawAuthor = true
			}
		case "Type":
			switch Kind(value) {
			case KindEntry, KindAmendment:
				entry.Kind = Kind(value)
				sawKind = true
			default:
				badReason = fmt.Sprintf("unknown entry type %q", value)
			}
		case "Outcome":
			entry.Outcome = value
		case "Template":
			entry.Template = value
		case "Config":
			entry.ConfigUsed = value
		case "Log":
			entry.LogProduced = value
		case "Caused-By":
			entry.CausedBy = splitIDList(value)
		case "Causes":
			entry.Causes = splitIDList(value)
		case "Amends":
			entry.Amends = value
		case "Tool":
			entry.Tool = value
		case "Duration":
			dm := durationPattern.FindStringSubmatch(value)
			if dm == nil {
				badReason = fmt.Sprintf("malformed duration %q", value)

				continue
			}

			ms, err := strconv.ParseInt(dm[1], 10, 64)
			if err != nil {
				badReason = fmt.Sprintf("malformed duration %q", value)

				continue
			}

			entry.DurationMS = &ms
		case "Exit-Code":
			code, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				badReason = fmt.Sprintf("malformed exit code %q", value)

				continue
			}

			entry.ExitCode = &code
		case "Command":
			entry.Command = value
		case "Error-Type":
			entry.ErrorType = value
		}
	}

	closeSection()

	if badReason != "" {
		return fail(badReason)
	}

	if !sawTimestamp {
		return fail("missing Timestamp")
	}

	if !sawAuthor {
		return fail("missing Author")
	}

	if !sawKind {
		return fail("missing Type")
	}

	return &entry, nil
}

func splitIDList(value string) []string {
	parts := strings.Split(value, ",")
	ids := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}

	if len(ids) == 0 {
		return nil
	}

	return ids
}
