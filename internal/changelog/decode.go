package changelog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// Parse decodes markdown into a changelog. Decoding never fails: text that
// is not recognized as a release heading or a machine block is kept as
// Verbatim or User text.
func Parse(text string) *ChangeLog {
	lines := splitLines(text)
	c := &ChangeLog{}

	starts := releaseStarts(lines)
	preambleEnd := len(lines)
	if len(starts) > 0 {
		preambleEnd = starts[0].line
	}
	if preamble := strings.Join(lines[:preambleEnd], ""); preamble != "" {
		text, generated := strings.CutSuffix(preamble, generatedMarker+"\n\n")
		c.Sections = append(c.Sections, &Verbatim{Text: text, Generated: generated})
	}

	for i, st := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1].line
		}
		r := &Release{HeadingLevel: st.level, Name: st.name, Date: st.date}
		parseReleaseBody(r, lines[st.line+1:end])
		c.Sections = append(c.Sections, r)
	}
	return c
}

// Read decodes a changelog from r.
func Read(r io.Reader) (*ChangeLog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading changelog: %w", err)
	}
	return Parse(string(data)), nil
}

// ReadFile decodes the changelog at path. A missing file yields an empty
// changelog and exists=false.
func ReadFile(path string) (c *ChangeLog, exists bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &ChangeLog{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading changelog %s: %w", path, err)
	}
	return Parse(string(data)), true, nil
}

// WriteFile encodes the changelog to path.
func (c *ChangeLog) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(c.Markdown()), 0o644); err != nil {
		return fmt.Errorf("writing changelog %s: %w", path, err)
	}
	return nil
}

// splitLines splits text into lines that keep their trailing newline.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type releaseStart struct {
	line  int
	level int
	name  Version
	date  *time.Time
}

// releaseStarts finds every release heading outside fenced code blocks.
func releaseStarts(lines []string) []releaseStart {
	var out []releaseStart
	inFence := false
	for i, line := range lines {
		if isFence(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		level, title, ok := parseHeading(line)
		if !ok {
			continue
		}
		name, date, ok := parseReleaseTitle(title)
		if !ok {
			continue
		}
		out = append(out, releaseStart{line: i, level: level, name: name, date: date})
	}
	return out
}

// parseReleaseTitle accepts "v1.2.3 (2024-01-02)", "Unreleased" and the
// "[1.2.3] - 2024-01-02" form.
func parseReleaseTitle(title string) (Version, *time.Time, bool) {
	m := releaseTitle.FindStringSubmatch(title)
	if m == nil {
		m = keepATitle.FindStringSubmatch(title)
	}
	if m == nil {
		return Version{}, nil, false
	}
	name, err := ParseVersion(m[1])
	if err != nil {
		return Version{}, nil, false
	}
	if m[2] == "" {
		return name, nil, true
	}
	date, err := time.Parse(time.DateOnly, m[2])
	if err != nil {
		return Version{}, nil, false
	}
	return name, &date, true
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func trimNL(line string) string {
	return strings.TrimSuffix(line, "\n")
}

// parseIDs consumes leading id marker lines and one blank line after them.
func parseIDs(lines []string) ([]plumbing.Hash, int) {
	var ids []plumbing.Hash
	i := 0
	for i < len(lines) {
		m := idLine.FindStringSubmatch(trimNL(lines[i]))
		if m == nil {
			break
		}
		ids = append(ids, plumbing.NewHash(m[1]))
		i++
	}
	if len(ids) > 0 && i < len(lines) && lines[i] == "\n" {
		i++
	}
	return ids, i
}

// bodyParser walks the lines of one release body.
type bodyParser struct {
	r       *Release
	lines   []string
	sub     int
	pending []string
}

func parseReleaseBody(r *Release, lines []string) {
	if len(lines) > 0 && (lines[0] == "\n" || lines[0] == "\r\n") {
		lines = lines[1:]
	}
	ids, n := parseIDs(lines)
	r.RemovedMessages = ids
	p := &bodyParser{r: r, lines: lines[n:], sub: r.HeadingLevel + 1}
	p.run()
}

func (p *bodyParser) run() {
	inFence := false
	i := 0
	for i < len(p.lines) {
		line := p.lines[i]
		if isFence(line) {
			inFence = !inFence
		}
		if inFence {
			p.pending = append(p.pending, line)
			i++
			continue
		}
		if trimNL(line) == unknownOpenMarker {
			p.flushUser()
			i = p.parseUnknown(i + 1)
			continue
		}
		if trimNL(line) == segmentBreakMarker {
			p.flushUser()
			i++
			if i < len(p.lines) && p.lines[i] == "\n" {
				i++
			}
			continue
		}
		if next, ok := p.parseSegment(i); ok {
			i = next
			continue
		}
		p.pending = append(p.pending, line)
		i++
	}
	p.flushUser()
}

// flushUser turns accumulated lines into a User segment. The newline that
// separates a segment from the next one is not part of it.
func (p *bodyParser) flushUser() {
	if len(p.pending) == 0 {
		return
	}
	text := strings.TrimSuffix(strings.Join(p.pending, ""), "\n")
	p.r.Segments = append(p.r.Segments, User{Markdown: text})
	p.pending = nil
}

// parseUnknown collects text up to the closing marker. Without a closing
// marker the rest of the body is unknown.
func (p *bodyParser) parseUnknown(i int) int {
	var sb strings.Builder
	for i < len(p.lines) {
		line := p.lines[i]
		i++
		content := trimNL(line)
		if strings.HasSuffix(content, unknownCloseMarker) {
			sb.WriteString(strings.TrimSuffix(content, unknownCloseMarker))
			if i < len(p.lines) && p.lines[i] == "\n" {
				i++
			}
			p.r.Unknown += sb.String()
			return i
		}
		sb.WriteString(line)
	}
	p.r.Unknown += sb.String()
	return i
}

// parseSegment tries to read a conventional grouping or a machine block
// starting at line i. It returns the index after the segment.
func (p *bodyParser) parseSegment(i int) (int, bool) {
	level, title, ok := parseHeading(p.lines[i])
	if !ok || level != p.sub {
		return i, false
	}
	if kind, breaking, ok := titleKind(title); ok {
		p.flushUser()
		return p.parseConventional(i+1, kind, breaking), true
	}

	var (
		seg  Segment
		next int
	)
	switch title {
	case clippyTitle:
		seg, next, ok = p.parseMachine(i, parseClippy)
	case statisticsTitle:
		seg, next, ok = p.parseMachine(i, parseStatistics)
	case detailsTitle:
		seg, next, ok = p.parseMachine(i, parseDetails)
	default:
		return i, false
	}
	if !ok {
		return i, false
	}
	p.flushUser()
	p.r.Segments = append(p.r.Segments, seg)
	return next, true
}

// parseConventional reads the grouping body up to the next heading at or
// above the grouping's level.
func (p *bodyParser) parseConventional(i int, kind string, breaking bool) int {
	end := i
	inFence := false
	for end < len(p.lines) {
		line := p.lines[end]
		if isFence(line) {
			inFence = !inFence
		}
		if !inFence {
			if content := trimNL(line); content == unknownOpenMarker || content == segmentBreakMarker {
				break
			}
			if level, _, ok := parseHeading(line); ok && level <= p.sub {
				break
			}
		}
		end++
	}

	area := p.lines[i:end]
	if len(area) > 0 && area[0] == "\n" {
		area = area[1:]
	}
	removed, n := parseIDs(area)
	area = area[n:]
	if len(area) > 0 && area[len(area)-1] == "\n" {
		area = area[:len(area)-1]
	}

	conv := Conventional{Kind: kind, IsBreaking: breaking, Removed: removed}
	var user []string
	flush := func() {
		if len(user) == 0 {
			return
		}
		text := strings.TrimSuffix(strings.Join(user, ""), "\n")
		conv.Messages = append(conv.Messages, UserMessage{Markdown: text})
		user = nil
	}
	for _, line := range area {
		if m := generatedLine.FindStringSubmatch(trimNL(line)); m != nil {
			flush()
			conv.Messages = append(conv.Messages, GeneratedMessage{ID: plumbing.NewHash(m[1]), Title: m[2]})
			continue
		}
		user = append(user, line)
	}
	flush()

	p.r.Segments = append(p.r.Segments, conv)
	return end
}

// machineParser reads the content lines of a machine block and returns the
// segment and the number of lines consumed.
type machineParser func(lines []string) (Segment, int, bool)

// parseMachine checks the shared block header and delegates the content.
func (p *bodyParser) parseMachine(i int, parse machineParser) (Segment, int, bool) {
	header := []string{"\n", readOnlyMarker + "\n", "\n"}
	j := i + 1
	for _, want := range header {
		if j >= len(p.lines) || p.lines[j] != want {
			return nil, i, false
		}
		j++
	}
	seg, n, ok := parse(p.lines[j:])
	if !ok {
		return nil, i, false
	}
	j += n
	if j < len(p.lines) && p.lines[j] == "\n" {
		j++
	}
	return seg, j, true
}

func parseClippy(lines []string) (Segment, int, bool) {
	if len(lines) == 0 {
		return nil, 0, false
	}
	m := clippyLine.FindStringSubmatch(trimNL(lines[0]))
	if m == nil {
		return nil, 0, false
	}
	count, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, 0, false
	}
	return Clippy{Data: Generated(ThanksClippy{Count: count})}, 1, true
}

func parseStatistics(lines []string) (Segment, int, bool) {
	if len(lines) < 3 {
		return nil, 0, false
	}
	cm := countLine.FindStringSubmatch(trimNL(lines[0]))
	vm := conventionalLn.FindStringSubmatch(trimNL(lines[1]))
	im := issuesLine.FindStringSubmatch(trimNL(lines[2]))
	if cm == nil || vm == nil || im == nil {
		return nil, 0, false
	}

	var (
		stats CommitStatistics
		err   error
	)
	if stats.Count, err = strconv.Atoi(cm[1]); err != nil {
		return nil, 0, false
	}
	switch {
	case cm[2] != "":
		days, err := strconv.Atoi(cm[2])
		if err != nil {
			return nil, 0, false
		}
		stats.Duration = time.Duration(days) * day
	case cm[3] != "":
		if stats.Duration, err = time.ParseDuration(cm[3]); err != nil {
			return nil, 0, false
		}
	}
	if stats.ConventionalCount, err = strconv.Atoi(vm[1]); err != nil {
		return nil, 0, false
	}
	if stats.UniqueIssuesCount, err = strconv.Atoi(im[1]); err != nil {
		return nil, 0, false
	}
	return Statistics{Data: Generated(stats)}, 3, true
}

func parseDetails(lines []string) (Segment, int, bool) {
	if len(lines) < 2 || trimNL(lines[0]) != detailsOpen || lines[1] != "\n" {
		return nil, 0, false
	}
	var details CommitDetails
	for i := 2; i < len(lines); i++ {
		content := trimNL(lines[i])
		if content == detailsClose {
			return Details{Data: Generated(details)}, i + 1, true
		}
		if m := categoryLine.FindStringSubmatch(content); m != nil {
			cat, ok := parseCategory(m[1])
			if !ok {
				return nil, 0, false
			}
			details.CommitsByCategory = append(details.CommitsByCategory, CategoryMessages{Category: cat})
			continue
		}
		m := detailLine.FindStringSubmatch(content)
		if m == nil || len(details.CommitsByCategory) == 0 {
			return nil, 0, false
		}
		last := &details.CommitsByCategory[len(details.CommitsByCategory)-1]
		last.Messages = append(last.Messages, Message{Title: m[2], ID: plumbing.NewHash(m[1])})
	}
	return nil, 0, false
}

func parseCategory(label string) (Category, bool) {
	if label == "Uncategorized" {
		return Uncategorized(), true
	}
	if ref, ok := strings.CutPrefix(label, "#"); ok && ref != "" {
		return Issue(ref), true
	}
	return Category{}, false
}
