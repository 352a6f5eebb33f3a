package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/kazz187/taskdigest/internal/clickup"
)

const (
	// FallbackLine is rendered when every bucket is empty.
	FallbackLine = "Nothing to report. Enjoy your day!"

	absoluteLayout = "Jan 02 15:04"
	clockLayout    = "15:04"
)

type glyphRule struct {
	tag   string
	glyph string
}

var defaultGlyph = "📌"

type Renderer struct {
	scheduleTag string
	limit       int
	glyphs      []glyphRule
}

// NewRenderer returns a renderer that prints at most limit items per bucket.
// Schedule items are recognised by scheduleTag.
func NewRenderer(scheduleTag string, limit int) *Renderer {
	return &Renderer{
		scheduleTag: scheduleTag,
		limit:       limit,
		glyphs: []glyphRule{
			{tag: "assignment", glyph: "📝"},
			{tag: "exam", glyph: "📖"},
			{tag: "event", glyph: "🎉"},
			{tag: "meeting", glyph: "👥"},
			{tag: scheduleTag, glyph: "🏫"},
		},
	}
}

// WithLimit returns a copy of r using a different per-bucket item limit.
func (r *Renderer) WithLimit(limit int) *Renderer {
	cp := *r
	cp.limit = limit
	return &cp
}

// Render renders the buckets in order, skipping empty ones. When nothing
// remains it returns the single FallbackLine.
func (r *Renderer) Render(buckets []Bucket, now time.Time) []string {
	var lines []string
	for _, b := range buckets {
		lines = append(lines, r.RenderBucket(b, now)...)
	}
	if len(lines) == 0 {
		return []string{FallbackLine}
	}
	return lines
}

// RenderBucket returns the header and one line per item, followed by an
// "and N more" line when the bucket exceeds the limit. An empty bucket
// renders nothing.
func (r *Renderer) RenderBucket(b Bucket, now time.Time) []string {
	if len(b.Items) == 0 {
		return nil
	}
	shown := b.Items
	if r.limit > 0 && len(shown) > r.limit {
		shown = shown[:r.limit]
	}

	lines := make([]string, 0, len(shown)+2)
	lines = append(lines, fmt.Sprintf("## %s", singleLine(b.Title)))
	for _, item := range shown {
		lines = append(lines, r.RenderItem(item, now))
	}
	if rest := len(b.Items) - len(shown); rest > 0 {
		lines = append(lines, fmt.Sprintf("…and %d more", rest))
	}
	return lines
}

func (r *Renderer) RenderItem(item Item, now time.Time) string {
	t := item.Task
	name := singleLine(t.Name)
	if item.Parent != nil {
		name = fmt.Sprintf("[%s] %s", singleLine(item.Parent.Name), name)
	}
	return fmt.Sprintf("- %s **%s** [%s](<%s>) %s", r.glyph(t), r.duePhrase(t, now), t.ID, t.URL, name)
}

func (r *Renderer) glyph(t *clickup.Task) string {
	for _, rule := range r.glyphs {
		if t.HasTag(rule.tag) {
			return rule.glyph
		}
	}
	return defaultGlyph
}

func (r *Renderer) duePhrase(t *clickup.Task, now time.Time) string {
	if t.HasTag(r.scheduleTag) {
		if t.Due == nil {
			return "no time"
		}
		return t.Due.In(now.Location()).Format(clockLayout)
	}
	if t.Due == nil {
		return "no due date"
	}
	return fmt.Sprintf("%s, %s", Countdown(*t.Due, now), t.Due.In(now.Location()).Format(absoluteLayout))
}

// Countdown formats the whole days and hours from now until due, signed
// negative when due has passed.
func Countdown(due, now time.Time) string {
	d := due.Sub(now)
	sign := "+"
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / (24 * time.Hour)
	hours := (d % (24 * time.Hour)) / time.Hour
	return fmt.Sprintf("%s%dd %dh", sign, days, hours)
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func singleLine(s string) string {
	return lineBreaks.Replace(s)
}
