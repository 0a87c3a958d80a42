package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow is a Wednesday.
var fixedNow = time.Date(2025, time.November, 12, 14, 30, 0, 0, time.UTC)

func testParser() *Parser {
	return &Parser{Now: func() time.Time { return fixedNow }}
}

func TestParse_RelativeKeywords(t *testing.T) {
	p := testParser()

	tests := []struct {
		name      string
		text      string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "today",
			text:      "today",
			wantStart: time.Date(2025, time.November, 12, 0, 0, 0, 0, time.UTC),
			wantEnd:   fixedNow,
		},
		{
			name:      "yesterday",
			text:      "Yesterday",
			wantStart: time.Date(2025, time.November, 11, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.November, 11, 23, 59, 59, 999999000, time.UTC),
		},
		{
			name:      "this week starts monday",
			text:      "this week",
			wantStart: time.Date(2025, time.November, 10, 0, 0, 0, 0, time.UTC),
			wantEnd:   fixedNow,
		},
		{
			name:      "last week",
			text:      "last week",
			wantStart: time.Date(2025, time.November, 3, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.November, 9, 23, 59, 59, 999999000, time.UTC),
		},
		{
			name:      "this month",
			text:      "this month",
			wantStart: time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   fixedNow,
		},
		{
			name:      "last month",
			text:      "last month",
			wantStart: time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, time.October, 31, 23, 59, 59, 999999000, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := p.Parse(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestParse_YesterdaySpansPreviousDay(t *testing.T) {
	p := testParser()
	start, end, ok := p.Parse("yesterday")
	require.True(t, ok)

	assert.Equal(t, fixedNow.AddDate(0, 0, -1).Day(), start.Day())
	assert.Equal(t, start.Day(), end.Day())
	assert.InDelta(t, 24*time.Hour, end.Sub(start), float64(time.Millisecond))
}

func TestParse_CountedSpans(t *testing.T) {
	p := testParser()

	tests := []struct {
		text string
		want time.Duration
	}{
		{"last 3 hours", 3 * time.Hour},
		{"past 1 hour", time.Hour},
		{"last 7 days", 7 * 24 * time.Hour},
		{"past 2 weeks", 14 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			start, end, ok := p.Parse(tt.text)
			require.True(t, ok)
			assert.Equal(t, fixedNow, end)
			assert.Equal(t, tt.want, end.Sub(start))
		})
	}
}

func TestParse_DualDate(t *testing.T) {
	p := testParser()

	start, end, ok := p.Parse("October 27, 3 PM to October 28, 10 AM")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.October, 27, 15, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, time.October, 28, 10, 0, 0, 0, time.UTC), end)
}

func TestParse_DualDateMeridiemRules(t *testing.T) {
	p := testParser()

	// 12 AM is midnight, 12 PM is noon, no meridiem defaults to AM.
	start, end, ok := p.Parse("march 5 12 am to march 5 12 pm")
	require.True(t, ok)
	assert.Equal(t, 0, start.Hour())
	assert.Equal(t, 12, end.Hour())

	start, _, ok = p.Parse("march 5, 9 to march 6, 9")
	require.True(t, ok)
	assert.Equal(t, 9, start.Hour())
}

func TestParse_Failures(t *testing.T) {
	p := testParser()

	tests := []string{
		"",
		"whenever",
		"next week",            // not in the grammar
		"last -2 hours",        // negative count
		"smarch 5, 1 pm to smarch 6, 2 pm", // unknown month
		"february 31, 1 pm to march 1, 2 pm", // calendar-invalid day
		"june 31, 1 pm to july 1, 2 pm",      // 30-day month
		"march 5, 13 pm to march 6, 2 pm",    // hour out of 12h range
		"october 28, 10 am to october 27, 3 pm", // end before start
	}

	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			start, end, ok := p.Parse(text)
			assert.False(t, ok)
			assert.True(t, start.IsZero(), "failed parse must not leak a partial start")
			assert.True(t, end.IsZero(), "failed parse must not leak a partial end")
		})
	}
}

func TestParse_AllTimestampsUTC(t *testing.T) {
	p := New() // real clock
	start, end, ok := p.Parse("last 2 hours")
	require.True(t, ok)
	assert.Equal(t, time.UTC, start.Location())
	assert.Equal(t, time.UTC, end.Location())
}

func TestParseSingle(t *testing.T) {
	p := testParser()

	tests := []struct {
		text string
		want time.Time
		ok   bool
	}{
		{"today", time.Date(2025, time.November, 12, 0, 0, 0, 0, time.UTC), true},
		{"yesterday", time.Date(2025, time.November, 11, 0, 0, 0, 0, time.UTC), true},
		{"October 27", time.Date(2025, time.October, 27, 0, 0, 0, 0, time.UTC), true},
		{"oct 27", time.Date(2025, time.October, 27, 0, 0, 0, 0, time.UTC), true},
		{"smarch 1", time.Time{}, false},
		{"february 30", time.Time{}, false},
		{"tomorrow", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := p.ParseSingle(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
