package note

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_UniqueAndOrdered(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := NewID(now)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		if prev != "" {
			assert.Greater(t, id, prev)
		}
		prev = id
	}
}

func TestSequence_Prepend(t *testing.T) {
	a := Note{ID: "a"}
	b := Note{ID: "b"}
	s := Sequence{a}

	got := s.Prepend(b)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Len(t, s, 1, "original sequence must not change")
}

func TestSequence_Without(t *testing.T) {
	s := Sequence{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	got, ok := s.Without("b")
	require.True(t, ok)
	assert.Equal(t, Sequence{{ID: "a"}, {ID: "c"}}, got)

	_, ok = s.Without("zzz")
	assert.False(t, ok)
	assert.Len(t, s, 3)
}

func TestSequence_OnDay(t *testing.T) {
	loc := time.FixedZone("test", 2*60*60)
	day := time.Date(2026, 3, 14, 12, 0, 0, 0, loc)

	s := Sequence{
		{ID: "late", CreatedAt: time.Date(2026, 3, 14, 23, 59, 0, 0, loc)},
		{ID: "next", CreatedAt: time.Date(2026, 3, 15, 0, 0, 1, 0, loc)},
		{ID: "early", CreatedAt: time.Date(2026, 3, 14, 0, 0, 0, 0, loc)},
		// 21:30 UTC on the 13th is 23:30 local on the 13th.
		{ID: "before", CreatedAt: time.Date(2026, 3, 13, 21, 30, 0, 0, time.UTC)},
		// 22:30 UTC on the 13th is 00:30 local on the 14th.
		{ID: "utc", CreatedAt: time.Date(2026, 3, 13, 22, 30, 0, 0, time.UTC)},
	}

	got := s.OnDay(day, loc)
	var ids []string
	for _, n := range got {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"late", "early", "utc"}, ids)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	s := Sequence{
		{ID: "2", Image: "data:image/png;base64,AAAA", Text: "a red bicycle", CreatedAt: created},
		{ID: "1", Image: "data:image/jpeg;base64,BBBB", Text: "a cat", CreatedAt: created.Add(-time.Hour)},
	}

	data, err := Encode(s)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range s {
		assert.Equal(t, s[i].ID, got[i].ID)
		assert.Equal(t, s[i].Image, got[i].Image)
		assert.Equal(t, s[i].Text, got[i].Text)
		assert.True(t, s[i].CreatedAt.Equal(got[i].CreatedAt))
	}
}

func TestEncode_NilIsEmptyArray(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestDecode_Malformed(t *testing.T) {
	for _, doc := range []string{`{"notes":[]}`, `not json`, `"str"`} {
		_, err := Decode([]byte(doc))
		assert.ErrorIs(t, err, ErrMalformed, "doc %q", doc)
	}
}

func TestDecode_EmptyAndNull(t *testing.T) {
	got, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Decode([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseImage(t *testing.T) {
	img, err := ParseImage("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, "aGVsbG8=", img.Base64)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", img.DataURL())

	img, err = ParseImage("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	for _, bad := range []string{"", "data:image/png,aGVsbG8=", "data:image/png;base64,", "%%%"} {
		_, err := ParseImage(bad)
		assert.ErrorIs(t, err, ErrInvalidImage, "input %q", bad)
	}
}
