package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteJSON_Prefixes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "empty", in: "", ok: false},
		{name: "open object", in: "{", want: "{}", ok: true},
		{name: "partial key", in: `{"ques`, want: "{}", ok: true},
		{name: "key without value", in: `{"questions":`, want: "{}", ok: true},
		{name: "open array", in: `{"questions":[`, want: `{"questions":[]}`, ok: true},
		{name: "partial string value", in: `{"a":"hel`, want: `{"a":"hel"}`, ok: true},
		{name: "dangling escape", in: `{"a":"x\`, want: `{"a":"x"}`, ok: true},
		{name: "partial unicode escape", in: `{"a":"caf\u00`, want: `{"a":"caf"}`, ok: true},
		{name: "complete unicode escape", in: `{"a":"café`, want: `{"a":"café"}`, ok: true},
		{name: "partial number", in: `{"a":1,"b":23`, want: `{"a":1}`, ok: true},
		{name: "partial literal", in: `[true,fa`, want: `[true]`, ok: true},
		{name: "nested", in: `{"q":[{"type":"MCQ","options":["A","B`, want: `{"q":[{"type":"MCQ","options":["A","B"]}]}`, ok: true},
		{name: "complete", in: `{"a":[1,2]}`, want: `{"a":[1,2]}`, ok: true},
		{name: "trailing comma", in: `{"a":1,`, want: `{"a":1}`, ok: true},
		{name: "top level scalar", in: `12`, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := completeJSON(tc.in)
			require.Equal(t, tc.ok, ok)
			if !tc.ok {
				return
			}
			assert.Equal(t, tc.want, got)
			assert.True(t, json.Valid([]byte(got)), "not valid JSON: %s", got)
		})
	}
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, "{\"a\":1}\n", stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, "{\"a\":", stripFence("```json\n{\"a\":"))
	assert.Equal(t, "", stripFence("```js"))
	assert.Equal(t, `{"a":1}`, stripFence(`{"a":1}`))
}

func TestSnapshotter_EmitsOnlyChangedSnapshots(t *testing.T) {
	doc := `{"questions":[{"type":"MCQ","question":"Why?","answer":"Because"}]}`

	var snap Snapshotter
	var got []string
	for i := 0; i < len(doc); i++ {
		if raw, ok := snap.Feed(doc[i : i+1]); ok {
			got = append(got, string(raw))
		}
	}
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1], got[i])
	}
	assert.Equal(t, doc, got[len(got)-1])

	final, changed, err := snap.Final()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.JSONEq(t, doc, string(final))
}

func TestSnapshotter_FinalRejectsTruncatedDocument(t *testing.T) {
	var snap Snapshotter
	snap.Feed(`{"questions":[{"type":"MC`)
	_, _, err := snap.Final()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSnapshotter_FencedDocument(t *testing.T) {
	var snap Snapshotter
	snap.Feed("```json\n{\"questions\":[]}\n")
	snap.Feed("```")
	final, _, err := snap.Final()
	require.NoError(t, err)
	assert.JSONEq(t, `{"questions":[]}`, string(final))
}
