package news_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsetl/internal/news"
	"newsetl/internal/news/newstest"
)

func TestSource_WalksAllPagesAndFiltersJSON(t *testing.T) {
	store := newstest.NewStore()
	store.PageSize = 2
	store.Add("in", "2024-05-01/a.json", []byte(`{"title":"A"}`))
	store.Add("in", "2024-05-01/b.txt", []byte(`not json`))
	store.Add("in", "2024-05-01/c.json", []byte(`{"title":"C"}`))
	store.Add("in", "2024-05-01/d.json", []byte(`{"title":"D"}`))
	store.Add("in", "2024-05-02/e.json", []byte(`{"title":"E"}`))
	store.Add("other", "2024-05-01/f.json", []byte(`{"title":"F"}`))

	src := news.NewSource(store, nil)
	got, err := news.Collect(src.Articles(context.Background(), "in", "2024-05-01"))
	require.NoError(t, err)

	var titles []string
	for _, a := range got {
		titles = append(titles, a.Fields["title"].(string))
	}
	assert.Equal(t, []string{"A", "C", "D"}, titles)
	assert.Equal(t, 2, store.ListCalls, "four keys at two per page")
	assert.NotContains(t, store.GetCalls, "2024-05-01/b.txt")
	assert.Equal(t, "2024-05-01/c.json", got[1].Key)
}

func TestSource_EmptyPartition(t *testing.T) {
	store := newstest.NewStore()
	src := news.NewSource(store, nil)

	got, err := news.Collect(src.Articles(context.Background(), "in", "2024-05-01"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSource_MalformedObjectIsFatal(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"invalid json", []byte(`{"title":`)},
		{"invalid utf8", []byte{'{', '"', 't', '"', ':', '"', 0xff, 0xfe, '"', '}'}},
		{"not an object", []byte(`[1,2,3]`)},
		{"null", []byte(`null`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newstest.NewStore()
			store.Add("in", "d/a.json", []byte(`{"title":"A"}`))
			store.Add("in", "d/b.json", tt.body)
			store.Add("in", "d/c.json", []byte(`{"title":"C"}`))

			src := news.NewSource(store, nil)
			got, err := news.Collect(src.Articles(context.Background(), "in", "d"))
			require.Error(t, err)
			assert.Nil(t, got)

			var de *news.DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, "d/b.json", de.Key)
			assert.NotContains(t, store.GetCalls, "d/c.json", "walk stops at the bad object")
		})
	}
}

func TestSource_ListAndGetErrors(t *testing.T) {
	boom := errors.New("boom")

	store := newstest.NewStore()
	store.ListErr = boom
	_, err := news.Collect(news.NewSource(store, nil).Articles(context.Background(), "in", "d"))
	require.ErrorIs(t, err, boom)

	store = newstest.NewStore()
	store.Add("in", "d/a.json", []byte(`{}`))
	store.GetErr["d/a.json"] = boom
	_, err = news.Collect(news.NewSource(store, nil).Articles(context.Background(), "in", "d"))
	require.ErrorIs(t, err, boom)
}

func TestSource_StopsWhenConsumerStops(t *testing.T) {
	store := newstest.NewStore()
	store.Add("in", "d/a.json", []byte(`{"title":"A"}`))
	store.Add("in", "d/b.json", []byte(`{"title":"B"}`))

	src := news.NewSource(store, nil)
	for a, err := range src.Articles(context.Background(), "in", "d") {
		require.NoError(t, err)
		assert.Equal(t, "A", a.Fields["title"])
		break
	}
	assert.Equal(t, []string{"d/a.json"}, store.GetCalls)
}

func TestArticle_String(t *testing.T) {
	a := news.Article{Key: "k.json", Fields: map[string]any{"title": "T", "n": 3.0}}

	s, err := a.String("title")
	require.NoError(t, err)
	assert.Equal(t, "T", s)

	_, err = a.String("topic")
	var mf *news.MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "topic", mf.Field)
	assert.Contains(t, err.Error(), "k.json")

	_, err = a.String("n")
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "is not a string", mf.Reason)
}
