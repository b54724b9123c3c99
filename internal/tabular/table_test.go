package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xuri/excelize/v2"

	"newsetl/internal/news"
)

func article(key string, fields map[string]any) news.Article {
	return news.Article{Key: key, Fields: fields}
}

func sampleArticles() []news.Article {
	return []news.Article{
		article("a.json", map[string]any{"title": "Rates rise", "topic": "economy", "text": "..."}),
		article("b.json", map[string]any{"title": "Cup final, tonight", "topic": "sport"}),
		article("c.json", map[string]any{"title": "Quote \"this\"", "topic": nil, "extra": 1.0}),
	}
}

func TestProject_RowCountMatchesArticles(t *testing.T) {
	for _, n := range []int{0, 1, 7} {
		var in []news.Article
		for i := 0; i < n; i++ {
			in = append(in, article("k.json", map[string]any{"title": "t", "topic": "x"}))
		}
		tbl, err := Project(news.All(in))
		require.NoError(t, err)
		assert.Len(t, tbl.Rows, n)
		assert.Equal(t, Schema, tbl.Columns)
	}
}

func TestProject_MissingField(t *testing.T) {
	in := []news.Article{
		article("a.json", map[string]any{"title": "A", "topic": "x"}),
		article("b.json", map[string]any{"topic": "y"}),
	}
	_, err := Project(news.All(in))

	var mf *news.MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "title", mf.Field)
	assert.Equal(t, "b.json", mf.Key)
}

func TestProject_NonStringCells(t *testing.T) {
	tbl, err := Project(news.All([]news.Article{
		article("a.json", map[string]any{"title": 42.0, "topic": true}),
		article("b.json", map[string]any{"title": 2.5, "topic": map[string]any{"name": "tech", "tags": []any{"ai", 3.0}}}),
		article("c.json", map[string]any{"title": 2e6, "topic": []any{"a", "b"}}),
	}))
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"42.0", "true"},
		{"2.5", `{"name":"tech","tags":["ai",3]}`},
		{"2000000.0", `["a","b"]`},
	}, tbl.Rows)
}

func TestExport_CSV(t *testing.T) {
	out, rows, err := Export(context.Background(), news.All(sampleArticles()), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)

	want := "title,topic\n" +
		"Rates rise,economy\n" +
		"\"Cup final, tonight\",sport\n" +
		"\"Quote \"\"this\"\"\",\n"
	assert.Equal(t, want, string(out))

	recs, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, recs, 4)
}

func TestExport_Deterministic(t *testing.T) {
	a, _, err := Export(context.Background(), news.All(sampleArticles()), FormatCSV)
	require.NoError(t, err)
	b, _, err := Export(context.Background(), news.All(sampleArticles()), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExport_XLSX(t *testing.T) {
	out, _, err := Export(context.Background(), news.All(sampleArticles()), FormatXLSX)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"title", "topic"}, rows[0])
	assert.Equal(t, []string{"Cup final, tonight", "sport"}, rows[2])
}

func TestExport_Parquet(t *testing.T) {
	out, _, err := Export(context.Background(), news.All(sampleArticles()), FormatParquet)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, os.WriteFile(path, out, 0o600))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(NewsRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.EqualValues(t, 3, pr.GetNumRows())
	rows := make([]NewsRow, 3)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, NewsRow{Title: "Rates rise", Topic: "economy"}, rows[0])
}

func TestObjectKeyAndFormat(t *testing.T) {
	assert.Equal(t, "2024-05-01-news.csv", ObjectKey("2024-05-01", FormatCSV))
	assert.Equal(t, "2024-05-01-news.csv", ObjectKey("2024-05-01", ""))
	assert.Equal(t, "2024-05-01-news.parquet", ObjectKey("2024-05-01", FormatParquet))

	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("json")
	assert.Error(t, err)
}
