package tabular

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"strconv"

	"newsetl/internal/news"
)

// Schema is the fixed column set of the export, in column order.
var Schema = []string{"title", "topic"}

// Table holds every projected row of one partition in memory.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Project reads exactly the Schema fields of every article. A missing field
// aborts the projection; nothing else drops a row.
func Project(articles iter.Seq2[news.Article, error]) (*Table, error) {
	t := &Table{Columns: append([]string(nil), Schema...)}
	for a, err := range articles {
		if err != nil {
			return nil, err
		}
		row := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			v, err := a.Field(col)
			if err != nil {
				return nil, err
			}
			row[i] = cell(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// cell renders one decoded JSON value. Whole numbers keep a ".0" suffix and
// objects and arrays are written as compact JSON.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			s += ".0"
		}
		return s
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
