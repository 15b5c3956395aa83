package tabular

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"google.golang.org/api/option"

	"github.com/pevans/newsharvest/rows"
)

var jst = time.FixedZone("JST", 9*60*60)

// TestCSVReader_Read verifies BOM stripping and ragged rows
func TestCSVReader_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.csv")
	content := "\ufeff媒体,見出し,投稿日,URL\nA社,記事,2024/05/09 18:00,https://n.example/1\n短い行\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rows, err := (&CSVReader{Path: path}).Read(context.Background())

	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "媒体", rows[0][0])
	assert.Equal(t, "https://n.example/1", rows[1][3])
	assert.Equal(t, []string{"短い行"}, rows[2])
}

// TestCSVReader_ShiftJIS verifies legacy encodings are decoded
func TestCSVReader_ShiftJIS(t *testing.T) {
	encoded, err := japanese.ShiftJIS.NewEncoder().String("媒体,URL\n朝刊,https://n.example/1\n")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "source.csv")
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0644))

	rows, err := (&CSVReader{Path: path, Encoding: "shift_jis"}).Read(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "朝刊", rows[1][0])
}

// TestCSVReader_Errors verifies missing and empty files
func TestCSVReader_Errors(t *testing.T) {
	_, err := (&CSVReader{Path: filepath.Join(t.TempDir(), "missing.csv")}).Read(context.Background())
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = (&CSVReader{Path: empty}).Read(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = (&CSVReader{Path: empty, Encoding: "no-such-encoding"}).Read(context.Background())
	assert.Error(t, err)
}

// TestXLSXReader_Read verifies the first sheet is read by default
func TestXLSXReader_Read(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"媒体", "見出し", "投稿日", "URL"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"A社", "記事", "2024/05/09 18:00", "https://n.example/1"}))
	_, err := f.NewSheet("other")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("other", "A1", "別シート"))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	rows, err := (&XLSXReader{Path: path}).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "https://n.example/1", rows[1][3])

	rows, err = (&XLSXReader{Path: path, Sheet: "other"}).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"別シート"}}, rows)

	_, err = (&XLSXReader{Path: path, Sheet: "missing"}).Read(context.Background())
	assert.Error(t, err)
}

// TestXLSXReader_DateCells verifies typed date cells come back in a form
// the row index accepts
func TestXLSXReader_DateCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dates.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"媒体", "見出し", "投稿日", "URL"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"A社", "記事", time.Date(2024, 5, 9, 16, 0, 0, 0, time.UTC), "https://n.example/1"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"B社", "記事", "2024/05/09 18:00", "https://n.example/2"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	layout := rows.DefaultLayout()
	raw, err := (&XLSXReader{Path: path, DateColumns: []int{layout.DateColumn}}).Read(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "投稿日", raw[0][2])
	assert.Equal(t, "2024/05/09 16:00:00", raw[1][2])
	assert.Equal(t, "2024/05/09 18:00", raw[2][2])

	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.FixedZone("JST", 9*60*60))
	idx := rows.Build(raw, layout, now)
	assert.Len(t, idx.Records, 2)
	assert.Empty(t, idx.Skipped)
}

func sheetsServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v4/spreadsheets/sheet-id":
			assert.Equal(t, "sheets.properties.title", r.URL.Query().Get("fields"))
			json.NewEncoder(w).Encode(map[string]any{
				"sheets": []any{
					map[string]any{"properties": map[string]any{"title": "シート1"}},
					map[string]any{"properties": map[string]any{"title": "archive"}},
				},
			})
		case "/v4/spreadsheets/sheet-id/values/'シート1'":
			json.NewEncoder(w).Encode(map[string]any{
				"range": "'シート1'!A1:D3",
				"values": [][]any{
					{"媒体", "見出し", "投稿日", "URL"},
					{"A社", "記事", "2024/05/09 18:00", "https://n.example/1"},
					{"B社", 42},
				},
			})
		case "/v4/spreadsheets/sheet-id/values/'archive'":
			json.NewEncoder(w).Encode(map[string]any{"values": [][]any{}})
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newSheetsReader(t *testing.T, server *httptest.Server, id, sheet string) *SheetsReader {
	t.Helper()
	r, err := NewSheetsReader(context.Background(), id, sheet,
		option.WithHTTPClient(server.Client()),
		option.WithEndpoint(server.URL+"/"),
	)
	require.NoError(t, err)
	return r
}

// TestSheetsReader_FirstSheet verifies the first sheet is discovered and
// values are stringified
func TestSheetsReader_FirstSheet(t *testing.T) {
	server := sheetsServer(t)

	rows, err := newSheetsReader(t, server, "sheet-id", "").Read(context.Background())

	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "https://n.example/1", rows[1][3])
	assert.Equal(t, []string{"B社", "42"}, rows[2])
}

// TestSheetsReader_Errors verifies empty sheets and HTTP failures
func TestSheetsReader_Errors(t *testing.T) {
	server := sheetsServer(t)

	_, err := newSheetsReader(t, server, "sheet-id", "archive").Read(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = newSheetsReader(t, server, "other", "").Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

// TestSpreadsheetIDFromURL verifies ids are taken from edit URLs
func TestSpreadsheetIDFromURL(t *testing.T) {
	id, err := SpreadsheetIDFromURL("https://docs.google.com/spreadsheets/d/1nphpu1q2cZ-x_J/edit?gid=0#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1nphpu1q2cZ-x_J", id)

	id, err = SpreadsheetIDFromURL("1nphpu1q2cZ")
	require.NoError(t, err)
	assert.Equal(t, "1nphpu1q2cZ", id)

	_, err = SpreadsheetIDFromURL("https://example.com/doc")
	assert.ErrorIs(t, err, ErrSpreadsheetURL)
}

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
<title>経済ニュース</title>
<item>
<title>円相場が反落</title>
<link>https://n.example/articles/1</link>
<pubDate>Thu, 09 May 2024 07:00:00 GMT</pubDate>
<dc:creator>山田</dc:creator>
</item>
<item>
<title>日付なし</title>
<link>https://n.example/articles/2</link>
</item>
</channel>
</rss>`

// TestFeedReader_Read verifies feed items become rows in the run zone
func TestFeedReader_Read(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFeed))
	}))
	defer server.Close()

	rows, err := (&FeedReader{URL: server.URL, Location: jst}).Read(context.Background())

	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, FeedHeader, rows[0])
	assert.Equal(t, []string{"経済ニュース", "円相場が反落", "2024/05/09 16:00:00", "https://n.example/articles/1", "山田"}, rows[1])
	assert.Equal(t, "", rows[2][2])
}

// TestFeedRows_Authors verifies author de-duplication across fields
func TestFeedRows_Authors(t *testing.T) {
	updated := time.Date(2024, 5, 9, 1, 0, 0, 0, time.UTC)
	feed := &gofeed.Feed{
		Title: "Feed",
		Items: []*gofeed.Item{{
			Title:         "x",
			Link:          "https://n.example/x",
			UpdatedParsed: &updated,
			Author:        &gofeed.Person{Name: "Jane"},
			Authors:       []*gofeed.Person{{Name: "jane"}, {Name: "John"}},
			DublinCoreExt: &ext.DublinCoreExtension{Creator: []string{"John", "Kim"}},
		}},
	}

	rows := FeedRows(feed, jst)

	assert.Equal(t, "2024/05/09 10:00:00", rows[1][2])
	assert.Equal(t, "Jane, John, Kim", rows[1][4])
}

// TestReaderFunc verifies the function adapter
func TestReaderFunc(t *testing.T) {
	var r Reader = ReaderFunc(func(context.Context) ([][]string, error) {
		return [][]string{{"h"}}, nil
	})

	rows, err := r.Read(context.Background())

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"h"}}, rows)
}
