package sink

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pevans/newsharvest/extract"
)

func testInput() [][]string {
	return [][]string{
		{"媒体", "見出し", "投稿日", "URL"},
		{"A社", "記事1", "2024/05/09 18:00", "https://n.example/1"},
		{"B社", "記事2", "2024/05/10 09:00", "https://n.example/2"},
	}
}

func newSink(t *testing.T) (*Sink, *MemoryWorkbook) {
	t.Helper()
	wb := NewMemoryWorkbook(InputSheet)
	s, err := New(wb, testInput())
	require.NoError(t, err)
	return s, wb
}

// TestNew_CopiesInputAndFixesResultColumn verifies the input copy and the
// count header position
func TestNew_CopiesInputAndFixesResultColumn(t *testing.T) {
	s, wb := newSink(t)

	assert.Equal(t, 6, s.ResultColumn())
	assert.Equal(t, "媒体", wb.Cell(InputSheet, 1, 1))
	assert.Equal(t, "https://n.example/2", wb.Cell(InputSheet, 4, 3))
	assert.Equal(t, CountHeader, wb.Cell(InputSheet, 6, 1))
}

// TestNew_WideInput verifies the result column follows wide headers
func TestNew_WideInput(t *testing.T) {
	input := [][]string{{"a", "b", "c", "d", "e", "f", "g"}}

	s, err := New(NewMemoryWorkbook(InputSheet), input)

	require.NoError(t, err)
	assert.Equal(t, 8, s.ResultColumn())
}

// TestNew_EmptyInput verifies the minimum result column
func TestNew_EmptyInput(t *testing.T) {
	s, err := New(NewMemoryWorkbook(InputSheet), nil)

	require.NoError(t, err)
	assert.Equal(t, 6, s.ResultColumn())
}

// TestSheetBase verifies cleaning, fallback and truncation
func TestSheetBase(t *testing.T) {
	assert.Equal(t, "A社_1", SheetBase("A社", 1))
	assert.Equal(t, "News_2", SheetBase("", 2))
	assert.Equal(t, "News_3", SheetBase("!!! ???", 3))
	assert.Equal(t, "ab-c_d_4", SheetBase("a b-c_d/:", 4))

	long := strings.Repeat("長", 40)
	assert.Equal(t, strings.Repeat("長", 20)+"_5", SheetBase(long, 5))
}

// TestCreateSheet_Dedup verifies colliding names get numeric suffixes
func TestCreateSheet_Dedup(t *testing.T) {
	s, wb := newSink(t)
	require.NoError(t, wb.NewSheet("Tokyo_1"))

	name, err := s.CreateSheet("Tokyo", 1)
	require.NoError(t, err)
	assert.Equal(t, "Tokyo_1_1", name)

	name, err = s.CreateSheet("Tokyo", 1)
	require.NoError(t, err)
	assert.Equal(t, "Tokyo_1_2", name)

	name, err = s.CreateSheet("tokyo", 1)
	require.NoError(t, err)
	assert.Equal(t, "tokyo_1_3", name)
}

// TestCreateSheet_LongCollision verifies suffixed names stay within the
// sheet name limit
func TestCreateSheet_LongCollision(t *testing.T) {
	s, wb := newSink(t)
	label := strings.Repeat("x", 30)
	base := SheetBase(label, 123456789012)
	require.Len(t, []rune(base), 31)
	require.NoError(t, wb.NewSheet(base))

	name, err := s.CreateSheet(label, 123456789012)

	require.NoError(t, err)
	assert.Equal(t, base[:28]+"_1", name)
	assert.LessOrEqual(t, len([]rune(name)), 31)
}

// TestWriteArticle verifies the article block layout
func TestWriteArticle(t *testing.T) {
	s, wb := newSink(t)
	require.NoError(t, wb.NewSheet("A_1"))

	err := s.WriteArticle("A_1", &extract.Article{
		Title: "見出し",
		URL:   "https://n.example/1",
		Pages: []string{"1ページ目", "2ページ目"},
	})

	require.NoError(t, err)
	assert.Equal(t, "タイトル", wb.Cell("A_1", 1, 1))
	assert.Equal(t, "見出し", wb.Cell("A_1", 2, 1))
	assert.Equal(t, "URL", wb.Cell("A_1", 1, 2))
	assert.Equal(t, "https://n.example/1", wb.Cell("A_1", 2, 2))
	assert.Equal(t, "1ページ目", wb.Cell("A_1", 1, 3))
	assert.Equal(t, "2ページ目", wb.Cell("A_1", 1, 4))
	assert.True(t, wb.Written("A_1", 1, 17))
	assert.Equal(t, "", wb.Cell("A_1", 1, 17))
	assert.False(t, wb.Written("A_1", 1, 18))
}

// TestWriteArticle_CapsPages verifies only the first pages are written
func TestWriteArticle_CapsPages(t *testing.T) {
	s, wb := newSink(t)
	require.NoError(t, wb.NewSheet("A_1"))
	pages := make([]string, 20)
	for i := range pages {
		pages[i] = strings.Repeat("p", i+1)
	}

	require.NoError(t, s.WriteArticle("A_1", &extract.Article{Pages: pages}))

	assert.Equal(t, pages[14], wb.Cell("A_1", 1, 17))
	assert.False(t, wb.Written("A_1", 1, 18))
}

// TestWriteErrors verifies the error markers
func TestWriteErrors(t *testing.T) {
	s, wb := newSink(t)
	require.NoError(t, wb.NewSheet("A_1"))

	require.NoError(t, s.WriteArticleError("A_1", errors.New("timeout")))
	require.NoError(t, s.WriteCommentsError("A_1", errors.New("navigation failed")))

	assert.Equal(t, "エラー", wb.Cell("A_1", 1, 1))
	assert.Equal(t, "記事取得失敗: timeout", wb.Cell("A_1", 1, 2))
	assert.Equal(t, "コメント取得失敗", wb.Cell("A_1", 1, 20))
	assert.Equal(t, "navigation failed", wb.Cell("A_1", 2, 20))
}

// TestWriteComments verifies header and tuples, including the placeholder
func TestWriteComments(t *testing.T) {
	s, wb := newSink(t)
	require.NoError(t, wb.NewSheet("A_1"))

	err := s.WriteComments("A_1", []extract.Comment{
		{Text: "一件目", Time: "24/05/10 11:55", Author: "user1"},
		{Text: "二件目", Time: "24/05/10 11:00", Author: "user2"},
	})

	require.NoError(t, err)
	assert.Equal(t, "コメント本文", wb.Cell("A_1", 1, 19))
	assert.Equal(t, "投稿日時", wb.Cell("A_1", 2, 19))
	assert.Equal(t, "ユーザー名", wb.Cell("A_1", 3, 19))
	assert.Equal(t, "一件目", wb.Cell("A_1", 1, 20))
	assert.Equal(t, "24/05/10 11:55", wb.Cell("A_1", 2, 20))
	assert.Equal(t, "user2", wb.Cell("A_1", 3, 21))

	require.NoError(t, wb.NewSheet("B_2"))
	require.NoError(t, s.WriteComments("B_2", []extract.Comment{{Text: extract.NoComments}}))
	assert.Equal(t, extract.NoComments, wb.Cell("B_2", 1, 20))
	assert.Equal(t, "", wb.Cell("B_2", 2, 20))
}

// TestWriteComments_Uncapped verifies every comment is written however
// many pages the thread had
func TestWriteComments_Uncapped(t *testing.T) {
	s, wb := newSink(t)
	require.NoError(t, wb.NewSheet("A_1"))

	comments := make([]extract.Comment, 400)
	for i := range comments {
		comments[i] = extract.Comment{Text: "c", Time: "24/05/10 11:00", Author: "u"}
	}
	comments[399].Text = "last"

	require.NoError(t, s.WriteComments("A_1", comments))
	assert.Equal(t, "last", wb.Cell("A_1", 1, 20+399))
}

// TestWriteCount verifies counts land on the original row only
func TestWriteCount(t *testing.T) {
	s, wb := newSink(t)

	require.NoError(t, s.WriteCount(3, 12))
	require.NoError(t, s.WriteCountFailure(2))

	assert.Equal(t, 12, wb.Cell(InputSheet, 6, 3))
	assert.Equal(t, CountFailure, wb.Cell(InputSheet, 6, 2))
	assert.Equal(t, "B社", wb.Cell(InputSheet, 1, 3))
	assert.Nil(t, wb.Cell(InputSheet, 5, 3))
}

// TestMemoryWorkbook_UnknownSheet verifies writes to missing sheets fail
func TestMemoryWorkbook_UnknownSheet(t *testing.T) {
	wb := NewMemoryWorkbook(InputSheet)

	assert.ErrorIs(t, wb.SetCell("missing", 1, 1, "x"), ErrNoSheet)
	assert.Error(t, wb.NewSheet("INPUT"))
}

// TestExcelWorkbook_SaveAndReopen verifies the xlsx output end to end
func TestExcelWorkbook_SaveAndReopen(t *testing.T) {
	wb, err := NewExcelWorkbook(InputSheet)
	require.NoError(t, err)
	defer wb.Close()

	s, err := New(wb, testInput())
	require.NoError(t, err)
	sheet, err := s.CreateSheet("A社", 1)
	require.NoError(t, err)
	require.NoError(t, s.WriteArticle(sheet, &extract.Article{Title: "見出し", URL: "https://n.example/1", Pages: []string{"本文"}}))
	require.NoError(t, s.WriteComments(sheet, []extract.Comment{{Text: "c", Time: "24/05/10 11:55", Author: "u"}}))
	require.NoError(t, s.WriteCount(2, 1))

	path := filepath.Join(t.TempDir(), "out", "240510.xlsx")
	require.NoError(t, s.Save(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{InputSheet, "A社_1"}, f.GetSheetList())
	v, err := f.GetCellValue(InputSheet, "F1")
	require.NoError(t, err)
	assert.Equal(t, CountHeader, v)
	v, err = f.GetCellValue(InputSheet, "F2")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	v, err = f.GetCellValue("A社_1", "B1")
	require.NoError(t, err)
	assert.Equal(t, "見出し", v)
	v, err = f.GetCellValue("A社_1", "A20")
	require.NoError(t, err)
	assert.Equal(t, "c", v)
}
