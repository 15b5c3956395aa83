// Package sink writes harvested articles and comments into the output
// workbook and the comment count back into the copied source sheet.
package sink

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/pevans/newsharvest/extract"
)

// Fixed layout of the output workbook.
const (
	InputSheet = "input"

	CountHeader  = "コメント件数"
	CountFailure = "取得失敗"

	// MaxBodyPages is the number of article pages kept; rows 3 to 17.
	MaxBodyPages = 15

	commentHeaderRow = 19
	commentFirstRow  = 20

	maxSheetName  = 31
	sheetBaseKeep = 20
	collisionKeep = 28
)

// Sink writes results into a Workbook.
type Sink struct {
	wb           Workbook
	resultColumn int
}

// New copies input into the input sheet and writes the count header. The
// result column is fixed here: one past the wider of the header and
// column E.
func New(wb Workbook, input [][]string) (*Sink, error) {
	values := make([][]any, len(input))
	for i, row := range input {
		values[i] = make([]any, len(row))
		for j, v := range row {
			values[i][j] = v
		}
	}
	if err := wb.SetRange(InputSheet, 1, 1, values); err != nil {
		return nil, fmt.Errorf("failed to copy input: %w", err)
	}

	width := 0
	if len(input) > 0 {
		width = len(input[0])
	}
	s := &Sink{wb: wb, resultColumn: max(width, 5) + 1}

	if err := wb.SetCell(InputSheet, s.resultColumn, 1, CountHeader); err != nil {
		return nil, fmt.Errorf("failed to write count header: %w", err)
	}
	return s, nil
}

// ResultColumn returns the 1-based column that receives comment counts.
func (s *Sink) ResultColumn() int {
	return s.resultColumn
}

// SheetBase returns the preferred sheet name for the idx-th record whose
// first column is label. Only letters, digits, '_' and '-' are kept.
func SheetBase(label string, idx int) string {
	var b strings.Builder
	for _, r := range label {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}

	base := "News_" + strconv.Itoa(idx)
	if clean := b.String(); clean != "" {
		base = truncate(clean, sheetBaseKeep) + "_" + strconv.Itoa(idx)
	}
	return truncate(base, maxSheetName)
}

// CreateSheet adds a sheet for the idx-th record and returns its name.
// Names already in use get a numeric suffix.
func (s *Sink) CreateSheet(label string, idx int) (string, error) {
	base := SheetBase(label, idx)
	name := base
	for n := 1; s.exists(name); n++ {
		name = truncate(base, collisionKeep) + "_" + strconv.Itoa(n)
	}

	if err := s.wb.NewSheet(name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Sink) exists(name string) bool {
	for _, n := range s.wb.SheetNames() {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// WriteArticle writes the title, URL and up to MaxBodyPages pages. Unused
// body rows are cleared.
func (s *Sink) WriteArticle(sheet string, art *extract.Article) error {
	head := [][]any{
		{"タイトル", art.Title},
		{"URL", art.URL},
	}
	if err := s.wb.SetRange(sheet, 1, 1, head); err != nil {
		return err
	}

	body := make([][]any, MaxBodyPages)
	for i := range body {
		body[i] = []any{""}
		if i < len(art.Pages) {
			body[i][0] = art.Pages[i]
		}
	}
	return s.wb.SetRange(sheet, 1, 3, body)
}

// WriteArticleError records that the article could not be read.
func (s *Sink) WriteArticleError(sheet string, err error) error {
	return s.wb.SetRange(sheet, 1, 1, [][]any{
		{"エラー"},
		{"記事取得失敗: " + err.Error()},
	})
}

// WriteComments writes the comment header and one row per comment.
func (s *Sink) WriteComments(sheet string, comments []extract.Comment) error {
	values := make([][]any, 0, len(comments)+1)
	values = append(values, []any{"コメント本文", "投稿日時", "ユーザー名"})
	for _, c := range comments {
		values = append(values, []any{c.Text, c.Time, c.Author})
	}
	return s.wb.SetRange(sheet, 1, commentHeaderRow, values)
}

// WriteCommentsError records that the comments could not be read.
func (s *Sink) WriteCommentsError(sheet string, err error) error {
	return s.wb.SetRange(sheet, 1, commentFirstRow, [][]any{{"コメント取得失敗", err.Error()}})
}

// WriteCount writes count into the result column of the input sheet at the
// record's original row.
func (s *Sink) WriteCount(rowPosition, count int) error {
	return s.wb.SetCell(InputSheet, s.resultColumn, rowPosition, count)
}

// WriteCountFailure marks the record's count as unavailable.
func (s *Sink) WriteCountFailure(rowPosition int) error {
	return s.wb.SetCell(InputSheet, s.resultColumn, rowPosition, CountFailure)
}

// Save writes the workbook to path.
func (s *Sink) Save(path string) error {
	return s.wb.SaveAs(path)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
