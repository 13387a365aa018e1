// Package flatrecord は1行1レコードのタブ区切りテキスト形式を提供する。
//
// フィールド内のタブ・改行・バックスラッシュはバックスラッシュでエスケープする。
// フィールドの内容は解釈しないため、符号化済みの秘密情報（':' 区切り）もそのまま通る。
package flatrecord

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Separator はフィールド区切り文字。
const Separator = '\t'

// ErrMalformed は行が不正なエスケープを含む場合のエラー。
var ErrMalformed = errors.New("malformed record")

var escaper = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)

// Join はフィールドを1行に連結する。末尾に改行は付かない。
func Join(fields []string) string {
	escaped := make([]string, len(fields))
	for i, f := range fields {
		escaped[i] = escaper.Replace(f)
	}
	return strings.Join(escaped, string(Separator))
}

// Split は Join の出力をフィールドに分解する。
func Split(line string) ([]string, error) {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch c {
		case Separator:
			fields = append(fields, cur.String())
			cur.Reset()
		case '\\':
			if i+1 >= len(line) {
				return nil, fmt.Errorf("%w: trailing backslash", ErrMalformed)
			}
			i++
			switch line[i] {
			case '\\':
				cur.WriteByte('\\')
			case 't':
				cur.WriteByte('\t')
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			default:
				return nil, fmt.Errorf("%w: unknown escape \\%c", ErrMalformed, line[i])
			}
		case '\n', '\r':
			return nil, fmt.Errorf("%w: raw line break in record", ErrMalformed)
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String()), nil
}

// Writer はレコードを1行ずつ書き出す。
type Writer struct {
	w *bufio.Writer
}

// NewWriter は新しいWriterを生成する。
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write は1レコードを書き出す。
func (w *Writer) Write(fields []string) error {
	if _, err := w.w.WriteString(Join(fields)); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush はバッファを書き出す。
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Reader はレコードを1行ずつ読み込む。
type Reader struct {
	s    *bufio.Scanner
	line int
}

// NewReader は新しいReaderを生成する。
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{s: s}
}

// Read は次のレコードを返す。終端では io.EOF を返す。空行は読み飛ばす。
func (r *Reader) Read() ([]string, error) {
	for r.s.Scan() {
		r.line++
		text := strings.TrimSuffix(r.s.Text(), "\r")
		if text == "" {
			continue
		}
		fields, err := Split(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return fields, nil
	}
	if err := r.s.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
