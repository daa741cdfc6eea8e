// internal/bank/denomination.go
//
// 面額（denomination）→ 張數 的對照表。
// 存提款都以面額明細表示金額，總額由此計算，不另外傳入金額。

package bank

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Denominations maps a face value to a note count.
type Denominations map[int]int

// Total 回傳 Σ 面額*張數。
// 面額必須 > 0、張數必須 >= 0，總額必須 > 0 且不得溢位。
func (d Denominations) Total() (int64, error) {
	var total int64
	for face, count := range d {
		if face <= 0 || count < 0 {
			return 0, fmt.Errorf("%w: %d x %d", ErrBadDenomination, face, count)
		}
		if count > 0 && int64(face) > (math.MaxInt64-total)/int64(count) {
			return 0, fmt.Errorf("%w: total overflows", ErrBadAmount)
		}
		total += int64(face) * int64(count)
	}
	if total <= 0 {
		return 0, ErrBadAmount
	}
	return total, nil
}

// clone 回傳深拷貝；nil 保持 nil（提款紀錄沒有明細）。
func (d Denominations) clone() Denominations {
	if d == nil {
		return nil
	}
	out := make(Denominations, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// textKeys 轉成持久化格式（JSON 物件的 key 必須是字串）。
func (d Denominations) textKeys() map[string]int {
	if d == nil {
		return nil
	}
	out := make(map[string]int, len(d))
	for k, v := range d {
		out[strconv.Itoa(k)] = v
	}
	return out
}

// fromTextKeys 為 textKeys 的反向轉換；重複的面額視為不合法。
func fromTextKeys(m map[string]int) (Denominations, error) {
	if m == nil {
		return nil, nil
	}
	out := make(Denominations, len(m))
	for k, v := range m {
		face, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("%w: face %q", ErrBadDenomination, k)
		}
		if _, dup := out[face]; dup {
			return nil, fmt.Errorf("%w: face %d given more than once", ErrBadDenomination, face)
		}
		out[face] = v
	}
	return out, nil
}

// ParseDenominations 將文字形式的面額與張數轉成整數。
// 任一邊不是整數，或不同的 key 轉換後是同一個面額（"100"、"0100"、" 100"），
// 即回傳 ErrBadDenomination。
func ParseDenominations(raw map[string]string) (Denominations, error) {
	out := make(Denominations, len(raw))
	for k, v := range raw {
		face, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("%w: face %q", ErrBadDenomination, k)
		}
		count, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w: count %q", ErrBadDenomination, v)
		}
		if _, dup := out[face]; dup {
			return nil, fmt.Errorf("%w: face %d given more than once", ErrBadDenomination, face)
		}
		out[face] = count
	}
	return out, nil
}

// ParseDenominationsJSON 解析使用者輸入的 JSON 物件，例如 {"100": 2, "200": "5"}。
// 張數可以是 JSON 整數或數字字串；小數、布林、巢狀結構皆視為不合法。
func ParseDenominationsJSON(data []byte) (Denominations, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDenomination, err)
	}
	// 物件之後只允許空白
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after the JSON object", ErrBadDenomination)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrBadDenomination)
	}

	text := make(map[string]string, len(raw))
	for k, v := range raw {
		switch n := v.(type) {
		case json.Number:
			text[k] = n.String()
		case string:
			text[k] = n
		default:
			return nil, fmt.Errorf("%w: count for %q is not a number", ErrBadDenomination, k)
		}
	}
	return ParseDenominations(text)
}
