package kma

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// data.go.kr wire types. The service is loose with its JSON: numeric fields
// arrive as either numbers or strings, a single-item page flattens
// "items.item" from an array to an object, and an empty page can collapse
// "items" to "". Decoding is therefore explicit and validating: anything the
// flexible shapes still cannot absorb becomes a PayloadError at this
// boundary instead of dynamically-shaped data leaking inward.

type apiResponse struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body responseBody `json:"body"`
	} `json:"response"`
}

type responseBody struct {
	Items      itemList `json:"items"`
	PageNo     flexible `json:"pageNo"`
	NumOfRows  flexible `json:"numOfRows"`
	TotalCount flexible `json:"totalCount"`
}

type itemList struct {
	Item []item
}

func (l *itemList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	// Empty pages serialize items as "" or null.
	if len(data) == 0 || string(data) == `""` || string(data) == "null" {
		l.Item = nil
		return nil
	}

	var wrapper struct {
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	raw := bytes.TrimSpace(wrapper.Item)
	if len(raw) == 0 || string(raw) == "null" {
		l.Item = nil
		return nil
	}

	if raw[0] == '[' {
		return json.Unmarshal(raw, &l.Item)
	}
	// Single-item pages flatten the array to one object.
	var single item
	if err := json.Unmarshal(raw, &single); err != nil {
		return err
	}
	l.Item = []item{single}
	return nil
}

type item struct {
	TypSeq  flexible `json:"typSeq"`
	TypName flexible `json:"typName"`
	TypEn   flexible `json:"typEn"`
	TypTm   flexible `json:"typTm"`
	TypLat  flexible `json:"typLat"`
	TypLon  flexible `json:"typLon"`
	TypDir  flexible `json:"typDir"`
	TypSp   flexible `json:"typSp"`
	TypPs   flexible `json:"typPs"`
	TypWs   flexible `json:"typWs"`
	Typ15   flexible `json:"typ15"`
	Typ25   flexible `json:"typ25"`
	TypLoc  flexible `json:"typLoc"`
	TmFc    flexible `json:"tmFc"`
	TmSeq   flexible `json:"tmSeq"`
}

// flexible is a scalar that may arrive as a JSON string or number.
type flexible string

func (f *flexible) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexible(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexible(n.String())
	return nil
}

func (f flexible) str() string { return strings.TrimSpace(string(f)) }

func (f flexible) intValue() (int, error) {
	s := f.str()
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.Atoi(s)
}

func (f flexible) floatValue() (float64, error) {
	s := f.str()
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(s, 64)
}

// floatOrZero is for optional numeric fields where absence means unpublished.
func (f flexible) floatOrZero() float64 {
	v, err := f.floatValue()
	if err != nil {
		return 0
	}
	return v
}
