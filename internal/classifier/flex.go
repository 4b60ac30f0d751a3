package classifier

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// flexInt accepts 3, 3.0 and "3". Anything else leaves it unset.
type flexInt struct {
	v  int
	ok bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		f.v, f.ok = n, true
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		f.v, f.ok = int(fl), true
	}
	return nil
}

// flexBool accepts true, "true", "yes", 1.
type flexBool struct {
	v  bool
	ok bool
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.ToLower(string(bytes.TrimSpace(b))), `"`)
	switch s {
	case "true", "yes", "1", "是":
		f.v, f.ok = true, true
	case "false", "no", "0", "否":
		f.v, f.ok = false, true
	}
	return nil
}
