package zenn

import (
	"bytes"
	"encoding/json"
)

// APIResponse represents the listing endpoint response structure.
type APIResponse struct {
	Articles []Item          `json:"articles"`
	NextPage json.RawMessage `json:"next_page"`
}

// HasNext reports whether another page follows. Only an explicit null ends
// the listing; a missing field does not.
func (r *APIResponse) HasNext() bool {
	return !bytes.Equal(bytes.TrimSpace(r.NextPage), []byte("null"))
}

type Item struct {
	ID         int64   `json:"id"`
	Path       string  `json:"path"`
	Title      string  `json:"title"`
	LikedCount int     `json:"liked_count"`
	Topics     []Topic `json:"topics"`
}

type Topic struct {
	ID   TopicID `json:"id"`
	Name string  `json:"name"`
}

// TopicID accepts both string and numeric ids.
type TopicID string

func (t *TopicID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TopicID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = TopicID(n.String())
	return nil
}
