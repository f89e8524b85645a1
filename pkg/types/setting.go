package types

import (
	"encoding/json"
	"time"
)

// Setting 扁平设置项，key 唯一
type Setting struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
