package authgate

import (
	"encoding/json"
	"os"
	"time"
)

// HintCache persists the last-used email so a returning session can be
// pre-filled. It is a hint, not a credential; losing it costs nothing.
type HintCache struct {
	path string
}

// NewHintCache creates a hint cache backed by the given file.
func NewHintCache(path string) *HintCache {
	return &HintCache{path: path}
}

type hintFile struct {
	Email     string    `json:"email"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Load returns the last-used email, or "" when no hint exists.
func (c *HintCache) Load() string {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return ""
	}
	var hint hintFile
	if err := json.Unmarshal(data, &hint); err != nil {
		return ""
	}
	return hint.Email
}

// Save records the last-used email.
func (c *HintCache) Save(email string) error {
	data, err := json.Marshal(hintFile{Email: email, UpdatedAt: time.Now()})
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// Clear removes the hint, e.g. on logout.
func (c *HintCache) Clear() error {
	err := os.Remove(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
