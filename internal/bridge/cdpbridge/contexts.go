package cdpbridge

import (
	"encoding/json"
	"sync"

	"github.com/chromedp/cdproto/runtime"
)

type auxData struct {
	IsDefault bool   `json:"isDefault"`
	FrameID   string `json:"frameId"`
}

// contexts tracks the default execution context of every frame
type contexts struct {
	mu      sync.Mutex
	byFrame map[string]runtime.ExecutionContextID
}

func (c *contexts) created(desc *runtime.ExecutionContextDescription) {
	if desc == nil || len(desc.AuxData) == 0 {
		return
	}
	var aux auxData
	if err := json.Unmarshal([]byte(desc.AuxData), &aux); err != nil || !aux.IsDefault || aux.FrameID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byFrame == nil {
		c.byFrame = make(map[string]runtime.ExecutionContextID)
	}
	c.byFrame[aux.FrameID] = desc.ID
}

func (c *contexts) destroyed(id runtime.ExecutionContextID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for f, known := range c.byFrame {
		if known == id {
			delete(c.byFrame, f)
		}
	}
}

func (c *contexts) cleared() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFrame = nil
}

func (c *contexts) lookup(frameID string) (runtime.ExecutionContextID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byFrame[frameID]
	return id, ok
}
