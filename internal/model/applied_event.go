package model

// AppliedEvent marks an event as projected. It is written in the same
// transaction as the event's mutations.
type AppliedEvent struct {
	Key         string `json:"key"`
	Stream      string `json:"stream"`
	Kind        string `json:"kind"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
}

func (a *AppliedEvent) EntityType() EntityType { return TypeAppliedEvent }
func (a *AppliedEvent) EntityKey() string      { return a.Key }

func (a *AppliedEvent) Clone() Entity {
	c := *a
	return &c
}

// StreamCursor is the last applied position of one contract stream.
type StreamCursor struct {
	Stream      string `json:"stream"`
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint64 `json:"log_index"`
}

func (c *StreamCursor) EntityType() EntityType { return TypeStreamCursor }
func (c *StreamCursor) EntityKey() string      { return c.Stream }

func (c *StreamCursor) Clone() Entity {
	out := *c
	return &out
}
