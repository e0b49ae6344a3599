package model

// ProtocolParam is the latest value of one ParamRegistry entry.
type ProtocolParam struct {
	Key          string `json:"key"`
	Kind         string `json:"kind"`
	Value        string `json:"value"`
	UpdatedBlock uint64 `json:"updated_block"`
	UpdatedAt    uint64 `json:"updated_at"`
}

func (p *ProtocolParam) EntityType() EntityType { return TypeProtocolParam }
func (p *ProtocolParam) EntityKey() string      { return p.Key }

func (p *ProtocolParam) Clone() Entity {
	c := *p
	return &c
}
