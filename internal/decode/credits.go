package decode

// Credit is one contributor entry
type Credit struct {
	Name   string `json:"name"`
	GitHub string `json:"github,omitempty"`
	Desc   string `json:"desc,omitempty"`
}

// ParseCredits decodes a credits list payload
func ParseCredits(data []byte) ([]Credit, error) {
	var credits []Credit
	if err := unmarshal(SchemaCredits, data, &credits); err != nil {
		return nil, err
	}
	return credits, nil
}
