package api

// Icon is the JSON form of a stored icon's metadata.
type Icon struct {
	Service     string `json:"service"`
	Name        string `json:"name"`
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Hash        string `json:"hash"`
	Location    string `json:"location"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type IconList struct {
	Service string `json:"service"`
	Icons   []Icon `json:"icons"`
}
