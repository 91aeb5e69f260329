package engine

// Message represents a chat message. Images carries raw encoded image bytes
// (JPEG or PNG) for vision-capable models.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  [][]byte `json:"images,omitempty"`
}

// Options carries sampling parameters.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
