package transport

// Message kinds as produced by the server.
const (
	KindText   = "text"
	KindImage  = "image"
	KindSystem = "system"
)

// Message is one chat stream entry. Content holds the text body for text
// and system messages, or the image URL for image messages.
type Message struct {
	ID           string `json:"id"`
	AuthorUserID string `json:"userId"`
	AuthorName   string `json:"username"`
	Kind         string `json:"type"`
	Content      string `json:"content"`
	Timestamp    string `json:"timestamp"`
	TsMs         int64  `json:"tsMs"`
}

// PresenceEntry is one row of the online roster snapshot.
type PresenceEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ImageFile is an in-memory image artifact for multipart endpoints.
// Order matters wherever a slice of these is accepted.
type ImageFile struct {
	Name string
	Data []byte
}
