package webhook

import "time"

// Config controls the async webhook pipeline.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    float64
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// Timeout bounds a single POST.
	Timeout time.Duration

	// Username and AvatarURL fill messages that leave them empty.
	Username  string
	AvatarURL string
}

// Message is a Discord execute-webhook body.
type Message struct {
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Content   string  `json:"content,omitempty"`
	Embeds    []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
}

type EmbedAuthor struct {
	Name string `json:"name"`
}

type EmbedImage struct {
	URL string `json:"url"`
}
