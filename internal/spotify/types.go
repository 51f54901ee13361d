package spotify

// Playlist is a read-only projection of an upstream playlist.
type Playlist struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	TrackCount int    `json:"trackCount"`
}

// Track contains the track details shown on a swipe card.
type Track struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Artists  []string `json:"artists"`
	Album    string   `json:"album"`
	ImageURL string   `json:"imageUrl,omitempty"`
}
