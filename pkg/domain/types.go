package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type User struct {
	ID           int64     `json:"id"`
	OpenID       string    `json:"openId"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	LoginMethod  string    `json:"loginMethod,omitempty"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	LastSignedIn time.Time `json:"lastSignedIn"`
}

// Prospectus is the investment/marketing document: a title and ordered sections.
type Prospectus struct {
	Title    string              `json:"title"`
	Sections []ProspectusSection `json:"sections"`
}

type ProspectusSection struct {
	Subtitle string `json:"subtitle"`
	Text     string `json:"text"`
}

// VideoScript is a short-video script. TotalDuration is not required to
// equal the sum of scene durations.
type VideoScript struct {
	Title         string  `json:"title"`
	TotalDuration float64 `json:"totalDuration"`
	Scenes        []Scene `json:"scenes"`
}

type Scene struct {
	SceneNumber   int     `json:"sceneNumber"`
	Duration      float64 `json:"duration"`
	Visuals       string  `json:"visuals"`
	Voiceover     string  `json:"voiceover"`
	BGMSuggestion string  `json:"bgmSuggestion"`
}

type PosterElements struct {
	MainHeadline string `json:"mainHeadline"`
	SubHeadline  string `json:"subHeadline"`
	BodyText     string `json:"bodyText"`
	CallToAction string `json:"callToAction"`
}

// MarketingContent is the full bundle produced by one content generation.
type MarketingContent struct {
	Prospectus     Prospectus     `json:"prospectus"`
	VideoScript    VideoScript    `json:"videoScript"`
	PosterElements PosterElements `json:"posterElements"`
}

type PlatformContent struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags"`
}

// PlatformContents maps a platform name to its adapted copy.
type PlatformContents struct {
	Platforms map[string]PlatformContent `json:"platforms"`
}

// GenerationHistory is one persisted content generation and the artifacts
// derived from it later (poster, platform adaptations).
type GenerationHistory struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"userId"`
	Prompt           string            `json:"prompt"`
	Style            Style             `json:"style"`
	Prospectus       *Prospectus       `json:"prospectusContent"`
	VideoScript      *VideoScript      `json:"videoScriptContent"`
	PosterElements   *PosterElements   `json:"posterElements"`
	PosterURL        string            `json:"posterUrl,omitempty"`
	VideoURL         string            `json:"videoUrl,omitempty"`
	PlatformContents *PlatformContents `json:"platformContents"`
	CreatedAt        time.Time         `json:"createdAt"`
}

type BrandAsset struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Name        string    `json:"name"`
	Type        AssetType `json:"type"`
	URL         string    `json:"url,omitempty"`
	Value       string    `json:"value,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
