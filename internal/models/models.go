package models

import "time"

// User represents a registered identity on the VidStream platform.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	AvatarID     string    `json:"-"`
	CoverImage   string    `json:"coverImage"`
	CoverImageID string    `json:"-"`
	WatchHistory []string  `json:"watchHistory"`
	Password     string    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public returns a copy of the user with credential fields cleared.
func (u User) Public() User {
	u.Password = ""
	u.RefreshToken = ""
	return u
}

// Summary returns the minimal public projection of the user.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Avatar:   u.Avatar,
	}
}

// UserSummary is the public shape joined into other read views.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Avatar   string `json:"avatar"`
}

// ChannelProfile describes a user's channel as seen by a viewer.
type ChannelProfile struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	FullName          string `json:"fullName"`
	Avatar            string `json:"avatar"`
	CoverImage        string `json:"coverImage"`
	SubscribersCount  int    `json:"subscribersCount"`
	SubscribedToCount int    `json:"channelsSubscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

// Subscription is the subscriber -> channel relationship edge.
type Subscription struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriberId"`
	ChannelID    string    `json:"channelId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SubscriberEntry is one row of a channel's subscriber listing.
type SubscriberEntry struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"createdAt"`
	Subscriber UserSummary `json:"subscriber"`
}

// ChannelEntry is one row of a subscriber's channel listing.
type ChannelEntry struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"createdAt"`
	Channel   UserSummary `json:"channel"`
}

// SubscriptionState reports the outcome of a subscription toggle.
type SubscriptionState string

const (
	Subscribed   SubscriptionState = "subscribed"
	Unsubscribed SubscriptionState = "unsubscribed"
)

// MediaRef points at an object held by the media store.
type MediaRef struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// Video is an uploaded video and its metadata.
type Video struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"ownerId"`
	Owner       *UserSummary `json:"owner,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	VideoFile   MediaRef     `json:"videoFile"`
	Thumbnail   MediaRef     `json:"thumbnail"`
	Duration    int          `json:"duration"`
	IsPublished bool         `json:"isPublished"`
	Views       int64        `json:"views"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Playlist is an owner-curated ordered set of videos.
type Playlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"ownerId"`
	Videos      []string  `json:"videos"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OwnedPlaylist is a playlist joined with its owner's public shape.
type OwnedPlaylist struct {
	Playlist
	Owner UserSummary `json:"owner"`
}

// PlaylistVideo is the projection of a video inside a playlist detail view.
type PlaylistVideo struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Thumbnail MediaRef `json:"thumbnail"`
	Duration  int      `json:"duration"`
	VideoFile MediaRef `json:"videoFile"`
}

// PlaylistDetail is the joined read view of a playlist.
type PlaylistDetail struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
	Owner       UserSummary     `json:"owner"`
	Videos      []PlaylistVideo `json:"videos"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
