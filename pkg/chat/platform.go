package chat

// Platform is the closed category partitioning conversations and routing
// generation requests. A conversation's platform never changes after creation.
type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformInstagram Platform = "instagram"
	PlatformImages    Platform = "images"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformLinkedIn, PlatformInstagram, PlatformImages:
		return true
	}
	return false
}

func Platforms() []Platform {
	return []Platform{PlatformLinkedIn, PlatformInstagram, PlatformImages}
}
