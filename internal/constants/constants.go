package constants

import "time"

const (
	// IDRandomBytes is the entropy of generated row IDs (hex-encoded, so
	// the suffix is twice this length).
	IDRandomBytes = 12

	// MessageMaxLength caps message text in characters.
	MessageMaxLength = 4000

	// AvatarMaxBytes caps the inline avatar payload carried on registration.
	AvatarMaxBytes = 1 << 20

	// DeviceTokenTTL is the default capability token lifetime.
	DeviceTokenTTL = 30 * 24 * time.Hour

	// FeedClientSendBufferSize is the per-subscriber event buffer.
	FeedClientSendBufferSize = 256

	// FeedBroadcastBufferSize is the hub's inbound event buffer.
	FeedBroadcastBufferSize = 512
)
