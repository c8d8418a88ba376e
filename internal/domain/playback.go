package domain

import "context"

// LaunchResult is the device's verdict on a launch request.
type LaunchResult int

const (
	LaunchSuccess LaunchResult = iota
	// LaunchSidError: the device accepted the command but could not play the
	// file (bad PSID header or memory conflict with the cartridge app).
	LaunchSidError
)

func (r LaunchResult) String() string {
	if r == LaunchSidError {
		return "sid-error"
	}
	return "success"
}

// PlaybackClient provides the device operations playback needs.
type PlaybackClient interface {
	LaunchFile(ctx context.Context, storage StorageType, path string) (LaunchResult, error)
	PlaySubtune(ctx context.Context, index int) error
}
