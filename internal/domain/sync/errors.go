package sync

import "errors"

var (
	ErrUnknownUnit     = errors.New("unknown merge unit")
	ErrRemoteTimeout   = errors.New("remote write timed out")
	ErrDrainInFlight   = errors.New("sync queue drain already in progress")
	ErrNotSubscribed   = errors.New("no realtime subscription for user")
	ErrSnapshotCorrupt = errors.New("stored snapshot failed to decode")
)
