package domain

import "context"

// ChannelRegistry stores which chat rooms the bot should join. It is
// written by the administrative flow and consulted once at startup.
type ChannelRegistry interface {
	AddChannel(ctx context.Context, name string) error
	ListChannels(ctx context.Context) ([]string, error)
	Close() error
}
