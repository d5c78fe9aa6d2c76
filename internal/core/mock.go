package core

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jukebox-rooms/pkg/models"
)

type MockPlayer struct {
	mock.Mock
}

func (m *MockPlayer) GetCurrentPlayback(ctx context.Context, token string) (*Playback, error) {
	args := m.Called(ctx, token)
	if pb, ok := args.Get(0).(*Playback); ok {
		return pb, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPlayer) Play(ctx context.Context, token, trackURI string) error {
	args := m.Called(ctx, token, trackURI)
	return args.Error(0)
}

func (m *MockPlayer) Enqueue(ctx context.Context, token, trackURI string) error {
	args := m.Called(ctx, token, trackURI)
	return args.Error(0)
}

func (m *MockPlayer) Skip(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockPlayer) GetTopTracks(ctx context.Context, token string) ([]models.Track, error) {
	args := m.Called(ctx, token)
	if tracks, ok := args.Get(0).([]models.Track); ok {
		return tracks, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPlayer) GetPlaylistTracks(ctx context.Context, token, playlistID string) ([]models.Track, error) {
	args := m.Called(ctx, token, playlistID)
	if tracks, ok := args.Get(0).([]models.Track); ok {
		return tracks, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPlayer) GetProfile(ctx context.Context, token string) (*Profile, error) {
	args := m.Called(ctx, token)
	if p, ok := args.Get(0).(*Profile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockAuthProvider struct {
	mock.Mock
}

func (m *MockAuthProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenPair, error) {
	args := m.Called(ctx, code, redirectURI)
	if tp, ok := args.Get(0).(*TokenPair); ok {
		return tp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuthProvider) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	args := m.Called(ctx, accessToken, refreshToken)
	if tp, ok := args.Get(0).(*TokenPair); ok {
		return tp, args.Error(1)
	}
	return nil, args.Error(1)
}
