package store

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBlobStore is a mock implementation of BlobStore using testify/mock.
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, key string, blob Blob) error {
	args := m.Called(ctx, key, blob)
	return args.Error(0)
}

func (m *MockBlobStore) Get(ctx context.Context, key string) (Blob, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(Blob), args.Error(1)
}

func (m *MockBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *MockBlobStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
