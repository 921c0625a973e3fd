// Package fileio persists accepted uploads and hands out collision free names.
package fileio

import (
	"context"
	"errors"
)

// ErrExists is returned by Put when name is already stored. Stores never replace an entry.
var ErrExists = errors.New("storage name already exists")

// Store is a flat namespace of stored uploads
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	// Put stores data under name and returns the CRC32 of the stored bytes.
	Put(ctx context.Context, name string, data []byte) (uint32, error)
	List(ctx context.Context) ([]string, error)
}
