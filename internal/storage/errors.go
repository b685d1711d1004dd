package storage

import "errors"

var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrModeUnavailable    = errors.New("search mode not available")
	ErrInvalidMode        = errors.New("invalid search mode")
	ErrWrite              = errors.New("backend write failed")
	ErrKeywordIndexLocked = errors.New("keyword index is locked by another process")
)
