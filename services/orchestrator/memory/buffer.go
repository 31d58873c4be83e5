// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory provides the conversational memory engine: a short-term
// in-process exchange buffer, a durable badger-backed record store,
// intent-driven retrieval planning, and background consolidation of
// near-duplicate records.
package memory

import (
	"fmt"
	"sync"
)

// DefaultBufferCapacity bounds the short-term buffer per owner.
const DefaultBufferCapacity = 20

// LegacyBuffer is the in-process short-term memory: the last N exchanges
// per owner, formatted as "q: …\na: …" strings. It exists so the most
// recent turns are always available with zero I/O, even when the
// persistent store is cold or unavailable. Contents do not survive a
// restart; the persistent store covers that.
type LegacyBuffer struct {
	mu       sync.Mutex
	capacity int
	byOwner  map[string][]string
}

func NewLegacyBuffer(capacity int) *LegacyBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &LegacyBuffer{
		capacity: capacity,
		byOwner:  make(map[string][]string),
	}
}

// Add records one exchange, evicting the oldest entry once the owner's
// buffer is full.
func (b *LegacyBuffer) Add(owner, question, answer string) {
	entry := fmt.Sprintf("q: %s\na: %s", question, answer)

	b.mu.Lock()
	defer b.mu.Unlock()
	entries := append(b.byOwner[owner], entry)
	if len(entries) > b.capacity {
		entries = entries[len(entries)-b.capacity:]
	}
	b.byOwner[owner] = entries
}

// Recent returns up to n exchanges, newest first.
func (b *LegacyBuffer) Recent(owner string, n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newestFirst(owner, 0, n)
}

// Rest returns the exchanges after skipping the skipN newest, newest
// first. Recent and Rest together partition the buffer, which lets a
// retrieval plan treat the freshest turns and the older tail differently.
func (b *LegacyBuffer) Rest(owner string, skipN int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newestFirst(owner, skipN, b.capacity)
}

// Len reports the number of buffered exchanges for an owner.
func (b *LegacyBuffer) Len(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byOwner[owner])
}

// Reset drops the owner's buffer.
func (b *LegacyBuffer) Reset(owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byOwner, owner)
}

// newestFirst copies entries [skip, skip+n) counted from the newest end.
// Caller holds the lock.
func (b *LegacyBuffer) newestFirst(owner string, skip, n int) []string {
	entries := b.byOwner[owner]
	if n <= 0 || skip >= len(entries) {
		return nil
	}
	var out []string
	for i := len(entries) - 1 - skip; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}
