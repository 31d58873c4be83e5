// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"reflect"
	"testing"
)

func TestLegacyBufferFIFO(t *testing.T) {
	b := NewLegacyBuffer(3)
	for _, qa := range [][2]string{{"A", "1"}, {"B", "2"}, {"C", "3"}, {"D", "4"}} {
		b.Add("owner", qa[0], qa[1])
	}

	// Capacity 3: A was evicted, newest first.
	got := b.Recent("owner", 3)
	want := []string{"q: D\na: 4", "q: C\na: 3", "q: B\na: 2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Recent() = %v, want %v", got, want)
	}
	if b.Len("owner") != 3 {
		t.Errorf("Len() = %d, want 3", b.Len("owner"))
	}
}

func TestLegacyBufferRecentAndRestPartition(t *testing.T) {
	b := NewLegacyBuffer(10)
	for _, q := range []string{"A", "B", "C", "D", "E"} {
		b.Add("owner", q, "ans")
	}

	recent := b.Recent("owner", 2)
	rest := b.Rest("owner", 2)
	if len(recent) != 2 || len(rest) != 3 {
		t.Fatalf("partition sizes = %d + %d, want 2 + 3", len(recent), len(rest))
	}
	if recent[0] != "q: E\na: ans" || recent[1] != "q: D\na: ans" {
		t.Errorf("Recent() = %v", recent)
	}
	if rest[0] != "q: C\na: ans" || rest[2] != "q: A\na: ans" {
		t.Errorf("Rest() = %v", rest)
	}
}

func TestLegacyBufferOwnerIsolation(t *testing.T) {
	b := NewLegacyBuffer(5)
	b.Add("alice", "question", "answer")

	if got := b.Recent("bob", 5); len(got) != 0 {
		t.Errorf("bob should have no entries, got %v", got)
	}
	b.Reset("alice")
	if got := b.Recent("alice", 5); len(got) != 0 {
		t.Errorf("reset should clear alice, got %v", got)
	}
}

func TestLegacyBufferEdgeRequests(t *testing.T) {
	b := NewLegacyBuffer(5)
	b.Add("owner", "A", "1")

	if got := b.Recent("owner", 0); got != nil {
		t.Errorf("Recent(0) = %v, want nil", got)
	}
	if got := b.Recent("owner", 10); len(got) != 1 {
		t.Errorf("Recent beyond size should return what exists, got %v", got)
	}
	if got := b.Rest("owner", 5); got != nil {
		t.Errorf("Rest past the end = %v, want nil", got)
	}
}
