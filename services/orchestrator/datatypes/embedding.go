// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// EmbedRequest is the payload sent to the HTTP embedding service's batch
// endpoint.
type EmbedRequest struct {
	Texts []string `json:"texts"`
}

// EmbedResponse is the embedding service's reply. Vectors are returned in
// the same order as the request texts, each of dimension Dim.
type EmbedResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Dim     int         `json:"dim"`
	Model   string      `json:"model,omitempty"`
}
