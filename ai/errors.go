// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import "errors"

var (
	// ErrUnavailable indicates the embedding service could not be reached or
	// returned a server-side failure. Retryable.
	ErrUnavailable = errors.New("embedding service unavailable")

	// ErrRateLimited indicates the embedding service rejected the request due
	// to rate limiting. Retryable after backoff.
	ErrRateLimited = errors.New("embedding service rate limited")

	// ErrInvalidInput indicates the embedding service rejected the input text
	// itself. Fatal for that text; retrying the same input cannot succeed.
	ErrInvalidInput = errors.New("invalid embedding input")
)

// IsRetryable reports whether an embedding error is worth retrying.
// Invalid input is the only failure that can never succeed on retry; anything
// else (unavailability, rate limits, transport errors) is treated as
// transient.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrInvalidInput)
}
