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


// Package ai defines the embedding boundary of the engine.
//
// The engine treats embedding generation as a pluggable external capability
// with a request/response contract and a small failure taxonomy:
//
//   - ErrUnavailable and ErrRateLimited are transient and retryable
//   - ErrInvalidInput is fatal for that text and must not be retried
//
// Use IsRetryable to classify an error before retrying, and RetryWithBackoff
// to drive the retry loop with exponential backoff.
//
// # Implementation Packages
//
//   - ai/openai: production implementation for OpenAI-compatible APIs
//   - ai/mock: deterministic test double with behavior injection
//
// Public constructors (openai.NewEmbedder) return the Embedder interface to
// enforce abstraction; mock constructors return concrete types so tests can
// inject behavior and assert call counts.
package ai
