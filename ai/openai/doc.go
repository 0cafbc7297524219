// Package openai provides an ai.Embedder backed by OpenAI-compatible
// embedding APIs, including local services such as Ollama and LM Studio.
package openai
