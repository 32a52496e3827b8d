// Package model defines the provider-agnostic abstraction for language models
// used by the NLU step and by model-backed agents.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (model/anthropic, model/openai) implement Model so higher layers
// remain decoupled from vendor SDKs.
package model
