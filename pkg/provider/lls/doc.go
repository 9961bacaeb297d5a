// Package lls implements a Provider adapter for llama-stack style
// backends exposing an OpenAI Responses-compatible API (/v1/responses),
// plus the surrounding surface the engine needs: model and shield
// catalogs, the moderation endpoint, and conversation item appends.
package lls
