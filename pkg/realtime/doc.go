// Package realtime provides a client for a voice agent websocket session.
//
// It keeps the server-owned conversation history, sends text and PCM16 audio
// turns, and delivers the agent's streamed audio to callbacks.
package realtime
