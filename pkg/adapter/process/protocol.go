package process

import (
	"termpool/pkg/interfaces"
)

// Message types exchanged with the hosted process, one JSON object per line.
//
//	pool -> process: ping{id}, signal{signal}, run{request}
//	process -> pool: pong{id}, result{result}, log{text}
const (
	msgPing   = "ping"
	msgPong   = "pong"
	msgSignal = "signal"
	msgRun    = "run"
	msgResult = "result"
	msgLog    = "log"
)

// Message wire envelope
type Message struct {
	Type    string                       `json:"type"`
	ID      int64                        `json:"id,omitempty"`
	Signal  interfaces.Signal            `json:"signal,omitempty"`
	Request *interfaces.ExecutionRequest `json:"request,omitempty"`
	Result  *interfaces.ExecutionResult  `json:"result,omitempty"`
	Text    string                       `json:"text,omitempty"`
}
