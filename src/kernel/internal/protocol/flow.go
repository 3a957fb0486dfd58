package protocol

import (
	"fmt"

	"github.com/llmspell/spellkernel/src/kernel/entity"
)

// RequestChannel stands for "the channel the request arrived on" in a Step.
const RequestChannel entity.Channel = "request"

// Step is one message in a request's answer sequence.
type Step struct {
	Channel entity.Channel
	Type    MessageType
	// Optional steps may be absent.
	Optional bool
	// Repeated steps may occur any number of times.
	Repeated bool
}

// status covers both the busy and the idle announcement.
func status() Step { return Step{Channel: entity.ChannelIOPub, Type: Status} }

func reply(t MessageType) Step {
	return Step{Channel: RequestChannel, Type: t.ReplyType()}
}

// DefaultExecutionFlow is the Jupyter-style answer sequence shared by the bundled protocols.
func DefaultExecutionFlow(t MessageType) []Step {
	switch t {
	case ExecuteRequest:
		return []Step{
			status(),
			{Channel: entity.ChannelIOPub, Type: ExecuteInput},
			{Channel: entity.ChannelIOPub, Type: Stream, Optional: true, Repeated: true},
			{Channel: entity.ChannelIOPub, Type: DisplayData, Optional: true, Repeated: true},
			{Channel: entity.ChannelIOPub, Type: ExecuteResult, Optional: true},
			{Channel: entity.ChannelIOPub, Type: Error, Optional: true},
			reply(t),
			status(),
		}
	case DebugRequest:
		return []Step{
			status(),
			reply(t),
			{Channel: entity.ChannelIOPub, Type: DebugEvent, Optional: true, Repeated: true},
			status(),
		}
	case ShutdownRequest, InterruptRequest, RegisterClientRequest, DisconnectRequest:
		return []Step{reply(t)}
	case KernelInfoRequest, InspectRequest, CompleteRequest, IsCompleteRequest,
		HistoryRequest, CommInfoRequest, ClearSessionRequest:
		return []Step{status(), reply(t), status()}
	case CommOpen, CommMsg, CommClose:
		return []Step{
			status(),
			{Channel: entity.ChannelIOPub, Type: CommClose, Optional: true},
			status(),
		}
	}
	return nil
}

// CheckSequence verifies that got, the (channel, type) pairs observed for one request,
// follows flow. reqChannel resolves RequestChannel steps.
func CheckSequence(flow []Step, reqChannel entity.Channel, got []Step) error {
	i := 0
	for _, step := range flow {
		ch := step.Channel
		if ch == RequestChannel {
			ch = reqChannel
		}
		matched := 0
		for i < len(got) && got[i].Channel == ch && got[i].Type == step.Type {
			matched++
			i++
			if !step.Repeated {
				break
			}
		}
		if matched == 0 && !step.Optional {
			if i < len(got) {
				return fmt.Errorf("expected %s on %s, got %s on %s", step.Type, ch, got[i].Type, got[i].Channel)
			}
			return fmt.Errorf("expected %s on %s, sequence ended", step.Type, ch)
		}
	}
	if i < len(got) {
		return fmt.Errorf("unexpected %s on %s after sequence end", got[i].Type, got[i].Channel)
	}
	return nil
}
