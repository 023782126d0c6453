package http

import (
	"time"

	"github.com/vovakirdan/counselchat/internal/core"
	"github.com/vovakirdan/counselchat/internal/proto"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeCall:
		if inbound.ID == "" || inbound.Method == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "id and method are required"}
		}
		return &core.Command{
			Kind:   core.CommandCall,
			CallID: inbound.ID,
			Method: inbound.Method,
			Args:   inbound.Args,
		}, nil
	case proto.InboundTypePong:
		if inbound.Ts <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "ts is required"}
		}
		return &core.Command{
			Kind:   core.CommandPong,
			SentAt: time.UnixMilli(inbound.Ts),
		}, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventCall:
		return proto.Outbound{
			Type:   proto.OutboundTypeCall,
			Method: event.Method,
			Args:   event.Args,
		}
	case core.EventReply:
		out := proto.Outbound{
			Type: proto.OutboundTypeReply,
			ID:   event.CallID,
			Data: event.Data,
		}
		if event.Error != nil {
			out.Data = nil
			out.Error = &proto.Error{
				Code:  event.Error.Code,
				Msg:   event.Error.Message,
				Fatal: event.Error.Fatal,
			}
		}
		return out
	case core.EventPing:
		return proto.Outbound{
			Type: proto.OutboundTypePing,
			Ts:   event.SentAt.UnixMilli(),
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown event"}}
	}
}
