package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/counselchat/internal/core"
	"github.com/vovakirdan/counselchat/internal/proto"
)

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Sign in as a guest, join a room and send one message",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		nickname, _ := cmd.Flags().GetString("nickname")
		text, _ := cmd.Flags().GetString("text")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		conn, _, err := websocket.Dial(ctx, addr, nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &smokeClient{conn: conn}
		return c.run(ctx, cmd, nickname, text)
	},
}

func init() {
	smokeCmd.Flags().String("addr", "ws://localhost:8080/ws", "WebSocket address")
	smokeCmd.Flags().String("nickname", "tester", "guest nickname")
	smokeCmd.Flags().String("text", "hello from smoke test", "message text to send")
	smokeCmd.Flags().Duration("timeout", 5*time.Second, "total timeout for the run")
}

type smokeFrame struct {
	Type   string            `json:"type"`
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Args   []json.RawMessage `json:"args"`
	Data   json.RawMessage   `json:"data"`
	Error  *proto.Error      `json:"error"`
	Ts     int64             `json:"ts"`
}

type smokeClient struct {
	conn   *websocket.Conn
	nextID int
}

func (c *smokeClient) run(ctx context.Context, cmd *cobra.Command, nickname, text string) error {
	var res core.SignInResult
	if err := c.call(ctx, core.MethodSignIn, map[string]any{"nickname": nickname}, &res); err != nil {
		return err
	}
	cmd.Printf("signed in: client=%s\n", res.ClientID)

	var rooms []core.RoomSummary
	if err := c.call(ctx, core.MethodGetRoomList, map[string]any{}, &rooms); err != nil {
		return err
	}
	cmd.Printf("rooms: %d\n", len(rooms))

	var target *core.RoomSummary
	for i := range rooms {
		if !rooms[i].Full && !rooms[i].Paused {
			target = &rooms[i]
			break
		}
	}
	if target == nil {
		return errors.New("no open room to join")
	}

	if err := c.call(ctx, core.MethodChangeRoom, map[string]any{"roomId": target.ID}, nil); err != nil {
		return err
	}
	cmd.Printf("joined room %q\n", target.Name)

	if err := c.call(ctx, core.MethodSendMessageToRoom, map[string]any{"roomId": target.ID, "text": text}, nil); err != nil {
		return err
	}

	for {
		f, err := c.read(ctx)
		if err != nil {
			return err
		}
		if f.Type != proto.OutboundTypeCall || f.Method != core.RemoteReceiveMessage || len(f.Args) == 0 {
			continue
		}
		var msg core.Message
		if err := json.Unmarshal(f.Args[0], &msg); err != nil {
			return fmt.Errorf("unmarshal message: %w", err)
		}
		cmd.Printf("message: room=%s from=%s text=%q\n", msg.RoomID, msg.Name, msg.Text)
		if msg.ClientID == res.ClientID {
			return nil
		}
	}
}

// call sends a method call and waits for its reply, answering pings meanwhile.
func (c *smokeClient) call(ctx context.Context, method string, args any, out any) error {
	c.nextID++
	id := strconv.Itoa(c.nextID)

	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: proto.InboundTypeCall, ID: id, Method: method, Args: raw}); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	for {
		f, err := c.read(ctx)
		if err != nil {
			return err
		}
		if f.Type == proto.OutboundTypeError {
			return fmt.Errorf("%s: %s", method, f.Error.Code)
		}
		if f.Type != proto.OutboundTypeReply || f.ID != id {
			continue
		}
		if f.Error != nil {
			return fmt.Errorf("%s: %s: %s", method, f.Error.Code, f.Error.Msg)
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(f.Data, out)
	}
}

func (c *smokeClient) read(ctx context.Context) (smokeFrame, error) {
	for {
		var f smokeFrame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			return f, fmt.Errorf("read: %w", err)
		}
		if f.Type != proto.OutboundTypePing {
			return f, nil
		}
		if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: proto.InboundTypePong, Ts: f.Ts}); err != nil {
			return f, fmt.Errorf("pong: %w", err)
		}
	}
}
