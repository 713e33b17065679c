package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to a coachd socket.
type Client struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
}

// Dial connects to the daemon's Unix domain socket. The connection is lazy;
// the first call reports an unreachable daemon.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, health: grpc_health_v1.NewHealthClient(conn)}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Healthy asks the standard health service whether the coach service is serving.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING, nil
}

func (c *Client) call(ctx context.Context, method string, req any, out any) error {
	var in any = &emptypb.Empty{}
	if req != nil {
		s, err := toStruct(req)
		if err != nil {
			return err
		}
		in = s
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return fromStruct(resp, out)
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	var info StatusInfo
	if err := c.call(ctx, methodGetStatus, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Sessions lists active coaching sessions.
func (c *Client) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var out sessionList
	if err := c.call(ctx, methodListSessions, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Activate starts coaching for contact with goal.
func (c *Client) Activate(ctx context.Context, contact, goal string) error {
	return c.call(ctx, methodActivateSession, activateRequest{Contact: contact, Goal: goal}, nil)
}

// End stops coaching for contact.
func (c *Client) End(ctx context.Context, contact string) error {
	return c.call(ctx, methodEndSession, endRequest{Contact: contact}, nil)
}

// Send delivers text through the daemon's transport. An empty to means the
// configured user.
func (c *Client) Send(ctx context.Context, to, text string) error {
	return c.call(ctx, methodSendMessage, sendRequest{To: to, Text: text}, nil)
}

// Deliveries returns the newest delivery log rows.
func (c *Client) Deliveries(ctx context.Context, limit int) ([]DeliveryInfo, error) {
	var out deliveryList
	if err := c.call(ctx, methodRecentDeliveries, limitRequest{Limit: limit}, &out); err != nil {
		return nil, err
	}
	return out.Deliveries, nil
}

// Watch streams events under namespace to fn until ctx ends, the daemon
// closes the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, namespace string, fn func(EventEnvelope) error) error {
	stream, err := c.conn.NewStream(ctx, &coachServiceDesc.Streams[0], methodWatch)
	if err != nil {
		return err
	}
	req, err := toStruct(watchRequest{Namespace: namespace})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var evt EventEnvelope
		if err := fromStruct(msg, &evt); err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
