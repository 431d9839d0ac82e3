// Copyright (C) 2025 warden-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package rpc is the wire transport underneath the framed message
// channel: a single bidirectional gRPC streaming method, "Operate",
// whose frames carry the UTF-8 JSON serialization of whatever typed
// payload the operation state machine currently sends or expects. The
// action string and session-id travel as gRPC request metadata, read by
// the dispatcher before the first frame.
//
// There is no .proto file: Operate's client/server stubs are hand-written
// in the same shape protoc-gen-go-grpc would emit, and a codec registered
// under the "warden-raw" subtype passes each Frame's Content through
// untouched instead of protobuf-encoding it, since the payload is already
// a JSON byte string assembled by package channel.
package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Frame is the sole message type exchanged over the Operate stream: an
// opaque byte payload. Its Content is always a JSON document produced by
// package channel; rpc never interprets it.
type Frame struct {
	Content []byte
}

const codecName = "warden-raw"

// rawCodec marshals/unmarshals a *Frame by copying its Content verbatim,
// so gRPC's own length-delimited HTTP/2 framing becomes the channel's
// "length-delimited JSON encoding" without a second, redundant envelope.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	f, ok := v.(*Frame)
	if !ok {
		return nil, fmt.Errorf("rpc: warden-raw codec cannot marshal %T", v)
	}
	return f.Content, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	f, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("rpc: warden-raw codec cannot unmarshal into %T", v)
	}
	f.Content = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}

// ServerCodecOption configures a grpc.Server to use the raw frame codec.
func ServerCodecOption() grpc.ServerOption {
	return grpc.ForceServerCodec(rawCodec{})
}

// ClientCodecCallOption forces a client stream to use the raw frame codec.
func ClientCodecCallOption() grpc.CallOption {
	return grpc.ForceCodec(rawCodec{})
}

// ServiceName is the gRPC service name under which Operate is registered.
const ServiceName = "warden.Gateway"

// OperateStreamName is the one streaming method every action multiplexes
// onto; the action itself rides in request metadata (see package
// server), not in the method name, so that adding an operation never
// changes the wire service definition.
const OperateStreamName = "Operate"

// FullMethod is the gRPC path clients dial for Operate.
var FullMethod = fmt.Sprintf("/%s/%s", ServiceName, OperateStreamName)

// GatewayServer is implemented by the dispatcher: one bidirectional
// streaming method fielding every action.
type GatewayServer interface {
	Operate(GatewayOperateServer) error
}

// GatewayOperateServer is the server's view of one Operate stream.
type GatewayOperateServer interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ServerStream
}

type gatewayOperateServer struct {
	grpc.ServerStream
}

func (x *gatewayOperateServer) Send(f *Frame) error { return x.ServerStream.SendMsg(f) }

func (x *gatewayOperateServer) Recv() (*Frame, error) {
	f := new(Frame)
	if err := x.ServerStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

func gatewayOperateHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(GatewayServer).Operate(&gatewayOperateServer{ServerStream: stream})
}

// ServiceDesc is registered with a *grpc.Server by package server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    OperateStreamName,
			Handler:       gatewayOperateHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "warden/rpc.proto",
}

// RegisterGatewayServer wires a GatewayServer implementation into a
// *grpc.Server, mirroring the registration function protoc-gen-go-grpc
// would generate.
func RegisterGatewayServer(s *grpc.Server, srv GatewayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// GatewayClient opens Operate streams against a dialed connection.
type GatewayClient interface {
	Operate(ctx context.Context, opts ...grpc.CallOption) (GatewayOperateClient, error)
}

type gatewayClient struct {
	cc grpc.ClientConnInterface
}

// NewGatewayClient wraps a ClientConn (as returned by grpc.NewClient) with
// the Operate stub.
func NewGatewayClient(cc grpc.ClientConnInterface) GatewayClient {
	return &gatewayClient{cc: cc}
}

func (c *gatewayClient) Operate(ctx context.Context, opts ...grpc.CallOption) (GatewayOperateClient, error) {
	opts = append([]grpc.CallOption{ClientCodecCallOption()}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &gatewayOperateClient{ClientStream: stream}, nil
}

// GatewayOperateClient is the client's view of one Operate stream.
type GatewayOperateClient interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ClientStream
}

type gatewayOperateClient struct {
	grpc.ClientStream
}

func (x *gatewayOperateClient) Send(f *Frame) error { return x.ClientStream.SendMsg(f) }

func (x *gatewayOperateClient) Recv() (*Frame, error) {
	f := new(Frame)
	if err := x.ClientStream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}
