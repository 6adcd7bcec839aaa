// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"qlnotebook/cli/internal/engine"
	"qlnotebook/cli/internal/engine/resultfile"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Options configures a Client.
type Options struct {
	// Token is sent as a bearer token with every call when set.
	Token string
	// Insecure disables TLS, for loopback servers.
	Insecure bool
	// DialOptions are appended after the transport credentials.
	DialOptions []grpc.DialOption
}

// Client is an engine.Engine backed by a remote server.
type Client struct {
	conn    *grpc.ClientConn
	token   string
	results *resultfile.Dir
}

// Dial creates a client for addr. Results received from the server are
// stored in results.
func Dial(addr string, results *resultfile.Dir, opts Options) (*Client, error) {
	target := addr
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	} else if !opts.Insecure {
		target = net.JoinHostPort(addr, "443")
	}

	creds := insecure.NewCredentials()
	if !opts.Insecure {
		creds = credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, opts.DialOptions...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, token: opts.Token, results: results}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// CompileAndRun forwards q to the server.
func (c *Client) CompileAndRun(ctx context.Context, q engine.Query, progress engine.ProgressFunc) (*engine.Result, error) {
	if c.conn == nil {
		return nil, errors.New("remote engine not connected")
	}
	req, err := encodeQuery(q)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	progress.Report(0, 1, "sending to remote engine")
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, fullMethod, req, resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if st, ok := status.FromError(err); ok {
			return nil, errors.New(st.Code().String() + ": " + st.Message())
		}
		return nil, err
	}
	progress.Report(1, 1, "remote engine finished")

	r, err := decodeResponse(resp)
	if err != nil {
		return nil, err
	}
	if r.Type != engine.Success {
		return &engine.Result{Type: r.Type, Message: r.Message}, nil
	}
	path, err := c.results.WriteRaw(ctx, r.Results)
	if err != nil {
		return nil, err
	}
	return &engine.Result{Type: engine.Success, ResultsPath: path}, nil
}
