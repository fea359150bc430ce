package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"lwwdict/internal/lww"
	"lwwdict/internal/wire"
)

// Client is a typed client for one replica.
type Client struct {
	conn *grpc.ClientConn
	from string
}

// Dial creates a client for the replica at addr. from is sent as the
// sender ID on State and Merge calls.
func Dial(addr, from string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &Client{conn: conn, from: from}, nil
}

// Serving reports whether the replica's health service has the
// Dictionary service SERVING.
func (c *Client) Serving(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp wire.Message) error {
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(wire.Name))
	return fromStatus(err)
}

// Add offers rec as the value of key.
func (c *Client) Add(ctx context.Context, key string, rec lww.Record) error {
	return c.invoke(ctx, "Add", wire.EntryFromRecord(key, rec), &wire.Empty{})
}

// Update offers rec as the new value of key.
func (c *Client) Update(ctx context.Context, key string, rec lww.Record) error {
	return c.invoke(ctx, "Update", wire.EntryFromRecord(key, rec), &wire.Empty{})
}

// Remove hides key as of ts.
func (c *Client) Remove(ctx context.Context, key string, ts lww.Timestamp) error {
	return c.invoke(ctx, "Remove", &wire.RemoveRequest{Key: key, Timestamp: int64(ts)}, &wire.Empty{})
}

// Lookup reports whether key is visible.
func (c *Client) Lookup(ctx context.Context, key string) (bool, error) {
	var resp wire.LookupResponse
	if err := c.invoke(ctx, "Lookup", &wire.KeyRequest{Key: key}, &resp); err != nil {
		return false, err
	}
	return resp.Visible, nil
}

// Get returns the visible record of key.
func (c *Client) Get(ctx context.Context, key string) (lww.Record, bool, error) {
	var resp wire.LookupResponse
	if err := c.invoke(ctx, "Get", &wire.KeyRequest{Key: key}, &resp); err != nil {
		return lww.Record{}, false, err
	}
	if !resp.Visible {
		return lww.Record{}, false, nil
	}
	return lww.NewRecord(resp.Payload, lww.Timestamp(resp.Timestamp)), true, nil
}

// State fetches the full replica state and the ID of the replica.
func (c *Client) State(ctx context.Context) (*lww.Dictionary, string, error) {
	var resp wire.State
	if err := c.invoke(ctx, "State", &wire.StateRequest{From: c.from}, &resp); err != nil {
		return nil, "", err
	}
	d, err := resp.Dictionary()
	if err != nil {
		return nil, "", fmt.Errorf("invalid state from %s: %w", resp.Origin, err)
	}
	return d, resp.Origin, nil
}

// Merge ships d to the replica. full marks d as a complete replica state.
func (c *Client) Merge(ctx context.Context, d *lww.Dictionary, full bool) (lww.MergeStats, error) {
	req := &wire.MergeRequest{
		From:  c.from,
		State: wire.FromDictionary(d, c.from),
		Full:  full,
	}
	var resp wire.MergeResponse
	if err := c.invoke(ctx, "Merge", req, &resp); err != nil {
		return lww.MergeStats{}, err
	}
	return lww.MergeStats{Adds: int(resp.Adds), Removes: int(resp.Removes)}, nil
}

// fromStatus turns InvalidArgument statuses back into the sentinel errors
// the server reported, so callers can match them with errors.Is. The
// sentinel is identified by the ErrorInfo reason, never by the message.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		for _, arg := range invalidArgs {
			if arg.reason == info.GetReason() {
				return fmt.Errorf("%s: %w", st.Message(), arg.err)
			}
		}
	}
	return err
}

// ClientManager manages gRPC clients to peer nodes.
type ClientManager struct {
	mu      sync.RWMutex
	localID string
	opts    []grpc.DialOption
	clients map[string]*Client
}

// NewClientManager creates a new client manager for the node localID.
func NewClientManager(localID string, opts ...grpc.DialOption) *ClientManager {
	return &ClientManager{
		localID: localID,
		opts:    opts,
		clients: make(map[string]*Client),
	}
}

// GetClient returns a client for the given node address.
// Creates a new connection if one doesn't exist.
func (cm *ClientManager) GetClient(addr string) (*Client, error) {
	cm.mu.RLock()
	client, exists := cm.clients[addr]
	cm.mu.RUnlock()

	if exists {
		return client, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := cm.clients[addr]; exists {
		return client, nil
	}

	client, err := Dial(addr, cm.localID, cm.opts...)
	if err != nil {
		return nil, err
	}
	cm.clients[addr] = client
	return client, nil
}

// FetchState returns the full state of the replica at addr.
func (cm *ClientManager) FetchState(ctx context.Context, addr string) (*lww.Dictionary, error) {
	client, err := cm.GetClient(addr)
	if err != nil {
		return nil, err
	}
	d, _, err := client.State(ctx)
	return d, err
}

// PushState asks the replica at addr to merge d.
func (cm *ClientManager) PushState(ctx context.Context, addr string, d *lww.Dictionary, full bool) (lww.MergeStats, error) {
	client, err := cm.GetClient(addr)
	if err != nil {
		return lww.MergeStats{}, err
	}
	return client.Merge(ctx, d, full)
}

// Close closes all client connections.
func (cm *ClientManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []error
	for addr, c := range cm.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", addr, err))
		}
	}
	cm.clients = make(map[string]*Client)
	return errors.Join(errs...)
}

func (cm *ClientManager) pushDelta(ctx context.Context, addr string, d *lww.Dictionary) error {
	_, err := cm.PushState(ctx, addr, d, false)
	return err
}
