// Package pinecone adapts the Pinecone Go SDK to the upsert sink the
// vectorize pipeline writes to.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pc "github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// Vector is one upsert record. Metadata values must be JSON-shaped: scalars,
// lists and maps as produced by encoding/json.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// ControlPlane resolves an index name to its data plane host.
type ControlPlane interface {
	DescribeIndex(ctx context.Context, idxName string) (*pc.Index, error)
}

// Conn is an index connection bound to one namespace.
type Conn interface {
	UpsertVectors(ctx context.Context, in []*pc.Vector) (uint32, error)
	Close() error
}

// Dialer opens a connection to host for namespace.
type Dialer func(host, namespace string) (Conn, error)

type Client struct {
	index   string
	control ControlPlane
	dial    Dialer

	mu    sync.Mutex
	host  string
	conns map[string]Conn
}

type Option func(*Client)

// WithHost skips DescribeIndex and connects to host directly.
func WithHost(host string) Option {
	return func(c *Client) { c.host = host }
}

// New builds a client for index using the SDK. Connections are opened on
// first use, one per namespace.
func New(apiKey, index string, opts ...Option) (*Client, error) {
	sdk, err := pc.NewClient(pc.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone client: %w", err)
	}
	dial := func(host, namespace string) (Conn, error) {
		conn, err := sdk.Index(pc.NewIndexConnParams{Host: host, Namespace: namespace})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return NewWith(index, sdk, dial, opts...), nil
}

// NewWith builds a client on explicit control and data plane collaborators.
func NewWith(index string, control ControlPlane, dial Dialer, opts ...Option) *Client {
	c := &Client{
		index:   index,
		control: control,
		dial:    dial,
		conns:   map[string]Conn{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Host returns the data plane host of the index, asking the control plane
// once when it was not configured.
func (c *Client) Host(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hostLocked(ctx)
}

func (c *Client) hostLocked(ctx context.Context) (string, error) {
	if c.host != "" {
		return hostname(c.host), nil
	}

	idx, err := c.control.DescribeIndex(ctx, c.index)
	if err != nil {
		return "", fmt.Errorf("describe index %s: %w", c.index, err)
	}
	if idx == nil || idx.Host == "" {
		return "", fmt.Errorf("describe index %s: no host in response", c.index)
	}
	c.host = idx.Host
	return hostname(c.host), nil
}

func (c *Client) conn(ctx context.Context, namespace string) (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[namespace]; ok {
		return conn, nil
	}
	host, err := c.hostLocked(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := c.dial(host, namespace)
	if err != nil {
		return nil, fmt.Errorf("connect %s/%s: %w", host, namespace, err)
	}
	c.conns[namespace] = conn
	return conn, nil
}

// Upsert writes vectors into namespace in a single request and checks that
// every vector was accepted.
func (c *Client) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	in := make([]*pc.Vector, len(vectors))
	for i, v := range vectors {
		pv, err := toSDK(v)
		if err != nil {
			return err
		}
		in[i] = pv
	}

	conn, err := c.conn(ctx, namespace)
	if err != nil {
		return err
	}

	n, err := conn.UpsertVectors(ctx, in)
	if err != nil {
		return fmt.Errorf("upsert %d vectors: %w", len(in), err)
	}
	if int(n) != len(vectors) {
		return fmt.Errorf("upserted %d of %d vectors", n, len(vectors))
	}
	return nil
}

// Close closes every open connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for ns, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ns, err))
		}
		delete(c.conns, ns)
	}
	return errors.Join(errs...)
}

func toSDK(v Vector) (*pc.Vector, error) {
	out := &pc.Vector{Id: v.ID, Values: v.Values}
	if len(v.Metadata) == 0 {
		return out, nil
	}
	meta, err := structpb.NewStruct(v.Metadata)
	if err != nil {
		return nil, fmt.Errorf("vector %s metadata: %w", v.ID, err)
	}
	out.Metadata = meta
	return out, nil
}

// hostname strips the scheme and trailing slash; the SDK dials a bare host.
func hostname(host string) string {
	host = strings.TrimSuffix(host, "/")
	host = strings.TrimPrefix(host, "https://")
	return strings.TrimPrefix(host, "http://")
}
