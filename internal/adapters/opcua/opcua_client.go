package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/plcwatch/internal/domain"
	"github.com/ghalamif/plcwatch/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	Namespace       uint16        `yaml:"namespace"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxAge          time.Duration `yaml:"max_age"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "PLCWatch Edge"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.MaxAge < 0 {
		c.MaxAge = 0
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if !strings.HasPrefix(c.Endpoint, "opc.tcp://") {
		return fmt.Errorf("endpoint %q must use opc.tcp://", c.Endpoint)
	}
	return nil
}

// Client reads tags with the synchronous OPC UA Read service. The underlying
// gopcua client is recreated on every Connect since a closed client cannot be
// reopened; reconnect policy belongs to the caller.
type Client struct {
	cfg Config

	mu     sync.Mutex
	client *opcua.Client
}

func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		_ = c.client.Close(ctx)
		c.client = nil
	}

	client, err := opcua.NewClient(c.cfg.Endpoint, c.buildClientOptions()...)
	if err != nil {
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		_ = client.Close(ctx)
		return fmt.Errorf("opcua connect: %w", err)
	}
	c.client = client
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.State() == opcua.Connected
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Read resolves every tag to a node, reads each distinct node once and
// decodes the values. Any bad status fails the whole read.
func (c *Client) Read(ctx context.Context, tags []domain.TagDescriptor) (map[string]any, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("opcua: not connected")
	}

	plan, err := c.planRead(tags)
	if err != nil {
		return nil, err
	}

	req := &ua.ReadRequest{
		MaxAge:             float64(c.cfg.MaxAge / time.Millisecond),
		NodesToRead:        plan.nodes,
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	}
	resp, err := client.Read(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("opcua read: %w", err)
	}
	if len(resp.Results) != len(plan.nodes) {
		return nil, fmt.Errorf("opcua read: expected %d results, got %d", len(plan.nodes), len(resp.Results))
	}

	out := make(map[string]any, len(tags))
	for i, dv := range resp.Results {
		if dv == nil || dv.Status != ua.StatusOK {
			status := ua.StatusBad
			if dv != nil {
				status = dv.Status
			}
			return nil, fmt.Errorf("opcua read %s: %s", plan.nodes[i].NodeID, status)
		}
		for _, tag := range plan.tagsByNode[i] {
			v, err := decodeVariant(tag, dv.Value)
			if err != nil {
				return nil, fmt.Errorf("tag %s: %w", tag.Name, err)
			}
			out[tag.Name] = v
		}
	}
	return out, nil
}

type readPlan struct {
	nodes      []*ua.ReadValueID
	tagsByNode [][]domain.TagDescriptor
}

func (c *Client) planRead(tags []domain.TagDescriptor) (readPlan, error) {
	var plan readPlan
	index := make(map[string]int, len(tags))
	for _, tag := range tags {
		ref := c.nodeRef(tag)
		i, ok := index[ref]
		if !ok {
			id, err := ua.ParseNodeID(ref)
			if err != nil {
				return readPlan{}, fmt.Errorf("parse node id %q for tag %s: %w", ref, tag.Name, err)
			}
			i = len(plan.nodes)
			index[ref] = i
			plan.nodes = append(plan.nodes, &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue})
			plan.tagsByNode = append(plan.tagsByNode, nil)
		}
		plan.tagsByNode[i] = append(plan.tagsByNode[i], tag)
	}
	return plan, nil
}

// nodeRef resolves the node holding a tag: an explicit node id, the raw data
// block for area-addressed tags, or the tag name in the configured namespace.
func (c *Client) nodeRef(tag domain.TagDescriptor) string {
	switch {
	case tag.NodeID != "":
		return tag.NodeID
	case tag.Area != nil:
		return fmt.Sprintf("ns=%d;s=DB%d", c.cfg.Namespace, *tag.Area)
	default:
		return fmt.Sprintf("ns=%d;s=%s", c.cfg.Namespace, tag.Name)
	}
}

func decodeVariant(tag domain.TagDescriptor, v *ua.Variant) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("empty variant")
	}

	var (
		value any
		err   error
	)
	switch raw := v.Value().(type) {
	case []byte:
		value, err = domain.Decode(tag.DataType, raw, tag.Offset)
		if err != nil {
			return nil, err
		}
	default:
		var ok bool
		value, ok = domain.Normalize(raw)
		if !ok {
			return nil, fmt.Errorf("unsupported variant type %T", raw)
		}
	}

	if tag.BitIndex != nil {
		return domain.ExtractBit(value, *tag.BitIndex)
	}
	return value, nil
}

func (c *Client) buildClientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(c.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(c.cfg.SecurityPolicy)),
		opcua.ApplicationName(c.cfg.ApplicationName),
		opcua.RequestTimeout(c.cfg.RequestTimeout),
		opcua.AutoReconnect(false),
	}

	if c.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(c.cfg.Username, c.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.DeviceClient = (*Client)(nil)
