package socketrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/flowdash/internal/model"
)

// Client talks to a socket RPC server over a Unix domain socket using JSON-RPC 2.0.
type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	nextID  int
	scanner *bufio.Scanner
	encoder *json.Encoder
}

// Dial connects to the socket RPC server at the given path.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socketrpc: dial: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scannerInitBufSize), clientMaxTokenSize)
	return &Client{
		conn:    conn,
		scanner: scanner,
		encoder: json.NewEncoder(conn),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call performs a JSON-RPC call and unmarshals the result into dest.
// The connection deadline follows ctx, or 30s when ctx has none.
func (c *Client) call(ctx context.Context, method string, params interface{}, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	c.nextID++
	id := c.nextID

	paramsData, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("socketrpc: marshal params: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(30 * time.Second)
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if err := c.encoder.Encode(req); err != nil {
		return fmt.Errorf("socketrpc: send: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("socketrpc: read: %w", err)
		}
		return fmt.Errorf("socketrpc: connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return fmt.Errorf("socketrpc: unmarshal response: %w", err)
	}
	if resp.ID != id {
		return fmt.Errorf("socketrpc: response id %d, want %d", resp.ID, id)
	}

	if resp.Error != nil {
		return resp.Error
	}

	if dest != nil {
		if err := json.Unmarshal(resp.Result, dest); err != nil {
			return fmt.Errorf("socketrpc: unmarshal result: %w", err)
		}
	}
	return nil
}

// DatasetInfo returns the description of the loaded flow table.
func (c *Client) DatasetInfo() (*model.DatasetInfo, error) {
	var result model.DatasetInfo
	if err := c.call(context.Background(), "DatasetInfo", map[string]interface{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ComputeView returns the ten charts and the summary for sel.
func (c *Client) ComputeView(ctx context.Context, sel model.Selection) (*model.View, error) {
	var result model.View
	if err := c.call(ctx, "ComputeView", map[string]interface{}{"Selection": sel}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ComputeChart returns a single chart for sel.
func (c *Client) ComputeChart(ctx context.Context, sel model.Selection, id string) (*model.ChartSpec, error) {
	var result model.ChartSpec
	if err := c.call(ctx, "ComputeChart", map[string]interface{}{"Selection": sel, "ID": id}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) LoadHistory(limit int) ([]model.LoadRecord, error) {
	var result []model.LoadRecord
	err := c.call(context.Background(), "LoadHistory", map[string]interface{}{"Limit": limit}, &result)
	return result, err
}
