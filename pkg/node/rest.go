package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	forge "github.com/sigmanauts/sigmaforge/pkg"
	"github.com/sigmanauts/sigmaforge/pkg/ergo"
)

// interface guard ensures RestClient implements forge.NodeClient
var _ forge.NodeClient = &RestClient{}

// unspent boxes are fetched in pages of this size
const unspentPageSize = 100

// NewRestClient returns a forge.NodeClient implementor that uses the
// Ergo node's REST API.
func NewRestClient(config forge.Config) *RestClient {
	timeout := time.Duration(config.Node.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RestClient{
		url:    strings.TrimRight(config.Node.RestURL, "/"),
		apiKey: config.Node.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

type RestClient struct {
	url    string
	apiKey string
	client *http.Client
}

// nodeError is the node's uniform error envelope.
type nodeError struct {
	Error  int    `json:"error"`
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// nodeDetail extracts the most specific message from an error body.
func nodeDetail(body []byte) string {
	var ne nodeError
	if json.Unmarshal(body, &ne) == nil {
		if ne.Detail != "" {
			return ne.Detail
		}
		if ne.Reason != "" {
			return ne.Reason
		}
	}
	return strings.TrimSpace(string(body))
}

func (c *RestClient) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return 0, nil, forge.NewErr(forge.NotAvailable, "node request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api_key", c.apiKey)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return 0, nil, forge.NewErr(forge.NotAvailable, "node transport: %v", err)
	}
	// we MUST read all of res.Body and call res.Close,
	// otherwise the underlying connection cannot be re-used.
	defer res.Body.Close()
	res_bytes, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, forge.NewErr(forge.NotAvailable, "node read response: %v", err)
	}
	return res.StatusCode, res_bytes, nil
}

// call performs a request where any non-200 answer means the node
// cannot serve us right now.
func (c *RestClient) call(ctx context.Context, method, path string, body []byte, result any) error {
	status, res, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return forge.NewErr(forge.NotAvailable, "node status %d: %s", status, nodeDetail(res))
	}
	if err := json.Unmarshal(res, result); err != nil {
		return forge.NewErr(forge.NotAvailable, "node unmarshal response: %v", err)
	}
	return nil
}

func (c *RestClient) GetHeight(ctx context.Context) (uint32, error) {
	var info struct {
		FullHeight *uint32 `json:"fullHeight"` // null until the node has indexed a block
	}
	if err := c.call(ctx, "GET", "/info", nil, &info); err != nil {
		return 0, err
	}
	if info.FullHeight == nil {
		return 0, forge.NewErr(forge.NotAvailable, "node has not indexed any blocks yet")
	}
	return *info.FullHeight, nil
}

func (c *RestClient) UnspentBoxes(ctx context.Context, address ergo.Address) ([]ergo.Box, error) {
	// the endpoint takes the address as a JSON string body
	body, err := json.Marshal(string(address))
	if err != nil {
		return nil, forge.NewErr(forge.NotAvailable, "node marshal address: %v", err)
	}
	var boxes []ergo.Box
	for offset := 0; ; offset += unspentPageSize {
		path := fmt.Sprintf("/blockchain/box/unspent/byAddress?offset=%d&limit=%d", offset, unspentPageSize)
		var page []ergo.Box
		if err := c.call(ctx, "POST", path, body, &page); err != nil {
			return nil, err
		}
		boxes = append(boxes, page...)
		if len(page) < unspentPageSize {
			return boxes, nil
		}
	}
}

func (c *RestClient) Broadcast(ctx context.Context, signedTx json.RawMessage) (ergo.TxID, error) {
	status, res, err := c.do(ctx, "POST", "/transactions", signedTx)
	if err != nil {
		return "", err
	}
	switch {
	case status == http.StatusOK:
		// accepted into the mempool; the body is the id
	case status >= 400 && status < 500:
		// the node reviewed the transaction and turned it down
		return "", forge.NewErr(forge.BroadcastRejected, "%s", nodeDetail(res))
	default:
		return "", forge.NewErr(forge.NotAvailable, "node status %d: %s", status, nodeDetail(res))
	}
	var txid string
	if err := json.Unmarshal(res, &txid); err != nil {
		return "", forge.NewErr(forge.NotAvailable, "node unmarshal txid: %v", err)
	}
	if b, err := ergo.HexDecode(txid); err != nil || len(b) != ergo.IDLen {
		return "", forge.NewErr(forge.NotAvailable, "node did not return a transaction id: %q", txid)
	}
	return ergo.TxID(txid), nil
}
