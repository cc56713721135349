package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/session"
)

// MCP Protocol types
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type MCPToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MCPInitializeResult struct {
	ProtocolVersion string        `json:"protocolVersion"`
	ServerInfo      MCPServerInfo `json:"serverInfo"`
	Capabilities    interface{}   `json:"capabilities"`
}

// GetRecordParams are the parameters for the get_record tool
type GetRecordParams struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
	Force      bool   `json:"force"`
}

// MarginParams are the parameters for the best_margin and top_margins tools
type MarginParams struct {
	Commodity string `json:"commodity"`
	Limit     int    `json:"limit"`
}

// ShipParams are the parameters for the ship_cooldown tool
type ShipParams struct {
	Ship string `json:"ship"`
}

// mcpServer answers MCP requests read line by line from in.
type mcpServer struct {
	session *session.Session
	in      io.Reader
	out     io.Writer
}

func newMCPServer(s *session.Session, in io.Reader, out io.Writer) *mcpServer {
	return &mcpServer{session: s, in: in, out: out}
}

// Run serves requests until in is exhausted or ctx is cancelled.
func (m *mcpServer) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(m.in)
	// Increase buffer size for large messages
	const maxCapacity = 10 * 1024 * 1024 // 10MB
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			// For parse errors, we can't know the ID, so we log to stderr
			// but don't send a response (which would have id: null and confuse clients)
			fmt.Fprintf(os.Stderr, "[MCP] Parse error: %v\n", err)
			continue
		}

		m.handleRequest(ctx, &req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func (m *mcpServer) handleRequest(ctx context.Context, req *MCPRequest) {
	switch req.Method {
	case "initialize":
		m.sendResponse(req.ID, MCPInitializeResult{
			ProtocolVersion: "2024-11-05",
			ServerInfo: MCPServerInfo{
				Name:    "stcache",
				Version: core.Version,
			},
			Capabilities: map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		})
	case "initialized", "notifications/initialized":
		// Notifications don't get responses - silently ignore
		return
	case "tools/list":
		m.sendResponse(req.ID, map[string]interface{}{"tools": toolList()})
	case "tools/call":
		m.handleToolsCall(ctx, req)
	default:
		// Only send error for requests (those with an ID)
		// Notifications (no ID) never get a reply
		if req.ID != nil {
			m.sendError(req.ID, -32601, "Method not found", req.Method)
		}
	}
}

func stringProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func toolList() []MCPToolInfo {
	return []MCPToolInfo{
		{
			Name:        "get_record",
			Description: "Get a SpaceTraders record (system, market, contract, ship, faction, agent) from the local cache, fetching it from the API on a miss.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"collection": stringProp("Collection name: systems, markets, contracts, ships, factions or agents"),
					"key":        stringProp("Natural key: symbol, or contract id"),
					"force": map[string]interface{}{
						"type":        "boolean",
						"description": "Fetch from the API even when cached",
						"default":     false,
					},
				},
				"required": []string{"collection", "key"},
			},
		},
		{
			Name:        "best_margin",
			Description: "Best known place to buy and to sell a commodity, with the margin between them.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"commodity": stringProp("Trade good symbol, e.g. COPPER_ORE"),
				},
				"required": []string{"commodity"},
			},
		},
		{
			Name:        "top_margins",
			Description: "Commodities with the largest known trade margins.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of commodities",
						"default":     5,
					},
				},
			},
		},
		{
			Name:        "ship_cooldown",
			Description: "Remaining cooldown seconds for a ship.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ship": stringProp("Ship symbol"),
				},
				"required": []string{"ship"},
			},
		},
	}
}

func (m *mcpServer) handleToolsCall(ctx context.Context, req *MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		m.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	switch params.Name {
	case "get_record":
		var args GetRecordParams
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			m.sendToolError(req.ID, fmt.Sprintf("Invalid arguments: %v", err))
			return
		}
		get := m.session.Get
		if args.Force {
			get = m.session.Refresh
		}
		rec, err := get(ctx, args.Collection, args.Key)
		if err != nil {
			m.sendToolError(req.ID, err.Error())
			return
		}
		m.sendToolResult(req.ID, rec)

	case "best_margin":
		var args MarginParams
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			m.sendToolError(req.ID, fmt.Sprintf("Invalid arguments: %v", err))
			return
		}
		margin, ok := m.session.BestMargin(args.Commodity)
		if !ok {
			m.sendToolError(req.ID, fmt.Sprintf("No prices recorded for %s", args.Commodity))
			return
		}
		m.sendToolResult(req.ID, margin)

	case "top_margins":
		args := MarginParams{Limit: 5}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			m.sendToolError(req.ID, fmt.Sprintf("Invalid arguments: %v", err))
			return
		}
		m.sendToolResult(req.ID, m.session.TopMargins(args.Limit))

	case "ship_cooldown":
		var args ShipParams
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			m.sendToolError(req.ID, fmt.Sprintf("Invalid arguments: %v", err))
			return
		}
		if _, err := m.session.Cooldown(ctx, args.Ship); err != nil {
			m.sendToolError(req.ID, err.Error())
			return
		}
		remaining, _ := m.session.RemainingCooldown(args.Ship)
		m.sendToolResult(req.ID, map[string]interface{}{"ship": args.Ship, "remaining_seconds": remaining})

	default:
		m.sendError(req.ID, -32602, "Unknown tool", params.Name)
	}
}

func (m *mcpServer) sendResponse(id interface{}, result interface{}) {
	resp := MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	data, _ := json.Marshal(resp)
	fmt.Fprintln(m.out, string(data))
}

func (m *mcpServer) sendError(id interface{}, code int, message, data string) {
	resp := MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	data2, _ := json.Marshal(resp)
	fmt.Fprintln(m.out, string(data2))
}

func (m *mcpServer) sendToolResult(id interface{}, result interface{}) {
	m.sendResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": mustMarshal(result),
			},
		},
	})
}

func (m *mcpServer) sendToolError(id interface{}, message string) {
	m.sendResponse(id, map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": message,
			},
		},
		"isError": true,
	})
}

func mustMarshal(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(data)
}
