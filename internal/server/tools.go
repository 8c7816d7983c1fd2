package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": description}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Detection
		{
			Name:        "window_detect",
			Description: "Detect the window region in a room photo and store its mask. Always succeeds with some mask; 'found' tells whether a detector actually identified a window or the result is a centered guess.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":     stringProp("Absolute path to the room photo"),
					"image_id": stringProp("Key for the stored mask. Defaults to an id derived from the photo bytes"),
					"mode": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"cascade", "ensemble"},
						"description": "cascade tries detectors one at a time (cheapest); ensemble runs them all at once (fastest). Default cascade",
						"default":     "cascade",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "window_preview",
			Description: "Render the photo with the stored window mask tinted and the detected candidate boxes outlined, as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":     stringProp("Absolute path to the room photo"),
					"image_id": stringProp("Id of a mask stored by window_detect. Defaults to the photo's derived id"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "mask_info",
			Description: "Get the dimensions and coverage percentage of a stored window mask.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_id": stringProp("Id of a mask stored by window_detect"),
				},
				"required": []string{"image_id"},
			},
		},

		// Compositing
		{
			Name:        "blind_apply",
			Description: "Composite a blind texture or solid color onto the window region of a photo and return the result as base64-encoded PNG. Needs a mask stored by window_detect.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":          stringProp("Absolute path to the room photo"),
					"image_id":      stringProp("Id of the stored mask. Defaults to the photo's derived id"),
					"texture_path":  stringProp("Absolute path to a blind texture image"),
					"color":         stringProp("Hex color such as #d2b48c. Used as a solid overlay, or to tint texture_path"),
					"tint_strength": numberProp("How strongly color tints the texture, 0-1. Default 0.5"),
					"alpha":         numberProp("Overlay opacity inside the window, 0-1. Default from configuration"),
					"shadow":        numberProp("Shadow intensity around the blind, 0-0.5. Default from configuration"),
					"output_path":   stringProp("Optional path to also write the PNG to"),
				},
				"required": []string{"path"},
			},
		},

		// Diagnostics
		{
			Name:        "detectors_list",
			Description: "List the configured window detectors in priority order.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
