package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func sessionIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session id returned by form_analyze",
	}
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the scanned form (PNG, JPEG or GIF)",
	}
}

func directionProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"enum":        []string{"rtl", "ltr"},
		"description": description,
	}
}

func boxProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "number"},
		"minItems":    4,
		"maxItems":    4,
		"description": description,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	detectionItem := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"box": boxProperty("Corners [x1, y1, x2, y2] in pixels"),
			"confidence": map[string]interface{}{
				"type":        "number",
				"description": "Detector score in [0, 1]",
			},
			"class": map[string]interface{}{
				"type":        "string",
				"description": "Detector class, e.g. checkbox, text_box, line",
			},
		},
		"required": []string{"box", "class"},
	}

	return []Tool{
		// Form sessions
		{
			Name:        "form_analyze",
			Description: "Analyse a scanned form: correct its orientation, detect fillable fields, order them in reading direction and label them. Opens a session and returns its id, the labeled fields and an overlay image with every candidate box numbered. Without a configured labeling service the fields list is empty; label the overlay and pass the labels to form_label.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"detections": map[string]interface{}{
						"type":        "array",
						"items":       detectionItem,
						"description": "Field detections from an external detector, in the coordinates of the upright page. When omitted a built-in detector finds boxes and underlines.",
					},
					"direction": directionProperty("Reading direction. Detected from the page text when omitted."),
					"skip_orientation": map[string]interface{}{
						"type":        "boolean",
						"description": "Treat the image as already upright (default: false)",
					},
					"include_overlay": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the numbered overlay as base64 PNG (default: true)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "form_label",
			Description: "Attach labels to the numbered boxes of an analysed form, replacing any earlier labels. Ids are the numbers drawn on the overlay. Boxes without a label, or marked invalid, are dropped; when an id repeats the last entry wins.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty(),
					"labels": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"id": map[string]interface{}{
									"type":        "integer",
									"description": "Number of the box on the overlay, starting at 1",
								},
								"label": map[string]interface{}{
									"type":        "string",
									"description": "Field label in the language of the form",
								},
								"valid": map[string]interface{}{
									"type":        "boolean",
									"description": "Whether the box is a real input field (default: true)",
								},
							},
							"required": []string{"id", "label"},
						},
					},
					"explanation": map[string]interface{}{
						"type":        "string",
						"description": "Short description of what the form is for",
					},
				},
				"required": []string{"session_id", "labels"},
			},
		},
		{
			Name:        "form_fill",
			Description: "Write values onto an analysed form and return the filled page as base64 PNG. Values are kept in the session, so later calls only need the fields that change. Text is shaped for Arabic and sized to fit its box; checkboxes take true/false. An optional signature image is placed on a signature field.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty(),
					"values": map[string]interface{}{
						"type":        "object",
						"description": "Map of box_id to value: a string for text fields, a boolean for checkboxes. An empty string clears a field.",
						"additionalProperties": map[string]interface{}{
							"type": []string{"string", "boolean"},
						},
					},
					"signature_base64": map[string]interface{}{
						"type":        "string",
						"description": "Signature image as base64 or a data URI",
					},
					"signature_box_id": map[string]interface{}{
						"type":        "string",
						"description": "Field to sign. Defaults to the first field labeled as a signature.",
					},
					"reset": map[string]interface{}{
						"type":        "boolean",
						"description": "Discard stored values and signature first (default: false)",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Also write the filled PNG to this path",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the PNG inline (default: true unless output_path is set)",
					},
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "form_fields",
			Description: "Return the labeled fields, stored values and signature fields of a session.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty(),
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "form_close",
			Description: "End a session and release its page image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty(),
				},
				"required": []string{"session_id"},
			},
		},

		// Stateless steps
		{
			Name:        "form_check_quality",
			Description: "Measure brightness, contrast and sharpness of a scan and report whether it is clear enough to analyse.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "form_orient",
			Description: "Find the upright orientation of a scan among 0, 90, 180 and 270 degrees. Returns the counter-clockwise correction with per-angle scores.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the corrected page as base64 PNG (default: false)",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "form_merge",
			Description: "Deduplicate overlapping field detections. Text-like classes win over others, then higher confidence; a detection overlapping an accepted one by more than the IoU threshold is dropped.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"detections": map[string]interface{}{
						"type":  "array",
						"items": detectionItem,
					},
					"iou_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Overlap above which a detection is suppressed (default: 0.4)",
						"minimum":     0,
						"maximum":     1,
					},
				},
				"required": []string{"detections"},
			},
		},
		{
			Name:        "form_sort",
			Description: "Order fields the way the page is read: top to bottom, and within a line right to left (rtl) or left to right (ltr). Returns the fields numbered from 1.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"fields": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"box": boxProperty("Corners [x1, y1, x2, y2] in pixels"),
								"class": map[string]interface{}{
									"type": "string",
								},
							},
							"required": []string{"box"},
						},
					},
					"direction": directionProperty("Reading direction"),
					"line_tolerance": map[string]interface{}{
						"type":        "number",
						"description": "Fraction of the summed heights within which two fields share a line (default: 0.25)",
					},
				},
				"required": []string{"fields", "direction"},
			},
		},
		{
			Name:        "image_edge_detect",
			Description: "Run Canny edge detection and return the edge map as base64 PNG. Useful for checking why boxes were or were not detected.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"threshold_low": map[string]interface{}{
						"type":        "integer",
						"description": "Low hysteresis threshold, 0-255 (default: 50)",
					},
					"threshold_high": map[string]interface{}{
						"type":        "integer",
						"description": "High hysteresis threshold, 0-255 (default: 150)",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}
