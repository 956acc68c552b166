package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Protocol Errors (P001-P009)
	// ============================================

	"P001": {
		Category:   CategoryProtocol,
		Message:    "Invalid schema",
		Detail:     "Every packet needs a non-empty id, a one byte code that is not the newline delimiter and uniquely named fields. Codes must be unique across the registry, including the reserved ping and connectionReconcile packets.",
		Suggestion: "Pick a code that no other packet uses.",
	},
	"P002": {
		Category:   CategoryProtocol,
		Message:    "Unregistered packet code",
		Detail:     "The first byte of a unit is its packet code, and no packet in the schema uses this one.",
		Suggestion: "Check that the input was encoded with the same schema; compare fingerprints with `pipwire schema`.",
	},
	"P003": {
		Category:   CategoryProtocol,
		Message:    "Malformed field",
		Detail:     "A field is missing, has the wrong kind, does not fit its width or its bytes are truncated.",
		Suggestion: "Run `pipwire schema` to see the fields and widths of every packet.",
	},
	"P004": {
		Category:   CategoryProtocol,
		Message:    "Unknown packet",
		Detail:     "No packet is registered under this id.",
		Suggestion: "Run `pipwire schema` to list the packet ids.",
	},
	"P005": {
		Category: CategoryProtocol,
		Message:  "Some units failed to decode",
		Detail:   "The frame was split into units and at least one of them could not be decoded. The other units are still valid.",
	},
	"P006": {
		Category:   CategoryProtocol,
		Message:    "Frame exceeds limits",
		Detail:     "The frame is larger than the maximum frame size or has more units than allowed.",
		Suggestion: "Split the frame into smaller groups.",
	},

	// ============================================
	// Input Errors (P010-P019)
	// ============================================

	"P010": {
		Category:   CategoryInput,
		Message:    "Invalid hex input",
		Suggestion: "Pass the frame as hexadecimal, e.g. `pipwire decode 7400000001`.",
	},
	"P011": {
		Category:   CategoryInput,
		Message:    "Invalid record JSON",
		Detail:     "Records are JSON objects keyed by field name.",
		Suggestion: `Example: pipwire encode uploadChat '{"message":"hi"}'`,
	},

	// ============================================
	// Config Errors (P020-P029)
	// ============================================

	"P020": {
		Category:   CategoryConfig,
		Message:    "Failed to load config",
		Suggestion: "Check the path passed with --config and the TOML syntax.",
	},
	"P021": {
		Category: CategoryConfig,
		Message:  "Invalid config",
	},

	// ============================================
	// Manifest Errors (P030-P039)
	// ============================================

	"P030": {
		Category:   CategoryManifest,
		Message:    "Failed to publish manifest",
		Suggestion: "Check the bucket, region and AWS credentials.",
	},
	"P031": {
		Category:   CategoryManifest,
		Message:    "No bucket configured",
		Suggestion: "Pass --bucket, set PIPWIRE_S3_BUCKET or add bucket to the [manifest] section.",
	},

	// ============================================
	// Server Errors (P040-P049)
	// ============================================

	"P040": {
		Category: CategoryServer,
		Message:  "Server failed",
	},
}

// GetAllCodes returns all registered error codes in sorted order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
