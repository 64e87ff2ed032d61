package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/wippyai/krakatau-bridge/errors"
)

// UnknownFilePath is echoed when the request itself could not be parsed.
const UnknownFilePath = "unknown"

// DisassembleRequest asks for one class file to be disassembled.
type DisassembleRequest struct {
	FilePath        string `json:"file_path"`
	Base64Content   string `json:"base64_content"`
	Roundtrip       bool   `json:"roundtrip"`
	NoShortCodeAttr bool   `json:"no_short_code_attr"`
}

// AssembleRequest asks for assembler source to be compiled.
type AssembleRequest struct {
	FilePath   string `json:"file_path"`
	SourceCode string `json:"source_code"`
}

// ParseDisassembleRequest decodes a disassemble envelope. file_path and
// base64_content are required strings. The flags are optional booleans that
// default to false when absent; null is rejected.
func ParseDisassembleRequest(data []byte) (DisassembleRequest, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return DisassembleRequest{}, err
	}

	var req DisassembleRequest
	if req.FilePath, err = obj.requiredString("file_path"); err != nil {
		return DisassembleRequest{}, err
	}
	if req.Base64Content, err = obj.requiredString("base64_content"); err != nil {
		return DisassembleRequest{}, err
	}
	if req.Roundtrip, err = obj.optionalBool("roundtrip"); err != nil {
		return DisassembleRequest{}, err
	}
	if req.NoShortCodeAttr, err = obj.optionalBool("no_short_code_attr"); err != nil {
		return DisassembleRequest{}, err
	}
	return req, nil
}

// ParseAssembleRequest decodes an assemble envelope. file_path and
// source_code are required.
func ParseAssembleRequest(data []byte) (AssembleRequest, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return AssembleRequest{}, err
	}

	var req AssembleRequest
	if req.FilePath, err = obj.requiredString("file_path"); err != nil {
		return AssembleRequest{}, err
	}
	if req.SourceCode, err = obj.requiredString("source_code"); err != nil {
		return AssembleRequest{}, err
	}
	return req, nil
}

// object is a request envelope split into its members. Keys are matched
// exactly; encoding/json's case-insensitive struct matching is not used.
// Unknown keys are ignored.
type object map[string]json.RawMessage

func decodeObject(data []byte) (object, error) {
	var obj object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.InvalidData(errors.PhaseProtocol, nil, "invalid type: null, expected an object")
	}
	return obj, nil
}

func (o object) requiredString(key string) (string, error) {
	raw, ok := o[key]
	if !ok || isNull(raw) {
		return "", errors.FieldMissing(errors.PhaseProtocol, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New(errors.PhaseProtocol, errors.KindInvalidData).
			Path(key).
			Detail("invalid type for `%s`, expected a string", key).
			Cause(err).
			Build()
	}
	return s, nil
}

func (o object) optionalBool(key string) (bool, error) {
	raw, ok := o[key]
	if !ok {
		return false, nil
	}
	if isNull(raw) {
		return false, errors.InvalidData(errors.PhaseProtocol, []string{key}, "invalid type: null, expected a boolean")
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, errors.New(errors.PhaseProtocol, errors.KindInvalidData).
			Path(key).
			Detail("invalid type for `%s`, expected a boolean", key).
			Cause(err).
			Build()
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// marshal encodes v without HTML escaping so that text such as <init> or
// a && b reaches the caller byte for byte.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DisassembleResponse carries either Output or Error, never both.
type DisassembleResponse struct {
	Output   *string `json:"output,omitempty"`
	Error    *string `json:"error,omitempty"`
	FilePath string  `json:"file_path"`
	Success  bool    `json:"success"`
}

// ClassFileResult is one assembled class. Name is nil when the assembler
// could not determine it.
type ClassFileResult struct {
	Name          *string `json:"name,omitempty"`
	Base64Content string  `json:"base64_content"`
}

// AssembleResponse carries either ClassFiles (possibly empty) or Error.
type AssembleResponse struct {
	Error      *string           `json:"error,omitempty"`
	FilePath   string            `json:"file_path"`
	ClassFiles []ClassFileResult `json:"class_files,omitzero"`
	Success    bool              `json:"success"`
}

// ResponseError is a failed envelope seen from the caller's side.
type ResponseError struct {
	FilePath string
	Message  string
}

func (e *ResponseError) Error() string {
	return e.FilePath + ": " + e.Message
}

// DisassembleSuccess builds a successful disassemble envelope.
func DisassembleSuccess(filePath, output string) DisassembleResponse {
	return DisassembleResponse{Success: true, FilePath: filePath, Output: &output}
}

// DisassembleFailure builds a failed disassemble envelope.
func DisassembleFailure(filePath, message string) DisassembleResponse {
	return DisassembleResponse{FilePath: filePath, Error: &message}
}

// Err returns a *ResponseError for a failed envelope, nil otherwise.
func (r DisassembleResponse) Err() error {
	if r.Success {
		return nil
	}
	msg := ""
	if r.Error != nil {
		msg = *r.Error
	}
	return &ResponseError{FilePath: r.FilePath, Message: msg}
}

// AssembleSuccess builds a successful assemble envelope. files may be empty.
func AssembleSuccess(filePath string, files []ClassFileResult) AssembleResponse {
	if files == nil {
		files = []ClassFileResult{}
	}
	return AssembleResponse{Success: true, FilePath: filePath, ClassFiles: files}
}

// AssembleFailure builds a failed assemble envelope.
func AssembleFailure(filePath, message string) AssembleResponse {
	return AssembleResponse{FilePath: filePath, Error: &message}
}

// Err returns a *ResponseError for a failed envelope, nil otherwise.
func (r AssembleResponse) Err() error {
	if r.Success {
		return nil
	}
	msg := ""
	if r.Error != nil {
		msg = *r.Error
	}
	return &ResponseError{FilePath: r.FilePath, Message: msg}
}

// failureEnvelope is the shape shared by both failure responses. It is used
// when the typed response itself cannot be produced.
type failureEnvelope struct {
	FilePath string `json:"file_path"`
	Error    string `json:"error"`
	Success  bool   `json:"success"`
}

// FailureEnvelope renders a failure response for callers that cannot reach
// the handler at all, such as transports reporting a negative status.
func FailureEnvelope(filePath, message string) []byte {
	body, err := marshal(failureEnvelope{FilePath: filePath, Error: message})
	if err != nil {
		return []byte(`{"success":false,"file_path":"unknown","error":"JSON serialization error"}`)
	}
	return body
}
