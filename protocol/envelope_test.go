package protocol

import (
	"errors"
	"testing"

	bridgeerrors "github.com/wippyai/krakatau-bridge/errors"
)

func TestParseDisassembleRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DisassembleRequest
		missing string
		wantErr bool
	}{
		{
			name:  "defaults",
			input: `{"file_path":"A.class","base64_content":"yv66vg=="}`,
			want:  DisassembleRequest{FilePath: "A.class", Base64Content: "yv66vg=="},
		},
		{
			name:  "flags",
			input: `{"file_path":"A.class","base64_content":"","roundtrip":true,"no_short_code_attr":true}`,
			want:  DisassembleRequest{FilePath: "A.class", Roundtrip: true, NoShortCodeAttr: true},
		},
		{
			name:  "unknown fields ignored",
			input: `{"file_path":"A.class","base64_content":"","extra":[1,2]}`,
			want:  DisassembleRequest{FilePath: "A.class"},
		},
		{name: "missing file_path", input: `{"base64_content":""}`, missing: "file_path", wantErr: true},
		{name: "missing content", input: `{"file_path":"A.class"}`, missing: "base64_content", wantErr: true},
		{name: "null content", input: `{"file_path":"A.class","base64_content":null}`, missing: "base64_content", wantErr: true},
		{name: "malformed", input: `{not json`, wantErr: true},
		{name: "wrong type", input: `{"file_path":1,"base64_content":""}`, wantErr: true},
		{name: "empty", input: ``, wantErr: true},
		{
			name:    "keys are case sensitive",
			input:   `{"FILE_PATH":"A.class","Base64_Content":""}`,
			missing: "file_path",
			wantErr: true,
		},
		{
			name:  "mixed case flag ignored",
			input: `{"file_path":"A.class","base64_content":"","Roundtrip":true}`,
			want:  DisassembleRequest{FilePath: "A.class"},
		},
		{name: "null flag", input: `{"file_path":"A.class","base64_content":"","roundtrip":null}`, wantErr: true},
		{name: "string flag", input: `{"file_path":"A.class","base64_content":"","roundtrip":"yes"}`, wantErr: true},
		{name: "null envelope", input: `null`, wantErr: true},
		{name: "array envelope", input: `[]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDisassembleRequest([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				if tt.missing != "" {
					var e *bridgeerrors.Error
					if !errors.As(err, &e) || e.Kind != bridgeerrors.KindFieldMissing {
						t.Fatalf("error = %v, want field_missing", err)
					}
					if e.Path[0] != tt.missing {
						t.Errorf("missing field = %q, want %q", e.Path[0], tt.missing)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseAssembleRequest(t *testing.T) {
	got, err := ParseAssembleRequest([]byte(`{"file_path":"A.j","source_code":".class A"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.FilePath != "A.j" || got.SourceCode != ".class A" {
		t.Errorf("got %+v", got)
	}

	missing := []struct {
		name  string
		input string
	}{
		{"absent", `{"file_path":"A.j"}`},
		{"null", `{"file_path":"A.j","source_code":null}`},
		{"other case", `{"file_path":"A.j","Source_Code":".class A"}`},
	}
	for _, tt := range missing {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAssembleRequest([]byte(tt.input))
			if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseProtocol, Kind: bridgeerrors.KindFieldMissing}) {
				t.Errorf("err = %v, want missing source_code", err)
			}
		})
	}
}

func TestParseDisassembleRequest_NullFlag(t *testing.T) {
	_, err := ParseDisassembleRequest([]byte(`{"file_path":"A.class","base64_content":"","no_short_code_attr":null}`))
	var e *bridgeerrors.Error
	if !errors.As(err, &e) || e.Kind != bridgeerrors.KindInvalidData {
		t.Fatalf("err = %v, want invalid_data", err)
	}
	if len(e.Path) != 1 || e.Path[0] != "no_short_code_attr" {
		t.Errorf("path = %v", e.Path)
	}
	if e.Detail != "invalid type: null, expected a boolean" {
		t.Errorf("detail = %q", e.Detail)
	}
}

func TestResponseJSON(t *testing.T) {
	name := "pkg/A"
	tests := []struct {
		name string
		resp any
		want string
	}{
		{
			name: "disassemble success",
			resp: DisassembleSuccess("A.class", ".class A\n"),
			want: `{"output":".class A\n","file_path":"A.class","success":true}`,
		},
		{
			name: "disassemble failure",
			resp: DisassembleFailure("A.class", "Decompilation error: bad"),
			want: `{"error":"Decompilation error: bad","file_path":"A.class","success":false}`,
		},
		{
			name: "assemble success",
			resp: AssembleSuccess("A.j", []ClassFileResult{{Name: &name, Base64Content: "yv66vg=="}, {Base64Content: ""}}),
			want: `{"file_path":"A.j","class_files":[{"name":"pkg/A","base64_content":"yv66vg=="},{"base64_content":""}],"success":true}`,
		},
		{
			name: "assemble success without classes",
			resp: AssembleSuccess("A.j", nil),
			want: `{"file_path":"A.j","class_files":[],"success":true}`,
		},
		{
			name: "assemble failure",
			resp: AssembleFailure("A.j", "Assembly error: bad"),
			want: `{"error":"Assembly error: bad","file_path":"A.j","success":false}`,
		},
		{
			name: "markup characters kept",
			resp: DisassembleSuccess("A<B>.class", ".method <init> : ()V\n; a && b\n"),
			want: `{"output":".method <init> : ()V\n; a && b\n","file_path":"A<B>.class","success":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marshal(tt.resp)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestResponseErr(t *testing.T) {
	if err := DisassembleSuccess("A.class", "").Err(); err != nil {
		t.Errorf("success Err() = %v", err)
	}
	err := AssembleFailure("A.j", "Assembly error: x").Err()
	var re *ResponseError
	if !errors.As(err, &re) {
		t.Fatalf("Err() = %T, want *ResponseError", err)
	}
	if re.FilePath != "A.j" || re.Message != "Assembly error: x" {
		t.Errorf("got %+v", re)
	}
	if re.Error() != "A.j: Assembly error: x" {
		t.Errorf("Error() = %q", re.Error())
	}
}

func TestFailureEnvelope(t *testing.T) {
	got := string(FailureEnvelope("Foo<T>.j", "unexpected '&'"))
	want := `{"file_path":"Foo<T>.j","error":"unexpected '&'","success":false}`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}
