package host

// ModuleName is the import module under which the provider exposes the
// boundary to guests.
const ModuleName = "krakatau"

// Boundary ABI export names.
const (
	ExportDecompile       = "decompile"
	ExportAssemble        = "assemble"
	ExportAllocateInput   = "allocate_input_buffer"
	ExportFreeBuffer      = "free_buffer"
	ExportResponseLength  = "response_length"
	ExportResponsePointer = "response_pointer"
	ExportFreeResponse    = "free_response"
)

// Older spellings of the same entry points.
const (
	AliasDecompile       = "decompile_json"
	AliasResponseLength  = "get_response_length"
	AliasResponsePointer = "get_response_ptr"
)

// exportNames lists accepted names per entry point, preferred first.
var exportNames = map[string][]string{
	ExportDecompile:       {ExportDecompile, AliasDecompile},
	ExportAssemble:        {ExportAssemble},
	ExportAllocateInput:   {ExportAllocateInput},
	ExportFreeBuffer:      {ExportFreeBuffer},
	ExportResponseLength:  {ExportResponseLength, AliasResponseLength},
	ExportResponsePointer: {ExportResponsePointer, AliasResponsePointer},
	ExportFreeResponse:    {ExportFreeResponse},
}
