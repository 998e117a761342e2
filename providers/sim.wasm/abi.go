//go:build wasip1

package main

import "unsafe"

//go:wasmimport env host_log
func hostLog(ptr, size uint32)

// allocations pins guest buffers for the host. The host writes a request into
// a buffer it obtained from hoist_alloc, calls the operation with its pointer
// and length, reads the response out of another hoist_alloc buffer, and then
// frees both.
var allocations = map[uint32][]byte{}

//go:wasmexport hoist_alloc
func hoistAlloc(size uint32) uint32 {
	return allocate(size)
}

//go:wasmexport hoist_free
func hoistFree(ptr, size uint32) {
	delete(allocations, ptr)
}

func allocate(size uint32) uint32 {
	if size == 0 {
		size = 1
	}
	buf := make([]byte, size)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	allocations[ptr] = buf
	return ptr
}

// reply runs one operation and packs the response location into a single
// u64: pointer in the high half, length in the low half.
func reply(op string, ptr, size uint32) uint64 {
	req := allocations[ptr]
	if uint32(len(req)) > size {
		req = req[:size]
	}

	out := respond(op, req)
	outPtr := allocate(uint32(len(out)))
	copy(allocations[outPtr], out)

	logLine("handled " + op)
	return uint64(outPtr)<<32 | uint64(uint32(len(out)))
}

func logLine(msg string) {
	if len(msg) == 0 {
		return
	}
	buf := []byte(msg)
	hostLog(uint32(uintptr(unsafe.Pointer(&buf[0]))), uint32(len(buf)))
}

//go:wasmexport declare_group
func exportDeclareGroup(ptr, size uint32) uint64 {
	return reply("declare_group", ptr, size)
}

//go:wasmexport declare_telemetry_sink
func exportDeclareTelemetrySink(ptr, size uint32) uint64 {
	return reply("declare_telemetry_sink", ptr, size)
}

//go:wasmexport declare_sql_server
func exportDeclareSQLServer(ptr, size uint32) uint64 {
	return reply("declare_sql_server", ptr, size)
}

//go:wasmexport declare_database
func exportDeclareDatabase(ptr, size uint32) uint64 {
	return reply("declare_database", ptr, size)
}

//go:wasmexport declare_function_host
func exportDeclareFunctionHost(ptr, size uint32) uint64 {
	return reply("declare_function_host", ptr, size)
}

//go:wasmexport declare_static_site
func exportDeclareStaticSite(ptr, size uint32) uint64 {
	return reply("declare_static_site", ptr, size)
}

//go:wasmexport apply_address_rule
func exportApplyAddressRule(ptr, size uint32) uint64 {
	return reply("apply_address_rule", ptr, size)
}

//go:wasmexport retire_address_rule
func exportRetireAddressRule(ptr, size uint32) uint64 {
	return reply("retire_address_rule", ptr, size)
}
