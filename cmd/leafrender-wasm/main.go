//go:build wasip1

// Command leafrender-wasm exposes the runtime to a WebAssembly host. Build it
// as a reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o leafrender.wasm ./cmd/leafrender-wasm
//
// Every export takes (pointer, length) pairs into linear memory obtained from
// alloc, writes a JSON envelope into the output buffer and returns the number
// of bytes written, never more than the output capacity.
package main

import (
	"context"
	"os"
	"unsafe"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goliatone/go-leafrender/pkg/abi"
	"github.com/goliatone/go-leafrender/pkg/orchestrator"
)

var (
	arena = abi.NewArena()
	leaf  *orchestrator.Orchestrator
)

func init() {
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	logger := zap.New(zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.WarnLevel))

	rt, err := orchestrator.New(orchestrator.WithLogger(logger.Named("leafrender")))
	if err != nil {
		logger.Fatal("runtime init failed", zap.Error(err))
	}
	leaf = rt
}

func main() {}

//go:wasmexport alloc
func alloc(size uint32) uint32 {
	_, key := arena.Alloc(int(size), func(buf []byte) uintptr {
		return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	})
	return uint32(key)
}

//go:wasmexport dealloc
func dealloc(ptr uint32) {
	arena.Free(uintptr(ptr))
}

//go:wasmexport register_component
func registerComponent(inPtr, inLen, outPtr, outCap uint32) uint32 {
	return uint32(leaf.Codec().RegisterComponent(context.Background(), view(inPtr, inLen), view(outPtr, outCap)))
}

//go:wasmexport compile_templates
func compileTemplates(inPtr, inLen, outPtr, outCap uint32) uint32 {
	return uint32(leaf.Codec().CompileTemplates(view(inPtr, inLen), view(outPtr, outCap)))
}

//go:wasmexport render_template
func renderTemplate(namePtr, nameLen, ctxPtr, ctxLen, outPtr, outCap uint32) uint32 {
	return uint32(leaf.Codec().RenderTemplate(view(namePtr, nameLen), view(ctxPtr, ctxLen), view(outPtr, outCap)))
}

func view(ptr, length uint32) []byte {
	if ptr == 0 || length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), length)
}
