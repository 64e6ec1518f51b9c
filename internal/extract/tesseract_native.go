//go:build darwin || linux

package extract

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// nativeTesseract drives libtesseract (plus libleptonica for image
// loading) in-process via purego. This avoids a fork per page, which
// matters for OCR-heavy backfills; construction fails cleanly when the
// libraries are not installed and the CLI path takes over.
type nativeTesseract struct {
	mu sync.Mutex

	create    func() uintptr
	delete    func(uintptr)
	init3     func(uintptr, uintptr, string) int32
	setImage  func(uintptr, uintptr)
	getText   func(uintptr) uintptr
	clear     func(uintptr)
	deleteStr func(uintptr)

	pixRead    func(string) uintptr
	pixDestroy func(*uintptr) // pixDestroy takes PIX**

	handle uintptr
}

// libraryCandidates in load order per platform.
func tesseractLibraries() (tess []string, lept []string) {
	switch runtime.GOOS {
	case "darwin":
		return []string{
				"libtesseract.5.dylib",
				"libtesseract.dylib",
				"/opt/homebrew/lib/libtesseract.dylib",
				"/usr/local/lib/libtesseract.dylib",
			}, []string{
				"liblept.5.dylib",
				"libleptonica.dylib",
				"/opt/homebrew/lib/libleptonica.dylib",
				"/usr/local/lib/libleptonica.dylib",
			}
	default:
		return []string{
				"libtesseract.so.5",
				"libtesseract.so.4",
				"libtesseract.so",
			}, []string{
				"libleptonica.so.6",
				"liblept.so.5",
				"libleptonica.so",
			}
	}
}

func dlopenFirst(candidates []string) (uintptr, error) {
	var lastErr error
	for _, name := range candidates {
		lib, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return lib, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("no candidate library loaded: %w", lastErr)
}

// newNativeTesseract loads the shared libraries and initializes one
// reusable engine handle. Calls are serialized; the engine is not
// thread-safe.
func newNativeTesseract() (*nativeTesseract, error) {
	tessNames, leptNames := tesseractLibraries()

	tessLib, err := dlopenFirst(tessNames)
	if err != nil {
		return nil, fmt.Errorf("libtesseract unavailable: %w", err)
	}
	leptLib, err := dlopenFirst(leptNames)
	if err != nil {
		return nil, fmt.Errorf("libleptonica unavailable: %w", err)
	}

	t := &nativeTesseract{}
	purego.RegisterLibFunc(&t.create, tessLib, "TessBaseAPICreate")
	purego.RegisterLibFunc(&t.delete, tessLib, "TessBaseAPIDelete")
	purego.RegisterLibFunc(&t.init3, tessLib, "TessBaseAPIInit3")
	purego.RegisterLibFunc(&t.setImage, tessLib, "TessBaseAPISetImage2")
	purego.RegisterLibFunc(&t.getText, tessLib, "TessBaseAPIGetUTF8Text")
	purego.RegisterLibFunc(&t.clear, tessLib, "TessBaseAPIClear")
	purego.RegisterLibFunc(&t.deleteStr, tessLib, "TessDeleteText")
	purego.RegisterLibFunc(&t.pixRead, leptLib, "pixRead")
	purego.RegisterLibFunc(&t.pixDestroy, leptLib, "pixDestroy")

	t.handle = t.create()
	if t.handle == 0 {
		return nil, fmt.Errorf("TessBaseAPICreate returned nil")
	}
	if rc := t.init3(t.handle, 0, "eng"); rc != 0 {
		t.delete(t.handle)
		return nil, fmt.Errorf("TessBaseAPIInit3 failed: %d", rc)
	}
	return t, nil
}

// Recognize implements OCREngine.
func (t *nativeTesseract) Recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pix := t.pixRead(path)
	if pix == 0 {
		return "", fmt.Errorf("%w: unreadable image: %s", ErrUnsupported, path)
	}
	defer t.pixDestroy(&pix)

	t.setImage(t.handle, pix)
	defer t.clear(t.handle)

	textPtr := t.getText(t.handle)
	if textPtr == 0 {
		return "", fmt.Errorf("%w: ocr produced no text", ErrUnsupported)
	}
	defer t.deleteStr(textPtr)

	return goStringFromC(textPtr), nil
}

// Available implements OCREngine.
func (t *nativeTesseract) Available() bool { return t.handle != 0 }

// goStringFromC copies a NUL-terminated C string. ptr is library-owned
// memory, never a Go pointer, so a single laundered conversion is
// sound; arithmetic stays on unsafe.Add afterwards.
func goStringFromC(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := *(*unsafe.Pointer)(unsafe.Pointer(&ptr))
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), n))
}
