//go:build !govips || !cgo

package convert

func Startup() error {
	return nil
}

func Shutdown() {}

func newConverter(opts Options) (Converter, error) {
	return stdlibConverter{opts: opts}, nil
}
