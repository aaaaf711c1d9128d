package protoreg

import (
	"os"
	"path"

	"github.com/jhump/protoreflect/v2/protoprint"
)

// Render prints the tree's source files back to .proto definitions under outDir.
func Render(t *Tree, outDir string) error {
	if t.Files == nil {
		return ErrNoDescriptors
	}
	pp := protoprint.Printer{}

	for _, fd := range t.Files {
		fp := path.Join(outDir, fd.Path())
		if err := os.MkdirAll(path.Dir(fp), 0755); err != nil {
			return err
		}
		openedFile, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		err = pp.PrintProtoFile(fd, openedFile)
		if cerr := openedFile.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}
