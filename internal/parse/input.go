package parse

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/pgzip"
)

const (
	extXML   = ".xml"
	extXMLGz = ".xml.gz"
	extZip   = ".zip"
)

// IsInput reports whether name looks like a grant file the exporter reads.
func IsInput(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, extXML) ||
		strings.HasSuffix(lower, extXMLGz) ||
		strings.HasSuffix(lower, extZip)
}

// FindInputs walks dir for grant files in lexical order. An archive whose
// extracted directory sits next to it is left out so records are not read
// twice.
func FindInputs(dir string) ([]string, error) {
	var inputs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsInput(d.Name()) {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), extZip) {
			extracted := strings.TrimSuffix(path, filepath.Ext(path))
			if info, err := os.Stat(extracted); err == nil && info.IsDir() {
				return nil
			}
		}
		inputs = append(inputs, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(inputs)
	return inputs, nil
}

// visitInput opens path and calls visit once per grant stream inside it: the
// file itself for .xml, the decompressed file for .xml.gz and every XML
// member, in archive order, for .zip. The member name is path for plain
// files and path!member inside archives.
func visitInput(path string, visit func(member string, r io.Reader) error) error {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, extZip):
		return visitZip(path, visit)
	case strings.HasSuffix(lower, extXMLGz):
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		zr, err := pgzip.NewReader(bufio.NewReader(f))
		if err != nil {
			return fmt.Errorf("open gzip %s: %w", path, err)
		}
		defer zr.Close()
		return visit(path, zr)
	default:
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return visit(path, f)
	}
}

func visitZip(path string, visit func(member string, r io.Reader) error) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		lower := strings.ToLower(f.Name)
		if f.FileInfo().IsDir() ||
			!(strings.HasSuffix(lower, extXML) || strings.HasSuffix(lower, extXMLGz)) {
			continue
		}
		if err := visitMember(path+"!"+f.Name, f, visit); err != nil {
			return err
		}
	}
	return nil
}

func visitMember(name string, f *zip.File, visit func(member string, r io.Reader) error) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if strings.HasSuffix(strings.ToLower(f.Name), extXMLGz) {
		gz, err := pgzip.NewReader(bufio.NewReader(rc))
		if err != nil {
			return fmt.Errorf("open gzip %s: %w", name, err)
		}
		defer gz.Close()
		r = gz
	}
	return visit(name, r)
}
