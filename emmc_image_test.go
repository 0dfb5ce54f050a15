package wvrboot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTestEMMC(t *testing.T, sectors int) string {
	t.Helper()
	data := make([]byte, sectors*SectorSize)
	for i := range data {
		data[i] = sectorByte(i/SectorSize, i%SectorSize)
	}
	path := filepath.Join(t.TempDir(), "emmc.img")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEMMCImage(t *testing.T) {
	e, err := OpenEMMCImage(writeTestEMMC(t, 16))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if e.Sectors() != 16 {
		t.Errorf("got %d sectors", e.Sectors())
	}
	buf := make([]byte, 2*SectorSize)
	if err := e.ReadSectors(buf, 14, 2); err != nil {
		t.Fatal(err)
	}
	if buf[0] != sectorByte(14, 0) || buf[SectorSize+1] != sectorByte(15, 1) {
		t.Error("unexpected sector contents")
	}

	var serr *StorageError
	if err := e.ReadSectors(buf, 15, 2); !errors.As(err, &serr) || serr.Sector != 15 {
		t.Errorf("read past the end: %v", err)
	}
	if err := e.ReadSectors(buf[:10], 0, 1); !errors.As(err, &serr) {
		t.Errorf("short buffer: %v", err)
	}
}

func TestOpenEMMCImageMissing(t *testing.T) {
	if _, err := OpenEMMCImage(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected an error")
	}
}

func TestEMMCImageCloseTwice(t *testing.T) {
	e, err := OpenEMMCImage(writeTestEMMC(t, 2))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	var serr *StorageError
	if err := e.ReadSectors(make([]byte, SectorSize), 0, 1); !errors.As(err, &serr) {
		t.Errorf("read after close: %v", err)
	}
}
