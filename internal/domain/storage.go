package domain

import (
	"fmt"
	"strings"
)

// StorageType selects the media on the cartridge a command operates on.
type StorageType string

const (
	StorageSD  StorageType = "sd"
	StorageUSB StorageType = "usb"
)

// Selector returns the single byte the firmware expects (SD=1, USB=0).
func (s StorageType) Selector() byte {
	if s == StorageUSB {
		return 0
	}
	return 1
}

func (s StorageType) String() string { return string(s) }

// ParseStorageType accepts "sd" or "usb" in any case.
func ParseStorageType(v string) (StorageType, error) {
	switch StorageType(strings.ToLower(strings.TrimSpace(v))) {
	case StorageSD:
		return StorageSD, nil
	case StorageUSB:
		return StorageUSB, nil
	}
	return "", fmt.Errorf("unknown storage type %q (want sd or usb)", v)
}

// Target is the per-call settings snapshot: which media to address and where
// uploads, auto-transfers and favorites land on it.
type Target struct {
	Storage       StorageType
	RootPath      string              // auto-transfer root, e.g. "/sync"
	FavoritesPath string              // e.g. "/favorites"
	KindFolders   map[FileKind]string // per-kind subfolder under RootPath
}

// TransferPath returns the device folder an auto-transferred file of kind
// lands in. Kinds without a folder go to RootPath itself.
func (t Target) TransferPath(kind FileKind) string {
	folder, ok := t.KindFolders[kind]
	if !ok || folder == "" {
		return t.RootPath
	}
	return strings.TrimRight(t.RootPath, "/") + "/" + strings.Trim(folder, "/")
}

// FavoritePath returns the favorites folder for a file kind.
func (t Target) FavoritePath(kind FileKind) string {
	base := strings.TrimRight(t.FavoritesPath, "/")
	switch kind {
	case KindSid:
		return base + "/music"
	case KindPrg, KindCrt:
		return base + "/games"
	default:
		return base + "/files"
	}
}
