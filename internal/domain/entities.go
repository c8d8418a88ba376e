package domain

import (
	"path"
	"strings"
)

// FileKind classifies a device file by its extension.
type FileKind string

const (
	KindSid     FileKind = "sid"
	KindPrg     FileKind = "prg"
	KindCrt     FileKind = "crt"
	KindHex     FileKind = "hex"
	KindUnknown FileKind = "unknown"
)

// LaunchableKinds are the kinds the cartridge can run. Firmware images are
// transferable but never launched.
var LaunchableKinds = []FileKind{KindSid, KindPrg, KindCrt}

// KindFromName infers the FileKind from a file name or path.
func KindFromName(name string) FileKind {
	switch strings.ToLower(path.Ext(name)) {
	case ".sid":
		return KindSid
	case ".prg":
		return KindPrg
	case ".crt":
		return KindCrt
	case ".hex":
		return KindHex
	default:
		return KindUnknown
	}
}

// ParseFileKind maps a user-supplied kind name, returning KindUnknown for
// anything unrecognized.
func ParseFileKind(v string) FileKind {
	switch k := FileKind(strings.ToLower(strings.TrimPrefix(v, "."))); k {
	case KindSid, KindPrg, KindCrt, KindHex:
		return k
	}
	return KindUnknown
}

// IsLaunchable reports whether the cartridge can run files of this kind.
func (k FileKind) IsLaunchable() bool {
	for _, l := range LaunchableKinds {
		if k == l {
			return true
		}
	}
	return false
}

// DirectoryEntry is a subdirectory reference inside a listing.
type DirectoryEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// FileEntry is a file on the device.
type FileEntry struct {
	Name string   `json:"name"`
	Path string   `json:"path"`
	Size int64    `json:"size"`
	Kind FileKind `json:"kind"`
}

// FileTransferItem describes a local file queued for upload to the device.
type FileTransferItem struct {
	SourcePath string // local filesystem path
	TargetPath string // device directory
	Name       string
	Size       int64
	Kind       FileKind
	Storage    StorageType
}

// DevicePath is the full device path the item is written to.
func (f FileTransferItem) DevicePath() string {
	return strings.TrimRight(f.TargetPath, "/") + "/" + f.Name
}

// ToFileEntry is the cache entry for the item once it is on the device.
func (f FileTransferItem) ToFileEntry() FileEntry {
	return FileEntry{Name: f.Name, Path: f.DevicePath(), Size: f.Size, Kind: f.Kind}
}
