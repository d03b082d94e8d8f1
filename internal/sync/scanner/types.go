package scanner

// LocalEntry is one file or folder below the local sync root
type LocalEntry struct {
	RelativePath string
	AbsPath      string
	IsDir        bool
	Size         int64
	// ModTime is in whole seconds since the epoch
	ModTime int64
}

// RemoteEntry is one file or folder below the destination folder
type RemoteEntry struct {
	RelativePath string
	ID           string
	ParentID     string
	IsDir        bool
	// ModTime is in whole seconds since the epoch, 0 when unparseable
	ModTime int64
	// ModifiedTime is the store's raw timestamp
	ModifiedTime string
}
