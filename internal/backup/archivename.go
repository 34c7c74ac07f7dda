package backup

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampFormat is the capture timestamp layout used in archive and dump
// filenames: YYYYMMDD_HHMMSS.
const TimestampFormat = "20060102_150405"

// ArchiveName is the parsed form of an archived version's filename.
// Archived file versions are named <logical-path>.<TIMESTAMP>[_<pid>] and
// database dump snapshots are named <name>_<TIMESTAMP>.<ext>. Either form may
// carry a trailing wrap extension (e.g. ".age") when encryption is enabled.
type ArchiveName struct {
	// LogicalPath is the item's identity: the relative path for a file
	// version, or "<name>.<ext>" for a database dump.
	LogicalPath string
	// Timestamp is the capture time parsed from the name. Zero when the
	// name carried no parseable timestamp.
	Timestamp time.Time
	// PID disambiguates rapid successive captures. Zero when absent.
	PID int
	// WrapExt is the stripped encryption suffix including the dot, or "".
	WrapExt string
	// Dump is true for database dump names (<name>_<TIMESTAMP>.<ext>).
	Dump bool
}

// fileVersionRE matches the ".<TIMESTAMP>[_<pid>]" tail of an archived file
// version. dumpRE matches the "_<TIMESTAMP>" segment before a dump's
// extension.
var (
	fileVersionRE = regexp.MustCompile(`^(.+)\.(\d{8}_\d{6})(?:_(\d+))?$`)
	dumpRE        = regexp.MustCompile(`^(.+)_(\d{8}_\d{6})(\.[^.]+)$`)
)

// ParseArchiveName parses an archived version's filename (relative to the
// archive root, slash-separated). wrapSuffix is the configured encryption
// suffix ("" when encryption is disabled); any other unknown trailing
// extension after the timestamp is stripped as well rather than failing.
// Returns false when no timestamp can be found in the name; callers should
// then fall back to filesystem modification time.
func ParseArchiveName(name string, wrapSuffix string) (ArchiveName, bool) {
	trimmed, wrapExt := stripWrapSuffix(name, wrapSuffix)

	if m := fileVersionRE.FindStringSubmatch(trimmed); m != nil {
		ts, err := time.ParseInLocation(TimestampFormat, m[2], time.Local)
		if err == nil {
			pid := 0
			if m[3] != "" {
				pid, _ = strconv.Atoi(m[3])
			}
			return ArchiveName{
				LogicalPath: m[1],
				Timestamp:   ts,
				PID:         pid,
				WrapExt:     wrapExt,
			}, true
		}
	}

	return ArchiveName{LogicalPath: trimmed, WrapExt: wrapExt}, false
}

// ParseDumpName parses a database dump filename (<name>_<TIMESTAMP>.<ext>).
// The logical path of a dump is "<name>.<ext>" so that successive dumps of
// the same database share one identity.
func ParseDumpName(name string, wrapSuffix string) (ArchiveName, bool) {
	trimmed, wrapExt := stripWrapSuffix(name, wrapSuffix)

	if m := dumpRE.FindStringSubmatch(trimmed); m != nil {
		ts, err := time.ParseInLocation(TimestampFormat, m[2], time.Local)
		if err == nil {
			return ArchiveName{
				LogicalPath: m[1] + m[3],
				Timestamp:   ts,
				WrapExt:     wrapExt,
				Dump:        true,
			}, true
		}
	}

	return ArchiveName{LogicalPath: trimmed, WrapExt: wrapExt, Dump: true}, false
}

// FormatFileVersion builds the archive filename for a superseded copy of
// logicalPath captured at ts by process pid.
func FormatFileVersion(logicalPath string, ts time.Time, pid int) string {
	base := fmt.Sprintf("%s.%s", logicalPath, ts.Format(TimestampFormat))
	if pid > 0 {
		base = fmt.Sprintf("%s_%d", base, pid)
	}
	return base
}

// FormatDumpName builds the dump snapshot filename for a database dump.
// logicalPath is "<name>.<ext>"; the timestamp goes between name and ext.
func FormatDumpName(logicalPath string, ts time.Time) string {
	ext := filepath.Ext(logicalPath)
	name := strings.TrimSuffix(logicalPath, ext)
	return fmt.Sprintf("%s_%s%s", name, ts.Format(TimestampFormat), ext)
}

// stripWrapSuffix removes the configured wrap suffix, or failing that any
// single unknown trailing extension that sits after a timestamp-bearing
// name. Unknown suffixes must never make a name unparseable.
func stripWrapSuffix(name string, wrapSuffix string) (trimmed string, wrapExt string) {
	if wrapSuffix != "" && strings.HasSuffix(name, wrapSuffix) {
		return strings.TrimSuffix(name, wrapSuffix), wrapSuffix
	}
	// An unknown trailing extension is only stripped when doing so exposes
	// a parseable timestamp; otherwise the name is returned as-is.
	ext := filepath.Ext(name)
	if ext != "" && ext != name {
		bare := strings.TrimSuffix(name, ext)
		if fileVersionRE.MatchString(bare) || dumpRE.MatchString(bare) {
			return bare, ext
		}
	}
	return name, ""
}
