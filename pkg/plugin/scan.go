package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RiskLevel grades a scan finding.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskCritical:
		return "critical"
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	default:
		return "low"
	}
}

// Finding is one flagged pattern in plugin source.
type Finding struct {
	File    string
	Pattern string
	Level   RiskLevel
}

// ScanResult aggregates findings for a plugin directory.
type ScanResult struct {
	Findings []Finding
	Level    RiskLevel
}

// Blocked reports whether the plugin must not be loaded.
func (s ScanResult) Blocked() bool { return s.Level >= RiskHigh }

var riskyPatterns = []struct {
	pattern string
	level   RiskLevel
}{
	{`"os/exec"`, RiskCritical},
	{`"syscall"`, RiskCritical},
	{`"unsafe"`, RiskHigh},
	{`"net"`, RiskHigh}, // raw sockets; handlers get HTTP via the host
	{`"plugin"`, RiskHigh},
	{"os.RemoveAll", RiskHigh},
	{"os.Setenv", RiskMedium},
	{`"os"`, RiskLow},
	{`"reflect"`, RiskMedium},
}

// ScanDir statically scans all .go files under dir. The scan is a coarse
// substring match over import lines and call sites, not a parse; it errs on
// the side of flagging.
func ScanDir(dir string) (ScanResult, error) {
	var res ScanResult
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		src := string(raw)
		rel, _ := filepath.Rel(dir, path)
		for _, rp := range riskyPatterns {
			if strings.Contains(src, rp.pattern) {
				res.Findings = append(res.Findings, Finding{
					File:    rel,
					Pattern: rp.pattern,
					Level:   rp.level,
				})
				if rp.level > res.Level {
					res.Level = rp.level
				}
			}
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("scan %s: %w", dir, err)
	}
	return res, nil
}
