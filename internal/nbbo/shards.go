package nbbo

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Shard discovery. Raw shards are named <SYM><YYYY>*.csv.gz; cached
// tick shards keep the same base name with a .nbt extension. A single
// shard may span a year boundary, so the embedded year is a sort key,
// not a partition key.

const (
	rawSuffix  = ".csv.gz"
	tickSuffix = ".nbt"
)

// shardYear extracts the four-digit year following the symbol prefix,
// or -1 if the name does not carry one.
func shardYear(name, symRoot string) int {
	rest := strings.TrimPrefix(name, symRoot)
	if rest == name || len(rest) < 4 {
		return -1
	}
	y, err := strconv.Atoi(rest[:4])
	if err != nil {
		return -1
	}
	return y
}

// listRawShards returns the matching CSV shards in name order. An empty
// or missing input directory yields an empty list, which is acceptable
// for cache-only runs.
func listRawShards(s Settings) []string {
	if s.InDir == "" {
		return nil
	}
	entries, err := os.ReadDir(s.InDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "" || name[0] == '.' || !strings.HasSuffix(name, rawSuffix) {
			continue
		}
		if s.SymRoot != "" && !strings.HasPrefix(name, s.SymRoot) {
			continue
		}
		y := shardYear(name, s.SymRoot)
		if y < 0 {
			continue
		}
		if s.YearLo != 0 && y < s.YearLo {
			continue
		}
		if s.YearHi != 0 && y > s.YearHi {
			continue
		}
		out = append(out, filepath.Join(s.InDir, name))
	}
	sort.Strings(out)
	return out
}

// sortChronologically orders shard paths by their embedded year.
func sortChronologically(symRoot string, paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return shardYear(filepath.Base(paths[i]), symRoot) <
			shardYear(filepath.Base(paths[j]), symRoot)
	})
}

// cacheSubdir returns the cache directory for the given grid.
func cacheSubdir(cacheDir string, g Grid) string {
	return filepath.Join(cacheDir, "ms_"+g.String())
}

// cachePathForRaw maps a raw shard path to its cached tick file.
func cachePathForRaw(s Settings, rawPath string) string {
	base := strings.TrimSuffix(filepath.Base(rawPath), rawSuffix)
	return filepath.Join(cacheSubdir(s.CacheDir, s.Grid), base+tickSuffix)
}

// cacheFromRawList maps every raw shard to its expected cache file and
// reports whether the cache fully covers the list.
func cacheFromRawList(s Settings, raws []string) ([]string, bool) {
	if len(raws) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		p := cachePathForRaw(s, raw)
		if _, err := os.Stat(p); err != nil {
			return nil, false
		}
		out = append(out, p)
	}
	sortChronologically(s.SymRoot, out)
	return out, true
}

// cacheFromSubdir scans a cache subdirectory for matching tick shards.
func cacheFromSubdir(s Settings, dir string) ([]string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, tickSuffix) || !strings.HasPrefix(name, s.SymRoot) {
			continue
		}
		y := shardYear(name, s.SymRoot)
		if y < 0 {
			continue
		}
		if s.YearLo != 0 && y < s.YearLo {
			continue
		}
		if s.YearHi != 0 && y > s.YearHi {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	if len(out) == 0 {
		return nil, false
	}
	sortChronologically(s.SymRoot, out)
	return out, true
}
